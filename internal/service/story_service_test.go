package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vedran77/sprout/internal/logger"
	"github.com/vedran77/sprout/internal/repository/memory"
)

func TestStoryRoundTrip(t *testing.T) {
	store := memory.New()
	svc := NewStoryService(store.Stories(), newTestCipher(t), logger.Nop())
	ctx := context.Background()
	media := []byte("\x89PNG fake image bytes")

	created, err := svc.CreateStory(ctx, 1, "image", media)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ExpiresAt.Sub(created.CreatedAt) != 24*time.Hour {
		t.Fatalf("expected 24h lifetime, got %s", created.ExpiresAt.Sub(created.CreatedAt))
	}

	stored, _ := store.Stories().GetByID(ctx, created.ID)
	if bytes.Equal(stored.Media, media) {
		t.Fatalf("expected media stored encrypted")
	}

	got, err := svc.GetStory(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got.Media, media) {
		t.Fatalf("media mismatch")
	}
}

func TestStoryExpiry(t *testing.T) {
	store := memory.New()
	svc := NewStoryService(store.Stories(), newTestCipher(t), logger.Nop())
	ctx := context.Background()

	created, _ := svc.CreateStory(ctx, 1, "video", []byte("clip"))
	svc.now = func() time.Time { return created.ExpiresAt }

	if _, err := svc.GetStory(ctx, created.ID); !errors.Is(err, ErrStoryNotFound) {
		t.Fatalf("expected ErrStoryNotFound, got %v", err)
	}
	if _, err := svc.GetStory(ctx, 404); !errors.Is(err, ErrStoryNotFound) {
		t.Fatalf("expected ErrStoryNotFound for unknown id, got %v", err)
	}
}
