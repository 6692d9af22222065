package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vedran77/sprout/internal/domain"
	"github.com/vedran77/sprout/internal/envelope"
	"github.com/vedran77/sprout/internal/logger"
	"github.com/vedran77/sprout/internal/repository"
)

type StoryService struct {
	stories repository.StoryRepository
	cipher  ContentCipher
	log     *logger.Logger
	now     func() time.Time
}

func NewStoryService(stories repository.StoryRepository, cipher ContentCipher, log *logger.Logger) *StoryService {
	return &StoryService{
		stories: stories,
		cipher:  cipher,
		log:     log.With("component", "story_service"),
		now:     time.Now,
	}
}

// StoryView carries decrypted media.
type StoryView struct {
	ID        int64        `json:"id"`
	OwnerID   int64        `json:"owner_id"`
	MediaType string       `json:"media_type"`
	Media     domain.Bytes `json:"media,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// CreateStory encrypts media and stores it for StoryLifetime. The returned
// view omits the media the caller already holds.
func (s *StoryService) CreateStory(ctx context.Context, ownerID int64, mediaType string, media []byte) (*StoryView, error) {
	sealed, err := s.cipher.Encrypt(ctx, media)
	if err != nil {
		s.log.Error("encrypting story", "owner_user_id", ownerID, "error", err)
		return nil, err
	}

	now := s.now()
	story := &domain.Story{
		OwnerID:    ownerID,
		MediaType:  mediaType,
		Media:      sealed.Ciphertext,
		Scheme:     sealed.Scheme,
		WrappedKey: sealed.WrappedKey,
		Nonce:      sealed.Nonce,
		CreatedAt:  now,
		ExpiresAt:  now.Add(domain.StoryLifetime),
	}
	if err := s.stories.Create(ctx, story); err != nil {
		return nil, fmt.Errorf("creating story: %w", err)
	}

	return &StoryView{
		ID:        story.ID,
		OwnerID:   story.OwnerID,
		MediaType: story.MediaType,
		CreatedAt: story.CreatedAt,
		ExpiresAt: story.ExpiresAt,
	}, nil
}

// GetStory returns a live story with its media decrypted. Expired stories
// read as not found.
func (s *StoryService) GetStory(ctx context.Context, storyID int64) (*StoryView, error) {
	story, err := s.stories.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story == nil || story.Expired(s.now()) {
		return nil, ErrStoryNotFound
	}

	media, err := s.cipher.Decrypt(ctx, envelope.Sealed{
		Ciphertext: story.Media,
		WrappedKey: story.WrappedKey,
		Nonce:      story.Nonce,
		Scheme:     story.Scheme,
	})
	if err != nil {
		s.log.Error("decrypting story", "story_id", storyID, "error", err)
		return nil, err
	}

	return &StoryView{
		ID:        story.ID,
		OwnerID:   story.OwnerID,
		MediaType: story.MediaType,
		Media:     media,
		CreatedAt: story.CreatedAt,
		ExpiresAt: story.ExpiresAt,
	}, nil
}
