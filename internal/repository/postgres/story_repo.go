package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/sprout/internal/domain"
)

type StoryRepo struct {
	pool *pgxpool.Pool
}

func NewStoryRepo(pool *pgxpool.Pool) *StoryRepo {
	return &StoryRepo{pool: pool}
}

func (r *StoryRepo) Create(ctx context.Context, story *domain.Story) error {
	query := `
		INSERT INTO stories (owner_id, media_type, media, scheme, wrapped_key, nonce, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	return r.pool.QueryRow(ctx, query,
		story.OwnerID, story.MediaType, []byte(story.Media), story.Scheme,
		[]byte(story.WrappedKey), []byte(story.Nonce), story.CreatedAt, story.ExpiresAt,
	).Scan(&story.ID)
}

func (r *StoryRepo) GetByID(ctx context.Context, id int64) (*domain.Story, error) {
	query := `
		SELECT id, owner_id, media_type, media, scheme, wrapped_key, nonce, created_at, expires_at
		FROM stories
		WHERE id = $1`
	var (
		s                     domain.Story
		media, wrapped, nonce []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.OwnerID, &s.MediaType, &media, &s.Scheme, &wrapped, &nonce, &s.CreatedAt, &s.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Media, s.WrappedKey, s.Nonce = media, wrapped, nonce
	return &s, nil
}
