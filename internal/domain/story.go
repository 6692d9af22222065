package domain

import (
	"time"
)

const StoryLifetime = 24 * time.Hour

// Story media is stored encrypted the same way as message content.
type Story struct {
	ID         int64     `json:"id"`
	OwnerID    int64     `json:"owner_id"`
	MediaType  string    `json:"media_type"`
	Media      Bytes     `json:"-"`
	Scheme     string    `json:"-"`
	WrappedKey Bytes     `json:"-"`
	Nonce      Bytes     `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (s *Story) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
