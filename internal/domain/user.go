package domain

import (
	"time"
)

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	InboxLocked bool      `json:"inbox_locked"`
	CreatedAt   time.Time `json:"created_at"`
}
