package repository

import (
	"context"
	"errors"

	"github.com/vedran77/sprout/internal/domain"
)

var (
	// ErrConflict is returned when a write hits a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned by multi-step writes whose target row is gone.
	// Single-row reads return (nil, nil) instead.
	ErrNotFound = errors.New("not found")
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type FollowRepository interface {
	IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error)
}

type ChatRepository interface {
	// Create inserts a chat in canonical order and fills in its ID. A second
	// chat for the same pair fails with ErrConflict.
	Create(ctx context.Context, chat *domain.Chat) error
	GetByID(ctx context.Context, id int64) (*domain.Chat, error)
	GetByParticipants(ctx context.Context, user1ID, user2ID int64) (*domain.Chat, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Chat, error)
	MarkSeen(ctx context.Context, chatID, userID int64) error
	// AppendMessage inserts msg and, in the same transaction, points the chat
	// at it, marks it seen by the sender and unseen by the other participant.
	AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Chat, error)
}

type MessageRepository interface {
	// ListByChat returns messages newest first.
	ListByChat(ctx context.Context, chatID int64, offset, limit int) ([]domain.Message, error)
}

type StoryRepository interface {
	Create(ctx context.Context, story *domain.Story) error
	GetByID(ctx context.Context, id int64) (*domain.Story, error)
}
