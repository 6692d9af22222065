package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vedran77/sprout/internal/domain"
	"github.com/vedran77/sprout/internal/envelope"
	"github.com/vedran77/sprout/internal/logger"
	"github.com/vedran77/sprout/internal/repository"
)

const (
	DefaultPageSize = 30
	MaxPageSize     = 100

	createChatTimeout = 10 * time.Second
)

// Notifier pushes realtime hints to connected clients.
type Notifier interface {
	NotifyNewMessage(recipientID int64, msg *domain.Message)
}

// ContentCipher is the envelope cipher as seen by the services.
type ContentCipher interface {
	Encrypt(ctx context.Context, plaintext []byte) (envelope.Sealed, error)
	Decrypt(ctx context.Context, s envelope.Sealed) ([]byte, error)
}

type ChatService struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	users    repository.UserRepository
	follows  repository.FollowRepository
	cipher   ContentCipher
	notifier Notifier
	log      *logger.Logger

	creating singleflight.Group
}

func NewChatService(
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	follows repository.FollowRepository,
	cipher ContentCipher,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		chats:    chats,
		messages: messages,
		users:    users,
		follows:  follows,
		cipher:   cipher,
		log:      log.With("component", "chat_service"),
	}
}

// SetNotifier sets the realtime notifier (optional dependency).
func (s *ChatService) SetNotifier(n Notifier) {
	s.notifier = n
}

type SendMessageInput struct {
	RecipientID int64              `json:"recipient_id"`
	MessageType domain.MessageType `json:"message_type"`
	Content     string             `json:"content"`
	MediaURL    *string            `json:"media_url,omitempty"`
	OneTime     bool               `json:"one_time"`
}

// MessageView is a message with its content decrypted for one reader.
type MessageView struct {
	ID          int64              `json:"id"`
	ChatID      int64              `json:"chat_id"`
	SenderID    int64              `json:"sender_id"`
	MessageType domain.MessageType `json:"message_type"`
	Content     string             `json:"content,omitempty"`
	MediaURL    *string            `json:"media_url,omitempty"`
	OneTime     bool               `json:"one_time"`
	IsMine      bool               `json:"is_mine"`
	CreatedAt   time.Time          `json:"created_at"`
	ReadAt      *time.Time         `json:"read_at,omitempty"`
}

type MessagePage struct {
	Messages []MessageView `json:"messages"`
	Page     int           `json:"page"`
	Size     int           `json:"size"`
	HasMore  bool          `json:"has_more"`
}

type ChatView struct {
	ID                   int64     `json:"id"`
	OtherUserID          int64     `json:"other_user_id"`
	OtherUserUsername    string    `json:"other_user_username,omitempty"`
	OtherUserDisplayName string    `json:"other_user_display_name,omitempty"`
	LastMessageID        *int64    `json:"last_message_id,omitempty"`
	Seen                 bool      `json:"seen"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// GetOrCreateChat returns the single chat between two users, creating it on
// first contact. Concurrent calls for the same pair, in either order, resolve
// to the same chat.
func (s *ChatService) GetOrCreateChat(ctx context.Context, userID, otherUserID int64) (*domain.Chat, error) {
	if userID == otherUserID {
		return nil, ErrCannotChatSelf
	}

	other, err := s.users.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, ErrUserNotFound
	}

	a, b := domain.CanonicalPair(userID, otherUserID)
	// The shared lookup outlives any single caller; each caller waits on its own ctx.
	results := s.creating.DoChan(fmt.Sprintf("%d:%d", a, b), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createChatTimeout)
		defer cancel()

		chat, err := s.chats.GetByParticipants(ctx, a, b)
		if err != nil || chat != nil {
			return chat, err
		}

		now := time.Now()
		chat = &domain.Chat{UserAID: a, UserBID: b, CreatedAt: now, UpdatedAt: now}
		chat.SetSeen(userID, true)
		chat.SetSeen(otherUserID, false)

		err = s.chats.Create(ctx, chat)
		if errors.Is(err, repository.ErrConflict) {
			// Another instance won the insert.
			return s.chats.GetByParticipants(ctx, a, b)
		}
		if err != nil {
			return nil, fmt.Errorf("creating chat: %w", err)
		}
		s.log.Info("chat created", "chat_id", chat.ID)
		return chat, nil
	})

	var res singleflight.Result
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	chat, _ := res.Val.(*domain.Chat)
	if chat == nil {
		return nil, ErrChatNotFound
	}
	out := *chat
	return &out, nil
}

func (s *ChatService) SendMessage(ctx context.Context, senderID, chatID int64, input SendMessageInput) (*MessageView, error) {
	if input.MessageType == "" {
		input.MessageType = domain.MessageTypeText
	}
	if !input.MessageType.Valid() {
		return nil, ErrInvalidMessage
	}
	if input.MessageType == domain.MessageTypeText && input.Content == "" {
		return nil, ErrInvalidMessage
	}

	chat, err := s.participantChat(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}

	recipientID := chat.Other(senderID)
	if input.RecipientID != 0 && input.RecipientID != recipientID {
		return nil, ErrRecipientMismatch
	}

	if err := s.checkInbox(ctx, senderID, recipientID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Type:      input.MessageType,
		MediaURL:  input.MediaURL,
		OneTime:   input.OneTime,
		CreatedAt: time.Now(),
	}

	if input.Content != "" {
		sealed, err := s.cipher.Encrypt(ctx, []byte(input.Content))
		if err != nil {
			s.log.Error("encrypting message", "chat_id", chatID, "error", err)
			return nil, err
		}
		msg.Ciphertext = sealed.Ciphertext
		msg.WrappedKey = sealed.WrappedKey
		msg.Nonce = sealed.Nonce
		msg.Scheme = sealed.Scheme
	}

	if _, err := s.chats.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("appending message: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(recipientID, msg)
	}

	return newMessageView(msg, input.Content, senderID), nil
}

// GetChatMessages returns one page of messages, newest first, and marks the
// chat seen by the requester. A message that fails to decrypt fails the page.
func (s *ChatService) GetChatMessages(ctx context.Context, chatID, requesterID int64, page, size int) (*MessagePage, error) {
	chat, err := s.participantChat(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}

	if !chat.SeenBy(requesterID) {
		if err := s.chats.MarkSeen(ctx, chatID, requesterID); err != nil {
			return nil, fmt.Errorf("marking chat seen: %w", err)
		}
	}

	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if page < 0 {
		page = 0
	}
	if page > math.MaxInt/size {
		return &MessagePage{Messages: []MessageView{}, Page: page, Size: size}, nil
	}

	messages, err := s.messages.ListByChat(ctx, chatID, page*size, size+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > size
	if hasMore {
		messages = messages[:size]
	}

	views := make([]MessageView, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		var content string
		if msg.HasContent() {
			plaintext, err := s.cipher.Decrypt(ctx, sealedFrom(msg))
			if err != nil {
				s.log.Error("decrypting message", "chat_id", chatID, "message_id", msg.ID, "error", err)
				return nil, err
			}
			content = string(plaintext)
		}
		views = append(views, *newMessageView(msg, content, requesterID))
	}

	return &MessagePage{
		Messages: views,
		Page:     page,
		Size:     size,
		HasMore:  hasMore,
	}, nil
}

// ListChats returns the user's chats, most recently active first.
func (s *ChatService) ListChats(ctx context.Context, userID int64) ([]ChatView, error) {
	chats, err := s.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]ChatView, 0, len(chats))
	for i := range chats {
		chat := &chats[i]
		view := ChatView{
			ID:            chat.ID,
			OtherUserID:   chat.Other(userID),
			LastMessageID: chat.LastMessageID,
			Seen:          chat.SeenBy(userID),
			UpdatedAt:     chat.UpdatedAt,
		}
		other, err := s.users.GetByID(ctx, view.OtherUserID)
		if err != nil {
			return nil, err
		}
		if other != nil {
			view.OtherUserUsername = other.Username
			view.OtherUserDisplayName = other.DisplayName
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *ChatService) participantChat(ctx context.Context, chatID, userID int64) (*domain.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	if !chat.HasParticipant(userID) {
		return nil, ErrNotAuthorized
	}
	return chat, nil
}

// checkInbox enforces the recipient's inbox lock. A locked inbox still
// accepts messages from users the recipient follows.
func (s *ChatService) checkInbox(ctx context.Context, senderID, recipientID int64) error {
	recipient, err := s.users.GetByID(ctx, recipientID)
	if err != nil {
		return err
	}
	if recipient == nil {
		return ErrUserNotFound
	}
	if !recipient.InboxLocked {
		return nil
	}
	follows, err := s.follows.IsFollowing(ctx, recipientID, senderID)
	if err != nil {
		return err
	}
	if !follows {
		return ErrNotAuthorized
	}
	return nil
}

func sealedFrom(msg *domain.Message) envelope.Sealed {
	return envelope.Sealed{
		Ciphertext: msg.Ciphertext,
		WrappedKey: msg.WrappedKey,
		Nonce:      msg.Nonce,
		Scheme:     msg.Scheme,
	}
}

func newMessageView(msg *domain.Message, content string, viewerID int64) *MessageView {
	return &MessageView{
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		SenderID:    msg.SenderID,
		MessageType: msg.Type,
		Content:     content,
		MediaURL:    msg.MediaURL,
		OneTime:     msg.OneTime,
		IsMine:      msg.SenderID == viewerID,
		CreatedAt:   msg.CreatedAt,
		ReadAt:      msg.ReadAt,
	}
}
