package domain

import (
	"errors"
	"time"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
	MessageTypeVideo MessageType = "video"
	MessageTypeGIF   MessageType = "gif"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio, MessageTypeVideo, MessageTypeGIF:
		return true
	}
	return false
}

var ErrIncompleteEnvelope = errors.New("encrypted content without scheme, wrapped key and nonce")

// Message is stored encrypted. Ciphertext, Scheme, WrappedKey and Nonce come
// from a single encryption and are only ever written together.
type Message struct {
	ID         int64       `json:"id"`
	ChatID     int64       `json:"chat_id"`
	SenderID   int64       `json:"sender_id"`
	Type       MessageType `json:"message_type"`
	Ciphertext Bytes       `json:"-"`
	Scheme     string      `json:"-"`
	WrappedKey Bytes       `json:"-"`
	Nonce      Bytes       `json:"-"`
	MediaURL   *string     `json:"media_url,omitempty"`
	OneTime    bool        `json:"one_time"`
	CreatedAt  time.Time   `json:"created_at"`
	ReadAt     *time.Time  `json:"read_at,omitempty"`
}

func (m *Message) HasContent() bool {
	return len(m.Ciphertext) > 0
}

func (m *Message) Validate() error {
	if !m.HasContent() {
		return nil
	}
	if m.Scheme == "" || len(m.WrappedKey) == 0 || len(m.Nonce) == 0 {
		return ErrIncompleteEnvelope
	}
	return nil
}
