package ws

import (
	"encoding/json"
	"time"
)

// Event types - Client → Server. Any other type is a chat frame.
const (
	EventTypePing = "ping"
)

// Event types - Server → Client
const (
	EventTypePong       = "pong"
	EventTypeMessageNew = "message.new"
)

// Frame is the part of an inbound frame the router reads. Chat frames are
// forwarded as received.
type Frame struct {
	Type        string `json:"type"`
	RecipientID int64  `json:"recipient_id,omitempty"`
	ChatID      int64  `json:"chat_id,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Event is the envelope for server-originated frames.
type Event struct {
	Type      string          `json:"type"`
	ChatID    *int64          `json:"chat_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// MessageNewPayload tells a client to fetch a chat; it never carries content.
type MessageNewPayload struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
	SenderID  int64 `json:"sender_id"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, chatID *int64, payload any) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}
	return &Event{
		Type:      eventType,
		ChatID:    chatID,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}

var pongFrame, _ = json.Marshal(Event{Type: EventTypePong})
