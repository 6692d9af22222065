package domain

import (
	"time"
)

// Chat is a conversation between exactly two users. UserAID < UserBID always
// holds so that one unordered pair maps to one row.
type Chat struct {
	ID            int64     `json:"id"`
	UserAID       int64     `json:"user_a_id"`
	UserBID       int64     `json:"user_b_id"`
	LastMessageID *int64    `json:"last_message_id,omitempty"`
	SeenByA       bool      `json:"seen_by_a"`
	SeenByB       bool      `json:"seen_by_b"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CanonicalPair orders two user ids the way chats are stored.
func CanonicalPair(u1, u2 int64) (int64, int64) {
	if u1 > u2 {
		return u2, u1
	}
	return u1, u2
}

func (c *Chat) HasParticipant(userID int64) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// Other returns the participant that is not userID.
func (c *Chat) Other(userID int64) int64 {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

func (c *Chat) SeenBy(userID int64) bool {
	if c.UserAID == userID {
		return c.SeenByA
	}
	return c.SeenByB
}

func (c *Chat) SetSeen(userID int64, seen bool) {
	switch userID {
	case c.UserAID:
		c.SeenByA = seen
	case c.UserBID:
		c.SeenByB = seen
	}
}
