// Package memory is an in-process implementation of the repository
// interfaces. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vedran77/sprout/internal/domain"
	"github.com/vedran77/sprout/internal/repository"
)

type pair struct{ a, b int64 }

type follow struct{ follower, followee int64 }

// Store keeps every table behind one mutex. Returned values are copies.
type Store struct {
	mu sync.Mutex

	users    map[int64]domain.User
	follows  map[follow]struct{}
	chats    map[int64]*domain.Chat
	byPair   map[pair]int64
	messages map[int64][]domain.Message
	stories  map[int64]domain.Story

	nextChatID    int64
	nextMessageID int64
	nextStoryID   int64
}

func New() *Store {
	return &Store{
		users:    make(map[int64]domain.User),
		follows:  make(map[follow]struct{}),
		chats:    make(map[int64]*domain.Chat),
		byPair:   make(map[pair]int64),
		messages: make(map[int64][]domain.Message),
		stories:  make(map[int64]domain.Story),
	}
}

// AddUser seeds a user. Users are owned by the identity provider, so there is
// no write path for them in the repository interfaces.
func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = u
}

func (s *Store) AddFollow(followerID, followeeID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follows[follow{followerID, followeeID}] = struct{}{}
}

// MessageCount reports how many messages a chat holds.
func (s *Store) MessageCount(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[chatID])
}

// Users

type Users struct{ s *Store }

func (s *Store) Users() *Users { return &Users{s: s} }

func (u *Users) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// Follows

type Follows struct{ s *Store }

func (s *Store) Follows() *Follows { return &Follows{s: s} }

func (f *Follows) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.follows[follow{followerID, followeeID}]
	return ok, nil
}

// Chats

type Chats struct{ s *Store }

func (s *Store) Chats() *Chats { return &Chats{s: s} }

func (c *Chats) Create(ctx context.Context, chat *domain.Chat) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	a, b := domain.CanonicalPair(chat.UserAID, chat.UserBID)
	if _, exists := s.byPair[pair{a, b}]; exists {
		return repository.ErrConflict
	}
	s.nextChatID++
	chat.ID = s.nextChatID
	chat.UserAID, chat.UserBID = a, b
	stored := *chat
	s.chats[chat.ID] = &stored
	s.byPair[pair{a, b}] = chat.ID
	return nil
}

func (c *Chats) GetByID(ctx context.Context, id int64) (*domain.Chat, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatCopy(id), nil
}

func (c *Chats) GetByParticipants(ctx context.Context, user1ID, user2ID int64) (*domain.Chat, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, b := domain.CanonicalPair(user1ID, user2ID)
	id, ok := s.byPair[pair{a, b}]
	if !ok {
		return nil, nil
	}
	return s.chatCopy(id), nil
}

func (c *Chats) ListByUser(ctx context.Context, userID int64) ([]domain.Chat, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Chat
	for _, chat := range s.chats {
		if chat.HasParticipant(userID) {
			out = append(out, *chat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (c *Chats) MarkSeen(ctx context.Context, chatID, userID int64) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		chat.SetSeen(userID, true)
	}
	return nil
}

func (c *Chats) AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Chat, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[msg.ChatID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.nextMessageID++
	msg.ID = s.nextMessageID
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], cloneMessage(*msg))

	id := msg.ID
	chat.LastMessageID = &id
	chat.SeenByA = chat.UserAID == msg.SenderID
	chat.SeenByB = chat.UserBID == msg.SenderID
	chat.UpdatedAt = time.Now()
	return s.chatCopy(chat.ID), nil
}

func (s *Store) chatCopy(id int64) *domain.Chat {
	chat, ok := s.chats[id]
	if !ok {
		return nil
	}
	out := *chat
	if chat.LastMessageID != nil {
		last := *chat.LastMessageID
		out.LastMessageID = &last
	}
	return &out
}

// Messages

type Messages struct{ s *Store }

func (s *Store) Messages() *Messages { return &Messages{s: s} }

func (m *Messages) ListByChat(ctx context.Context, chatID int64, offset, limit int) ([]domain.Message, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.messages[chatID]
	if offset < 0 || offset >= len(all) || limit <= 0 {
		return nil, nil
	}
	var out []domain.Message
	// Stored oldest first; walk backwards for newest first.
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneMessage(all[i]))
	}
	return out, nil
}

// Tamper lets tests corrupt a stored message in place.
func (m *Messages) Tamper(chatID, messageID int64, fn func(*domain.Message)) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages[chatID] {
		if s.messages[chatID][i].ID == messageID {
			fn(&s.messages[chatID][i])
		}
	}
}

func cloneMessage(m domain.Message) domain.Message {
	m.Ciphertext = m.Ciphertext.Clone()
	m.WrappedKey = m.WrappedKey.Clone()
	m.Nonce = m.Nonce.Clone()
	return m
}

// Stories

type Stories struct{ s *Store }

func (s *Store) Stories() *Stories { return &Stories{s: s} }

func (st *Stories) Create(ctx context.Context, story *domain.Story) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStoryID++
	story.ID = s.nextStoryID
	stored := *story
	stored.Media = story.Media.Clone()
	stored.WrappedKey = story.WrappedKey.Clone()
	stored.Nonce = story.Nonce.Clone()
	s.stories[story.ID] = stored
	return nil
}

func (st *Stories) GetByID(ctx context.Context, id int64) (*domain.Story, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.stories[id]
	if !ok {
		return nil, nil
	}
	story.Media = story.Media.Clone()
	story.WrappedKey = story.WrappedKey.Clone()
	story.Nonce = story.Nonce.Clone()
	return &story, nil
}

var (
	_ repository.UserRepository    = (*Users)(nil)
	_ repository.FollowRepository  = (*Follows)(nil)
	_ repository.ChatRepository    = (*Chats)(nil)
	_ repository.MessageRepository = (*Messages)(nil)
	_ repository.StoryRepository   = (*Stories)(nil)
)
