package ws

import (
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const DefaultMaxConnsPerUser = 5

// Registration is a point-in-time copy of one registry slot.
type Registration struct {
	UserID     int64
	Channel    Channel
	LastActive time.Time
}

type RegistrationResult struct {
	Accepted bool
	// Count is the user's connection count after the call.
	Count int
}

type slot struct {
	ch         Channel
	lastActive time.Time
}

// Registry maps users to their live connections. Slots are kept oldest
// first; the newest one receives routed frames.
type Registry struct {
	mu    sync.Mutex
	conns map[int64][]*slot
	max   int
	now   func() time.Time
}

func NewRegistry(maxPerUser int) *Registry {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxConnsPerUser
	}
	return &Registry{
		conns: make(map[int64][]*slot),
		max:   maxPerUser,
		now:   time.Now,
	}
}

// Register adds ch for userID unless the user is at the cap. Registering a
// channel that is already tracked refreshes it and makes it the newest.
func (r *Registry) Register(userID int64, ch Channel) RegistrationResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots := r.conns[userID]
	for i, s := range slots {
		if s.ch == ch {
			s.lastActive = r.now()
			slots = append(slots[:i], slots[i+1:]...)
			r.conns[userID] = append(slots, s)
			return RegistrationResult{Accepted: true, Count: len(r.conns[userID])}
		}
	}

	if len(slots) >= r.max {
		return RegistrationResult{Accepted: false, Count: len(slots)}
	}

	r.conns[userID] = append(slots, &slot{ch: ch, lastActive: r.now()})
	return RegistrationResult{Accepted: true, Count: len(slots) + 1}
}

// Deregister removes ch from userID's slots and reports whether it was there.
func (r *Registry) Deregister(userID int64, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots := r.conns[userID]
	for i, s := range slots {
		if s.ch != ch {
			continue
		}
		slots = append(slots[:i], slots[i+1:]...)
		if len(slots) == 0 {
			delete(r.conns, userID)
		} else {
			r.conns[userID] = slots
		}
		return true
	}
	return false
}

// Lookup returns the user's newest connection.
func (r *Registry) Lookup(userID int64) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots := r.conns[userID]
	if len(slots) == 0 {
		return nil, false
	}
	return slots[len(slots)-1].ch, true
}

func (r *Registry) Touch(userID int64, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.conns[userID] {
		if s.ch == ch {
			s.lastActive = r.now()
			return
		}
	}
}

func (r *Registry) Snapshot() []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Registration, 0, len(r.conns))
	for userID, slots := range r.conns {
		for _, s := range slots {
			out = append(out, Registration{UserID: userID, Channel: s.ch, LastActive: s.lastActive})
		}
	}
	return out
}

func (r *Registry) Count(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID])
}

// Len returns the number of live connections across all users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, slots := range r.conns {
		n += len(slots)
	}
	return n
}

// CloseAll empties the registry and closes every connection it held.
func (r *Registry) CloseAll(code websocket.StatusCode, reason string) {
	r.mu.Lock()
	var chans []Channel
	for _, slots := range r.conns {
		for _, s := range slots {
			chans = append(chans, s.ch)
		}
	}
	r.conns = make(map[int64][]*slot)
	r.mu.Unlock()

	for _, ch := range chans {
		ch.Close(code, reason)
	}
}
