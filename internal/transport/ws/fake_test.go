package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"
)

var fakeIDs atomic.Int64

type fakeChannel struct {
	id string

	mu          sync.Mutex
	closed      bool
	closeCode   websocket.StatusCode
	closeReason string
	pingErr     error
	pings       int
	capacity    int
	sent        [][]byte
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{id: fmt.Sprintf("fake-%d", fakeIDs.Add(1)), capacity: 16}
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeChannel) Send(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.sent) >= f.capacity {
		return false
	}
	f.sent = append(f.sent, data)
	return true
}

func (f *fakeChannel) Ping(ctx context.Context) error {
	f.mu.Lock()
	f.pings++
	err := f.pingErr
	f.mu.Unlock()
	if err == errBlockPing {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeChannel) Close(code websocket.StatusCode, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.closeCode = code
	f.closeReason = reason
}

// markClosed simulates the peer going away without a close from our side.
func (f *fakeChannel) markClosed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeChannel) closedWith() (websocket.StatusCode, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode, f.closeReason, f.closed
}

func (f *fakeChannel) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = string(m)
	}
	return out
}

var errBlockPing = errors.New("block until probe timeout")
