package ws

import (
	"context"
	"errors"

	"nhooyr.io/websocket"
)

const (
	// StatusNotReliable closes connections that failed a liveness check.
	StatusNotReliable websocket.StatusCode = 4500

	reasonTooMany     = "too many connections"
	reasonSlow        = "slow consumer"
	reasonNotReliable = "not reliable"
)

var ErrConnectionRejected = errors.New("connection rejected: too many connections")

// Channel is one live connection as seen by the registry, monitor and router.
type Channel interface {
	ID() string
	IsOpen() bool
	// Send enqueues data without blocking. False means the channel is closed
	// or its buffer is full.
	Send(data []byte) bool
	Ping(ctx context.Context) error
	// Close must not block on the network.
	Close(code websocket.StatusCode, reason string)
}
