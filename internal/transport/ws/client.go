package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/vedran77/sprout/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
	sendBufSize    = 256
)

// Client is a single WebSocket connection. ReadPump and WritePump own the
// socket; everything else talks to it through Channel.
type Client struct {
	id     string
	conn   *websocket.Conn
	userID int64
	chatID int64
	log    *logger.Logger

	send chan []byte
	done chan struct{}

	closed      atomic.Bool
	closeOnce   sync.Once
	closeCode   websocket.StatusCode
	closeReason string
}

func NewClient(conn *websocket.Conn, userID, chatID int64, log *logger.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		conn:   conn,
		userID: userID,
		chatID: chatID,
		log:    log.With("conn_id", id, "user_id", userID, "chat_id", chatID),
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) IsOpen() bool { return !c.closed.Load() }

func (c *Client) Send(data []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close records the close status and wakes WritePump, which performs the
// close handshake.
func (c *Client) Close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.closed.Store(true)
		close(c.done)
	})
}

// ReadPump reads frames until the connection fails or ctx ends. onActivity
// runs for every frame; onFrame only for text frames.
func (c *Client) ReadPump(ctx context.Context, onActivity func(), onFrame func(data []byte)) {
	defer c.Close(websocket.StatusNormalClosure, "")

	c.conn.SetReadLimit(maxMessageSize)
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Debug("ws: client disconnected", "status", websocket.CloseStatus(err))
			} else if c.IsOpen() {
				c.log.Debug("ws: read error", "error", err)
			}
			return
		}
		onActivity()
		if typ != websocket.MessageText {
			continue
		}
		onFrame(data)
	}
}

// WritePump writes queued frames to the socket until Close is called.
func (c *Client) WritePump() {
	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Debug("ws: write error", "error", err)
				c.Close(websocket.StatusInternalError, "write failed")
				c.conn.CloseNow()
				return
			}

		case <-c.done:
			if err := c.conn.Close(c.closeCode, c.closeReason); err != nil {
				c.conn.CloseNow()
			}
			return
		}
	}
}
