// Package pubsub relays realtime frames between server instances over Redis
// pub/sub, for recipients connected to a different instance than the sender.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vedran77/sprout/internal/logger"
)

type envelope struct {
	Origin      string          `json:"origin"`
	RecipientID int64           `json:"recipient_id"`
	Payload     json.RawMessage `json:"payload"`
}

type Relay struct {
	log        *logger.Logger
	rdb        *goredis.Client
	channel    string
	instanceID string
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRelay(rdb *goredis.Client, channel string, log *logger.Logger) *Relay {
	return &Relay{
		log:        log.With("component", "relay"),
		rdb:        rdb,
		channel:    channel,
		instanceID: uuid.NewString(),
	}
}

// Publish hands a frame to whichever instance holds the recipient.
func (r *Relay) Publish(ctx context.Context, recipientID int64, payload []byte) error {
	raw, err := encode(r.instanceID, recipientID, payload)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

// Run forwards frames published by other instances to deliver until ctx is
// cancelled.
func (r *Relay) Run(ctx context.Context, deliver func(recipientID int64, payload []byte)) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.log.Info("relay subscribed", "channel", r.channel, "instance", r.instanceID)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(m.Payload, deliver)
		}
	}
}

func (r *Relay) Close() error {
	return r.rdb.Close()
}

func (r *Relay) handle(raw string, deliver func(int64, []byte)) {
	env, err := decode(raw)
	if err != nil {
		r.log.Warn("bad relay payload", "error", err)
		return
	}
	if env.Origin == r.instanceID {
		return
	}
	deliver(env.RecipientID, env.Payload)
}

func encode(origin string, recipientID int64, payload []byte) ([]byte, error) {
	if !json.Valid(payload) {
		return nil, fmt.Errorf("relay payload is not JSON")
	}
	return json.Marshal(envelope{Origin: origin, RecipientID: recipientID, Payload: payload})
}

func decode(raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return env, err
	}
	if env.RecipientID <= 0 || len(env.Payload) == 0 {
		return env, fmt.Errorf("relay envelope missing recipient or payload")
	}
	return env, nil
}
