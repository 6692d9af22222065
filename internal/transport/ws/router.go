package ws

import (
	"context"
	"encoding/json"

	"nhooyr.io/websocket"

	"github.com/vedran77/sprout/internal/logger"
)

// Relay carries frames to recipients connected to another instance.
type Relay interface {
	Publish(ctx context.Context, recipientID int64, payload []byte) error
}

// Router dispatches inbound frames. It never persists anything.
type Router struct {
	registry *Registry
	relay    Relay
	log      *logger.Logger
}

func NewRouter(registry *Registry, log *logger.Logger) *Router {
	return &Router{
		registry: registry,
		log:      log.With("component", "ws_router"),
	}
}

// SetRelay enables cross-instance delivery (optional dependency).
func (r *Router) SetRelay(relay Relay) {
	r.relay = relay
}

func (r *Router) Route(ctx context.Context, from Channel, senderID int64, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.log.Warn("dropping unparseable frame", "user_id", senderID, "error", err)
		return
	}

	switch frame.Type {
	case EventTypePing:
		if !from.Send(pongFrame) {
			r.log.Debug("pong not queued", "user_id", senderID)
		}

	case EventTypePong:
		// activity is recorded by the read loop

	default:
		if frame.RecipientID <= 0 {
			r.log.Warn("dropping chat frame without recipient", "user_id", senderID, "type", frame.Type)
			return
		}
		r.Deliver(ctx, frame.RecipientID, raw)
	}
}

// Deliver sends payload to the recipient's newest local connection, falling
// back to the relay when the recipient is not connected here.
func (r *Router) Deliver(ctx context.Context, recipientID int64, payload []byte) {
	if present, _ := r.deliverLocal(recipientID, payload); present {
		return
	}
	if r.relay == nil {
		r.log.Debug("recipient not connected", "recipient_id", recipientID)
		return
	}
	if err := r.relay.Publish(ctx, recipientID, payload); err != nil {
		r.log.Warn("relay publish failed", "recipient_id", recipientID, "error", err)
	}
}

// DeliverLocal only considers connections held by this instance. It reports
// whether the payload was queued.
func (r *Router) DeliverLocal(recipientID int64, payload []byte) bool {
	_, queued := r.deliverLocal(recipientID, payload)
	return queued
}

func (r *Router) deliverLocal(recipientID int64, payload []byte) (present, queued bool) {
	ch, ok := r.registry.Lookup(recipientID)
	if !ok {
		return false, false
	}
	if !ch.IsOpen() {
		r.registry.Deregister(recipientID, ch)
		return false, false
	}
	if ch.Send(payload) {
		return true, true
	}

	r.log.Warn("closing slow consumer", "recipient_id", recipientID, "conn_id", ch.ID())
	ch.Close(websocket.StatusPolicyViolation, reasonSlow)
	r.registry.Deregister(recipientID, ch)
	return true, false
}
