package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vedran77/sprout/internal/domain"
	"github.com/vedran77/sprout/internal/logger"
)

const notifyTimeout = 5 * time.Second

// Notifier implements service.Notifier on top of the Router.
type Notifier struct {
	router *Router
	log    *logger.Logger
}

func NewNotifier(router *Router, log *logger.Logger) *Notifier {
	return &Notifier{router: router, log: log.With("component", "ws_notifier")}
}

func (n *Notifier) NotifyNewMessage(recipientID int64, msg *domain.Message) {
	evt, err := NewEvent(EventTypeMessageNew, &msg.ChatID, MessageNewPayload{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
	})
	if err != nil {
		n.log.Error("marshal error", "error", err)
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		n.log.Error("marshal error", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	n.router.Deliver(ctx, recipientID, data)
}
