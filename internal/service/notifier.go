package service

import (
	"context"

	"github.com/damoang/angple-billing/internal/ws"
	pkglogger "github.com/damoang/angple-billing/pkg/logger"
	"github.com/damoang/angple-billing/pkg/queue"
)

// Publisher queues notification tasks for the notification worker
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Pusher sends realtime events to a user's open sockets
type Pusher interface {
	Push(userID string, event *ws.Event)
}

// logPublisher stands in for RabbitMQ when the broker is disabled
type logPublisher struct{}

// NewLogPublisher returns a Publisher that only logs
func NewLogPublisher() Publisher {
	return logPublisher{}
}

func (logPublisher) Publish(_ context.Context, msg queue.Message) error {
	pkglogger.GetLogger().Info().
		Str("kind", msg.Kind).
		Str("recipient_id", msg.RecipientID).
		Str("event_id", msg.EventID).
		Msg("notification (broker disabled)")
	return nil
}

type noopPusher struct{}

func (noopPusher) Push(string, *ws.Event) {}
