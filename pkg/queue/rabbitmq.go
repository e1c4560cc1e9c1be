package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	pkglogger "github.com/damoang/angple-billing/pkg/logger"
)

const (
	NotificationExchange  = "billing.notifications"
	NotificationQueueName = "billing_notification_queue"
)

// Routing keys, one per notification kind
const (
	RouteNewSubscriber   = "new_subscriber"
	RouteTipReceived     = "tip_received"
	RoutePPVUnlocked     = "ppv_unlocked"
	RouteBillingConflict = "billing_conflict"
)

var routes = []string{RouteNewSubscriber, RouteTipReceived, RoutePPVUnlocked, RouteBillingConflict}

// Message is a notification task consumed by the notification worker
type Message struct {
	Kind        string                 `json:"kind"`
	RecipientID string                 `json:"recipient_id"`
	Priority    int                    `json:"priority"`
	Data        map[string]interface{} `json:"data"`
	EventID     string                 `json:"event_id,omitempty"`
}

// Client publishes notification tasks to RabbitMQ
type Client struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQClient dials the broker and declares the exchange, priority queue and bindings
func NewRabbitMQClient(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declare(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	pkglogger.GetLogger().Info().Str("exchange", NotificationExchange).Msg("connected to RabbitMQ")
	return &Client{conn: conn, channel: channel}, nil
}

func declare(channel *amqp.Channel) error {
	err := channel.ExchangeDeclare(
		NotificationExchange, // name
		"direct",             // type
		true,                 // durable
		false,                // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		NotificationQueueName, // name
		true,                  // durable
		false,                 // delete when unused
		false,                 // exclusive
		false,                 // no-wait
		amqp.Table{"x-max-priority": 10},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range routes {
		if err := channel.QueueBind(NotificationQueueName, key, NotificationExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}
	return nil
}

// Close closes the channel and connection
func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Publish sends msg with its kind as routing key
func (c *Client) Publish(ctx context.Context, msg Message) error {
	pub, err := buildPublishing(msg, time.Now())
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.channel.PublishWithContext(ctx, NotificationExchange, msg.Kind, false, false, pub); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Kind, err)
	}
	return nil
}

func buildPublishing(msg Message, now time.Time) (amqp.Publishing, error) {
	if msg.Kind == "" {
		return amqp.Publishing{}, fmt.Errorf("notification kind is required")
	}
	priority := msg.Priority
	if priority < 0 {
		priority = 0
	}
	if priority > 10 {
		priority = 10
	}
	msg.Priority = priority

	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal notification: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Priority:     uint8(priority),
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		MessageId:    msg.EventID,
	}, nil
}
