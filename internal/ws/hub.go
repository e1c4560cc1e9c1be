package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	pkglogger "github.com/damoang/angple-billing/pkg/logger"
)

const redisPubSubChannel = "billing:events"

// Event kinds pushed to fans and creators
const (
	EventSubscriptionChanged = "subscription_changed"
	EventEntitlementChanged  = "entitlement_changed"
	EventPaymentReceived     = "payment_received"
)

// Event is a billing update sent over the socket
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub tracks sockets per user and fans events out across instances via redis pub/sub
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *targetedEvent

	mu          sync.RWMutex
	redisClient *redis.Client
	ctx         context.Context
	cancel      context.CancelFunc
}

type targetedEvent struct {
	UserID string `json:"user_id"`
	Event  *Event `json:"event"`
}

// NewHub creates a new Hub. With a nil redis client delivery stays local.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *targetedEvent, 256),
		redisClient: redisClient,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	if h.redisClient != nil {
		go h.subscribeRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) deliver(msg *targetedEvent) {
	data, err := json.Marshal(msg.Event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[msg.UserID] {
		select {
		case client.send <- data:
		default:
			// slow consumer
			h.drop(client)
		}
	}
}

// drop must be called with mu held
func (h *Hub) drop(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
}

// Push sends an event to every socket of userID on any instance.
// With redis the event is only published; this instance receives it back through its own subscription.
func (h *Hub) Push(userID string, event *Event) {
	msg := &targetedEvent{UserID: userID, Event: event}

	if h.redisClient != nil {
		data, err := json.Marshal(msg)
		if err == nil {
			if err := h.redisClient.Publish(h.ctx, redisPubSubChannel, data).Err(); err == nil {
				return
			}
			pkglogger.GetLogger().Warn().Err(err).Str("user_id", userID).Msg("ws publish failed, delivering locally")
		}
	}

	select {
	case h.broadcast <- msg:
	default:
		pkglogger.GetLogger().Warn().Str("user_id", userID).Msg("ws broadcast queue full, event dropped")
	}
}

// Connected returns the number of sockets open for userID on this instance
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) subscribeRedis() {
	pubsub := h.redisClient.Subscribe(h.ctx, redisPubSubChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var te targetedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &te); err == nil && te.Event != nil {
				h.broadcast <- &te
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.cancel()
}
