package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/weiawesome/chatlog-service/internal/config"
	"github.com/weiawesome/chatlog-service/pkg/log"
	"github.com/weiawesome/chatlog-service/pkg/pubsub"
)

// Hub fans bus events out to the WebSocket clients of this node. The node
// holds one bus subscription per channel family; clients are matched locally.
type Hub struct {
	clients    map[string]*Client            // clientID -> client
	topics     map[string]map[string]*Client // topic -> clientID -> client
	unregister chan *Client
	broadcast  chan *TopicMessage
	done       chan struct{}
	closed     bool // set under mu once Run has closed every client
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

type TopicMessage struct {
	Topic   string
	Message []byte
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		topics:     make(map[string]map[string]*Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *TopicMessage, 256),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

// Run serves unregistrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.topics = make(map[string]map[string]*Client)
			h.closed = true
			h.mu.Unlock()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for topic, subs := range h.topics {
					delete(subs, client.ID)
					if len(subs) == 0 {
						delete(h.topics, topic)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str("client_id", client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.topics[msg.Topic] {
				select {
				case client.Send <- msg.Message:
				default:
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds client before returning, so topics can be subscribed right
// away. Registrations after shutdown are ignored.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.clients[client.ID] = client
	l := log.L()
	l.Debug().Str("client_id", client.ID).Str(log.FieldIdentity, client.Identity).Msg("client registered")
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe delivers events published on topic to client. Clients that are
// no longer registered are ignored.
func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[string]*Client)
	}
	h.topics[topic][client.ID] = client
	l := log.L()
	l.Info().Str("client_id", client.ID).Str(log.FieldTopic, topic).Msg("client subscribed")
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.topics[topic]; ok {
		delete(subs, client.ID)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// BroadcastToTopic sends message as JSON to every client subscribed to topic.
func (h *Hub) BroadcastToTopic(topic string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.BroadcastRaw(topic, data)
	return nil
}

// BroadcastRaw sends raw bytes to every client subscribed to topic.
func (h *Hub) BroadcastRaw(topic string, data []byte) {
	select {
	case h.broadcast <- &TopicMessage{Topic: topic, Message: data}:
	case <-h.done:
	}
}

func (h *Hub) TopicClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Attach subscribes the hub to room and public traffic on the bus.
func (h *Hub) Attach(ctx context.Context, bus pubsub.Subscriber) error {
	rooms, err := bus.SubscribePattern(ctx, pubsub.PatternAllRooms)
	if err != nil {
		return err
	}
	public, err := bus.Subscribe(ctx, pubsub.ChannelPublic)
	if err != nil {
		return err
	}

	go h.Pump(ctx, rooms)
	go h.Pump(ctx, public)
	return nil
}

// Pump forwards bus events to the clients subscribed to each event's channel.
func (h *Hub) Pump(ctx context.Context, events <-chan *pubsub.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Channel == "" {
				continue
			}
			if err := h.BroadcastToTopic(event.Channel, event); err != nil {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldTopic, event.Channel).Msg("failed to encode event")
			}
		}
	}
}
