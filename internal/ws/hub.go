package ws

import (
	"context"
	"sync"

	"whatsapp-clone-demo/backend/internal/events"
	"whatsapp-clone-demo/backend/internal/models"
	"whatsapp-clone-demo/backend/pkg/logger"
	"whatsapp-clone-demo/backend/shared/observability"
)

// DeliveryService records delivery acknowledgements arriving over the live
// channel.
type DeliveryService interface {
	MarkDelivered(messageID uint) (*models.Message, error)
}

// TypingService relays typing signals arriving over the live channel.
type TypingService interface {
	NotifyTyping(ctx context.Context, senderID, receiverID uint)
}

// Hub routes events to per-user private channels. A user may hold several
// connections (tabs); every one of them gets the event. The hub holds no
// durable state: a client that misses an event converges on its next full
// conversation fetch.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uint][]*Client
	register   chan *Client
	unregister chan *Client

	delivery DeliveryService
	typing   TypingService
	log      *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[uint][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// SetDeliveryService wires the service handling inbound delivered acks.
func (h *Hub) SetDeliveryService(svc DeliveryService) { h.delivery = svc }

// SetTypingService wires the service handling inbound typing frames.
func (h *Hub) SetTypingService(svc TypingService) { h.typing = svc }

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.userID] = append(h.clients[client.userID], client)
			h.mu.Unlock()
			observability.ConnectedClients.Inc()
			h.log.Info("client registered", "client_id", client.id, "user_id", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			conns := h.clients[client.userID]
			for i, c := range conns {
				if c == client {
					h.clients[client.userID] = append(conns[:i], conns[i+1:]...)
					close(client.send)
					observability.ConnectedClients.Dec()
					h.log.Info("client unregistered", "client_id", client.id, "user_id", client.userID)
					break
				}
			}
			if len(h.clients[client.userID]) == 0 {
				delete(h.clients, client.userID)
			}
			h.mu.Unlock()
		}
	}
}

// Publish sends an event to every connection of the given user. It never
// blocks: a connection whose buffer is full simply misses the event.
func (h *Hub) Publish(userID uint, event events.Event) {
	payload, err := events.Marshal(event)
	if err != nil {
		h.log.LogError(err, "failed to marshal event", "event", event.Name())
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			observability.DroppedEvents.Inc()
			h.log.Warn("dropping event, client buffer full",
				"client_id", client.id, "user_id", userID, "event", event.Name())
		}
	}
}
