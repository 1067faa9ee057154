package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"navdir/internal/domain"
	"navdir/internal/observability"
)

// Hub tracks subscribed clients and fans config events out to them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			h.clients[client] = true
			observability.ConfigEventConnectionsActive.Inc()
			slog.Info("config event subscriber registered", slog.String("user", client.username))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
					observability.ConfigEventsSent.Inc()
				default:
					// Slow subscriber; drop it rather than stall everyone else.
					h.closeClientSend(client)
					delete(h.clients, client)
					observability.ConfigEventConnectionsActive.Dec()
				}
			}
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	h.closeClientSend(client)
	observability.ConfigEventConnectionsActive.Dec()
	slog.Info("config event subscriber unregistered", slog.String("user", client.username))
}

func (h *Hub) closeClientSend(client *Client) {
	client.sendOnce.Do(func() { close(client.send) })
}

func (h *Hub) shutdown() {
	close(h.done)

	for client := range h.clients {
		h.closeClientSend(client)
		observability.ConfigEventConnectionsActive.Dec()
	}
	h.clients = make(map[*Client]bool)

	slog.Info("hub shutdown complete")
}

// Broadcast queues message for every subscriber. It gives up when ctx ends
// or the hub has stopped.
func (h *Hub) Broadcast(ctx context.Context, message []byte) error {
	select {
	case h.broadcast <- message:
		return nil
	case <-h.done:
		return fmt.Errorf("hub stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishConfigEvent delivers event to the subscribers of this process.
func (h *Hub) PublishConfigEvent(ctx context.Context, event *domain.ConfigEvent) error {
	data, err := json.Marshal(ServerMessage{Type: MessageTypeConfigUpdated, Event: event})
	if err != nil {
		return fmt.Errorf("marshal config event: %w", err)
	}
	return h.Broadcast(ctx, data)
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		h.closeClientSend(client)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
