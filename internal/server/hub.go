package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/vitals"
)

const broadcastBuffer = 64

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub maintains the set of active websocket clients and fans accepted
// measurements and alerts out to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     zerolog.Logger
}

// NewHub constructs an idle hub; Run must be started before broadcasting.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug().Str("remote", client.conn.RemoteAddr().String()).Msg("websocket client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow or gone; drop it rather than stall the hub.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register hands a new client to the hub loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastMeasurement pushes an accepted measurement to every client.
func (h *Hub) BroadcastMeasurement(m vitals.Measurement) {
	h.send("measurement", m)
}

// BroadcastAlert pushes an emitted alert to every client.
func (h *Hub) BroadcastAlert(a alerting.Event) {
	h.send("alert", a)
}

func (h *Hub) send(kind string, payload any) {
	message, err := json.Marshal(envelope{Type: kind, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", kind).Msg("failed to marshal broadcast")
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn().Str("type", kind).Msg("broadcast queue full, dropping message")
	}
}
