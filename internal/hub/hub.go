package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/elmchat/elm-chat/internal/domain"
	"github.com/elmchat/elm-chat/internal/metrics"
	"github.com/elmchat/elm-chat/pkg/log"
)

var ErrHubClosed = errors.New("hub closed")

// Hub fans broadcasts out to every connected client of the room. A single
// Run loop delivers them, so all clients observe the same order.
type Hub struct {
	clients    map[string]*Client // clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done. On exit all
// client send channels are closed.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ChatConnections.Set(float64(n))
			l := log.L()
			l.Debug().Str(log.FieldConnectionID, client.ID).Int("clients", n).Msg("client registered")

		case client := <-h.unregister:
			if h.remove(client) {
				l := log.L()
				l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for _, client := range h.clients {
				if !client.enqueue(msg) {
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				h.remove(client)
				l := log.L()
				l.Warn().Str(log.FieldConnectionID, client.ID).Msg("send buffer full, dropping client")
			}
		}
	}
}

func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		client.closeSend()
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.ChatConnections.Set(float64(n))
	}
	return ok
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	for id, client := range h.clients {
		client.closeSend()
		delete(h.clients, id)
	}
	h.mu.Unlock()
	metrics.ChatConnections.Set(0)
	close(h.done)
}

func (h *Hub) Register(client *Client) error {
	if h.closed() {
		return ErrHubClosed
	}
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast encodes b and queues it for every connected client.
func (h *Hub) Broadcast(b domain.Broadcast) error {
	if h.closed() {
		return ErrHubClosed
	}
	data, err := domain.EncodeBroadcast(b)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
