// Package hub provides a thread-safe websocket broadcast hub for the
// broker's live event feed, using the channel-based fan-out pattern.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/Bhuman-Patel/Talking-Avatar/internal/log"
)

// Hub maintains the set of connected feed clients and broadcasts JSON
// frames to them. Slow clients are dropped rather than allowed to stall
// the feed.
type Hub struct {
	name string

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// New creates a hub. Call Run in a goroutine before broadcasting.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives the hub's fan-out loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("feed client connected", "hub", h.name, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("feed client disconnected", "hub", h.name, "clients", count)

		case frame := <-h.broadcast:
			// Full lock: dropping a slow client mutates the map.
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					// Client buffer full; drop it rather than block the feed.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow feed client", "hub", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a frame for every connected client.
// Drops the frame if the hub itself is saturated.
func (h *Hub) Broadcast(frame []byte) {
	select {
	case h.broadcast <- frame:
	default:
		log.Warn("feed saturated, dropping frame", "hub", h.name)
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
