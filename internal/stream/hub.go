// Package stream fans live market data and order events out to WebSocket
// clients: the subscription registry, the tick broadcaster, the order-event
// relay, and the socket hub they publish through.
package stream

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub tracks connected WebSocket clients and offers non-blocking delivery to
// them. A send that cannot be buffered reports failure instead of blocking,
// so one slow client never stalls a broadcast pass.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	sockets map[string]*ClientSocket
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log.With("component", "hub"),
		sockets: make(map[string]*ClientSocket),
	}
}

// Add wraps an upgraded connection in a ClientSocket, registers it, and
// starts its write pump.
func (h *Hub) Add(conn *websocket.Conn, sendBuf int) *ClientSocket {
	c := &ClientSocket{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan any, sendBuf),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.sockets[c.ID] = c
	h.mu.Unlock()

	go c.writePump()
	h.log.Debug("socket connected", "socket", c.ID)
	return c
}

// Send queues a payload for the socket. It returns false when the socket is
// gone or its buffer is full; it never blocks.
func (h *Hub) Send(socketID string, payload any) bool {
	h.mu.Lock()
	c := h.sockets[socketID]
	h.mu.Unlock()
	if c == nil {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Drop disconnects and forgets a socket. Safe to call repeatedly.
func (h *Hub) Drop(socketID string) {
	h.mu.Lock()
	c := h.sockets[socketID]
	delete(h.sockets, socketID)
	h.mu.Unlock()

	if c != nil {
		c.close()
		h.log.Debug("socket dropped", "socket", c.ID)
	}
}

// Count returns the number of connected sockets.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sockets)
}
