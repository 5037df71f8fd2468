package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"datasync/internal/observability"
	"datasync/internal/service"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Hub fans sync events out to WebSocket subscribers.
type Hub struct {
	logger         *observability.Logger
	originPatterns []string

	broadcast chan service.Event
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates a hub. originPatterns lists extra origins allowed to
// connect; same-origin clients are always accepted.
func NewHub(logger *observability.Logger, originPatterns ...string) *Hub {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Hub{
		logger:         logger.WithField("component", "events"),
		originPatterns: originPatterns,
		broadcast:      make(chan service.Event, 64),
		done:           make(chan struct{}),
		clients:        make(map[*websocket.Conn]struct{}),
	}
}

// Publish queues ev for delivery, dropping it when the queue is full.
func (h *Hub) Publish(ev service.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.WarnWithFields("Event queue full, dropping event", map[string]interface{}{
			"event_id":  ev.ID,
			"operation": string(ev.Operation),
		})
	}
}

// Run delivers queued events until ctx is done, then disconnects clients.
func (h *Hub) Run(ctx context.Context) {
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.broadcast:
			h.send(ev)
		}
	}
}

func (h *Hub) send(ev service.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.ErrorWithFields("Failed to encode event", map[string]interface{}{"error": err})
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.logger.DebugWithFields("Dropping event subscriber", map[string]interface{}{"error": err})
			h.remove(c, websocket.StatusGoingAway)
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber. It is safe to call more than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		conns := h.clients
		h.clients = make(map[*websocket.Conn]struct{})
		h.mu.Unlock()
		for c := range conns {
			_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		}
	})
}

// ServeHTTP upgrades the request and holds the subscription open until
// the client leaves or the hub closes. Client messages are not expected.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.WarnWithFields("WebSocket upgrade failed", map[string]interface{}{"error": err})
		return
	}

	select {
	case <-h.done:
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	default:
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.DebugWithFields("Event subscriber connected", map[string]interface{}{"clients": count})

	ctx := conn.CloseRead(context.Background())
	select {
	case <-ctx.Done():
	case <-h.done:
	}
	h.remove(conn, websocket.StatusNormalClosure)
}

func (h *Hub) remove(c *websocket.Conn, code websocket.StatusCode) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		_ = c.Close(code, "")
	}
}
