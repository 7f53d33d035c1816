package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/neoclaw-ai/geostream/internal/observability"
	"github.com/neoclaw-ai/geostream/internal/runtime"
)

const (
	maxWebSocketClients = 200
	wsSendQueue         = 256
	wsWriteTimeout      = 5 * time.Second
)

var _ runtime.Outputs = (*WebSocketHub)(nil)

// Emission is the JSON frame sent to websocket clients.
type Emission struct {
	Outlet  int    `json:"outlet"`
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSClient(conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendQueue),
	}
	go c.writePump()
	return c
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// WebSocketHub broadcasts outlet emissions to connected websocket clients.
// Slow clients are disconnected instead of blocking the dispatcher.
type WebSocketHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewWebSocketHub creates an empty hub.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client until it disconnects.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ClientCount() >= maxWebSocketClients {
		http.Error(w, "too many websocket clients", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logger().Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := h.add(conn)
	logging.Logger().Info("websocket client connected", "remote", r.RemoteAddr, "clients", h.ClientCount())

	go func() {
		defer func() {
			h.remove(c)
			logging.Logger().Info("websocket client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Emit broadcasts one emission to every client.
func (h *WebSocketHub) Emit(_ context.Context, outlet runtime.Outlet, payload string) error {
	data, err := json.Marshal(Emission{Outlet: int(outlet), Name: outlet.String(), Payload: payload})
	if err != nil {
		return err
	}

	// send channels are closed only under the write lock.
	var slow []*wsClient
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logging.Logger().Warn("websocket client too slow, disconnecting")
		h.remove(c)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	observability.WebSocketClients.Set(0)
}

func (h *WebSocketHub) add(conn *websocket.Conn) *wsClient {
	c := newWSClient(conn)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	observability.WebSocketClients.Set(float64(n))
	return c
}

func (h *WebSocketHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	observability.WebSocketClients.Set(float64(n))
}
