// Package ws implements the WebSocket adapter for live dashboard feeds.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/RelayForge/internal/port/broadcast"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn is one attached client and its outbound queue.
type conn struct {
	send chan []byte
}

// Hub manages all active WebSocket connections and broadcasts messages.
// Each client has its own bounded queue; a full queue drops the message
// for that client only.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*conn]struct{}
	buffer  int
	dropped atomic.Int64
}

var _ broadcast.Broadcaster = (*Hub)(nil)

// NewHub creates a hub whose clients queue up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Hub{
		conns:  make(map[*conn]struct{}),
		buffer: buffer,
	}
}

// HandleWS upgrades the connection and serves it until the client leaves.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "") }()

	c := h.add()
	defer h.remove(c)
	slog.Info("websocket connected", "remote", r.RemoteAddr)

	// Clients only listen; CloseRead discards their frames and ends ctx
	// when they disconnect.
	ctx := ws.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// Broadcast queues msg for every connected client without blocking.
func (h *Hub) Broadcast(_ context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// BroadcastEvent marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Dropped returns how many messages were skipped for full client queues.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) add() *conn {
	c := &conn{send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
