// Package ws implements the WebSocket adapter that pushes live session
// status and log events to connected clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection. sessionID 0 subscribes to all
// sessions.
type conn struct {
	ws        *websocket.Conn
	cancel    context.CancelFunc
	sessionID int64
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	mu         sync.RWMutex
	conns      map[*conn]struct{}
	originHost string
}

// NewHub creates a new WebSocket hub. originHost restricts accepted
// browser origins (host[:port]); empty accepts any origin.
func NewHub(originHost string) *Hub {
	return &Hub{
		conns:      make(map[*conn]struct{}),
		originHost: originHost,
	}
}

// HandleWS upgrades the connection. The optional session_id query
// parameter limits delivery to events of that session.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	var sessionID int64
	if raw := r.URL.Query().Get("session_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, `{"error":"invalid session_id"}`, http.StatusBadRequest)
			return
		}
		sessionID = id
	}

	opts := &websocket.AcceptOptions{}
	if h.originHost == "" {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = []string{h.originHost}
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The upgrade outlives the request context.
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{ws: ws, cancel: cancel, sessionID: sessionID}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "session_id", sessionID)

	// Read loop detects disconnects and consumes pings.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends msg to every connection subscribed to sessionID.
func (h *Hub) Broadcast(ctx context.Context, sessionID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		if c.sessionID == 0 || c.sessionID == sessionID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.ws.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("websocket write failed", "error", err)
			h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*conn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.cancel()
		if c.ws != nil {
			_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
		}
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "session_id", c.sessionID)
	}
}
