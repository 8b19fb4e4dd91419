package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// scope is decoded from every payload to route it by session.
type scope struct {
	SessionID int64 `json:"session_id"`
}

// BroadcastEvent marshals payload and routes it by its session_id field.
// It implements broadcast.Broadcaster.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}
	var s scope
	_ = json.Unmarshal(data, &s)

	h.Broadcast(ctx, s.SessionID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
