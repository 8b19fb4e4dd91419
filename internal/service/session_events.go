package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Weaver/internal/domain/session"
	"github.com/Strob0t/Weaver/internal/port/broadcast"
	"github.com/Strob0t/Weaver/internal/port/database"
	"github.com/Strob0t/Weaver/internal/port/messagequeue"
)

// EventPublisher fans session status changes and log lines out to the
// message queue and live clients. Both sinks are optional and publishing is
// best effort.
type EventPublisher struct {
	queue messagequeue.Queue
	hub   broadcast.Broadcaster
}

// NewEventPublisher creates an EventPublisher. queue and hub may be nil.
func NewEventPublisher(queue messagequeue.Queue, hub broadcast.Broadcaster) *EventPublisher {
	return &EventPublisher{queue: queue, hub: hub}
}

// SessionStatus publishes the session's current persisted status.
func (p *EventPublisher) SessionStatus(ctx context.Context, s *session.Session) {
	if p == nil {
		return
	}
	ev := messagequeue.SessionStatusPayload{
		EventID:      uuid.NewString(),
		SessionID:    s.ID,
		Status:       string(s.Status),
		ErrorMessage: s.ErrorMessage,
		VSCodePort:   s.VSCodePort,
		At:           s.UpdatedAt,
	}
	p.publish(ctx, messagequeue.SubjectSessionStatus, ev)
	if p.hub != nil {
		p.hub.BroadcastEvent(ctx, broadcast.EventSessionStatus, ev)
	}
}

// SessionLog publishes an appended log entry.
func (p *EventPublisher) SessionLog(ctx context.Context, l *session.Log) {
	if p == nil {
		return
	}
	ev := messagequeue.SessionLogPayload{
		EventID:   uuid.NewString(),
		SessionID: l.SessionID,
		LogID:     l.ID,
		Message:   l.Message,
		At:        l.CreatedAt,
	}
	p.publish(ctx, messagequeue.SubjectSessionLog, ev)
	if p.hub != nil {
		p.hub.BroadcastEvent(ctx, broadcast.EventSessionLog, ev)
	}
}

func (p *EventPublisher) publish(ctx context.Context, subject string, payload any) {
	if p.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal session event", "subject", subject, "error", err)
		return
	}
	if err := p.queue.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "publish session event failed", "subject", subject, "error", err)
	}
}

// recorder persists session transitions and log lines and publishes the
// matching events. It is shared by the session services.
type recorder struct {
	sessions database.SessionStore
	logs     database.SessionLogStore
	events   *EventPublisher
	now      func() time.Time
}

// appendLog stores message in the session log. A storage failure is logged
// and otherwise ignored; the session record remains the source of truth.
func (r *recorder) appendLog(ctx context.Context, sessionID int64, message string) {
	l, err := r.logs.AppendLog(ctx, sessionID, message)
	if err != nil {
		slog.ErrorContext(ctx, "append session log failed", "session_id", sessionID, "error", err)
		return
	}
	r.events.SessionLog(ctx, l)
}

// fail moves s to FAILED, persists it and logs logMessage.
func (r *recorder) fail(ctx context.Context, s *session.Session, errorMessage, logMessage string) error {
	s.Fail(errorMessage, r.now())
	if err := r.save(ctx, s); err != nil {
		return err
	}
	r.appendLog(ctx, s.ID, logMessage)
	return nil
}

func (r *recorder) save(ctx context.Context, s *session.Session) error {
	if err := r.sessions.UpdateSession(ctx, s); err != nil {
		return err
	}
	r.events.SessionStatus(ctx, s)
	return nil
}
