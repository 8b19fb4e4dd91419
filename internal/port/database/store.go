// Package database defines the persistence ports (interfaces).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/domain/session"
)

// SessionStore persists session records.
type SessionStore interface {
	ListSessions(ctx context.Context) ([]session.Session, error)
	ListSessionsByStatus(ctx context.Context, status session.Status) ([]session.Session, error)
	GetSession(ctx context.Context, id int64) (*session.Session, error)
	SessionExists(ctx context.Context, id int64) (bool, error)
	// CreateSession inserts s and fills in its ID and timestamps.
	CreateSession(ctx context.Context, s *session.Session) error
	// UpdateSession writes the mutable lifecycle fields of s. It returns
	// domain.ErrNotFound when the record was deleted concurrently.
	UpdateSession(ctx context.Context, s *session.Session) error
	DeleteSession(ctx context.Context, id int64) error
}

// SessionLogStore persists the append-only session log.
type SessionLogStore interface {
	AppendLog(ctx context.Context, sessionID int64, message string) (*session.Log, error)
	ListLogs(ctx context.Context, sessionID int64, offset, limit int) ([]session.Log, error)
	DeleteLogs(ctx context.Context, sessionID int64) error
	// DeleteLogsBefore removes entries older than cutoff and returns how
	// many entries (or files) were removed.
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// LogSessionIDs lists every session id that still has log entries.
	LogSessionIDs(ctx context.Context) ([]int64, error)
}

// ProviderStore persists provider connections.
type ProviderStore interface {
	ListProviders(ctx context.Context) ([]provider.Provider, error)
	GetProvider(ctx context.Context, id int64) (*provider.Provider, error)
	CreateProvider(ctx context.Context, p *provider.Provider) error
	UpdateProvider(ctx context.Context, p *provider.Provider) error
	DeleteProvider(ctx context.Context, id int64) error
}

// Transactor runs fn inside a single database transaction. Stores called
// with the ctx passed to fn participate in that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
