package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cfotel "github.com/Strob0t/Weaver/internal/adapter/otel"
	"github.com/Strob0t/Weaver/internal/domain"
	"github.com/Strob0t/Weaver/internal/domain/session"
	"github.com/Strob0t/Weaver/internal/port/database"
)

// Log paging bounds.
const (
	DefaultLogLimit = 200
	MaxLogLimit     = 1000
)

// SessionService implements session create, list, get, delete and log
// listing. Read paths do not take the session lock.
type SessionService struct {
	rec         *recorder
	tx          database.Transactor
	providers   database.ProviderStore
	driver      ContainerDriver
	initializer *Initializer
	limiter     *RateLimiter
	views       *viewBuilder
	metrics     *cfotel.Metrics
}

// NewSessionService creates a SessionService.
func NewSessionService(
	sessions database.SessionStore,
	logs database.SessionLogStore,
	tx database.Transactor,
	providers database.ProviderStore,
	driver ContainerDriver,
	initializer *Initializer,
	limiter *RateLimiter,
	events *EventPublisher,
	vscodeBaseURL string,
) *SessionService {
	return &SessionService{
		rec:         &recorder{sessions: sessions, logs: logs, events: events, now: time.Now},
		tx:          tx,
		providers:   providers,
		driver:      driver,
		initializer: initializer,
		limiter:     limiter,
		views:       &viewBuilder{editorEnabled: driver.EditorEnabled(), baseURL: vscodeBaseURL},
	}
}

// SetMetrics enables session metrics.
func (s *SessionService) SetMetrics(m *cfotel.Metrics) {
	s.metrics = m
}

// Create persists a CREATING session with its log entry in one transaction
// and, after commit, queues its initialization.
func (s *SessionService) Create(ctx context.Context, req session.CreateRequest) (*session.View, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, err := s.providers.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("provider %d: %w", req.ProviderID, err)
	}
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: provider type not supported", domain.ErrValidation)
	}

	slog.InfoContext(ctx, "creating session", "provider_id", req.ProviderID, "repo_id", req.RepoID)
	sess := &session.Session{
		ProviderID:            req.ProviderID,
		RepoID:                req.RepoID,
		RepoName:              req.RepoName,
		RepoPathWithNamespace: req.RepoPathWithNamespace,
		RepoHTTPURL:           req.RepoHTTPURL,
		DefaultBranch:         req.DefaultBranch,
		Status:                session.StatusCreating,
		WorkspacePath:         s.driver.WorkspacePath(req.RepoName),
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.rec.sessions.CreateSession(ctx, sess); err != nil {
			return err
		}
		_, err := s.rec.logs.AppendLog(ctx, sess.ID, "Session created and queued for initialization.")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.InfoContext(ctx, "session created", "session_id", sess.ID, "workspace_path", sess.WorkspacePath)
	s.metrics.SessionCreated(ctx)
	s.rec.events.SessionStatus(ctx, sess)

	if err := s.initializer.Enqueue(ctx, sess.ID); err != nil {
		// The session was marked FAILED; return its current record.
		if cur, getErr := s.rec.sessions.GetSession(ctx, sess.ID); getErr == nil {
			sess = cur
		}
	}
	return s.views.build(sess, "", false), nil
}

// List returns every session merged with the live container states.
func (s *SessionService) List(ctx context.Context) ([]session.View, error) {
	sessions, err := s.rec.sessions.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	states := s.driver.ListSessionContainerStates(ctx)
	views := make([]session.View, 0, len(sessions))
	for idx := range sessions {
		state, ok := states[sessions[idx].ID]
		views = append(views, *s.views.build(&sessions[idx], state, ok))
	}
	return views, nil
}

// Get returns one session merged with its live container state.
func (s *SessionService) Get(ctx context.Context, id int64) (*session.View, error) {
	sess, err := s.rec.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	state, exists := s.driver.ResolveContainerState(ctx, id)
	return s.views.build(sess, state, exists), nil
}

// Delete removes the session record and its logs, then its container.
// Container cleanup is best effort.
func (s *SessionService) Delete(ctx context.Context, id int64) error {
	sess, err := s.rec.sessions.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := s.rec.sessions.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session %d: %w", id, err)
	}
	if err := s.rec.logs.DeleteLogs(ctx, id); err != nil {
		slog.WarnContext(ctx, "delete session logs failed", "session_id", id, "error", err)
	}
	s.limiter.Forget(id)
	s.initializer.CleanupSession(ctx, id)
	slog.InfoContext(ctx, "session deleted", "session_id", id, "repo_name", sess.RepoName)
	return nil
}

// ListLogs pages through a session's log. offset is clamped to >= 0 and
// limit to [1, MaxLogLimit].
func (s *SessionService) ListLogs(ctx context.Context, id int64, offset, limit int) ([]session.Log, error) {
	exists, err := s.rec.sessions.SessionExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("session %d: %w", id, domain.ErrNotFound)
	}
	safeOffset := max(offset, 0)
	safeLimit := min(max(limit, 1), MaxLogLimit)
	if safeOffset != offset || safeLimit != limit {
		slog.DebugContext(ctx, "adjusted log pagination", "session_id", id,
			"offset", offset, "limit", limit, "safe_offset", safeOffset, "safe_limit", safeLimit)
	}
	return s.rec.logs.ListLogs(ctx, id, safeOffset, safeLimit)
}

// viewBuilder presents sessions to callers.
type viewBuilder struct {
	editorEnabled bool
	baseURL       string
}

// build merges s with the live container state. A READY session whose
// container is stopped reads as STOPPED.
func (b *viewBuilder) build(s *session.Session, state session.ContainerState, exists bool) *session.View {
	v := &session.View{Session: *s, Status: s.EffectiveStatus(state, exists)}
	if exists {
		v.ContainerState = state
	}
	v.VSCodeURL = b.vscodeURL(s.VSCodePort)
	return v
}

func (b *viewBuilder) vscodeURL(port int) string {
	if !b.editorEnabled || port == 0 {
		return ""
	}
	base := strings.TrimSuffix(strings.TrimSpace(b.baseURL), "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", base, port)
}
