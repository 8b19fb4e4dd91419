package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cfotel "github.com/Strob0t/Weaver/internal/adapter/otel"
	"github.com/Strob0t/Weaver/internal/domain"
	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/domain/session"
	"github.com/Strob0t/Weaver/internal/logger"
	"github.com/Strob0t/Weaver/internal/port/database"
	"github.com/Strob0t/Weaver/internal/secrets"
	"github.com/Strob0t/Weaver/internal/worker"
)

// Messages recorded on the session when initialization fails.
const (
	msgQueueFull       = "Initialization queue is full"
	msgCreateFailed    = "Container creation failed"
	msgNoHostPort      = "VSCode Web host port allocation failed"
	msgPrepareFailed   = "Workspace preparation failed"
	msgGitConfigFailed = "Gitconfig write failed"
	msgCloneFailed     = "Git clone failed"
	msgEditorFailed    = "VSCode Web startup failed"
	msgInitFailed      = "Initialization failed"
	msgInterrupted     = "Initialization interrupted by restart"
)

// TaskSubmitter runs tasks asynchronously. *worker.Pool implements it.
type TaskSubmitter interface {
	Submit(task worker.Task) error
}

// Initializer drives a CREATING session through container creation,
// workspace preparation, credential injection, clone and editor startup.
// It never returns initialization errors to a caller: every outcome is
// recorded on the session and in its log.
type Initializer struct {
	rec       *recorder
	providers database.ProviderStore
	cipher    TokenCipher
	driver    ContainerDriver
	locks     *LockManager
	pool      TaskSubmitter
	metrics   *cfotel.Metrics
}

// NewInitializer creates an Initializer.
func NewInitializer(
	sessions database.SessionStore,
	logs database.SessionLogStore,
	providers database.ProviderStore,
	cipher TokenCipher,
	driver ContainerDriver,
	locks *LockManager,
	pool TaskSubmitter,
	events *EventPublisher,
) *Initializer {
	return &Initializer{
		rec:       &recorder{sessions: sessions, logs: logs, events: events, now: time.Now},
		providers: providers,
		cipher:    cipher,
		driver:    driver,
		locks:     locks,
		pool:      pool,
	}
}

// SetMetrics enables lifecycle metrics.
func (i *Initializer) SetMetrics(m *cfotel.Metrics) {
	i.metrics = m
}

// Enqueue hands initialization of sessionID to the worker pool. The
// request ID on ctx carries over to the task. When the pool refuses the
// task the session is marked FAILED so it never stays CREATING.
func (i *Initializer) Enqueue(ctx context.Context, sessionID int64) error {
	reqID := logger.RequestID(ctx)
	err := i.pool.Submit(func(taskCtx context.Context) {
		if reqID != "" {
			taskCtx = logger.WithRequestID(taskCtx, reqID)
		}
		i.Initialize(taskCtx, sessionID)
	})
	if err == nil {
		return nil
	}

	slog.WarnContext(ctx, "session initialization rejected", "session_id", sessionID, "error", err)
	lockErr := i.locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, getErr := i.rec.sessions.GetSession(ctx, sessionID)
		if getErr != nil {
			return getErr
		}
		return i.rec.fail(ctx, s, msgQueueFull, msgQueueFull+".")
	})
	if lockErr != nil {
		slog.ErrorContext(ctx, "failed to record rejected initialization", "session_id", sessionID, "error", lockErr)
	}
	if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrClosed) {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return err
}

// Initialize runs the full initialization of sessionID under its lock. A
// session that no longer exists is skipped.
func (i *Initializer) Initialize(ctx context.Context, sessionID int64) {
	ctx = logger.WithSessionID(ctx, sessionID)
	ctx, span := cfotel.StartInitSpan(ctx, sessionID)
	defer span.End()

	err := i.locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := i.rec.sessions.GetSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				slog.InfoContext(ctx, "session vanished before initialization", "session_id", sessionID)
				return nil
			}
			return err
		}
		if s.Status != session.StatusCreating {
			slog.WarnContext(ctx, "skipping initialization of non-creating session", "session_id", sessionID, "status", s.Status)
			return nil
		}

		start := time.Now()
		i.run(ctx, s)
		i.metrics.InitFinished(ctx, s.Status == session.StatusReady, time.Since(start).Seconds())
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "session initialization aborted", "session_id", sessionID, "error", err)
	}
}

// initRun holds the state of one initialization attempt.
type initRun struct {
	*Initializer
	s                *session.Session
	containerName    string
	containerCreated bool
	token            string
}

// output returns stderr with the provider token and URL credentials
// masked, or fallback when nothing is left.
func (r *initRun) output(stderr, fallback string) string {
	return orDefault(secrets.RedactOutput(strings.TrimSpace(stderr), r.token), fallback)
}

// run executes the pipeline and converts any error or panic into a FAILED
// session, stopping the container if one was created.
func (i *Initializer) run(ctx context.Context, s *session.Session) {
	r := &initRun{Initializer: i, s: s, containerName: i.driver.ContainerName(s.ID)}

	slog.InfoContext(ctx, "initializing session container", "session_id", s.ID)
	i.rec.appendLog(ctx, s.ID, "Session container initialization started.")

	defer func() {
		if p := recover(); p != nil {
			r.abort(ctx, fmt.Errorf("panic: %v", p))
		}
	}()
	if err := r.pipeline(ctx); err != nil {
		r.abort(ctx, err)
	}
}

func (r *initRun) abort(ctx context.Context, cause error) {
	msg := strings.TrimSpace(cause.Error())
	if msg == "" {
		msg = "Unknown error"
	}
	slog.ErrorContext(ctx, "initialization failed", "session_id", r.s.ID, "error", secrets.RedactOutput(cause.Error(), r.token))
	if err := r.rec.fail(ctx, r.s, msgInitFailed, "Initialization failed: "+secrets.RedactOutput(msg, r.token)); err != nil {
		slog.ErrorContext(ctx, "failed to persist initialization failure", "session_id", r.s.ID, "error", err)
	}
	if r.containerCreated {
		r.stop(ctx)
	}
}

func (r *initRun) pipeline(ctx context.Context) error {
	s := r.s
	p, err := r.providers.GetProvider(ctx, s.ProviderID)
	if err != nil {
		return fmt.Errorf("load provider %d: %w", s.ProviderID, err)
	}
	token, err := r.cipher.Decrypt(p.EncryptedToken)
	if err != nil {
		return fmt.Errorf("decrypt provider token: %w", err)
	}
	r.token = token
	ctx = secrets.WithSecret(ctx, token)
	authUser := p.Type.AuthUser()

	r.rec.appendLog(ctx, s.ID, "Creating session container.")
	created := r.driver.CreateContainer(ctx, s.ID)
	if created.NoHostPort {
		return r.failStep(ctx, msgNoHostPort, msgNoHostPort, false)
	}
	if !created.OK() {
		return r.failStep(ctx, msgCreateFailed, r.output(created.Stderr, msgCreateFailed), false)
	}
	r.containerCreated = true

	r.rec.appendLog(ctx, s.ID, "Preparing workspace in container.")
	if res := r.driver.PrepareWorkspace(ctx, r.containerName); !res.OK() {
		return r.failStep(ctx, msgPrepareFailed, r.output(res.Stderr, msgPrepareFailed), true)
	}

	r.rec.appendLog(ctx, s.ID, "Writing gitconfig into container.")
	if res := r.driver.WriteGitConfig(ctx, r.containerName, provider.ResolveGitConfig(p.GitConfig, "")); !res.OK() {
		return r.failStep(ctx, msgGitConfigFailed, r.output(res.Stderr, msgGitConfigFailed), true)
	}
	if res := r.driver.ClearWorkspace(ctx, r.containerName, s.RepoName); !res.OK() {
		slog.WarnContext(ctx, "workspace clear failed", "session_id", s.ID, "stderr", r.output(res.Stderr, "no stderr"))
	}

	r.rec.appendLog(ctx, s.ID, "Cloning repository into container workspace.")
	if res := r.driver.CloneRepository(ctx, r.containerName, s.RepoHTTPURL, token, authUser, s.RepoName); !res.OK() {
		msg := r.output(res.Stderr, msgCloneFailed)
		return r.failStep(ctx, msg, msg, true)
	}

	port := 0
	if r.driver.EditorEnabled() {
		if created.Port == 0 {
			return r.failStep(ctx, msgNoHostPort, msgNoHostPort, true)
		}
		r.rec.appendLog(ctx, s.ID, "Starting VSCode Web in container.")
		if res := r.driver.StartCodeServer(ctx, r.containerName, s.RepoName); !res.OK() {
			msg := r.output(res.Stderr, msgEditorFailed)
			return r.failStep(ctx, msg, msg, true)
		}
		port = created.Port
	}

	s.MarkReady(port, r.rec.now())
	if err := r.rec.save(ctx, s); err != nil {
		return fmt.Errorf("persist ready session: %w", err)
	}
	r.rec.appendLog(ctx, s.ID, "Workspace ready.")
	slog.InfoContext(ctx, "session ready", "session_id", s.ID, "vscode_port", port)
	return nil
}

// failStep records a failed step. A persistence error is returned so the
// catch-all path can retry recording the failure.
func (r *initRun) failStep(ctx context.Context, errorMessage, logMessage string, stop bool) error {
	slog.WarnContext(ctx, "session initialization step failed", "session_id", r.s.ID, "error", errorMessage)
	if err := r.rec.fail(ctx, r.s, errorMessage, logMessage); err != nil {
		return fmt.Errorf("persist failed session: %w", err)
	}
	if stop {
		r.stop(ctx)
	}
	return nil
}

func (r *initRun) stop(ctx context.Context) {
	if res := r.driver.StopContainer(ctx, r.s.ID); !res.OK() {
		slog.WarnContext(ctx, "failed to stop session container", "session_id", r.s.ID, "stderr", r.output(res.Stderr, "no stderr"))
	}
}

// CleanupSession stops and removes the session's container. Both steps are
// best effort.
func (i *Initializer) CleanupSession(ctx context.Context, sessionID int64) {
	slog.InfoContext(ctx, "cleaning up session container", "session_id", sessionID)
	err := i.locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if res := i.driver.StopContainer(ctx, sessionID); !res.OK() {
			slog.WarnContext(ctx, "failed to stop session container", "session_id", sessionID, "stderr", orDefault(res.Stderr, "no stderr"))
		}
		if res := i.driver.RemoveContainer(ctx, sessionID); !res.OK() {
			slog.WarnContext(ctx, "failed to remove session container", "session_id", sessionID, "stderr", orDefault(res.Stderr, "no stderr"))
		}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "session cleanup skipped", "session_id", sessionID, "error", err)
	}
}

// Shutdown stops the container of every known session.
func (i *Initializer) Shutdown(ctx context.Context) {
	slog.InfoContext(ctx, "shutting down, stopping all session containers")
	sessions, err := i.rec.sessions.ListSessions(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "list sessions for shutdown", "error", err)
		return
	}
	for idx := range sessions {
		if res := i.driver.StopContainer(ctx, sessions[idx].ID); !res.OK() {
			slog.WarnContext(ctx, "failed to stop session container", "session_id", sessions[idx].ID, "stderr", orDefault(res.Stderr, "no stderr"))
		}
	}
}

// RecoverInterrupted fails sessions left in CREATING by a previous process.
// It returns how many sessions were recovered.
func (i *Initializer) RecoverInterrupted(ctx context.Context) (int, error) {
	stale, err := i.rec.sessions.ListSessionsByStatus(ctx, session.StatusCreating)
	if err != nil {
		return 0, fmt.Errorf("list creating sessions: %w", err)
	}
	recovered := 0
	for idx := range stale {
		s := &stale[idx]
		err := i.locks.WithLock(ctx, s.ID, func(ctx context.Context) error {
			return i.rec.fail(ctx, s, msgInterrupted, msgInterrupted+".")
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to recover interrupted session", "session_id", s.ID, "error", err)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		slog.InfoContext(ctx, "recovered interrupted sessions", "count", recovered)
	}
	return recovered, nil
}

// orDefault returns s trimmed, or def when s is blank.
func orDefault(s, def string) string {
	if t := strings.TrimSpace(s); t != "" {
		return t
	}
	return def
}
