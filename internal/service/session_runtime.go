package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/Weaver/internal/adapter/docker"
	cfotel "github.com/Strob0t/Weaver/internal/adapter/otel"
	"github.com/Strob0t/Weaver/internal/domain"
	"github.com/Strob0t/Weaver/internal/domain/session"
	"github.com/Strob0t/Weaver/internal/logger"
	"github.com/Strob0t/Weaver/internal/port/database"
	"github.com/Strob0t/Weaver/internal/secrets"
)

// RuntimeService runs post-ready operations against a session's container.
// Every operation takes the session lock, then consults the rate limiter,
// then requires the persisted status to be READY.
type RuntimeService struct {
	rec       *recorder
	providers database.ProviderStore
	cipher    TokenCipher
	driver    ContainerDriver
	locks     *LockManager
	limiter   *RateLimiter
	views     *viewBuilder
	metrics   *cfotel.Metrics
}

// NewRuntimeService creates a RuntimeService.
func NewRuntimeService(
	sessions database.SessionStore,
	logs database.SessionLogStore,
	providers database.ProviderStore,
	cipher TokenCipher,
	driver ContainerDriver,
	locks *LockManager,
	limiter *RateLimiter,
	events *EventPublisher,
	vscodeBaseURL string,
) *RuntimeService {
	return &RuntimeService{
		rec:       &recorder{sessions: sessions, logs: logs, events: events, now: time.Now},
		providers: providers,
		cipher:    cipher,
		driver:    driver,
		locks:     locks,
		limiter:   limiter,
		views:     &viewBuilder{editorEnabled: driver.EditorEnabled(), baseURL: vscodeBaseURL},
	}
}

// SetMetrics enables runtime metrics.
func (r *RuntimeService) SetMetrics(m *cfotel.Metrics) {
	r.metrics = m
}

// withReadySession runs fn under the session lock once the rate limit and
// READY checks pass.
func (r *RuntimeService) withReadySession(ctx context.Context, sessionID int64, fn func(ctx context.Context, s *session.Session) error) error {
	ctx = logger.WithSessionID(ctx, sessionID)
	return r.locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if err := r.limiter.Check(sessionID); err != nil {
			r.metrics.RateLimitRejected(ctx)
			return err
		}
		s, err := r.rec.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.Status != session.StatusReady {
			r.rec.appendLog(ctx, sessionID, "Session is not ready for runtime operations.")
			return fmt.Errorf("%w: status is %s", domain.ErrNotReady, s.Status)
		}
		return fn(ctx, s)
	})
}

// RunGitCommand runs STATUS, CHECKOUT or PULL in the session workspace.
// A nonzero git exit is reported in the result, not as an error.
func (r *RuntimeService) RunGitCommand(ctx context.Context, sessionID int64, req session.GitRequest) (*session.GitResult, error) {
	req.Branch = strings.TrimSpace(req.Branch)
	switch req.Command {
	case session.GitStatus, session.GitPull:
	case session.GitCheckout:
		if err := session.ValidateBranch(req.Branch); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported git command %q", domain.ErrValidation, req.Command)
	}

	var out *session.GitResult
	err := r.withReadySession(ctx, sessionID, func(ctx context.Context, s *session.Session) error {
		ctx, span := cfotel.StartGitSpan(ctx, sessionID, string(req.Command))
		defer span.End()

		containerName := r.driver.ContainerName(sessionID)
		slog.InfoContext(ctx, "running git command", "session_id", sessionID, "command", req.Command)

		var (
			res   docker.Result
			token string
		)
		switch req.Command {
		case session.GitStatus:
			res = r.driver.GitStatus(ctx, containerName, s.RepoName)
		case session.GitCheckout:
			res = r.driver.GitCheckout(ctx, containerName, s.RepoName, req.Branch)
		case session.GitPull:
			p, err := r.providers.GetProvider(ctx, s.ProviderID)
			if err != nil {
				return fmt.Errorf("load provider %d: %w", s.ProviderID, err)
			}
			if token, err = r.cipher.Decrypt(p.EncryptedToken); err != nil {
				return fmt.Errorf("decrypt provider token: %w", err)
			}
			res = r.driver.GitPull(secrets.WithSecret(ctx, token), containerName, s.RepoName, token, p.Type.AuthUser())
		}

		ok := res.OK()
		stdout := secrets.RedactOutput(strings.TrimSpace(res.Stdout), token)
		stderr := secrets.RedactOutput(strings.TrimSpace(res.Stderr), token)
		message := "Command completed"
		if !ok {
			message = orDefault(stderr, "Command failed")
			slog.WarnContext(ctx, "git command failed", "session_id", sessionID, "command", req.Command)
		}

		line := "Git " + string(req.Command)
		if req.Branch != "" {
			line += " " + req.Branch
		}
		if ok {
			line += ": ok."
		} else {
			line += ": failed."
		}
		r.rec.appendLog(ctx, sessionID, line)
		r.metrics.GitCommand(ctx, string(req.Command), ok)

		out = &session.GitResult{OK: ok, Command: req.Command, Stdout: stdout, Stderr: stderr, Message: message}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExportContext returns a snapshot of the workspace: current branch,
// branches, short status and a depth-2 directory listing without .git. Any
// failing git command aborts the export with domain.ErrCommandFailed.
func (r *RuntimeService) ExportContext(ctx context.Context, sessionID int64) (*session.Context, error) {
	var out *session.Context
	err := r.withReadySession(ctx, sessionID, func(ctx context.Context, s *session.Session) error {
		containerName := r.driver.ContainerName(sessionID)
		slog.InfoContext(ctx, "exporting session context", "session_id", sessionID)

		steps := []struct {
			run  func(context.Context, string, string) docker.Result
			fail string
		}{
			{r.driver.CurrentBranch, "Failed to read current branch"},
			{r.driver.ListBranches, "Failed to list branches"},
			{r.driver.GitStatus, "Failed to read git status"},
			{r.driver.ListDirectories, "Failed to list directories"},
		}
		results := make([]docker.Result, len(steps))
		for idx, step := range steps {
			results[idx] = step.run(ctx, containerName, s.RepoName)
		}
		for idx, step := range steps {
			if !results[idx].OK() {
				return fmt.Errorf("%w: %s", domain.ErrCommandFailed, orDefault(r.redact(ctx, s, results[idx].Stderr), step.fail))
			}
		}

		out = &session.Context{
			SessionID:             s.ID,
			RepoName:              s.RepoName,
			RepoPathWithNamespace: s.RepoPathWithNamespace,
			WorkspacePath:         s.WorkspacePath,
			Status:                s.Status,
			DefaultBranch:         s.DefaultBranch,
			CurrentBranch:         strings.TrimSpace(results[0].Stdout),
			Branches:              parseBranches(results[1].Stdout),
			GitStatus:             nonBlankLines(results[2].Stdout),
			DirectoryTree:         parseDirectories(results[3].Stdout),
			GeneratedAt:           r.rec.now().UTC(),
		}
		r.rec.appendLog(ctx, sessionID, "Session context exported.")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// redact masks the session's provider token and any URL credentials in
// stderr. The token lookup is best effort; userinfo is masked regardless.
func (r *RuntimeService) redact(ctx context.Context, s *session.Session, stderr string) string {
	var token string
	if p, err := r.providers.GetProvider(ctx, s.ProviderID); err == nil {
		if token, err = r.cipher.Decrypt(p.EncryptedToken); err != nil {
			token = ""
		}
	}
	return secrets.RedactOutput(strings.TrimSpace(stderr), token)
}

func nonBlankLines(out string) []string {
	lines := []string{}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, "\r"))
		}
	}
	return lines
}

// parseBranches strips the "*" current-branch marker from `git branch` output.
func parseBranches(out string) []string {
	branches := []string{}
	for _, line := range strings.Split(out, "\n") {
		if b := strings.TrimSpace(strings.ReplaceAll(line, "*", "")); b != "" {
			branches = append(branches, b)
		}
	}
	return branches
}

// parseDirectories drops "." and anything under ./.git from `find` output.
func parseDirectories(out string) []string {
	dirs := []string{}
	for _, line := range strings.Split(out, "\n") {
		d := strings.TrimSpace(line)
		if d == "" || d == "." || strings.HasPrefix(d, "./.git") {
			continue
		}
		dirs = append(dirs, d)
	}
	return dirs
}

// StartContainer starts a stopped session container and its editor. A
// running container is returned as is.
func (r *RuntimeService) StartContainer(ctx context.Context, sessionID int64) (*session.View, error) {
	var out *session.View
	err := r.withReadySession(ctx, sessionID, func(ctx context.Context, s *session.Session) error {
		state, exists := r.driver.ResolveContainerState(ctx, sessionID)
		if exists && state == session.ContainerRunning {
			out = r.views.build(s, state, true)
			return nil
		}
		if !exists {
			r.rec.appendLog(ctx, sessionID, "Session container not found; cannot start.")
			return fmt.Errorf("%w: Session container not found", domain.ErrConflict)
		}

		slog.InfoContext(ctx, "starting session container", "session_id", sessionID, "state", state)
		if res := r.driver.StartContainer(ctx, sessionID); !res.OK() {
			msg := orDefault(r.redact(ctx, s, res.Stderr), "Failed to start container")
			r.rec.appendLog(ctx, sessionID, "Container start failed: "+msg)
			return fmt.Errorf("%w: %s", domain.ErrCommandFailed, msg)
		}
		containerName := r.driver.ContainerName(sessionID)
		if res := r.driver.StartCodeServer(ctx, containerName, s.RepoName); !res.OK() {
			msg := orDefault(r.redact(ctx, s, res.Stderr), "Failed to start code-server")
			r.rec.appendLog(ctx, sessionID, "VSCode Web startup failed: "+msg)
			return fmt.Errorf("%w: %s", domain.ErrCommandFailed, msg)
		}
		if port, ok := r.driver.ResolveCodeServerPort(ctx, containerName); ok && port != s.VSCodePort {
			slog.InfoContext(ctx, "editor host port changed", "session_id", sessionID, "old_port", s.VSCodePort, "new_port", port)
			s.VSCodePort = port
			s.UpdatedAt = r.rec.now()
			if err := r.rec.save(ctx, s); err != nil {
				return fmt.Errorf("persist editor port: %w", err)
			}
		}
		r.rec.appendLog(ctx, sessionID, "Session container started.")
		out = r.views.build(s, session.ContainerRunning, true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
