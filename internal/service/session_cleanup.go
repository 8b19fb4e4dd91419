package service

import (
	"context"
	"log/slog"
	"time"

	cfotel "github.com/Strob0t/Weaver/internal/adapter/otel"
	"github.com/Strob0t/Weaver/internal/config"
	"github.com/Strob0t/Weaver/internal/port/database"
)

// CleanupScheduler periodically removes orphan containers and expired
// session logs.
type CleanupScheduler struct {
	cfg           config.Cleanup
	retentionDays int
	sessions      database.SessionStore
	logs          database.SessionLogStore
	driver        ContainerDriver
	limiter       *RateLimiter
	metrics       *cfotel.Metrics
	now           func() time.Time
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	OrphansRemoved int   `json:"orphans_removed"`
	OrphansFailed  int   `json:"orphans_failed"`
	LogsDeleted    int64 `json:"logs_deleted"`
}

// NewCleanupScheduler creates a CleanupScheduler.
func NewCleanupScheduler(
	cfg config.Cleanup,
	logCfg config.SessionLogs,
	sessions database.SessionStore,
	logs database.SessionLogStore,
	driver ContainerDriver,
	limiter *RateLimiter,
) *CleanupScheduler {
	return &CleanupScheduler{
		cfg:           cfg,
		retentionDays: logCfg.RetentionDays,
		sessions:      sessions,
		logs:          logs,
		driver:        driver,
		limiter:       limiter,
		now:           time.Now,
	}
}

// SetMetrics enables cleanup metrics.
func (c *CleanupScheduler) SetMetrics(m *cfotel.Metrics) {
	c.metrics = m
}

// Run sweeps every interval until ctx is done. The delay is measured from
// the end of one sweep to the start of the next.
func (c *CleanupScheduler) Run(ctx context.Context) error {
	if !c.cfg.Enabled || c.cfg.Interval <= 0 {
		slog.Info("session cleanup disabled")
		return nil
	}
	slog.Info("session cleanup started", "interval", c.cfg.Interval)
	timer := time.NewTimer(c.cfg.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			c.Sweep(ctx)
			timer.Reset(c.cfg.Interval)
		}
	}
}

// Sweep runs both sub-sweeps. A failure in one is logged and does not stop
// the other.
func (c *CleanupScheduler) Sweep(ctx context.Context) SweepReport {
	ctx, span := cfotel.StartSweepSpan(ctx)
	defer span.End()

	var report SweepReport
	report.OrphansRemoved, report.OrphansFailed = c.sweepOrphans(ctx)
	report.LogsDeleted = c.sweepLogs(ctx)
	if c.limiter != nil {
		c.limiter.Prune()
	}
	c.metrics.CleanupSwept(ctx, int64(report.OrphansRemoved), report.LogsDeleted)
	slog.InfoContext(ctx, "session cleanup finished",
		"orphans_removed", report.OrphansRemoved,
		"orphans_failed", report.OrphansFailed,
		"logs_deleted", report.LogsDeleted,
	)
	return report
}

func (c *CleanupScheduler) knownSessions(ctx context.Context) (map[int64]bool, error) {
	sessions, err := c.sessions.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[int64]bool, len(sessions))
	for idx := range sessions {
		known[sessions[idx].ID] = true
	}
	return known, nil
}

// sweepOrphans stops and removes every labelled container whose session no
// longer exists.
func (c *CleanupScheduler) sweepOrphans(ctx context.Context) (removed, failed int) {
	known, err := c.knownSessions(ctx)
	if err != nil {
		slog.WarnContext(ctx, "orphan sweep skipped: list sessions failed", "error", err)
		return 0, 0
	}
	ids, res := c.driver.ListSessionContainers(ctx)
	if !res.OK() {
		slog.WarnContext(ctx, "failed to list session containers", "stderr", orDefault(res.Stderr, "no stderr"))
		return 0, 0
	}
	for _, id := range ids {
		if known[id] {
			continue
		}
		if stop := c.driver.StopContainer(ctx, id); !stop.OK() {
			slog.WarnContext(ctx, "failed to stop orphan container", "session_id", id, "stderr", orDefault(stop.Stderr, "no stderr"))
		}
		if rm := c.driver.RemoveContainer(ctx, id); !rm.OK() {
			slog.WarnContext(ctx, "failed to remove orphan container", "session_id", id, "stderr", orDefault(rm.Stderr, "no stderr"))
			failed++
			continue
		}
		slog.InfoContext(ctx, "removed orphan container", "session_id", id)
		removed++
	}
	return removed, failed
}

// sweepLogs deletes entries past retention, then the logs of sessions that
// no longer exist.
func (c *CleanupScheduler) sweepLogs(ctx context.Context) int64 {
	var deleted int64
	if c.retentionDays > 0 {
		cutoff := c.now().Add(-time.Duration(c.retentionDays) * 24 * time.Hour)
		n, err := c.logs.DeleteLogsBefore(ctx, cutoff)
		if err != nil {
			slog.WarnContext(ctx, "session log retention failed", "error", err)
		}
		deleted += n
	}

	ids, err := c.logs.LogSessionIDs(ctx)
	if err != nil {
		slog.WarnContext(ctx, "list session log owners failed", "error", err)
		return deleted
	}
	for _, id := range ids {
		exists, err := c.sessions.SessionExists(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "session lookup failed during log sweep", "session_id", id, "error", err)
			continue
		}
		if exists {
			continue
		}
		if err := c.logs.DeleteLogs(ctx, id); err != nil {
			slog.WarnContext(ctx, "delete orphan session logs failed", "session_id", id, "error", err)
			continue
		}
		slog.InfoContext(ctx, "deleted logs of removed session", "session_id", id)
		deleted++
	}
	return deleted
}
