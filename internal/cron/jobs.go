package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default schedules used when a job has no explicit expression.
const (
	DefaultAutosaveSchedule = "*/1 * * * *"
	DefaultPruneSchedule    = "*/5 * * * *"
)

// SessionSaver flushes every live session. *memory.Store satisfies it.
type SessionSaver interface {
	SaveAll(ctx context.Context) error
}

// SessionPruner saves and evicts idle sessions. *memory.Store satisfies it.
type SessionPruner interface {
	Prune(ctx context.Context, maxIdle time.Duration) int
}

// Sweeper drops stale per-client state. *security.RateLimiter satisfies it.
type Sweeper interface {
	Sweep() int
}

// AutosaveJob persists all in-memory sessions.
type AutosaveJob struct {
	Store        SessionSaver
	Logger       *slog.Logger
	ScheduleExpr string
}

var _ Job = (*AutosaveJob)(nil)

// Name implements Job.
func (j *AutosaveJob) Name() string { return "autosave" }

// Schedule implements Job.
func (j *AutosaveJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultAutosaveSchedule
}

// Run implements Job.
func (j *AutosaveJob) Run(ctx context.Context) error {
	if err := j.Store.SaveAll(ctx); err != nil {
		return fmt.Errorf("cron: autosave: %w", err)
	}
	return nil
}

// PruneJob evicts sessions idle longer than MaxIdle after saving them,
// and sweeps the gateway rate limiter when one is set.
type PruneJob struct {
	Store        SessionPruner
	MaxIdle      time.Duration
	Limiter      Sweeper
	Logger       *slog.Logger
	ScheduleExpr string
}

var _ Job = (*PruneJob)(nil)

// Name implements Job.
func (j *PruneJob) Name() string { return "session-prune" }

// Schedule implements Job.
func (j *PruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultPruneSchedule
}

// Run implements Job.
func (j *PruneJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: prune cancelled: %w", ctx.Err())
	}
	pruned := j.Store.Prune(ctx, j.MaxIdle)
	if pruned > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned idle sessions", "count", pruned, "max_idle", j.MaxIdle)
	}
	if j.Limiter != nil {
		j.Limiter.Sweep()
	}
	return nil
}
