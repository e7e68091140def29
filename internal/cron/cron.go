// Package cron runs dschat's periodic background jobs: flushing live
// sessions to storage and evicting idle ones.
package cron

import "context"

// Disabled is the schedule that turns a job off. Jobs returning it are
// accepted by RegisterJob and never scheduled.
const Disabled = "off"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier used for logging and dedup.
	Name() string

	// Schedule returns a 5-field cron expression (e.g. "*/5 * * * *") or
	// Disabled.
	Schedule() string

	// Run executes the job. Implementations should honour ctx.
	Run(ctx context.Context) error
}
