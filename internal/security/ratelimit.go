package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client exceeds its turn budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiter is a per-key sliding-window limiter. The gateway keys it by
// client address so one caller cannot monopolise the upstream.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	buckets map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter allows limit events per window per key. A limit of zero
// or less disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		window:  window,
		limit:   limit,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records an event for key, or returns ErrRateLimited when the key
// already used its budget inside the window.
func (rl *RateLimiter) Allow(key string) error {
	if rl == nil || rl.limit <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	events := evict(rl.buckets[key], now.Add(-rl.window))
	if len(events) >= rl.limit {
		rl.buckets[key] = events
		return ErrRateLimited
	}
	rl.buckets[key] = append(events, now)
	return nil
}

// Sweep drops keys with no events inside the window. The cron scheduler
// calls it with the prune job.
func (rl *RateLimiter) Sweep() int {
	if rl == nil {
		return 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	dropped := 0
	for key, events := range rl.buckets {
		if len(evict(events, cutoff)) == 0 {
			delete(rl.buckets, key)
			dropped++
		}
	}
	return dropped
}

// evict removes events older than cutoff. Events are chronological.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
