package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	for i := range 2 {
		if err := rl.Allow("10.0.0.1"); err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
	}
	if err := rl.Allow("10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third Allow = %v, want ErrRateLimited", err)
	}
	if err := rl.Allow("10.0.0.2"); err != nil {
		t.Errorf("other key limited: %v", err)
	}

	now = now.Add(61 * time.Second)
	if err := rl.Allow("10.0.0.1"); err != nil {
		t.Errorf("Allow after window: %v", err)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, time.Minute)
	for range 100 {
		if err := rl.Allow("k"); err != nil {
			t.Fatalf("disabled limiter returned %v", err)
		}
	}

	var nilLimiter *RateLimiter
	if err := nilLimiter.Allow("k"); err != nil {
		t.Errorf("nil limiter returned %v", err)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5, time.Minute)
	rl.now = func() time.Time { return now }

	_ = rl.Allow("stale")
	now = now.Add(30 * time.Second)
	_ = rl.Allow("fresh")
	now = now.Add(45 * time.Second)

	if got := rl.Sweep(); got != 1 {
		t.Errorf("Sweep dropped %d keys, want 1", got)
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Error("fresh key swept")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1000, time.Minute)
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rl.Allow("k")
		}()
	}
	wg.Wait()
	if n := len(rl.buckets["k"]); n != 100 {
		t.Errorf("recorded %d events, want 100", n)
	}
}
