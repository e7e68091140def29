package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeStore struct {
	saveErr    error
	saves      atomic.Int32
	prunes     atomic.Int32
	lastIdle   atomic.Int64
	pruneCount int
}

func (s *fakeStore) SaveAll(context.Context) error {
	s.saves.Add(1)
	return s.saveErr
}

func (s *fakeStore) Prune(_ context.Context, maxIdle time.Duration) int {
	s.prunes.Add(1)
	s.lastIdle.Store(int64(maxIdle))
	return s.pruneCount
}

type fakeSweeper struct{ calls atomic.Int32 }

func (f *fakeSweeper) Sweep() int {
	f.calls.Add(1)
	return 0
}

func TestJobSchedules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		job  Job
		want string
	}{
		{"autosave default", &AutosaveJob{}, DefaultAutosaveSchedule},
		{"autosave explicit", &AutosaveJob{ScheduleExpr: "@hourly"}, "@hourly"},
		{"prune default", &PruneJob{}, DefaultPruneSchedule},
		{"prune disabled", &PruneJob{ScheduleExpr: Disabled}, Disabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.job.Schedule(); got != tt.want {
				t.Errorf("Schedule() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAutosaveJob_Run(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	j := &AutosaveJob{Store: store}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.saves.Load() != 1 {
		t.Errorf("saves = %d, want 1", store.saves.Load())
	}

	store.saveErr = errors.New("disk full")
	if err := j.Run(context.Background()); !errors.Is(err, store.saveErr) {
		t.Errorf("Run error = %v, want wrapped save error", err)
	}
}

func TestPruneJob_Run(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pruneCount: 2}
	sweeper := &fakeSweeper{}
	j := &PruneJob{Store: store, MaxIdle: 24 * time.Hour, Limiter: sweeper}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.prunes.Load() != 1 || time.Duration(store.lastIdle.Load()) != 24*time.Hour {
		t.Errorf("prunes = %d, maxIdle = %v", store.prunes.Load(), time.Duration(store.lastIdle.Load()))
	}
	if sweeper.calls.Load() != 1 {
		t.Errorf("sweeps = %d, want 1", sweeper.calls.Load())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Error("Run with cancelled context succeeded")
	}
	if store.prunes.Load() != 1 {
		t.Error("cancelled run still pruned")
	}
}
