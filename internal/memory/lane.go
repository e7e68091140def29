package memory

import "sync"

// LaneLock serializes turns per session: turns of one session run one at
// a time while different sessions proceed in parallel.
//
// A global mutex protects the lane map and is held only to look up or
// create the per-session mutex.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

// lane stores per-session synchronization metadata.
// refs counts goroutines holding or waiting on the lane.
type lane struct {
	mu   sync.Mutex
	refs int
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{lanes: make(map[string]*lane)}
}

// Acquire locks the lane for id and returns the function that releases it.
func (l *LaneLock) Acquire(id string) (release func()) {
	l.mu.Lock()
	ln, ok := l.lanes[id]
	if !ok {
		ln = &lane{}
		l.lanes[id] = ln
	}
	ln.refs++
	l.mu.Unlock()

	// Lock outside the global mutex so other sessions are not blocked.
	ln.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() { l.release(id, ln) })
	}
}

// TryAcquire is Acquire without blocking. ok is false when a turn for id
// is already running.
func (l *LaneLock) TryAcquire(id string) (release func(), ok bool) {
	l.mu.Lock()
	ln, exists := l.lanes[id]
	if !exists {
		ln = &lane{}
		l.lanes[id] = ln
	}
	if !ln.mu.TryLock() {
		if !exists {
			delete(l.lanes, id)
		}
		l.mu.Unlock()
		return nil, false
	}
	ln.refs++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.release(id, ln) })
	}, true
}

func (l *LaneLock) release(id string, ln *lane) {
	l.mu.Lock()
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, id)
	}
	l.mu.Unlock()

	ln.mu.Unlock()
}

// Busy reports whether a turn currently holds or waits on id.
func (l *LaneLock) Busy(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln, ok := l.lanes[id]
	return ok && ln.refs > 0
}

// Len returns the number of live lanes.
func (l *LaneLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
