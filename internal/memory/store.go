package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session registry errors.
var (
	ErrSessionNotFound = errors.New("memory: session not found")
	ErrSessionExists   = errors.New("memory: session already exists")
)

// DefaultSessionID names the session used when a caller supplies none.
const DefaultSessionID = "default"

// SessionInfo is the listing entry of a session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Backend persists session snapshots. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Load fills h from the stored snapshot of id. It returns
	// ErrSessionNotFound when nothing is stored.
	Load(ctx context.Context, id string, h *History) error

	// Save stores the current snapshot of h under id.
	Save(ctx context.Context, id string, h *History, meta Metadata) error

	// Delete removes the snapshot of id. Missing snapshots are not an error.
	Delete(ctx context.Context, id string) error

	// List returns the stored sessions.
	List(ctx context.Context) ([]SessionInfo, error)
}

// Session binds a History to its identity plus the ephemeral accounting
// the turn executor keeps between turns.
type Session struct {
	ID      string
	History *History

	mu       sync.Mutex
	cost     float64
	lastUsed time.Time
}

// AddCost adds usd to the cumulative session cost and returns the new total.
func (s *Session) AddCost(usd float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cost += usd
	return s.cost
}

// Cost returns the cumulative USD cost of the session since it was loaded.
func (s *Session) Cost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cost
}

// ResetCost zeroes the cumulative cost.
func (s *Session) ResetCost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cost = 0
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Backend persists sessions. Nil keeps sessions in memory only.
	Backend Backend

	// Capacity is the History capacity of new sessions.
	Capacity int

	// Metadata is stamped on every saved snapshot.
	Metadata Metadata

	Logger *slog.Logger

	// Now overrides the clock used for idle tracking.
	Now func() time.Time
}

// Store is the process-wide session registry. It is created at startup,
// injected into every surface (console, gateway, MCP, cron) and closed at
// shutdown, which flushes all sessions to the backend.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	backend  Backend
	capacity int
	meta     Metadata
	logger   *slog.Logger
	lanes    *LaneLock

	// now is injectable for deterministic testing.
	now func() time.Time
}

// NewStore creates an empty registry.
func NewStore(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions: make(map[string]*Session),
		backend:  opts.Backend,
		capacity: opts.Capacity,
		meta:     opts.Metadata,
		logger:   logger,
		lanes:    NewLaneLock(),
		now:      now,
	}
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Lanes returns the per-session turn lock shared by every caller.
func (s *Store) Lanes() *LaneLock { return s.lanes }

// Metadata returns the snapshot metadata stamped on saves.
func (s *Store) Metadata() Metadata { return s.meta }

// Get returns the session id, creating it on first use. A persisted
// snapshot is loaded when present; storage failures are logged and the
// session starts empty.
func (s *Store) Get(ctx context.Context, id string) *Session {
	if id == "" {
		id = DefaultSessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.touch(s.now())
		return sess
	}

	sess := s.newSession(id, NewHistory(s.capacity))
	if s.backend != nil {
		err := s.backend.Load(ctx, id, sess.History)
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			s.logger.Warn("session load failed, starting empty", "session", id, "error", err)
			sess.History.Clear()
		}
	}
	s.sessions[id] = sess
	return sess
}

// Lookup returns a live session without creating or loading it.
func (s *Store) Lookup(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Peek returns session id without registering it: the live session when
// there is one, otherwise a detached copy loaded from the backend. It
// returns ErrSessionNotFound when id is neither live nor persisted.
func (s *Store) Peek(ctx context.Context, id string) (*Session, error) {
	if sess, ok := s.Lookup(id); ok {
		return sess, nil
	}
	if s.backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	h := NewHistory(s.capacity)
	if err := s.backend.Load(ctx, id, h); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("%w: load %s: %w", ErrStorage, id, err)
	}
	return &Session{ID: id, History: h, lastUsed: s.now()}, nil
}

// Create registers a new empty session. An empty id gets a generated one.
func (s *Store) Create(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = NewSessionID()
	}
	if s.exists(ctx, id) {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	sess := s.newSession(id, NewHistory(s.capacity))
	s.sessions[id] = sess
	return sess, nil
}

// exists reports whether id is live or persisted.
func (s *Store) exists(ctx context.Context, id string) bool {
	if _, ok := s.Lookup(id); ok {
		return true
	}
	if s.backend == nil {
		return false
	}
	err := s.backend.Load(ctx, id, NewHistory(s.capacity))
	return err == nil
}

// Delete removes a session from memory and from the backend.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !s.exists(ctx, id) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStorage, id, err)
	}
	return nil
}

// Branch creates newID from the first upTo+1 turns of parentID together
// with its summary and facts. An empty newID gets a generated one. The
// branch shares no state with its parent.
func (s *Store) Branch(ctx context.Context, parentID string, upTo int, newID string) (*Session, error) {
	parent, ok := s.Lookup(parentID)
	if !ok {
		if !s.exists(ctx, parentID) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, parentID)
		}
		parent = s.Get(ctx, parentID)
	}
	if newID == "" {
		newID = NewSessionID()
	}
	if s.exists(ctx, newID) {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, newID)
	}

	h, err := parent.History.Clone(upTo)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.sessions[newID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, newID)
	}
	sess := s.newSession(newID, h)
	s.sessions[newID] = sess
	s.mu.Unlock()

	s.saveLogged(ctx, sess)
	return sess, nil
}

// List returns live and persisted sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]SessionInfo, error) {
	byID := make(map[string]SessionInfo)
	if s.backend != nil {
		stored, err := s.backend.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list: %w", ErrStorage, err)
		}
		for _, info := range stored {
			byID[info.ID] = info
		}
	}

	s.mu.Lock()
	for id, sess := range s.sessions {
		byID[id] = SessionInfo{
			ID:        id,
			Summary:   sess.History.Summary(),
			UpdatedAt: sess.History.UpdatedAt(),
		}
	}
	s.mu.Unlock()

	out := make([]SessionInfo, 0, len(byID))
	for _, info := range byID {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Save persists one live session. It is a no-op without a backend.
func (s *Store) Save(ctx context.Context, id string) error {
	sess, ok := s.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.save(ctx, sess)
}

func (s *Store) save(ctx context.Context, sess *Session) error {
	if s.backend == nil {
		return nil
	}
	if err := s.backend.Save(ctx, sess.ID, sess.History, s.meta); err != nil {
		if errors.Is(err, ErrStorage) {
			return err
		}
		return fmt.Errorf("%w: save %s: %w", ErrStorage, sess.ID, err)
	}
	return nil
}

func (s *Store) saveLogged(ctx context.Context, sess *Session) {
	if err := s.save(ctx, sess); err != nil {
		s.logger.Warn("session save failed", "session", sess.ID, "error", err)
	}
}

// SaveAll persists every live session and joins the failures.
func (s *Store) SaveAll(ctx context.Context) error {
	var errs []error
	for _, sess := range s.snapshot() {
		if err := s.save(ctx, sess); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Prune saves and evicts live sessions idle for longer than maxIdle that
// have no turn in flight. It returns the number of evicted sessions.
func (s *Store) Prune(ctx context.Context, maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	pruned := 0
	for _, sess := range s.snapshot() {
		if !sess.idleSince().Before(cutoff) || s.lanes.Busy(sess.ID) {
			continue
		}
		if err := s.save(ctx, sess); err != nil {
			s.logger.Warn("prune: session save failed, keeping it live", "session", sess.ID, "error", err)
			continue
		}
		// A turn may have been admitted while the snapshot was written.
		s.mu.Lock()
		cur, ok := s.sessions[sess.ID]
		if ok && cur == sess && sess.idleSince().Before(cutoff) && !s.lanes.Busy(sess.ID) {
			delete(s.sessions, sess.ID)
			pruned++
		}
		s.mu.Unlock()
	}
	return pruned
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close flushes every live session to the backend.
func (s *Store) Close(ctx context.Context) error {
	return s.SaveAll(ctx)
}

func (s *Store) snapshot() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// newSession must be called with s.mu held.
func (s *Store) newSession(id string, h *History) *Session {
	return &Session{ID: id, History: h, lastUsed: s.now()}
}

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
