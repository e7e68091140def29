// Package sqlite implements a persistent SQLite session backend. It uses
// modernc.org/sqlite (pure Go, no CGO) in WAL mode and indexes message
// content with FTS5 for cross-session search.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/provider"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Compile-time interface guard.
var _ memory.Backend = (*Backend)(nil)

// Backend stores sessions in a SQLite database: one row per session and
// one row per retained turn.
type Backend struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Match is one full-text search hit.
type Match struct {
	SessionID string               `json:"session_id"`
	Index     int                  `json:"index"`
	Role      provider.MessageRole `json:"role"`
	Snippet   string               `json:"snippet"`
}

// Open opens (creating if needed) the database described by cfg and
// migrates its schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(nopHandler{})
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout),
		"PRAGMA foreign_keys=ON",
	}
	if cfg.walEnabled() {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite session backend opened", "path", cfg.Path, "wal", cfg.walEnabled())
	return &Backend{db: db, path: cfg.Path, logger: logger}, nil
}

// Path returns the database file path.
func (b *Backend) Path() string { return b.path }

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Ping verifies the database is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: sqlite ping: %w", memory.ErrStorage, err)
	}
	return nil
}

// Load implements memory.Backend. A row written by a newer format version
// resets h to empty, matching the file backend's handling of unreadable
// snapshots.
func (b *Backend) Load(ctx context.Context, id string, h *memory.History) error {
	var (
		rec     memory.Record
		updated string
	)
	err := b.db.QueryRowContext(ctx, `
		SELECT format_version, provider, model, summary, facts, updated_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&rec.FormatVersion, &rec.Provider, &rec.Model, &rec.Summary, &rec.Facts, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", memory.ErrSessionNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: sqlite load %s: %w", memory.ErrStorage, id, err)
	}
	if rec.FormatVersion > memory.FormatVersion {
		b.logger.Warn("session written by a newer version, starting empty",
			"session", id, "format_version", rec.FormatVersion)
		h.Restore(memory.Record{})
		return nil
	}
	rec.UpdatedAt = parseTime(updated)

	rows, err := b.db.QueryContext(ctx, `
		SELECT role, content FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC`, id,
	)
	if err != nil {
		return fmt.Errorf("%w: sqlite load messages %s: %w", memory.ErrStorage, id, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var m provider.LLMMessage
		var role string
		if err := rows.Scan(&role, &m.Content); err != nil {
			return fmt.Errorf("%w: sqlite scan message: %w", memory.ErrStorage, err)
		}
		m.Role = provider.MessageRole(role)
		rec.Messages = append(rec.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: sqlite load messages rows: %w", memory.ErrStorage, err)
	}

	h.Restore(rec)
	return nil
}

// Save implements memory.Backend. The session row and its turns are
// replaced in one transaction.
func (b *Backend) Save(ctx context.Context, id string, h *memory.History, meta memory.Metadata) error {
	rec := h.Snapshot(meta)

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: sqlite begin save tx: %w", memory.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, format_version, provider, model, summary, facts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			format_version = excluded.format_version,
			provider       = excluded.provider,
			model          = excluded.model,
			summary        = excluded.summary,
			facts          = excluded.facts,
			updated_at     = excluded.updated_at`,
		id, rec.FormatVersion, rec.Provider, rec.Model, rec.Summary, rec.Facts, formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: sqlite save session %s: %w", memory.ErrStorage, id, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("%w: sqlite clear messages %s: %w", memory.ErrStorage, id, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO messages (session_id, seq, role, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("%w: sqlite prepare insert: %w", memory.ErrStorage, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, m := range rec.Messages {
		if _, err := stmt.ExecContext(ctx, id, i, string(m.Role), m.Content); err != nil {
			return fmt.Errorf("%w: sqlite insert message %s/%d: %w", memory.ErrStorage, id, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: sqlite commit %s: %w", memory.ErrStorage, id, err)
	}
	return nil
}

// Delete implements memory.Backend.
func (b *Backend) Delete(ctx context.Context, id string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: sqlite begin delete tx: %w", memory.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("%w: sqlite delete messages %s: %w", memory.ErrStorage, id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: sqlite delete session %s: %w", memory.ErrStorage, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: sqlite commit delete %s: %w", memory.ErrStorage, id, err)
	}
	return nil
}

// List implements memory.Backend, newest first.
func (b *Backend) List(ctx context.Context) ([]memory.SessionInfo, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, summary, updated_at FROM sessions
		ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite list: %w", memory.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var out []memory.SessionInfo
	for rows.Next() {
		var info memory.SessionInfo
		var updated string
		if err := rows.Scan(&info.ID, &info.Summary, &updated); err != nil {
			return nil, fmt.Errorf("%w: sqlite scan session: %w", memory.ErrStorage, err)
		}
		info.UpdatedAt = parseTime(updated)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite list rows: %w", memory.ErrStorage, err)
	}
	return out, nil
}

// Search runs a full-text query over the stored turns of every session
// and returns at most limit hits, best first. Each whitespace-separated
// term is matched literally.
func (b *Backend) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	q := ftsQuery(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT m.session_id, m.seq, m.role,
		       snippet(messages_fts, 0, '[', ']', '...', 12)
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?`,
		q, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite search: %w", memory.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Match
	for rows.Next() {
		var m Match
		var role string
		if err := rows.Scan(&m.SessionID, &m.Index, &role, &m.Snippet); err != nil {
			return nil, fmt.Errorf("%w: sqlite scan match: %w", memory.ErrStorage, err)
		}
		m.Role = provider.MessageRole(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite search rows: %w", memory.ErrStorage, err)
	}
	return out, nil
}

// ftsQuery reduces every term to its letters and digits and quotes it, so
// user input never hits FTS5 query syntax.
func ftsQuery(query string) string {
	var terms []string
	for _, f := range strings.Fields(query) {
		term := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, f)
		if term != "" {
			terms = append(terms, `"`+term+`"`)
		}
	}
	return strings.Join(terms, " ")
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
