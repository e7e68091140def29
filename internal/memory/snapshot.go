package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/dschat/internal/provider"
)

// FormatVersion is the version written into every snapshot.
const FormatVersion = 1

// ErrStorage wraps filesystem and database failures while persisting or
// loading sessions. Callers treat it as non-fatal.
var ErrStorage = errors.New("memory: storage error")

// Metadata identifies the upstream a snapshot was produced against.
type Metadata struct {
	Provider string
	Model    string
}

// Record is the durable, versioned form of a History.
type Record struct {
	FormatVersion int                   `json:"format_version"`
	Provider      string                `json:"provider"`
	Model         string                `json:"model"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Summary       string                `json:"summary"`
	Facts         string                `json:"facts"`
	Messages      []provider.LLMMessage `json:"messages"`
}

// Save writes the history to path atomically: the record goes to a temp
// file in the same directory which is then renamed over path, so a crash
// never leaves a truncated snapshot behind.
func (h *History) Save(path string, meta Metadata) error {
	data, err := json.MarshalIndent(h.Snapshot(meta), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrStorage, path, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Load replaces the history with the snapshot at path. A missing file is
// a no-op. A file that cannot be parsed resets the history to empty and
// is not reported: availability wins over durability here. Read failures
// other than "not exist" are returned wrapped in ErrStorage.
func (h *History) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrStorage, path, err)
	}

	rec, err := DecodeRecord(data)
	if err != nil {
		h.Restore(Record{})
		return nil
	}
	h.Restore(rec)
	return nil
}

// DecodeRecord parses a snapshot. Records written by a newer format
// version are rejected.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("memory: decode snapshot: %w", err)
	}
	if rec.FormatVersion > FormatVersion {
		return Record{}, fmt.Errorf("memory: unsupported snapshot version %d", rec.FormatVersion)
	}
	return rec, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
