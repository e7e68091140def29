package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// snapshotExt is the file extension of session snapshots.
const snapshotExt = ".json"

// validID restricts session ids that reach the filesystem.
var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ErrInvalidSessionID is returned for ids that cannot name a snapshot file.
var ErrInvalidSessionID = errors.New("memory: invalid session id")

// FileBackend stores one versioned JSON snapshot per session in a
// directory. Writes are atomic per file; concurrent writers of the same
// id from several processes are not coordinated beyond that.
type FileBackend struct {
	dir string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a backend rooted at dir. The directory is created
// lazily on first save.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

// Dir returns the snapshot directory.
func (b *FileBackend) Dir() string { return b.dir }

// ValidateSessionID rejects ids that could not name a snapshot file.
func ValidateSessionID(id string) error {
	if !validID.MatchString(id) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

func (b *FileBackend) path(id string) (string, error) {
	if err := ValidateSessionID(id); err != nil {
		return "", err
	}
	return filepath.Join(b.dir, id+snapshotExt), nil
}

// Load implements Backend.
func (b *FileBackend) Load(_ context.Context, id string, h *History) error {
	p, err := b.path(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return h.Load(p)
}

// Save implements Backend.
func (b *FileBackend) Save(_ context.Context, id string, h *History, meta Metadata) error {
	p, err := b.path(id)
	if err != nil {
		return err
	}
	return h.Save(p, meta)
}

// Delete implements Backend.
func (b *FileBackend) Delete(_ context.Context, id string) error {
	p, err := b.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// List implements Backend. Unreadable or corrupt snapshots are skipped.
func (b *FileBackend) List(_ context.Context) ([]SessionInfo, error) {
	entries, err := os.ReadDir(b.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	var out []SessionInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, snapshotExt) || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, name))
		if err != nil {
			continue
		}
		rec, err := DecodeRecord(data)
		if err != nil {
			continue
		}
		out = append(out, SessionInfo{
			ID:        strings.TrimSuffix(name, snapshotExt),
			Summary:   rec.Summary,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return out, nil
}
