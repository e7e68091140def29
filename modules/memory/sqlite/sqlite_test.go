package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/modules/memory/sqlite"
)

func openTestBackend(t *testing.T) *sqlite.Backend {
	t.Helper()
	b, err := sqlite.Open(context.Background(), sqlite.Config{
		Path: filepath.Join(t.TempDir(), "nested", "sessions.db"),
	}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := openTestBackend(t)

	h := memory.NewHistory(10)
	h.AddUser("what is WAL?")
	h.AddAssistant("write-ahead logging")
	h.SetSummary("SQLite journaling")
	h.SetFacts("- user uses sqlite")

	meta := memory.Metadata{Provider: "deepseek", Model: "deepseek-chat"}
	if err := b.Save(ctx, "s1", h, meta); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := memory.NewHistory(10)
	if err := b.Load(ctx, "s1", got); err != nil {
		t.Fatalf("Load: %v", err)
	}
	msgs := got.Messages()
	if len(msgs) != 2 || msgs[0].Content != "what is WAL?" || msgs[1].Content != "write-ahead logging" {
		t.Errorf("messages = %+v", msgs)
	}
	if got.Summary() != "SQLite journaling" || got.Facts() != "- user uses sqlite" {
		t.Errorf("summary=%q facts=%q", got.Summary(), got.Facts())
	}
	if !got.UpdatedAt().Equal(h.UpdatedAt()) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt(), h.UpdatedAt())
	}

	// Saving again replaces the turns instead of appending.
	h.ApplyCompression("shorter", 1)
	if err := b.Save(ctx, "s1", h, meta); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	again := memory.NewHistory(10)
	if err := b.Load(ctx, "s1", again); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if again.Len() != 1 || again.Summary() != "shorter" {
		t.Errorf("after resave len=%d summary=%q", again.Len(), again.Summary())
	}
}

func TestBackend_LoadMissing(t *testing.T) {
	t.Parallel()

	b := openTestBackend(t)
	err := b.Load(context.Background(), "nope", memory.NewHistory(1))
	if !errors.Is(err, memory.ErrSessionNotFound) {
		t.Errorf("Load error = %v, want ErrSessionNotFound", err)
	}
}

func TestBackend_DeleteAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := openTestBackend(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		h := memory.NewHistory(4)
		h.Restore(memory.Record{UpdatedAt: base.Add(time.Duration(i) * time.Hour), Summary: id})
		if err := b.Save(ctx, id, h, memory.Metadata{}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	list, err := b.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].ID != "new" || list[2].ID != "old" {
		t.Fatalf("List = %+v, want newest first", list)
	}
	if list[0].Summary != "new" || !list[0].UpdatedAt.Equal(base.Add(2*time.Hour)) {
		t.Errorf("list[0] = %+v", list[0])
	}

	if err := b.Delete(ctx, "mid"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := b.Delete(ctx, "mid"); err != nil {
		t.Errorf("deleting a missing session must not fail: %v", err)
	}
	list, _ = b.List(ctx)
	if len(list) != 2 {
		t.Errorf("List after delete = %+v", list)
	}
}

func TestBackend_Search(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := openTestBackend(t)

	a := memory.NewHistory(10)
	a.AddUser("tell me about goroutines")
	a.AddAssistant("goroutines are lightweight threads")
	if err := b.Save(ctx, "a", a, memory.Metadata{}); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	other := memory.NewHistory(10)
	other.AddUser("recipe for pancakes")
	if err := b.Save(ctx, "b", other, memory.Metadata{}); err != nil {
		t.Fatalf("Save b: %v", err)
	}

	hits, err := b.Search(ctx, "goroutines", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %+v, want 2", hits)
	}
	for _, h := range hits {
		if h.SessionID != "a" {
			t.Errorf("hit from session %q", h.SessionID)
		}
	}

	// Query syntax characters are matched literally instead of erroring.
	if _, err := b.Search(ctx, `pancakes" OR (`, 10); err != nil {
		t.Errorf("Search with punctuation: %v", err)
	}
	if hits, err := b.Search(ctx, "   ", 10); err != nil || hits != nil {
		t.Errorf("blank query = %v, %v", hits, err)
	}

	// Deleted sessions drop out of the index.
	if err := b.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	hits, err = b.Search(ctx, "goroutines", 10)
	if err != nil || len(hits) != 0 {
		t.Errorf("hits after delete = %+v, %v", hits, err)
	}
}

func TestBackend_WithStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := openTestBackend(t)

	s := memory.NewStore(memory.StoreOptions{Backend: b, Capacity: 10})
	s.Get(ctx, "main").History.AddUser("persist me")
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := memory.NewStore(memory.StoreOptions{Backend: b, Capacity: 10})
	if got := reopened.Get(ctx, "main").History.Len(); got != 1 {
		t.Errorf("reloaded len = %d, want 1", got)
	}
	branch, err := reopened.Branch(ctx, "main", 0, "alt")
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if branch.History.Len() != 1 {
		t.Errorf("branch len = %d", branch.History.Len())
	}
}

func TestOpen_Validation(t *testing.T) {
	t.Parallel()

	if _, err := sqlite.Open(context.Background(), sqlite.Config{}, nil); err == nil {
		t.Error("Open with empty path succeeded")
	}
	if _, err := sqlite.Open(context.Background(), sqlite.Config{Path: filepath.Join(t.TempDir(), "x.db"), BusyTimeout: -1}, nil); err == nil {
		t.Error("Open with negative busy_timeout succeeded")
	}
}
