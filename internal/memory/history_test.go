package memory_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/provider"
)

// Compile-time interface guard: History is what strategies operate on.
var _ ctxengine.History = (*memory.History)(nil)

func TestHistory_CapacityInvariant(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{1, 2, 5, 40} {
		h := memory.NewHistory(capacity)
		for i := range 3 * capacity {
			if i%3 == 0 {
				h.AddAssistant(fmt.Sprint(i))
			} else {
				h.AddUser(fmt.Sprint(i))
			}
			if h.Len() > capacity {
				t.Fatalf("capacity=%d: len = %d after %d adds", capacity, h.Len(), i+1)
			}
		}
	}
}

func TestHistory_DropsOldestPair(t *testing.T) {
	t.Parallel()

	h := memory.NewHistory(40)
	for i := range 41 {
		h.AddUser(fmt.Sprintf("u%d", i))
		h.AddAssistant(fmt.Sprintf("a%d", i))
	}

	msgs := h.Messages()
	if len(msgs) != 40 {
		t.Fatalf("len = %d, want 40", len(msgs))
	}
	if msgs[0].Content != "u21" {
		t.Errorf("oldest retained = %q, want u21", msgs[0].Content)
	}
	if msgs[39].Content != "a40" {
		t.Errorf("newest = %q, want a40", msgs[39].Content)
	}
}

func TestHistory_DefaultCapacity(t *testing.T) {
	t.Parallel()

	if got := memory.NewHistory(0).Capacity(); got != memory.DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", got, memory.DefaultCapacity)
	}
}

func TestHistory_MessagesIsSnapshot(t *testing.T) {
	t.Parallel()

	h := memory.NewHistory(10)
	h.AddUser("one")
	snap := h.Messages()
	snap[0].Content = "mutated"
	h.AddAssistant("two")

	if len(snap) != 1 {
		t.Errorf("snapshot grew to %d", len(snap))
	}
	if got := h.Messages()[0].Content; got != "one" {
		t.Errorf("history observed caller mutation: %q", got)
	}
}

func TestHistory_ApplyCompression(t *testing.T) {
	t.Parallel()

	t.Run("no-op at or below keep", func(t *testing.T) {
		t.Parallel()
		h := memory.NewHistory(10)
		h.AddUser("a")
		h.AddAssistant("b")
		h.AddUser("c")
		before := h.Messages()

		h.ApplyCompression("X", 5)

		if h.Summary() != "" {
			t.Errorf("summary = %q, want unchanged", h.Summary())
		}
		if !reflect.DeepEqual(h.Messages(), before) {
			t.Errorf("turns changed: %+v", h.Messages())
		}
	})

	t.Run("replaces summary and truncates", func(t *testing.T) {
		t.Parallel()
		h := memory.NewHistory(10)
		h.SetSummary("old")
		for i := range 6 {
			h.AddUser(fmt.Sprint(i))
		}

		h.ApplyCompression("new", 2)

		if h.Summary() != "new" {
			t.Errorf("summary = %q, want replaced by %q", h.Summary(), "new")
		}
		msgs := h.Messages()
		if len(msgs) != 2 || msgs[0].Content != "4" || msgs[1].Content != "5" {
			t.Errorf("turns = %+v, want last two", msgs)
		}
	})
}

func TestHistory_Clear(t *testing.T) {
	t.Parallel()

	h := memory.NewHistory(10)
	h.AddUser("x")
	h.SetSummary("s")
	h.SetFacts("f")
	h.Clear()

	if h.Len() != 0 || h.Summary() != "" || h.Facts() != "" {
		t.Errorf("Clear left state: len=%d summary=%q facts=%q", h.Len(), h.Summary(), h.Facts())
	}
}

func TestHistory_Clone(t *testing.T) {
	t.Parallel()

	h := memory.NewHistory(10)
	h.AddUser("q1")
	h.AddAssistant("a1")
	h.AddUser("q2")
	h.AddAssistant("a2")
	h.SetSummary("title")
	h.SetFacts("facts")

	c, err := h.Clone(1)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	msgs := c.Messages()
	if len(msgs) != 2 || msgs[1].Content != "a1" {
		t.Fatalf("clone turns = %+v, want [q1 a1]", msgs)
	}
	if c.Summary() != "title" || c.Facts() != "facts" {
		t.Errorf("clone summary/facts = %q/%q", c.Summary(), c.Facts())
	}

	c.AddUser("branch only")
	h.SetFacts("parent only")
	if h.Len() != 4 {
		t.Errorf("parent len = %d, want 4", h.Len())
	}
	if c.Facts() != "facts" {
		t.Errorf("clone observed parent mutation: %q", c.Facts())
	}

	for _, idx := range []int{-1, 4} {
		if _, err := h.Clone(idx); !errors.Is(err, memory.ErrInvalidIndex) {
			t.Errorf("Clone(%d) error = %v, want ErrInvalidIndex", idx, err)
		}
	}
}

func TestHistory_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "session.json")

	h := memory.NewHistory(10)
	h.AddUser("hello")
	h.AddAssistant("hi there")
	h.SetSummary("greeting")
	h.SetFacts("- name: Ann")

	if err := h.Save(path, memory.Metadata{Provider: "deepseek", Model: "deepseek-chat"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := memory.NewHistory(10)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Summary() != h.Summary() || loaded.Facts() != h.Facts() {
		t.Errorf("summary/facts = %q/%q, want %q/%q", loaded.Summary(), loaded.Facts(), h.Summary(), h.Facts())
	}
	if !reflect.DeepEqual(loaded.Messages(), h.Messages()) {
		t.Errorf("messages = %+v, want %+v", loaded.Messages(), h.Messages())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	rec, err := memory.DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if rec.FormatVersion != memory.FormatVersion || rec.Provider != "deepseek" || rec.Model != "deepseek-chat" {
		t.Errorf("record header = %+v", rec)
	}
	if rec.UpdatedAt.Location().String() != "UTC" {
		t.Errorf("updated_at location = %v, want UTC", rec.UpdatedAt.Location())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestHistory_LoadMissingIsNoop(t *testing.T) {
	t.Parallel()

	h := memory.NewHistory(10)
	h.AddUser("keep me")
	if err := h.Load(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.Len() != 1 {
		t.Errorf("len = %d, want 1", h.Len())
	}
}

func TestHistory_LoadCorruptResets(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	h := memory.NewHistory(10)
	h.AddUser("stale")
	h.SetSummary("stale")
	if err := h.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.Len() != 0 || h.Summary() != "" {
		t.Errorf("corrupt load kept state: len=%d summary=%q", h.Len(), h.Summary())
	}
}

func TestHistory_LoadFiltersRolesAndTrims(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "s.json")
	data := `{"format_version":1,"summary":"s","facts":"","messages":[
		{"role":"system","content":"never stored"},
		{"role":"user","content":"u1"},
		{"role":"tool","content":"x"},
		{"role":"assistant","content":"a1"},
		{"role":"user","content":"u2"}
	]}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	h := memory.NewHistory(2)
	if err := h.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []provider.LLMMessage{
		{Role: provider.MessageRoleAssistant, Content: "a1"},
		{Role: provider.MessageRoleUser, Content: "u2"},
	}
	if !reflect.DeepEqual(h.Messages(), want) {
		t.Errorf("messages = %+v, want %+v", h.Messages(), want)
	}
}

func TestDecodeRecord_RejectsNewerVersion(t *testing.T) {
	t.Parallel()

	if _, err := memory.DecodeRecord([]byte(`{"format_version":99}`)); err == nil {
		t.Error("expected error for future format version")
	}
}
