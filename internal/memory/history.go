// Package memory holds conversation state: the bounded per-session
// history, its durable snapshot format, and the session registry.
package memory

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/dschat/internal/provider"
)

// DefaultCapacity is the number of turns a History retains by default.
const DefaultCapacity = 40

// ErrInvalidIndex is returned by Clone for an out-of-range turn index.
var ErrInvalidIndex = errors.New("memory: turn index out of range")

// History is the ordered, size-bounded log of user and assistant turns of
// one session, together with its running summary and extracted facts.
// System messages are never stored.
//
// The mutex only guards readers that observe a session concurrently with
// its turn (listing, history views). Turns themselves must be serialized
// by the caller, see LaneLock.
type History struct {
	mu        sync.RWMutex
	turns     []provider.LLMMessage
	summary   string
	facts     string
	capacity  int
	updatedAt time.Time
	now       func() time.Time
}

// NewHistory creates an empty history. capacity <= 0 uses DefaultCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{capacity: capacity, now: time.Now}
}

// Capacity returns the maximum number of retained turns.
func (h *History) Capacity() int { return h.capacity }

// AddUser appends a user turn.
func (h *History) AddUser(text string) {
	h.add(provider.MessageRoleUser, text)
}

// AddAssistant appends an assistant turn.
func (h *History) AddAssistant(text string) {
	h.add(provider.MessageRoleAssistant, text)
}

func (h *History) add(role provider.MessageRole, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, provider.LLMMessage{Role: role, Content: text})
	h.trim()
	h.touch()
}

// trim drops the oldest turns until len(turns) <= capacity.
// Caller must hold h.mu.
func (h *History) trim() {
	if over := len(h.turns) - h.capacity; over > 0 {
		h.turns = slices.Clone(h.turns[over:])
	}
}

func (h *History) touch() { h.updatedAt = h.now().UTC() }

// Messages returns a snapshot of the retained turns. Later mutations of
// the history are not visible through the returned slice.
func (h *History) Messages() []provider.LLMMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.turns)
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Summary returns the running summary ("" when none).
func (h *History) Summary() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.summary
}

// SetSummary replaces the summary without touching turns. Used for titles.
func (h *History) SetSummary(summary string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.summary = summary
	h.touch()
}

// Facts returns the extracted facts ("" when none).
func (h *History) Facts() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.facts
}

// SetFacts replaces the extracted facts.
func (h *History) SetFacts(facts string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.facts = facts
	h.touch()
}

// UpdatedAt returns the time of the last mutation (zero if never mutated).
func (h *History) UpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.updatedAt
}

// Clear resets turns, summary and facts together.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reset()
	h.touch()
}

// reset empties the state. Caller must hold h.mu.
func (h *History) reset() {
	h.turns = nil
	h.summary = ""
	h.facts = ""
}

// ApplyCompression replaces the summary and keeps only the last keep
// turns. It is a no-op when len(turns) <= keep.
func (h *History) ApplyCompression(summary string, keep int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	if len(h.turns) <= keep {
		return
	}
	h.summary = summary
	h.turns = slices.Clone(h.turns[len(h.turns)-keep:])
	h.touch()
}

// Clone returns an independent history holding turns [0, upTo] (inclusive)
// plus the current summary and facts. The clone shares no mutable state
// with h.
func (h *History) Clone(upTo int) (*History, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if upTo < 0 || upTo >= len(h.turns) {
		return nil, fmt.Errorf("%w: %d (have %d turns)", ErrInvalidIndex, upTo, len(h.turns))
	}
	c := NewHistory(h.capacity)
	c.now = h.now
	c.turns = slices.Clone(h.turns[:upTo+1])
	c.summary = h.summary
	c.facts = h.facts
	c.touch()
	return c, nil
}

// Restore replaces the state with rec, keeping only user and assistant
// turns and enforcing capacity.
func (h *History) Restore(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reset()
	for _, m := range rec.Messages {
		if m.Role != provider.MessageRoleUser && m.Role != provider.MessageRoleAssistant {
			continue
		}
		h.turns = append(h.turns, provider.LLMMessage{Role: m.Role, Content: m.Content})
	}
	h.trim()
	h.summary = rec.Summary
	h.facts = rec.Facts
	h.updatedAt = rec.UpdatedAt.UTC()
}

// Snapshot captures the state as a versioned record.
func (h *History) Snapshot(meta Metadata) Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	updated := h.updatedAt
	if updated.IsZero() {
		updated = h.now().UTC()
	}
	msgs := slices.Clone(h.turns)
	if msgs == nil {
		msgs = []provider.LLMMessage{}
	}
	return Record{
		FormatVersion: FormatVersion,
		Provider:      meta.Provider,
		Model:         meta.Model,
		UpdatedAt:     updated,
		Summary:       h.summary,
		Facts:         h.facts,
		Messages:      msgs,
	}
}
