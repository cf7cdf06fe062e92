package chatclient

import (
	"sync"
	"time"
)

// Timeline is the rendered message list of one conversation. It is safe for
// concurrent use.
type Timeline struct {
	mu        sync.RWMutex
	entries   []Entry
	tolerance time.Duration
}

// NewTimeline creates an empty timeline. A non-positive tolerance uses
// DefaultTolerance.
func NewTimeline(tolerance time.Duration) *Timeline {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Timeline{tolerance: tolerance}
}

// AddTentative appends an optimistic echo.
func (t *Timeline) AddTentative(e Entry) {
	e.Status = StatusTentative
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
}

// Apply merges a confirmed message.
func (t *Timeline) Apply(msg Entry) {
	t.mu.Lock()
	t.entries = Reconcile(t.entries, msg, t.tolerance)
	t.mu.Unlock()
}

// Fail marks the pending send with clientKey as failed.
func (t *Timeline) Fail(clientKey, reason string) {
	t.mu.Lock()
	t.entries = MarkFailed(t.entries, clientKey, reason)
	t.mu.Unlock()
}

// Replace installs a history snapshot. Unconfirmed entries the snapshot does
// not already contain stay at the end so an in-flight send is not lost.
func (t *Timeline) Replace(history []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make([]Entry, 0, len(history)+len(t.entries))
	for _, h := range history {
		h.Status = StatusConfirmed
		next = append(next, h)
	}
	for _, e := range t.entries {
		if e.Status == StatusConfirmed || covered(history, e, t.tolerance) {
			continue
		}
		next = append(next, e)
	}
	t.entries = next
}

// Entries returns a copy of the rendered list.
func (t *Timeline) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func covered(history []Entry, e Entry, tolerance time.Duration) bool {
	for _, h := range history {
		if e.ClientKey != "" && h.ClientKey == e.ClientKey && h.SenderID == e.SenderID {
			return true
		}
		if Equivalent(h, e, tolerance) {
			return true
		}
	}
	return false
}
