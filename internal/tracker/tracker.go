// Package tracker keeps the in-memory log of intercepted requests.
package tracker

import (
	"sync"
	"time"
)

// Entry records one request seen by the engine
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Mocked    bool      `json:"mocked"`
	Service   string    `json:"service,omitempty"`
	Status    int       `json:"status,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
}

type Tracker struct {
	entries []Entry
	mu      sync.RWMutex
	nextID  int64
	max     int
	now     func() time.Time
}

// NewTracker creates a tracker. max <= 0 keeps every entry; trimming is left to the caller.
func NewTracker(max int) *Tracker {
	return &Tracker{
		max:    max,
		nextID: 1,
		now:    time.Now,
	}
}

// SetNow replaces the timestamp source
func (t *Tracker) SetNow(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Log appends an entry and returns it with ID and Timestamp assigned
func (t *Tracker) Log(entry Entry) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry.ID = t.nextID
	t.nextID++
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.now()
	}
	t.entries = append(t.entries, entry)
	if t.max > 0 && len(t.entries) > t.max {
		t.entries = t.entries[len(t.entries)-t.max:]
	}
	return entry
}

// Entries returns a copy of the log in insertion order
func (t *Tracker) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]Entry, len(t.entries))
	copy(result, t.entries)
	return result
}

// Since returns entries with an ID greater than id
func (t *Tracker) Since(id int64) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var result []Entry
	for _, e := range t.entries {
		if e.ID > id {
			result = append(result, e)
		}
	}
	return result
}

func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
