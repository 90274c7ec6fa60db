package tracker

import (
	"testing"
	"time"
)

func TestTrackerUncapped(t *testing.T) {
	tr := NewTracker(0)
	for i := 0; i < 250; i++ {
		tr.Log(Entry{Method: "GET", URL: "/categories", Mocked: true})
	}

	if tr.Count() != 250 {
		t.Errorf("Expected 250 entries, got %d", tr.Count())
	}

	entries := tr.Entries()
	if entries[0].ID != 1 || entries[249].ID != 250 {
		t.Errorf("Expected insertion order IDs, got %d..%d", entries[0].ID, entries[249].ID)
	}
}

func TestTrackerCapped(t *testing.T) {
	tr := NewTracker(3)
	for i := 0; i < 5; i++ {
		tr.Log(Entry{Method: "GET"})
	}

	entries := tr.Entries()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID != 3 {
		t.Errorf("Expected oldest kept ID 3, got %d", entries[0].ID)
	}
}

func TestTrackerTimestampAndSince(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(0)
	tr.SetNow(func() time.Time { return fixed })

	first := tr.Log(Entry{URL: "/a"})
	tr.Log(Entry{URL: "/b"})

	if !first.Timestamp.Equal(fixed) {
		t.Errorf("Expected timestamp %v, got %v", fixed, first.Timestamp)
	}

	since := tr.Since(first.ID)
	if len(since) != 1 || since[0].URL != "/b" {
		t.Errorf("Expected only /b after first entry, got %+v", since)
	}
}

func TestTrackerClear(t *testing.T) {
	tr := NewTracker(0)
	tr.Log(Entry{URL: "/a"})
	tr.Clear()

	if tr.Count() != 0 {
		t.Errorf("Expected empty log after Clear, got %d", tr.Count())
	}

	// IDs keep increasing after a clear
	if e := tr.Log(Entry{URL: "/b"}); e.ID != 2 {
		t.Errorf("Expected ID 2, got %d", e.ID)
	}
}
