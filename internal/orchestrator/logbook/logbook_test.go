package logbook

import (
	"strings"
	"testing"
	"time"
)

func TestAdd(t *testing.T) {
	r := New(50, 10)
	r.Add("session", "Connected to: AA:BB")

	entries := r.Recent(0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Text != "Connected to: AA:BB" || entries[0].Source != "session" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestRingDropsOldest(t *testing.T) {
	r := New(5, 10)
	for i := 0; i < 10; i++ {
		r.Add("test", string(rune('a'+i)))
	}

	entries := r.Recent(0)
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[0].Text != "f" || entries[4].Text != "j" {
		t.Errorf("ring kept %q..%q, want f..j", entries[0].Text, entries[4].Text)
	}
}

func TestRecentWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := New(50, 10)
	r.now = func() time.Time { return now }

	r.Add("test", "Old")
	now = now.Add(5 * time.Minute)
	r.Add("test", "Recent")

	recent := r.Recent(60)
	if len(recent) != 1 || recent[0].Text != "Recent" {
		t.Errorf("Recent(60) = %+v, want only Recent", recent)
	}

	text := r.Text(600)
	if !strings.Contains(text, "Old") || !strings.Contains(text, "12:05:00.000 Recent") {
		t.Errorf("Text(600) = %q", text)
	}
}

func TestEvents(t *testing.T) {
	r := New(50, 10)
	go r.Add("status", "Status: Listening...")

	select {
	case e := <-r.Events():
		if e.Text != "Status: Listening..." {
			t.Errorf("expected status line, got %q", e.Text)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestAddNonBlocking(t *testing.T) {
	r := New(50, 1)
	r.Add("test", "1")

	done := make(chan struct{})
	go func() {
		r.Add("test", "2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Add blocked on a full events channel")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (lines kept even when events drop)", r.Len())
	}
}
