// Package logbook keeps the recent user-facing log lines shown on the badge
// screen and served over the status API.
package logbook

import (
	"strings"
	"sync"
	"time"
)

// Entry is one logbook line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
}

func (e Entry) String() string {
	return e.Timestamp.Format("15:04:05.000") + " " + e.Text
}

// Book is the logbook contract consumed by the presenter and the API.
type Book interface {
	Add(source, text string)
	Recent(seconds int) []Entry
	Events() <-chan Entry
}

// Ring is a bounded in-memory logbook. The oldest line is dropped once the
// ring is full.
type Ring struct {
	mu       sync.RWMutex
	entries  []Entry
	maxSize  int
	eventsCh chan Entry
	now      func() time.Time
}

// New creates a logbook holding at most maxEntries lines.
func New(maxEntries, eventBuffer int) *Ring {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Ring{
		entries:  make([]Entry, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Entry, eventBuffer),
		now:      time.Now,
	}
}

// Add records a line and publishes it without blocking.
func (r *Ring) Add(source, text string) {
	e := Entry{Timestamp: r.now(), Source: source, Text: text}

	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.maxSize {
		r.entries = r.entries[len(r.entries)-r.maxSize:]
	}
	r.mu.Unlock()

	select {
	case r.eventsCh <- e:
	default:
	}
}

// Recent returns lines from the last seconds, oldest first. seconds <= 0
// returns everything held.
func (r *Ring) Recent(seconds int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if seconds <= 0 {
		return append([]Entry(nil), r.entries...)
	}
	cutoff := r.now().Add(-time.Duration(seconds) * time.Second)
	var out []Entry
	for _, e := range r.entries {
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Text renders Recent as newline separated lines.
func (r *Ring) Text(seconds int) string {
	entries := r.Recent(seconds)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Events returns the channel of newly added lines. Lines are dropped when
// nobody is reading.
func (r *Ring) Events() <-chan Entry {
	return r.eventsCh
}

// Len returns the number of lines held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
