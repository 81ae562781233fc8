package board

import (
	"log/slog"
	"sync"

	"github.com/openbadge/bridge/internal/orchestrator/logbook"
)

// Display is the Presenter for boards whose screen is the log itself: every
// status change and message goes to slog and the logbook.
type Display struct {
	book   logbook.Book
	log    *slog.Logger
	mu     sync.Mutex
	status Status
	shown  bool
}

// NewDisplay creates a display writing into book.
func NewDisplay(book logbook.Book, log *slog.Logger) *Display {
	if log == nil {
		log = slog.Default()
	}
	return &Display{book: book, log: log.With("component", "display")}
}

// SetStatus shows s. Repeating the current status does nothing.
func (d *Display) SetStatus(s Status) {
	d.mu.Lock()
	if d.shown && d.status == s {
		d.mu.Unlock()
		return
	}
	d.status, d.shown = s, true
	d.mu.Unlock()

	d.log.Info("status", "status", s.String())
	if d.book != nil {
		d.book.Add("status", "Status: "+s.Text())
	}
}

// Log appends a line to the log area.
func (d *Display) Log(msg string) {
	d.log.Info(msg)
	if d.book != nil {
		d.book.Add("log", msg)
	}
}

// Status returns the status last shown.
func (d *Display) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}
