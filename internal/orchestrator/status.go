package orchestrator

import (
	"sync"

	"github.com/openbadge/bridge/internal/board"
	"github.com/openbadge/bridge/internal/orchestrator/audio"
	"github.com/openbadge/bridge/internal/orchestrator/logbook"
	"github.com/openbadge/bridge/internal/session"
)

// Snapshot is the bridge state served by the status APIs.
type Snapshot struct {
	Device       string          `json:"device"`
	Status       board.Status    `json:"status"`
	StatusText   string          `json:"status_text"`
	Session      session.Session `json:"session"`
	Wideband     bool            `json:"wideband"`
	Audio        audio.Stats     `json:"audio"`
	VoiceSession string          `json:"voice_session,omitempty"`
	Triggers     uint64          `json:"triggers"`
}

// Status returns the current state.
func (m *Manager) Status() Snapshot {
	st := m.ui.Status()
	m.mu.RLock()
	id := m.voiceID
	m.mu.RUnlock()
	return Snapshot{
		Device:       m.cfg.DeviceName,
		Status:       st,
		StatusText:   st.Text(),
		Session:      m.session.Snapshot(),
		Wideband:     m.session.IsWideband(),
		Audio:        m.router.Stats(),
		VoiceSession: id,
		Triggers:     m.triggers.Load(),
	}
}

// RecentLogs returns logbook lines from the last seconds; zero or less
// returns everything kept.
func (m *Manager) RecentLogs(seconds int) []logbook.Entry {
	return m.book.Recent(seconds)
}

// LogEvents streams logbook lines as they are added.
func (m *Manager) LogEvents() <-chan logbook.Entry {
	return m.book.Events()
}

// presenter forwards to the board and remembers the last status so it can
// be reported without asking the hardware.
type presenter struct {
	next board.Presenter

	mu     sync.RWMutex
	status board.Status
}

func (p *presenter) SetStatus(s board.Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
	p.next.SetStatus(s)
}

func (p *presenter) Log(msg string) { p.next.Log(msg) }

func (p *presenter) Status() board.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}
