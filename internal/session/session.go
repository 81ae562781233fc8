// Package session owns the hands-free link state with the phone. Transport
// events are folded into a single Session value; the orchestrator queries it
// and issues remote-control commands through it.
package session

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/openbadge/bridge/internal/board"
	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/hfp"
	"github.com/openbadge/bridge/internal/syncx"
	"github.com/openbadge/bridge/internal/transport"
)

// DefaultPressDelay is the gap between the AVRCP press and release edges.
const DefaultPressDelay = 100 * time.Millisecond

var (
	// ErrNotReady means there is no service level connection.
	ErrNotReady = apperrors.New(apperrors.CodeNotConnected, "not connected")
	// ErrSessionActive means a voice session is already open.
	ErrSessionActive = apperrors.New(apperrors.CodeSessionActive, "session active")
)

// Session is a snapshot of the link with the phone. Audio is always Idle
// unless Link is service-level connected, and Codec is only meaningful while
// Audio is Active.
type Session struct {
	Link  hfp.LinkState  `json:"link"`
	Audio hfp.AudioState `json:"audio"`
	Codec hfp.Codec      `json:"codec"`
	Peer  hfp.Address    `json:"peer"`
}

// MarshalJSON leaves out the codec unless the voice link is active.
func (s Session) MarshalJSON() ([]byte, error) {
	type wire struct {
		Link  hfp.LinkState  `json:"link"`
		Audio hfp.AudioState `json:"audio"`
		Codec *hfp.Codec     `json:"codec,omitempty"`
		Peer  hfp.Address    `json:"peer"`
	}
	w := wire{Link: s.Link, Audio: s.Audio, Peer: s.Peer}
	if s.Audio == hfp.AudioActive {
		w.Codec = &s.Codec
	}
	return json.Marshal(w)
}

// Reconfigurer is told the PCM rate whenever the voice link opens or
// changes codec.
type Reconfigurer interface {
	OnCodecChanged(sampleRate int)
}

// Option configures a Machine.
type Option func(*Machine)

// WithPressDelay sets the passthrough press/release gap.
func WithPressDelay(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.pressDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithSleep replaces time.Sleep for the press/release gap.
func WithSleep(fn func(time.Duration)) Option {
	return func(m *Machine) { m.sleep = fn }
}

// Machine is the session state machine. Handle is called from the single
// event goroutine; every other method may be called concurrently.
type Machine struct {
	state *syncx.RWGuard[Session]
	cmd   transport.Commander
	rc    Reconfigurer
	ui    board.Presenter
	log   *slog.Logger

	pressDelay time.Duration
	sleep      func(time.Duration)
}

// New creates a machine in the disconnected state.
func New(cmd transport.Commander, rc Reconfigurer, ui board.Presenter, opts ...Option) *Machine {
	m := &Machine{
		state:      syncx.NewGuard(Session{Link: hfp.LinkDisconnected, Audio: hfp.AudioIdle}),
		cmd:        cmd,
		rc:         rc,
		ui:         ui,
		log:        slog.Default(),
		pressDelay: DefaultPressDelay,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "session")
	return m
}

// Snapshot returns the current session.
func (m *Machine) Snapshot() Session {
	return m.state.Get()
}

// IsServiceLevelConnected reports whether commands can be sent.
func (m *Machine) IsServiceLevelConnected() bool {
	return syncx.View(m.state, func(s Session) bool {
		return s.Link == hfp.LinkServiceLevelConnected
	})
}

// IsAudioActive reports whether the voice link is open.
func (m *Machine) IsAudioActive() bool {
	return syncx.View(m.state, func(s Session) bool {
		return s.Audio == hfp.AudioActive
	})
}

// IsWideband reports whether the open voice link uses the wideband codec.
// It is false whenever audio is not active.
func (m *Machine) IsWideband() bool {
	return syncx.View(m.state, func(s Session) bool {
		return s.Audio == hfp.AudioActive && s.Codec == hfp.CodecWideband
	})
}

// TriggerBlocker returns why a voice session cannot start now, or nil.
func (m *Machine) TriggerBlocker() error {
	s := m.state.Get()
	switch {
	case s.Link != hfp.LinkServiceLevelConnected:
		return ErrNotReady
	case s.Audio != hfp.AudioIdle:
		return ErrSessionActive
	}
	return nil
}

// CanTrigger reports whether a voice session can start, logging the reason
// when it cannot.
func (m *Machine) CanTrigger() bool {
	switch err := m.TriggerBlocker(); err {
	case nil:
		return true
	case ErrNotReady:
		m.ui.Log("Cannot trigger - not connected")
	default:
		m.ui.Log("Session active - ignoring trigger")
	}
	return false
}
