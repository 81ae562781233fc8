package session

import (
	"fmt"

	"github.com/openbadge/bridge/internal/board"
	"github.com/openbadge/bridge/internal/hfp"
	"github.com/openbadge/bridge/internal/syncx"
	"github.com/openbadge/bridge/internal/transport"
)

// effects are computed under the state lock and applied after it is released.
type effects struct {
	status      *board.Status
	lines       []string
	reconfigure int
}

func (e *effects) show(s board.Status) { e.status = &s }

func (e *effects) say(format string, args ...any) {
	e.lines = append(e.lines, fmt.Sprintf(format, args...))
}

// Handle folds one transport event into the session.
func (m *Machine) Handle(ev transport.Event) {
	var eff effects
	switch e := ev.(type) {
	case transport.LinkStateEvent:
		eff = syncx.Mutate(m.state, func(s *Session) effects { return m.onLink(s, e) })
	case transport.AudioStateEvent:
		eff = syncx.Mutate(m.state, func(s *Session) effects { return m.onAudio(s, e) })
	case transport.DiagnosticEvent:
		m.onDiagnostic(e)
		return
	case transport.InboundAudioEvent:
		return
	default:
		m.log.Warn("unknown event", "type", fmt.Sprintf("%T", ev))
		return
	}
	m.apply(eff)
}

func (m *Machine) apply(eff effects) {
	if eff.reconfigure != 0 && m.rc != nil {
		m.rc.OnCodecChanged(eff.reconfigure)
	}
	for _, line := range eff.lines {
		m.ui.Log(line)
	}
	if eff.status != nil {
		m.ui.SetStatus(*eff.status)
	}
}

func (m *Machine) onLink(s *Session, e transport.LinkStateEvent) effects {
	var eff effects
	prev := *s

	switch e.State {
	case hfp.LinkDisconnected:
		*s = Session{Link: hfp.LinkDisconnected, Audio: hfp.AudioIdle, Peer: prev.Peer}
		if prev.Link == hfp.LinkDisconnected {
			m.log.Debug("duplicate link event", "state", e.State)
			return eff
		}
		m.log.Info("link down", "from", prev.Link, "peer", prev.Peer)
		eff.say("Disconnected")
		eff.show(board.StatusDisconnected)

	case hfp.LinkServiceLevelConnected:
		if prev.Link == hfp.LinkServiceLevelConnected {
			m.log.Debug("duplicate link event", "state", e.State)
			return eff
		}
		s.Link = hfp.LinkServiceLevelConnected
		s.Audio = hfp.AudioIdle
		if !e.Peer.IsZero() && s.Peer.IsZero() {
			s.Peer = e.Peer
		}
		m.log.Info("service level connection established", "peer", s.Peer)
		eff.say("HFP ready")
		eff.show(board.StatusIdle)

	case hfp.LinkConnected:
		if prev.Link == hfp.LinkConnected && (e.Peer.IsZero() || e.Peer == prev.Peer) {
			m.log.Debug("duplicate link event", "state", e.State)
			return eff
		}
		s.Link = hfp.LinkConnected
		s.Audio = hfp.AudioIdle
		if !e.Peer.IsZero() {
			s.Peer = e.Peer
		}
		m.log.Info("link connected", "peer", s.Peer)
		eff.say("Connected to %s", s.Peer)

	default:
		if prev.Link == e.State {
			m.log.Debug("duplicate link event", "state", e.State)
			return eff
		}
		s.Link = e.State
		s.Audio = hfp.AudioIdle
		m.log.Info("link state", "from", prev.Link, "to", e.State)
	}
	return eff
}

func (m *Machine) onAudio(s *Session, e transport.AudioStateEvent) effects {
	var eff effects
	prev := *s

	if s.Link != hfp.LinkServiceLevelConnected {
		s.Audio = hfp.AudioIdle
		if e.State == hfp.AudioIdle {
			// The voice link is torn down after the control link.
			m.log.Debug("late audio idle", "link", s.Link)
			return eff
		}
		m.log.Warn("audio event without service level connection", "link", s.Link, "audio", e.State)
		eff.say("Audio %s ignored: no HFP link", e.State)
		return eff
	}

	switch e.State {
	case hfp.AudioIdle:
		if prev.Audio == hfp.AudioIdle {
			m.log.Debug("duplicate audio event", "state", e.State)
			return eff
		}
		s.Audio = hfp.AudioIdle
		m.log.Info("audio disconnected")
		eff.say("Audio disconnected")
		eff.show(board.StatusIdle)

	case hfp.AudioConnecting:
		if prev.Audio == hfp.AudioConnecting {
			m.log.Debug("duplicate audio event", "state", e.State)
			return eff
		}
		s.Audio = hfp.AudioConnecting
		m.log.Debug("audio connecting")

	case hfp.AudioActive:
		if prev.Audio == hfp.AudioActive && prev.Codec == e.Codec {
			m.log.Debug("duplicate audio event", "state", e.State, "codec", e.Codec)
			return eff
		}
		s.Audio = hfp.AudioActive
		s.Codec = e.Codec
		eff.reconfigure = e.Codec.SampleRate()
		m.log.Info("audio connected", "codec", e.Codec, "sample_rate", e.Codec.SampleRate())
		eff.say("Audio connected (%s, %d kHz)", codecLabel(e.Codec), e.Codec.SampleRate()/1000)

	default:
		m.log.Warn("unknown audio state", "state", e.State)
	}
	return eff
}

func (m *Machine) onDiagnostic(e transport.DiagnosticEvent) {
	if e.Err != nil {
		m.log.Warn(e.Message, "source", e.Source, "error", e.Err)
		m.ui.Log(fmt.Sprintf("%s: %s (%v)", e.Source, e.Message, e.Err))
		return
	}
	m.log.Info(e.Message, "source", e.Source)
	m.ui.Log(e.Source + ": " + e.Message)
}

func codecLabel(c hfp.Codec) string {
	if c == hfp.CodecWideband {
		return "mSBC"
	}
	return "CVSD"
}
