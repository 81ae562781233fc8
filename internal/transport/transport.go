// Package transport is the boundary between the session core and the radio
// stack. Implementations deliver link, audio and diagnostic events on a single
// channel and accept remote-control commands.
package transport

import (
	"context"
	"fmt"

	"github.com/openbadge/bridge/internal/hfp"
)

// Event is one notification from the stack. The concrete types below are the
// only implementations.
type Event interface {
	isEvent()
}

// LinkStateEvent reports a control-link transition with the remote peer.
type LinkStateEvent struct {
	State hfp.LinkState
	Peer  hfp.Address
}

// AudioStateEvent reports a voice sub-link transition. Codec is meaningful
// only when State is hfp.AudioActive.
type AudioStateEvent struct {
	State hfp.AudioState
	Codec hfp.Codec
}

// InboundAudioEvent carries PCM received from the peer.
type InboundAudioEvent struct {
	Data []byte
}

// DiagnosticEvent is informational: pairing results, command responses,
// volume and call indications. It never changes session state.
type DiagnosticEvent struct {
	Source  string
	Message string
	Err     error
}

func (LinkStateEvent) isEvent()    {}
func (AudioStateEvent) isEvent()   {}
func (InboundAudioEvent) isEvent() {}
func (DiagnosticEvent) isEvent()   {}

func (e LinkStateEvent) String() string {
	if e.Peer.IsZero() {
		return "link " + e.State.String()
	}
	return fmt.Sprintf("link %s peer=%s", e.State, e.Peer)
}

func (e AudioStateEvent) String() string {
	if e.State == hfp.AudioActive {
		return fmt.Sprintf("audio %s codec=%s", e.State, e.Codec)
	}
	return "audio " + e.State.String()
}

func (e DiagnosticEvent) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Message, e.Err)
	}
	return e.Source + ": " + e.Message
}

// OutboundAudioFunc fills at most max bytes of PCM for the peer. It must not
// block.
type OutboundAudioFunc func(max int) []byte

// Commander sends remote-control commands to the connected peer.
type Commander interface {
	SendPassthrough(cmd hfp.PassthroughCommand, pressed bool) error
	SendVoiceRecognition(active bool) error
}

// Transport is a radio stack connection.
type Transport interface {
	Commander

	// Events returns the channel of stack notifications. It is closed when
	// the transport is closed.
	Events() <-chan Event

	// RegisterOutboundAudio installs the pull used while the voice link is
	// active. Must be called before Start.
	RegisterOutboundAudio(fn OutboundAudioFunc)

	// Start brings the stack up. Failures are reported and the transport
	// stays usable in a disconnected state.
	Start(ctx context.Context) error

	Close() error
}
