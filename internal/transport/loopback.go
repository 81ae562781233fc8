package transport

import (
	"context"
	"sync"
	"sync/atomic"

	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/hfp"
)

// DefaultEventBuffer is the Loopback event channel capacity.
const DefaultEventBuffer = 64

// Command is a recorded remote-control call.
type Command struct {
	Passthrough      *hfp.PassthroughCommand
	Pressed          bool
	VoiceRecognition *bool
}

// Loopback is an in-process transport. Callers inject events as if they came
// from the radio and inspect the commands the core sent back. The simulate
// mode of the daemon and the package tests use it.
type Loopback struct {
	events chan Event
	sendMu sync.RWMutex // held for reading while sending on events
	closed atomic.Bool

	mu       sync.Mutex
	commands []Command
	outbound OutboundAudioFunc
	failNext error
}

// NewLoopback creates a loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{events: make(chan Event, DefaultEventBuffer)}
}

func (l *Loopback) Events() <-chan Event { return l.events }

func (l *Loopback) RegisterOutboundAudio(fn OutboundAudioFunc) {
	l.mu.Lock()
	l.outbound = fn
	l.mu.Unlock()
}

func (l *Loopback) Start(context.Context) error { return nil }

// Close closes the event channel. Inject after Close is a no-op.
func (l *Loopback) Close() error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	if l.closed.CompareAndSwap(false, true) {
		close(l.events)
	}
	return nil
}

// Inject queues an event for delivery. It blocks if the buffer is full.
func (l *Loopback) Inject(ev Event) {
	l.sendMu.RLock()
	defer l.sendMu.RUnlock()
	if l.closed.Load() {
		return
	}
	l.events <- ev
}

// Connect injects the full bring-up sequence up to a service level connection.
func (l *Loopback) Connect(peer hfp.Address) {
	l.Inject(LinkStateEvent{State: hfp.LinkConnecting, Peer: peer})
	l.Inject(LinkStateEvent{State: hfp.LinkConnected, Peer: peer})
	l.Inject(LinkStateEvent{State: hfp.LinkServiceLevelConnected, Peer: peer})
}

// OpenAudio injects a voice link coming up with codec.
func (l *Loopback) OpenAudio(codec hfp.Codec) {
	l.Inject(AudioStateEvent{State: hfp.AudioConnecting})
	l.Inject(AudioStateEvent{State: hfp.AudioActive, Codec: codec})
}

// PullOutbound invokes the registered outbound pull as the radio would.
func (l *Loopback) PullOutbound(max int) []byte {
	l.mu.Lock()
	fn := l.outbound
	l.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(max)
}

// FailNext makes the next command return err.
func (l *Loopback) FailNext(err error) {
	l.mu.Lock()
	l.failNext = err
	l.mu.Unlock()
}

func (l *Loopback) SendPassthrough(cmd hfp.PassthroughCommand, pressed bool) error {
	return l.record(Command{Passthrough: &cmd, Pressed: pressed})
}

func (l *Loopback) SendVoiceRecognition(active bool) error {
	return l.record(Command{VoiceRecognition: &active})
}

func (l *Loopback) record(c Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failNext; err != nil {
		l.failNext = nil
		return apperrors.Wrap(err, apperrors.CodeCommandRejected, "loopback command rejected")
	}
	if l.closed.Load() {
		return apperrors.New(apperrors.CodeUnavailable, "transport closed")
	}
	l.commands = append(l.commands, c)
	return nil
}

// Commands returns a copy of the commands recorded so far.
func (l *Loopback) Commands() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Command(nil), l.commands...)
}

// Reset forgets recorded commands.
func (l *Loopback) Reset() {
	l.mu.Lock()
	l.commands = nil
	l.mu.Unlock()
}

var _ Transport = (*Loopback)(nil)
