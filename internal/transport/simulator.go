package transport

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/hfp"
	"github.com/openbadge/bridge/internal/pcm"
)

// Simulator defaults
const (
	DefaultSimulatorLatency = 300 * time.Millisecond
	DefaultSimulatorFrame   = 20 * time.Millisecond
)

// SimulatedPeer is the address the simulated phone connects with.
var SimulatedPeer = hfp.Address{0x02, 0x00, 0x5E, 0x10, 0x00, 0x01}

// SimulatorConfig shapes the simulated phone.
type SimulatorConfig struct {
	Peer    hfp.Address
	Codec   hfp.Codec
	Latency time.Duration // delay before the phone reacts to a connect or command
	Frame   time.Duration // voice packet interval
}

// DefaultSimulatorConfig returns a wideband phone that answers quickly.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Peer:    SimulatedPeer,
		Codec:   hfp.CodecWideband,
		Latency: DefaultSimulatorLatency,
		Frame:   DefaultSimulatorFrame,
	}
}

// Simulator drives a Loopback like a paired phone. It connects at Start,
// opens the voice link when voice recognition is switched on and closes it
// when it is switched off. While the link is up it exchanges silent
// packets every Frame.
type Simulator struct {
	*Loopback
	cfg SimulatorConfig

	mu       sync.Mutex
	closing  bool
	active   bool
	endAudio chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

var _ Transport = (*Simulator)(nil)

// NewSimulator creates an unstarted simulated phone.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Peer.IsZero() {
		cfg.Peer = SimulatedPeer
	}
	if cfg.Frame <= 0 {
		cfg.Frame = DefaultSimulatorFrame
	}
	return &Simulator{
		Loopback: NewLoopback(),
		cfg:      cfg,
		done:     make(chan struct{}),
	}
}

// Start connects the simulated phone after the configured latency.
func (s *Simulator) Start(ctx context.Context) error {
	return s.spawn(func() {
		if s.wait(ctx) {
			s.Connect(s.cfg.Peer)
		}
	})
}

// SendVoiceRecognition records the command and lets the phone open or
// close the voice link in response.
func (s *Simulator) SendVoiceRecognition(active bool) error {
	if err := s.Loopback.SendVoiceRecognition(active); err != nil {
		return err
	}
	return s.spawn(func() {
		if !s.wait(context.Background()) {
			return
		}
		if active {
			s.openVoice()
		} else {
			s.closeVoice()
		}
	})
}

// Close stops the simulated phone and closes the event channel.
func (s *Simulator) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return s.Loopback.Close()
}

func (s *Simulator) spawn(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return apperrors.New(apperrors.CodeUnavailable, "simulator closed")
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return nil
}

// wait sleeps for the phone latency and reports whether to go on.
func (s *Simulator) wait(ctx context.Context) bool {
	t := time.NewTimer(s.cfg.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

func (s *Simulator) openVoice() {
	s.mu.Lock()
	if s.active || s.closing {
		s.mu.Unlock()
		return
	}
	s.active = true
	end := make(chan struct{})
	s.endAudio = end
	s.wg.Add(1)
	s.mu.Unlock()

	s.OpenAudio(s.cfg.Codec)
	go s.pump(end)
}

func (s *Simulator) closeVoice() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.endAudio)
	s.mu.Unlock()

	s.Inject(AudioStateEvent{State: hfp.AudioIdle})
}

// pump exchanges one silent packet each way per frame, as the SCO link would.
func (s *Simulator) pump(end <-chan struct{}) {
	defer s.wg.Done()

	f, err := pcm.ForRate(s.cfg.Codec.SampleRate())
	if err != nil {
		return
	}
	size := int(f.BytesInDuration(s.cfg.Frame))

	ticker := time.NewTicker(s.cfg.Frame)
	defer ticker.Stop()
	for {
		select {
		case <-end:
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Inject(InboundAudioEvent{Data: make([]byte, size)})
			s.PullOutbound(size)
		}
	}
}
