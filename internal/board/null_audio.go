package board

import (
	"sync"
	"sync/atomic"

	"github.com/openbadge/bridge/internal/hfp"
)

// NullAudio is the audio device for boards without a speaker or microphone.
// Playback is discarded and capture yields nothing.
type NullAudio struct {
	mu      sync.Mutex
	rate    int
	running bool
	written atomic.Int64
}

// NewNullAudio creates a device at the narrowband rate.
func NewNullAudio() *NullAudio {
	return &NullAudio{rate: hfp.NarrowbandRate, running: true}
}

func (n *NullAudio) Read(p []byte) (int, error) { return 0, nil }

func (n *NullAudio) Write(p []byte) (int, error) {
	n.written.Add(int64(len(p)))
	return len(p), nil
}

func (n *NullAudio) Stop() error {
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()
	return nil
}

func (n *NullAudio) Reconfigure(rate int) error {
	n.mu.Lock()
	n.rate, n.running = rate, true
	n.mu.Unlock()
	return nil
}

// SampleRate returns the rate last configured.
func (n *NullAudio) SampleRate() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rate
}

// Written returns the number of playback bytes discarded.
func (n *NullAudio) Written() int64 { return n.written.Load() }
