package audio

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/openbadge/bridge/internal/pcm"
)

// Device is the local speaker and microphone. Read and Write must not block;
// Read returns whatever capture is buffered (possibly nothing).
type Device interface {
	io.Reader
	io.Writer
	Stop() error
	Reconfigure(sampleRate int) error
}

// Stats are router counters since creation.
type Stats struct {
	SampleRate   int    `json:"sample_rate"`
	BytesIn      uint64 `json:"bytes_in"`
	BytesOut     uint64 `json:"bytes_out"`
	Underruns    uint64 `json:"underruns"`
	Reconfigures uint64 `json:"reconfigures"`
	DeviceErrors uint64 `json:"device_errors"`
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.log = l }
}

// WithInitialRate sets the rate the device is already running at.
func WithInitialRate(rate int) RouterOption {
	return func(r *Router) { r.rate = rate }
}

// Router moves PCM between the voice link and the device. Inbound audio is
// written to the speaker as received; outbound requests are filled from the
// microphone. A codec change reconfigures the device with I/O held off.
type Router struct {
	dev Device
	log *slog.Logger

	mu   sync.RWMutex // read: I/O, write: reconfigure
	rate int

	bytesIn      atomic.Uint64
	bytesOut     atomic.Uint64
	underruns    atomic.Uint64
	reconfigures atomic.Uint64
	devErrors    atomic.Uint64
}

// NewRouter creates a router over dev.
func NewRouter(dev Device, opts ...RouterOption) *Router {
	r := &Router{dev: dev, log: slog.Default(), rate: DefaultSampleRate}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "router")
	return r
}

// OnInboundAudio plays PCM received from the peer.
func (r *Router) OnInboundAudio(p []byte) {
	if len(p) == 0 {
		return
	}
	r.mu.RLock()
	n, err := r.dev.Write(p)
	r.mu.RUnlock()

	r.bytesIn.Add(uint64(n))
	if err != nil {
		r.devErrors.Add(1)
		r.log.Debug("speaker write failed", "error", err)
	}
}

// OnOutboundAudioRequest returns up to max bytes of captured PCM. It never
// pads: a short or empty result is an underrun the link handles.
func (r *Router) OnOutboundAudioRequest(max int) []byte {
	if max <= 0 {
		return nil
	}
	buf := make([]byte, max)

	r.mu.RLock()
	n, err := r.dev.Read(buf)
	r.mu.RUnlock()

	if err != nil && err != io.EOF {
		r.devErrors.Add(1)
		r.log.Debug("mic read failed", "error", err)
	}
	if n < 0 {
		n = 0
	}
	if n < max {
		r.underruns.Add(1)
	}
	r.bytesOut.Add(uint64(n))
	return buf[:n]
}

// OnCodecChanged reconfigures the device for sampleRate. Only the two voice
// rates are accepted; the current rate is a no-op.
func (r *Router) OnCodecChanged(sampleRate int) {
	if _, err := pcm.ForRate(sampleRate); err != nil {
		r.log.Warn("ignoring codec change", "sample_rate", sampleRate, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sampleRate == r.rate {
		return
	}

	if err := r.dev.Stop(); err != nil {
		r.devErrors.Add(1)
		r.log.Warn("device stop failed", "error", err)
	}
	if err := r.dev.Reconfigure(sampleRate); err != nil {
		r.devErrors.Add(1)
		r.log.Error("device reconfigure failed", "sample_rate", sampleRate, "error", err)
	}
	r.log.Info("audio reconfigured", "from", r.rate, "to", sampleRate)
	r.rate = sampleRate
	r.reconfigures.Add(1)
}

// SampleRate returns the current device rate.
func (r *Router) SampleRate() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rate
}

// Stats returns a snapshot of the router counters.
func (r *Router) Stats() Stats {
	return Stats{
		SampleRate:   r.SampleRate(),
		BytesIn:      r.bytesIn.Load(),
		BytesOut:     r.bytesOut.Load(),
		Underruns:    r.underruns.Load(),
		Reconfigures: r.reconfigures.Load(),
		DeviceErrors: r.devErrors.Load(),
	}
}
