// Package audio drives the local speaker and microphone through PortAudio.
// Capture and playback run on their own goroutines behind bounded queues so
// the voice link never waits on the sound card.
package audio

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/pcm"
)

// Defaults
const (
	DefaultBuffer     = 20 * time.Millisecond
	DefaultQueueDepth = 32
)

// Config selects devices and buffering.
type Config struct {
	SampleRate int
	Buffer     time.Duration // frames per PortAudio buffer, as a duration
	QueueDepth int           // capture and playback queue length in buffers
	DeviceName string        // substring match; empty picks the system default
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 8000
	}
	if c.Buffer <= 0 {
		c.Buffer = DefaultBuffer
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	return c
}

// Device is a mono 16-bit speaker and microphone pair.
type Device struct {
	cfg Config

	mu      sync.Mutex
	streams *streams

	capture  chan []byte
	playback chan []byte
	leftover []byte // partially consumed capture buffer, owned by Read

	dropped atomic.Uint64
}

// streams is one open generation of the device at a fixed rate.
type streams struct {
	in, out *portaudio.Stream
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// Open initializes PortAudio and starts both streams at cfg.SampleRate.
func Open(cfg Config) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioDevice, "portaudio init")
	}
	d := newDevice(cfg)
	if err := d.Reconfigure(d.cfg.SampleRate); err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	return d, nil
}

func newDevice(cfg Config) *Device {
	cfg = cfg.withDefaults()
	return &Device{
		cfg:      cfg,
		capture:  make(chan []byte, cfg.QueueDepth),
		playback: make(chan []byte, cfg.QueueDepth),
	}
}

// Read copies buffered microphone PCM into p without blocking.
func (d *Device) Read(p []byte) (int, error) {
	n := 0
	if len(d.leftover) > 0 {
		n = copy(p, d.leftover)
		d.leftover = d.leftover[n:]
	}
	for n < len(p) {
		select {
		case chunk := <-d.capture:
			c := copy(p[n:], chunk)
			n += c
			if c < len(chunk) {
				d.leftover = chunk[c:]
			}
		default:
			return n, nil
		}
	}
	return n, nil
}

// Write queues PCM for the speaker. When the queue is full the data is
// dropped and still reported as written.
func (d *Device) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := append([]byte(nil), p...)
	select {
	case d.playback <- buf:
	default:
		d.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped returns the number of playback writes dropped on a full queue.
func (d *Device) Dropped() uint64 { return d.dropped.Load() }

// SampleRate returns the configured rate.
func (d *Device) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.SampleRate
}

// Stop halts both streams and discards queued audio.
func (d *Device) Stop() error {
	d.mu.Lock()
	s := d.streams
	d.streams = nil
	d.mu.Unlock()

	if s != nil {
		s.close()
	}
	d.drain()
	d.leftover = nil
	return nil
}

// Reconfigure reopens both streams at sampleRate.
func (d *Device) Reconfigure(sampleRate int) error {
	format, err := pcm.ForRate(sampleRate)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidArgument, "reconfigure")
	}
	_ = d.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.SampleRate = sampleRate

	s, err := d.open(format)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeAudioDevice, "open streams at %d Hz", sampleRate)
	}
	d.streams = s
	slog.Info("audio device started", "format", format.String(), "buffer", d.cfg.Buffer)
	return nil
}

// Close stops the device and releases PortAudio.
func (d *Device) Close() error {
	_ = d.Stop()
	return portaudio.Terminate()
}

func (d *Device) open(format pcm.Format) (*streams, error) {
	in, out, err := d.pickDevices()
	if err != nil {
		return nil, err
	}
	frames := int(format.SamplesInDuration(d.cfg.Buffer))

	inBuf := make([]int16, frames)
	inStream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   in,
			Channels: format.Channels(),
			Latency:  in.DefaultLowInputLatency,
		},
		SampleRate:      float64(format.SampleRate()),
		FramesPerBuffer: frames,
	}, inBuf)
	if err != nil {
		return nil, fmt.Errorf("input stream: %w", err)
	}

	outBuf := make([]int16, frames)
	outStream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   out,
			Channels: format.Channels(),
			Latency:  out.DefaultLowOutputLatency,
		},
		SampleRate:      float64(format.SampleRate()),
		FramesPerBuffer: frames,
	}, outBuf)
	if err != nil {
		inStream.Close()
		return nil, fmt.Errorf("output stream: %w", err)
	}

	if err := inStream.Start(); err != nil {
		inStream.Close()
		outStream.Close()
		return nil, fmt.Errorf("start input: %w", err)
	}
	if err := outStream.Start(); err != nil {
		inStream.Abort()
		inStream.Close()
		outStream.Close()
		return nil, fmt.Errorf("start output: %w", err)
	}

	s := &streams{in: inStream, out: outStream, done: make(chan struct{})}
	s.wg.Add(2)
	go d.captureLoop(s, inBuf)
	go d.playbackLoop(s, outBuf)
	return s, nil
}

func (d *Device) captureLoop(s *streams, buf []int16) {
	defer s.wg.Done()
	for {
		if err := s.in.Read(); err != nil {
			select {
			case <-s.done:
			default:
				slog.Debug("mic read error", "error", err)
			}
			return
		}
		chunk := make([]byte, len(buf)*2)
		pcm.Int16ToBytes(chunk, buf)
		select {
		case d.capture <- chunk:
		default:
			slog.Debug("capture queue full, dropping buffer")
		}
	}
}

func (d *Device) playbackLoop(s *streams, buf []int16) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case chunk := <-d.playback:
			for len(chunk) > 0 {
				n := pcm.BytesToInt16(buf, chunk)
				clear(buf[n:])
				chunk = chunk[n*2:]
				if n == 0 {
					break
				}
				if err := s.out.Write(); err != nil {
					slog.Debug("speaker write error", "error", err)
					break
				}
			}
		}
	}
}

func (s *streams) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.in.Abort()
		_ = s.out.Abort()
		s.wg.Wait()
		_ = s.in.Close()
		_ = s.out.Close()
	})
}

func (d *Device) drain() {
	for {
		select {
		case <-d.capture:
		case <-d.playback:
		default:
			return
		}
	}
}

// pickDevices returns the configured devices or the system defaults.
func (d *Device) pickDevices() (in, out *portaudio.DeviceInfo, err error) {
	if d.cfg.DeviceName == "" {
		if in, err = portaudio.DefaultInputDevice(); err != nil {
			return nil, nil, fmt.Errorf("default input: %w", err)
		}
		if out, err = portaudio.DefaultOutputDevice(); err != nil {
			return nil, nil, fmt.Errorf("default output: %w", err)
		}
		return in, out, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, nil, err
	}
	for _, dev := range devices {
		if !matchesName(dev.Name, d.cfg.DeviceName) {
			continue
		}
		if in == nil && dev.MaxInputChannels >= 1 {
			in = dev
		}
		if out == nil && dev.MaxOutputChannels >= 1 {
			out = dev
		}
	}
	if in == nil || out == nil {
		return nil, nil, fmt.Errorf("no input/output device matching %q", d.cfg.DeviceName)
	}
	return in, out, nil
}

func matchesName(name, want string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(want))
}
