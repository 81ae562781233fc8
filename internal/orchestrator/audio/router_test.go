package audio

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

// mockDevice records calls and serves capture from a buffer.
type mockDevice struct {
	mu       sync.Mutex
	capture  bytes.Buffer
	played   bytes.Buffer
	calls    []string
	rates    []int
	writeErr error
}

func (m *mockDevice) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capture.Len() == 0 {
		return 0, nil
	}
	return m.capture.Read(p)
}

func (m *mockDevice) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.played.Write(p)
}

func (m *mockDevice) Stop() error {
	m.mu.Lock()
	m.calls = append(m.calls, "stop")
	m.mu.Unlock()
	return nil
}

func (m *mockDevice) Reconfigure(rate int) error {
	m.mu.Lock()
	m.calls = append(m.calls, "reconfigure")
	m.rates = append(m.rates, rate)
	m.mu.Unlock()
	return nil
}

func TestInboundForwardedVerbatim(t *testing.T) {
	dev := &mockDevice{}
	r := NewRouter(dev)

	frame := []byte{1, 2, 3, 4, 5, 6}
	r.OnInboundAudio(frame)
	r.OnInboundAudio(nil)

	if !bytes.Equal(dev.played.Bytes(), frame) {
		t.Errorf("played %v, want %v", dev.played.Bytes(), frame)
	}
	if got := r.Stats().BytesIn; got != 6 {
		t.Errorf("BytesIn = %d, want 6", got)
	}
}

func TestInboundWriteErrorCounted(t *testing.T) {
	dev := &mockDevice{writeErr: errors.New("device gone")}
	r := NewRouter(dev)

	r.OnInboundAudio([]byte{1, 2})
	if got := r.Stats().DeviceErrors; got != 1 {
		t.Errorf("DeviceErrors = %d, want 1", got)
	}
}

func TestOutboundShortRead(t *testing.T) {
	dev := &mockDevice{}
	dev.capture.Write(make([]byte, 128))
	r := NewRouter(dev)

	got := r.OnOutboundAudioRequest(320)
	if len(got) != 128 {
		t.Errorf("got %d bytes, want 128 (no padding)", len(got))
	}

	empty := r.OnOutboundAudioRequest(320)
	if len(empty) != 0 {
		t.Errorf("got %d bytes from empty source, want 0", len(empty))
	}

	st := r.Stats()
	if st.BytesOut != 128 || st.Underruns != 2 {
		t.Errorf("Stats = %+v, want 128 out and 2 underruns", st)
	}

	if r.OnOutboundAudioRequest(0) != nil {
		t.Error("zero request should return nil")
	}
}

func TestOutboundFullRead(t *testing.T) {
	dev := &mockDevice{}
	dev.capture.Write(bytes.Repeat([]byte{7}, 640))
	r := NewRouter(dev)

	got := r.OnOutboundAudioRequest(320)
	if len(got) != 320 || got[0] != 7 {
		t.Errorf("got %d bytes, want 320 of source data", len(got))
	}
	if r.Stats().Underruns != 0 {
		t.Error("a full read is not an underrun")
	}
}

func TestCodecChanges(t *testing.T) {
	tests := []struct {
		name      string
		rates     []int
		wantRates []int
		wantFinal int
	}{
		{"narrowband is initial", []int{8000}, nil, 8000},
		{"to wideband", []int{16000}, []int{16000}, 16000},
		{"repeat is no-op", []int{16000, 16000}, []int{16000}, 16000},
		{"wideband and back", []int{16000, 8000}, []int{16000, 8000}, 8000},
		{"unsupported ignored", []int{44100, 0, -1}, nil, 8000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &mockDevice{}
			r := NewRouter(dev)
			for _, rate := range tt.rates {
				r.OnCodecChanged(rate)
			}

			if len(dev.rates) != len(tt.wantRates) {
				t.Fatalf("reconfigured %v, want %v", dev.rates, tt.wantRates)
			}
			for i := range tt.wantRates {
				if dev.rates[i] != tt.wantRates[i] {
					t.Errorf("reconfigure %d = %d, want %d", i, dev.rates[i], tt.wantRates[i])
				}
			}
			if r.SampleRate() != tt.wantFinal {
				t.Errorf("SampleRate() = %d, want %d", r.SampleRate(), tt.wantFinal)
			}
			if got := r.Stats().Reconfigures; got != uint64(len(tt.wantRates)) {
				t.Errorf("Reconfigures = %d", got)
			}
		})
	}
}

func TestReconfigureStopsFirst(t *testing.T) {
	dev := &mockDevice{}
	r := NewRouter(dev, WithInitialRate(16000))

	r.OnCodecChanged(8000)
	if len(dev.calls) != 2 || dev.calls[0] != "stop" || dev.calls[1] != "reconfigure" {
		t.Errorf("calls = %v, want [stop reconfigure]", dev.calls)
	}
}

func TestConcurrentIOAndReconfigure(t *testing.T) {
	dev := &mockDevice{}
	r := NewRouter(dev)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			r.OnInboundAudio([]byte{1, 2})
		}()
		go func() {
			defer wg.Done()
			_ = r.OnOutboundAudioRequest(64)
		}()
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.OnCodecChanged(16000)
			} else {
				r.OnCodecChanged(8000)
			}
		}(i)
	}
	wg.Wait()

	if got := r.Stats().BytesIn; got != 100 {
		t.Errorf("BytesIn = %d, want 100", got)
	}
}
