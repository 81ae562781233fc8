package board

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/openbadge/bridge/internal/orchestrator/logbook"
)

func TestStatusText(t *testing.T) {
	tests := []struct {
		s    Status
		text string
		key  string
	}{
		{StatusDisconnected, "Not Connected", "disconnected"},
		{StatusIdle, "Tap to Speak", "idle"},
		{StatusListening, "Listening...", "listening"},
		{StatusSpeaking, "Speaking...", "speaking"},
		{Status(9), "Unknown", "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.Text(); got != tt.text {
			t.Errorf("Text() = %q, want %q", got, tt.text)
		}
		if got := tt.s.String(); got != tt.key {
			t.Errorf("String() = %q, want %q", got, tt.key)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for st := StatusDisconnected; st <= StatusSpeaking; st++ {
		if got, ok := ParseStatus(st.String()); !ok || got != st {
			t.Errorf("ParseStatus(%q) = %v, %v", st.String(), got, ok)
		}
	}
	if _, ok := ParseStatus("asleep"); ok {
		t.Error("unknown status should not parse")
	}
}

func TestDisplayDedupesStatus(t *testing.T) {
	book := logbook.New(10, 10)
	d := NewDisplay(book, nil)

	d.SetStatus(StatusDisconnected)
	d.SetStatus(StatusDisconnected)
	d.SetStatus(StatusIdle)
	d.SetStatus(StatusIdle)
	d.Log("Connected to: 71:13")

	lines := book.Recent(0)
	want := []string{"Status: Not Connected", "Status: Tap to Speak", "Connected to: 71:13"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %+v", len(lines), len(want), lines)
	}
	for i, w := range want {
		if lines[i].Text != w {
			t.Errorf("line %d = %q, want %q", i, lines[i].Text, w)
		}
	}
	if d.Status() != StatusIdle {
		t.Errorf("Status() = %v, want idle", d.Status())
	}
}

func TestLineInputPulses(t *testing.T) {
	in := NewLineInput(strings.NewReader("\n\n"))

	select {
	case <-in.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not finish")
	}

	got := make([]bool, 6)
	for i := range got {
		got[i] = in.PollTrigger()
	}
	want := []bool{true, false, true, false, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("poll %d = %v, want %v (all %v)", i, got[i], want[i], got)
		}
	}
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestKitClose(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("")}
	in := NewLineInput(src)
	dev := NewNullAudio()
	k := &Kit{Presenter: NewDisplay(nil, nil), InputSource: in, Device: dev, Closers: []io.Closer{in}}

	if k.Audio() != dev {
		t.Error("Audio() should return the device")
	}
	if err := k.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if !src.closed {
		t.Error("Close should close the input reader")
	}
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("busy") }

func TestKitCloseJoinsErrors(t *testing.T) {
	k := &Kit{Device: NewNullAudio(), Closers: []io.Closer{failingCloser{}}}
	if err := k.Close(); err == nil || !strings.Contains(err.Error(), "busy") {
		t.Errorf("Close() = %v, want busy", err)
	}
}

func TestNullAudio(t *testing.T) {
	n := NewNullAudio()
	if n.SampleRate() != 8000 {
		t.Errorf("initial rate = %d, want 8000", n.SampleRate())
	}

	if w, _ := n.Write(make([]byte, 320)); w != 320 {
		t.Errorf("Write = %d, want 320", w)
	}
	if r, err := n.Read(make([]byte, 320)); r != 0 || err != nil {
		t.Errorf("Read = %d, %v, want 0, nil", r, err)
	}

	_ = n.Stop()
	_ = n.Reconfigure(16000)
	if n.SampleRate() != 16000 {
		t.Errorf("rate after reconfigure = %d", n.SampleRate())
	}
	if n.Written() != 320 {
		t.Errorf("Written() = %d", n.Written())
	}
}
