package transport

import (
	"errors"
	"testing"

	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/hfp"
)

func TestLoopbackConnectSequence(t *testing.T) {
	l := NewLoopback()
	peer := hfp.Address{1, 2, 3, 4, 5, 6}

	l.Connect(peer)
	l.OpenAudio(hfp.CodecWideband)

	want := []Event{
		LinkStateEvent{State: hfp.LinkConnecting, Peer: peer},
		LinkStateEvent{State: hfp.LinkConnected, Peer: peer},
		LinkStateEvent{State: hfp.LinkServiceLevelConnected, Peer: peer},
		AudioStateEvent{State: hfp.AudioConnecting},
		AudioStateEvent{State: hfp.AudioActive, Codec: hfp.CodecWideband},
	}
	for i, w := range want {
		got := <-l.Events()
		if got != w {
			t.Errorf("event %d = %v, want %v", i, got, w)
		}
	}
}

func TestLoopbackRecordsCommands(t *testing.T) {
	l := NewLoopback()

	if err := l.SendPassthrough(hfp.PassthroughPlay, true); err != nil {
		t.Fatal(err)
	}
	if err := l.SendPassthrough(hfp.PassthroughPlay, false); err != nil {
		t.Fatal(err)
	}
	if err := l.SendVoiceRecognition(true); err != nil {
		t.Fatal(err)
	}

	cmds := l.Commands()
	if len(cmds) != 3 {
		t.Fatalf("got %d commands, want 3", len(cmds))
	}
	if cmds[0].Passthrough == nil || *cmds[0].Passthrough != hfp.PassthroughPlay || !cmds[0].Pressed {
		t.Errorf("cmd 0 = %+v, want Play pressed", cmds[0])
	}
	if cmds[1].Pressed {
		t.Error("cmd 1 should be a release")
	}
	if cmds[2].VoiceRecognition == nil || !*cmds[2].VoiceRecognition {
		t.Errorf("cmd 2 = %+v, want voice recognition on", cmds[2])
	}

	l.Reset()
	if len(l.Commands()) != 0 {
		t.Error("Reset should clear commands")
	}
}

func TestLoopbackFailNext(t *testing.T) {
	l := NewLoopback()
	l.FailNext(errors.New("org.bluez.Error.NotConnected"))

	err := l.SendVoiceRecognition(true)
	if !apperrors.IsCode(err, apperrors.CodeCommandRejected) {
		t.Errorf("err = %v, want COMMAND_REJECTED", err)
	}
	if len(l.Commands()) != 0 {
		t.Error("failed command should not be recorded")
	}
	if err := l.SendVoiceRecognition(true); err != nil {
		t.Errorf("failure should apply once, got %v", err)
	}
}

func TestLoopbackOutboundPull(t *testing.T) {
	l := NewLoopback()
	if got := l.PullOutbound(320); got != nil {
		t.Errorf("no pull registered: got %v", got)
	}

	l.RegisterOutboundAudio(func(max int) []byte { return make([]byte, max/2) })
	if got := l.PullOutbound(320); len(got) != 160 {
		t.Errorf("pulled %d bytes, want 160", len(got))
	}
}

func TestLoopbackClose(t *testing.T) {
	l := NewLoopback()
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	_ = l.Close()

	l.Inject(DiagnosticEvent{Source: "test", Message: "after close"})
	if _, ok := <-l.Events(); ok {
		t.Error("events channel should be closed")
	}
	if err := l.SendVoiceRecognition(false); !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Errorf("command after close = %v, want UNAVAILABLE", err)
	}
}

func TestEventStrings(t *testing.T) {
	tests := []struct {
		ev   interface{ String() string }
		want string
	}{
		{LinkStateEvent{State: hfp.LinkDisconnected}, "link disconnected"},
		{LinkStateEvent{State: hfp.LinkConnected, Peer: hfp.Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}}, "link connected peer=AA:BB:CC:DD:EE:FF"},
		{AudioStateEvent{State: hfp.AudioActive, Codec: hfp.CodecNarrowband}, "audio active codec=cvsd"},
		{AudioStateEvent{State: hfp.AudioIdle}, "audio idle"},
		{DiagnosticEvent{Source: "agent", Message: "paired"}, "agent: paired"},
	}
	for _, tt := range tests {
		if got := tt.ev.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
