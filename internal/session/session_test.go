package session

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openbadge/bridge/internal/board"
	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/hfp"
	"github.com/openbadge/bridge/internal/transport"
)

var peer = hfp.Address{0x00, 0x1A, 0x7D, 0xDA, 0x71, 0x13}

type recordingPresenter struct {
	mu       sync.Mutex
	statuses []board.Status
	lines    []string
}

func (p *recordingPresenter) SetStatus(s board.Status) {
	p.mu.Lock()
	p.statuses = append(p.statuses, s)
	p.mu.Unlock()
}

func (p *recordingPresenter) Log(msg string) {
	p.mu.Lock()
	p.lines = append(p.lines, msg)
	p.mu.Unlock()
}

type recordingReconfigurer struct {
	rates []int
}

func (r *recordingReconfigurer) OnCodecChanged(rate int) { r.rates = append(r.rates, rate) }

type fixture struct {
	m     *Machine
	tr    *transport.Loopback
	ui    *recordingPresenter
	rc    *recordingReconfigurer
	slept []time.Duration
}

func newFixture() *fixture {
	f := &fixture{tr: transport.NewLoopback(), ui: &recordingPresenter{}, rc: &recordingReconfigurer{}}
	f.m = New(f.tr, f.rc, f.ui, WithSleep(func(d time.Duration) { f.slept = append(f.slept, d) }))
	return f
}

func link(s hfp.LinkState) transport.Event {
	return transport.LinkStateEvent{State: s, Peer: peer}
}

func audio(s hfp.AudioState, c hfp.Codec) transport.Event {
	return transport.AudioStateEvent{State: s, Codec: c}
}

func (f *fixture) feed(evs ...transport.Event) {
	for _, ev := range evs {
		f.m.Handle(ev)
	}
}

func (f *fixture) toSLC() {
	f.feed(link(hfp.LinkConnecting), link(hfp.LinkConnected), link(hfp.LinkServiceLevelConnected))
}

func TestInitialState(t *testing.T) {
	f := newFixture()
	s := f.m.Snapshot()
	if s.Link != hfp.LinkDisconnected || s.Audio != hfp.AudioIdle || !s.Peer.IsZero() {
		t.Errorf("initial session = %+v", s)
	}
	if f.m.IsServiceLevelConnected() || f.m.IsAudioActive() || f.m.IsWideband() {
		t.Error("fresh machine should report nothing connected")
	}
}

func TestWidebandScenario(t *testing.T) {
	f := newFixture()
	f.toSLC()
	f.feed(audio(hfp.AudioConnecting, 0), audio(hfp.AudioActive, hfp.CodecWideband))

	if f.m.CanTrigger() {
		t.Error("CanTrigger() should be false while audio is active")
	}
	if !f.m.IsWideband() {
		t.Error("IsWideband() should be true")
	}
	if len(f.rc.rates) != 1 || f.rc.rates[0] != 16000 {
		t.Errorf("reconfigures = %v, want [16000]", f.rc.rates)
	}
	if s := f.m.Snapshot(); s.Peer != peer {
		t.Errorf("peer = %v, want %v", s.Peer, peer)
	}
}

func TestCodecTransitions(t *testing.T) {
	tests := []struct {
		name   string
		events []transport.Event
		want   []int
	}{
		{"narrowband", []transport.Event{audio(hfp.AudioActive, hfp.CodecNarrowband)}, []int{8000}},
		{"repeat ignored", []transport.Event{
			audio(hfp.AudioActive, hfp.CodecWideband),
			audio(hfp.AudioActive, hfp.CodecWideband),
		}, []int{16000}},
		{"codec change while active", []transport.Event{
			audio(hfp.AudioActive, hfp.CodecWideband),
			audio(hfp.AudioActive, hfp.CodecNarrowband),
		}, []int{16000, 8000}},
		{"reopen after idle", []transport.Event{
			audio(hfp.AudioActive, hfp.CodecNarrowband),
			audio(hfp.AudioIdle, 0),
			audio(hfp.AudioActive, hfp.CodecNarrowband),
		}, []int{8000, 8000}},
		{"connecting is not active", []transport.Event{audio(hfp.AudioConnecting, hfp.CodecWideband)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.toSLC()
			f.feed(tt.events...)
			if len(f.rc.rates) != len(tt.want) {
				t.Fatalf("reconfigures = %v, want %v", f.rc.rates, tt.want)
			}
			for i := range tt.want {
				if f.rc.rates[i] != tt.want[i] {
					t.Errorf("reconfigures = %v, want %v", f.rc.rates, tt.want)
				}
			}
		})
	}
}

func TestDisconnectFromAnyState(t *testing.T) {
	setups := map[string][]transport.Event{
		"disconnected":  nil,
		"connecting":    {link(hfp.LinkConnecting)},
		"connected":     {link(hfp.LinkConnected)},
		"slc":           {link(hfp.LinkServiceLevelConnected)},
		"audio pending": {link(hfp.LinkServiceLevelConnected), audio(hfp.AudioConnecting, 0)},
		"audio active":  {link(hfp.LinkServiceLevelConnected), audio(hfp.AudioActive, hfp.CodecWideband)},
		"disconnecting": {link(hfp.LinkServiceLevelConnected), link(hfp.LinkDisconnecting)},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.feed(setup...)
			f.feed(link(hfp.LinkDisconnected))

			s := f.m.Snapshot()
			if s.Link != hfp.LinkDisconnected || s.Audio != hfp.AudioIdle {
				t.Errorf("after disconnect = %+v", s)
			}
			if f.m.IsWideband() {
				t.Error("IsWideband() must be false after disconnect")
			}
		})
	}
}

func TestPeerRetainedAcrossDisconnect(t *testing.T) {
	f := newFixture()
	f.toSLC()
	f.feed(link(hfp.LinkDisconnected))
	if s := f.m.Snapshot(); s.Peer != peer {
		t.Errorf("peer = %v, want last known %v", s.Peer, peer)
	}

	other := hfp.Address{1, 2, 3, 4, 5, 6}
	f.feed(transport.LinkStateEvent{State: hfp.LinkConnected, Peer: other})
	if s := f.m.Snapshot(); s.Peer != other {
		t.Errorf("peer = %v, want %v", s.Peer, other)
	}
}

func TestReadySignalOncePerEntry(t *testing.T) {
	f := newFixture()
	f.toSLC()
	f.feed(link(hfp.LinkServiceLevelConnected))

	ready := 0
	for _, s := range f.ui.statuses {
		if s == board.StatusIdle {
			ready++
		}
	}
	if ready != 1 {
		t.Errorf("ready signalled %d times, want 1 (statuses %v)", ready, f.ui.statuses)
	}

	f.feed(link(hfp.LinkDisconnected), link(hfp.LinkServiceLevelConnected))
	want := []board.Status{board.StatusIdle, board.StatusDisconnected, board.StatusIdle}
	if len(f.ui.statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", f.ui.statuses, want)
	}
	for i := range want {
		if f.ui.statuses[i] != want[i] {
			t.Errorf("statuses = %v, want %v", f.ui.statuses, want)
		}
	}
}

func TestRepeatedDisconnectShowsStatusOnce(t *testing.T) {
	f := newFixture()
	f.feed(link(hfp.LinkDisconnected), link(hfp.LinkDisconnected))
	if len(f.ui.statuses) != 0 {
		t.Errorf("statuses = %v, want none from an already disconnected link", f.ui.statuses)
	}
}

func TestAudioWithoutSLCIsClamped(t *testing.T) {
	f := newFixture()
	f.feed(link(hfp.LinkConnected), audio(hfp.AudioActive, hfp.CodecWideband))

	s := f.m.Snapshot()
	if s.Audio != hfp.AudioIdle {
		t.Errorf("audio = %v, want idle", s.Audio)
	}
	if s.Link != hfp.LinkConnected {
		t.Errorf("link = %v, anomaly must not change link", s.Link)
	}
	if len(f.rc.rates) != 0 {
		t.Errorf("anomaly reconfigured %v", f.rc.rates)
	}
	want := "Audio active ignored: no HFP link"
	if n := len(f.ui.lines); n == 0 || f.ui.lines[n-1] != want {
		t.Errorf("lines = %q, want last %q", f.ui.lines, want)
	}
}

func TestLateAudioIdleAfterDisconnect(t *testing.T) {
	f := newFixture()
	f.toSLC()
	f.feed(audio(hfp.AudioActive, hfp.CodecWideband))
	f.ui.lines = nil

	f.feed(link(hfp.LinkDisconnected), audio(hfp.AudioIdle, 0))

	if len(f.ui.lines) != 1 || f.ui.lines[0] != "Disconnected" {
		t.Errorf("lines = %q, want only %q", f.ui.lines, "Disconnected")
	}
	if s := f.m.Snapshot(); s.Link != hfp.LinkDisconnected || s.Audio != hfp.AudioIdle {
		t.Errorf("session = %+v", s)
	}
}

func TestLinkDowngradeForcesAudioIdle(t *testing.T) {
	f := newFixture()
	f.toSLC()
	f.feed(audio(hfp.AudioActive, hfp.CodecNarrowband), link(hfp.LinkConnected))

	if s := f.m.Snapshot(); s.Audio != hfp.AudioIdle || s.Link != hfp.LinkConnected {
		t.Errorf("after downgrade = %+v", s)
	}
}

func TestDiagnosticsDoNotChangeState(t *testing.T) {
	f := newFixture()
	f.toSLC()
	before := f.m.Snapshot()
	f.feed(
		transport.DiagnosticEvent{Source: "agent", Message: "pairing confirmed"},
		transport.DiagnosticEvent{Source: "avrcp", Message: "passthrough rejected", Err: errors.New("not supported")},
		transport.InboundAudioEvent{Data: []byte{1, 2}},
	)
	if after := f.m.Snapshot(); after != before {
		t.Errorf("session changed: %+v -> %+v", before, after)
	}
	want := []string{"agent: pairing confirmed", "avrcp: passthrough rejected (not supported)"}
	got := f.ui.lines[len(f.ui.lines)-len(want):]
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCanTriggerTruthTable(t *testing.T) {
	tests := []struct {
		name    string
		setup   []transport.Event
		want    bool
		wantErr error
	}{
		{"disconnected", nil, false, ErrNotReady},
		{"connected only", []transport.Event{link(hfp.LinkConnected)}, false, ErrNotReady},
		{"slc idle", []transport.Event{link(hfp.LinkServiceLevelConnected)}, true, nil},
		{"slc connecting", []transport.Event{link(hfp.LinkServiceLevelConnected), audio(hfp.AudioConnecting, 0)}, false, ErrSessionActive},
		{"slc active", []transport.Event{link(hfp.LinkServiceLevelConnected), audio(hfp.AudioActive, hfp.CodecNarrowband)}, false, ErrSessionActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.feed(tt.setup...)
			if got := f.m.CanTrigger(); got != tt.want {
				t.Errorf("CanTrigger() = %v, want %v", got, tt.want)
			}
			if err := f.m.TriggerBlocker(); !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Errorf("TriggerBlocker() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanTriggerLogsReason(t *testing.T) {
	f := newFixture()
	f.m.CanTrigger()
	if len(f.ui.lines) != 1 || f.ui.lines[0] != "Cannot trigger - not connected" {
		t.Errorf("lines = %v", f.ui.lines)
	}
}

func TestInvariantUnderRandomEvents(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	links := []hfp.LinkState{hfp.LinkDisconnected, hfp.LinkConnecting, hfp.LinkConnected, hfp.LinkServiceLevelConnected, hfp.LinkDisconnecting}
	audios := []hfp.AudioState{hfp.AudioIdle, hfp.AudioConnecting, hfp.AudioActive}
	codecs := []hfp.Codec{hfp.CodecNarrowband, hfp.CodecWideband}

	f := newFixture()
	for i := 0; i < 5000; i++ {
		if rng.IntN(2) == 0 {
			f.feed(link(links[rng.IntN(len(links))]))
		} else {
			f.feed(audio(audios[rng.IntN(len(audios))], codecs[rng.IntN(len(codecs))]))
		}
		s := f.m.Snapshot()
		if s.Link != hfp.LinkServiceLevelConnected && s.Audio != hfp.AudioIdle {
			t.Fatalf("step %d: audio %v while link %v", i, s.Audio, s.Link)
		}
		if s.Audio != hfp.AudioActive && f.m.IsWideband() {
			t.Fatalf("step %d: wideband reported while audio %v", i, s.Audio)
		}
	}
}

func TestSendMediaButton(t *testing.T) {
	f := newFixture()
	f.toSLC()

	if err := f.m.SendMediaButton(); err != nil {
		t.Fatalf("SendMediaButton() = %v", err)
	}

	cmds := f.tr.Commands()
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want press and release", len(cmds))
	}
	if *cmds[0].Passthrough != hfp.PassthroughPlay || !cmds[0].Pressed {
		t.Errorf("first command = %+v, want Play pressed", cmds[0])
	}
	if *cmds[1].Passthrough != hfp.PassthroughPlay || cmds[1].Pressed {
		t.Errorf("second command = %+v, want Play released", cmds[1])
	}
	if len(f.slept) != 1 || f.slept[0] != DefaultPressDelay {
		t.Errorf("slept %v, want [%v]", f.slept, DefaultPressDelay)
	}
}

func TestSendMediaButtonCustomDelay(t *testing.T) {
	var slept time.Duration
	m := New(transport.NewLoopback(), nil, &recordingPresenter{},
		WithPressDelay(250*time.Millisecond),
		WithSleep(func(d time.Duration) { slept = d }))
	m.Handle(link(hfp.LinkServiceLevelConnected))

	if err := m.SendMediaButton(); err != nil {
		t.Fatal(err)
	}
	if slept != 250*time.Millisecond {
		t.Errorf("slept %v, want 250ms", slept)
	}
}

func TestSendMediaButtonNotConnected(t *testing.T) {
	f := newFixture()
	if err := f.m.SendMediaButton(); !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
	if len(f.tr.Commands()) != 0 {
		t.Error("no command should be sent without SLC")
	}
}

func TestSendMediaButtonPressFailureSkipsRelease(t *testing.T) {
	f := newFixture()
	f.toSLC()
	f.tr.FailNext(errors.New("org.bluez.Error.Failed"))

	err := f.m.SendMediaButton()
	if !apperrors.IsCode(err, apperrors.CodeCommandRejected) {
		t.Errorf("err = %v, want COMMAND_REJECTED", err)
	}
	if len(f.tr.Commands()) != 0 {
		t.Errorf("release sent after failed press: %+v", f.tr.Commands())
	}
	if len(f.slept) != 0 {
		t.Error("should not wait after a failed press")
	}
	if s := f.m.Snapshot(); s.Link != hfp.LinkServiceLevelConnected {
		t.Errorf("failure changed state: %+v", s)
	}
}

func TestVoiceRecognition(t *testing.T) {
	f := newFixture()

	if err := f.m.SendVoiceRecognitionStart(); !errors.Is(err, ErrNotReady) {
		t.Errorf("start without SLC = %v", err)
	}
	if err := f.m.SendVoiceRecognitionStop(); err != nil {
		t.Errorf("stop without audio = %v, want nil", err)
	}
	if len(f.tr.Commands()) != 0 {
		t.Fatalf("commands sent while disconnected: %+v", f.tr.Commands())
	}

	f.toSLC()
	if err := f.m.SendVoiceRecognitionStart(); err != nil {
		t.Fatal(err)
	}
	_ = f.m.SendVoiceRecognitionStop()

	f.feed(audio(hfp.AudioActive, hfp.CodecNarrowband))
	if err := f.m.SendVoiceRecognitionStop(); err != nil {
		t.Fatal(err)
	}

	cmds := f.tr.Commands()
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want start and stop", len(cmds))
	}
	if !*cmds[0].VoiceRecognition || *cmds[1].VoiceRecognition {
		t.Errorf("commands = %+v, want [on off]", cmds)
	}
}

func TestSessionJSONCodec(t *testing.T) {
	tests := []struct {
		name    string
		s       Session
		want    string
		wantOut bool
	}{
		{"idle", Session{Link: hfp.LinkServiceLevelConnected, Audio: hfp.AudioIdle, Peer: peer}, "", false},
		{"connecting", Session{Link: hfp.LinkServiceLevelConnected, Audio: hfp.AudioConnecting, Peer: peer}, "", false},
		{"narrowband", Session{Link: hfp.LinkServiceLevelConnected, Audio: hfp.AudioActive, Codec: hfp.CodecNarrowband, Peer: peer}, `"codec":"cvsd"`, true},
		{"wideband", Session{Link: hfp.LinkServiceLevelConnected, Audio: hfp.AudioActive, Codec: hfp.CodecWideband, Peer: peer}, `"codec":"msbc"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.s)
			if err != nil {
				t.Fatal(err)
			}
			out := string(data)
			if got := strings.Contains(out, `"codec"`); got != tt.wantOut {
				t.Fatalf("json = %s, codec present = %v, want %v", out, got, tt.wantOut)
			}
			if tt.wantOut && !strings.Contains(out, tt.want) {
				t.Errorf("json = %s, want %s", out, tt.want)
			}

			var back Session
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatal(err)
			}
			if back != tt.s {
				t.Errorf("decoded = %+v, want %+v", back, tt.s)
			}
		})
	}
}
