package hfp

import (
	"encoding/json"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Address
		wantErr bool
	}{
		{"colon upper", "AA:BB:CC:DD:EE:FF", Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, false},
		{"colon lower", "01:23:45:67:89:ab", Address{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB}, false},
		{"underscore", "01_23_45_67_89_AB", Address{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB}, false},
		{"too short", "AA:BB:CC", Address{}, true},
		{"bad hex", "GG:BB:CC:DD:EE:FF", Address{}, true},
		{"bad separator", "AA-BB-CC-DD-EE-FF", Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddressFormatting(t *testing.T) {
	a := Address{0x00, 0x1A, 0x7D, 0xDA, 0x71, 0x13}
	if got := a.String(); got != "00:1A:7D:DA:71:13" {
		t.Errorf("String() = %q", got)
	}
	if got := a.Short(); got != "71:13" {
		t.Errorf("Short() = %q", got)
	}
	if a.IsZero() {
		t.Error("IsZero() = true for non-zero address")
	}

	b, _ := json.Marshal(Address{})
	if string(b) != `""` {
		t.Errorf("zero address JSON = %s, want empty string", b)
	}
}

func TestCodecSampleRate(t *testing.T) {
	if got := CodecNarrowband.SampleRate(); got != 8000 {
		t.Errorf("narrowband rate = %d, want 8000", got)
	}
	if got := CodecWideband.SampleRate(); got != 16000 {
		t.Errorf("wideband rate = %d, want 16000", got)
	}

	for _, c := range []Codec{CodecNarrowband, CodecWideband} {
		back, ok := CodecForRate(c.SampleRate())
		if !ok || back != c {
			t.Errorf("CodecForRate(%d) = %v, %v", c.SampleRate(), back, ok)
		}
	}
	if _, ok := CodecForRate(44100); ok {
		t.Error("CodecForRate(44100) should fail")
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{LinkDisconnected.String(), "disconnected"},
		{LinkServiceLevelConnected.String(), "slc_connected"},
		{LinkState(42).String(), "unknown"},
		{AudioActive.String(), "active"},
		{CodecWideband.String(), "msbc"},
		{PassthroughPlay.String(), "Play"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}

	b, err := json.Marshal(struct {
		L LinkState  `json:"l"`
		A AudioState `json:"a"`
	}{LinkConnected, AudioConnecting})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"l":"connected","a":"connecting"}` {
		t.Errorf("JSON = %s", b)
	}
}

func TestDecodeSession(t *testing.T) {
	var got struct {
		L LinkState  `json:"l"`
		A AudioState `json:"a"`
		C Codec      `json:"c"`
		P Address    `json:"p"`
		Z Address    `json:"z"`
	}
	in := `{"l":"slc_connected","a":"active","c":"msbc","p":"00:1A:7D:DA:71:13","z":""}`
	if err := json.Unmarshal([]byte(in), &got); err != nil {
		t.Fatal(err)
	}
	if got.L != LinkServiceLevelConnected || got.A != AudioActive || got.C != CodecWideband {
		t.Errorf("decoded %v %v %v", got.L, got.A, got.C)
	}
	if got.P.String() != "00:1A:7D:DA:71:13" || !got.Z.IsZero() {
		t.Errorf("addresses = %v, %v", got.P, got.Z)
	}

	var ls LinkState
	if err := json.Unmarshal([]byte(`"sideways"`), &ls); err == nil {
		t.Error("unknown link state should fail")
	}
}
