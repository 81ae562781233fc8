// Package hfp defines the link, audio and remote-control vocabulary shared by
// the session core and the transports.
package hfp

import (
	"encoding/json"
	"fmt"
)

// LinkState is the control-channel lifecycle with a remote peer.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
	LinkServiceLevelConnected
	LinkDisconnecting
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "disconnected"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkServiceLevelConnected:
		return "slc_connected"
	case LinkDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s LinkState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *LinkState) UnmarshalJSON(data []byte) error {
	return unmarshalName(data, s, LinkDisconnected, LinkDisconnecting)
}

// AudioState is the synchronous voice sub-link state.
type AudioState int

const (
	AudioIdle AudioState = iota
	AudioConnecting
	AudioActive
)

func (s AudioState) String() string {
	switch s {
	case AudioIdle:
		return "idle"
	case AudioConnecting:
		return "connecting"
	case AudioActive:
		return "active"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s AudioState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *AudioState) UnmarshalJSON(data []byte) error {
	return unmarshalName(data, s, AudioIdle, AudioActive)
}

// Codec is the voice codec negotiated on the audio sub-link.
type Codec int

const (
	CodecNarrowband Codec = iota // CVSD, 8 kHz
	CodecWideband                // mSBC, 16 kHz
)

// Sample rates of the two codecs in Hz.
const (
	NarrowbandRate = 8000
	WidebandRate   = 16000
)

// SampleRate returns the PCM rate carried by the codec.
func (c Codec) SampleRate() int {
	if c == CodecWideband {
		return WidebandRate
	}
	return NarrowbandRate
}

func (c Codec) String() string {
	switch c {
	case CodecNarrowband:
		return "cvsd"
	case CodecWideband:
		return "msbc"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (c Codec) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Codec) UnmarshalJSON(data []byte) error {
	return unmarshalName(data, c, CodecNarrowband, CodecWideband)
}

// unmarshalName decodes the String form of an enum whose values run from
// first to last.
func unmarshalName[T interface {
	~int
	fmt.Stringer
}](data []byte, dst *T, first, last T) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for v := first; v <= last; v++ {
		if v.String() == name {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("hfp: unknown value %q", name)
}

// CodecForRate maps a sample rate back to its codec.
func CodecForRate(rate int) (Codec, bool) {
	switch rate {
	case NarrowbandRate:
		return CodecNarrowband, true
	case WidebandRate:
		return CodecWideband, true
	}
	return 0, false
}

// Address is a Bluetooth device address in transmission order as displayed.
type Address [6]byte

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (":" or "_" separated).
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) != 17 {
		return a, fmt.Errorf("hfp: invalid address %q", s)
	}
	for i := 0; i < 6; i++ {
		if i > 0 {
			if sep := s[i*3-1]; sep != ':' && sep != '_' {
				return a, fmt.Errorf("hfp: invalid address %q", s)
			}
		}
		hi, ok1 := fromHex(s[i*3])
		lo, ok2 := fromHex(s[i*3+1])
		if !ok1 || !ok2 {
			return a, fmt.Errorf("hfp: invalid address %q", s)
		}
		a[i] = hi<<4 | lo
	}
	return a, nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Short returns the last two bytes, enough to tell paired phones apart in logs.
func (a Address) Short() string {
	return fmt.Sprintf("%02X:%02X", a[4], a[5])
}

// IsZero reports whether no peer has been recorded.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalJSON implements json.Marshaler.
func (a Address) MarshalJSON() ([]byte, error) {
	if a.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(a.String())
}

// UnmarshalJSON implements json.Unmarshaler. An empty string is the zero
// address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// PassthroughCommand is an AVRCP passthrough operation.
type PassthroughCommand int

const (
	PassthroughPlay PassthroughCommand = iota
	PassthroughPause
	PassthroughStop
	PassthroughNext
	PassthroughPrevious
)

func (c PassthroughCommand) String() string {
	switch c {
	case PassthroughPlay:
		return "Play"
	case PassthroughPause:
		return "Pause"
	case PassthroughStop:
		return "Stop"
	case PassthroughNext:
		return "Next"
	case PassthroughPrevious:
		return "Previous"
	default:
		return "Unknown"
	}
}
