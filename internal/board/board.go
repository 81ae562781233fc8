// Package board describes the hardware capability set the bridge runs on:
// a status surface, a trigger input and the local audio device.
package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/openbadge/bridge/internal/orchestrator/audio"
)

// Status is what the badge shows to the wearer.
type Status int

const (
	StatusDisconnected Status = iota
	StatusIdle
	StatusListening
	StatusSpeaking
)

// Text returns the on-screen text for the status.
func (s Status) Text() string {
	switch s {
	case StatusDisconnected:
		return "Not Connected"
	case StatusIdle:
		return "Tap to Speak"
	case StatusListening:
		return "Listening..."
	case StatusSpeaking:
		return "Speaking..."
	}
	return "Unknown"
}

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusIdle:
		return "idle"
	case StatusListening:
		return "listening"
	case StatusSpeaking:
		return "speaking"
	}
	return "unknown"
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	st, ok := ParseStatus(name)
	if !ok {
		return fmt.Errorf("board: unknown status %q", name)
	}
	*s = st
	return nil
}

// ParseStatus maps a String form back to its Status.
func ParseStatus(name string) (Status, bool) {
	for st := StatusDisconnected; st <= StatusSpeaking; st++ {
		if st.String() == name {
			return st, true
		}
	}
	return 0, false
}

// Presenter shows status and log lines to the wearer.
type Presenter interface {
	SetStatus(s Status)
	Log(msg string)
}

// InputSource is the push-to-talk control. PollTrigger returns the raw level;
// edge detection happens in the caller.
type InputSource interface {
	PollTrigger() bool
}

// Board is one hardware target.
type Board interface {
	Presenter
	InputSource
	Audio() audio.Device
	Close() error
}

// Kit assembles a Board from its parts.
type Kit struct {
	Presenter
	InputSource
	Device  audio.Device
	Closers []io.Closer
}

// Audio returns the local audio device.
func (k *Kit) Audio() audio.Device { return k.Device }

// Close stops the audio device and releases the input sources.
func (k *Kit) Close() error {
	var errs []error
	if k.Device != nil {
		errs = append(errs, k.Device.Stop())
	}
	for _, c := range k.Closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

var _ Board = (*Kit)(nil)
