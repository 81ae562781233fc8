// Package trigger turns a polled push-to-talk level into discrete presses.
package trigger

// State is the debouncer state.
type State int

const (
	// Idle means the input is released and the next high sample fires.
	Idle State = iota
	// Armed means the input is held; nothing fires until it is released.
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

// Debouncer fires once per rising edge of the polled input. It is owned by
// the poll loop and is not safe for concurrent use.
type Debouncer struct {
	last bool
}

// Poll feeds one sample and reports whether it is a new press.
func (d *Debouncer) Poll(raw bool) bool {
	fired := raw && !d.last
	d.last = raw
	return fired
}

// State returns Armed while the input is held.
func (d *Debouncer) State() State {
	if d.last {
		return Armed
	}
	return Idle
}

// Reset forgets the last sample.
func (d *Debouncer) Reset() {
	d.last = false
}
