package board

import (
	"bufio"
	"io"
	"log/slog"
	"sync/atomic"
)

// LineInput turns each line read from r into one press of the trigger. It
// stands in for the touch screen or button on boards driven from a terminal.
type LineInput struct {
	pending atomic.Int32
	high    atomic.Bool
	done    chan struct{}
	closer  io.Closer
}

// NewLineInput starts reading lines from r. If r is an io.Closer, Close
// closes it.
func NewLineInput(r io.Reader) *LineInput {
	in := &LineInput{done: make(chan struct{})}
	if c, ok := r.(io.Closer); ok {
		in.closer = c
	}
	go in.read(r)
	return in
}

func (in *LineInput) read(r io.Reader) {
	defer close(in.done)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		in.Press()
	}
	if err := sc.Err(); err != nil {
		slog.Debug("line input stopped", "error", err)
	}
}

// Press queues one press.
func (in *LineInput) Press() {
	in.pending.Add(1)
}

// PollTrigger reports the level for this tick. A press is high for one poll
// and always followed by a low poll, so back-to-back presses stay distinct
// edges.
func (in *LineInput) PollTrigger() bool {
	if in.high.Load() {
		in.high.Store(false)
		return false
	}
	for {
		n := in.pending.Load()
		if n <= 0 {
			return false
		}
		if in.pending.CompareAndSwap(n, n-1) {
			in.high.Store(true)
			return true
		}
	}
}

// Done is closed once the reader reaches EOF.
func (in *LineInput) Done() <-chan struct{} { return in.done }

// Close closes the underlying reader if it is closable.
func (in *LineInput) Close() error {
	if in.closer != nil {
		return in.closer.Close()
	}
	return nil
}
