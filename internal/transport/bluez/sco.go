package bluez

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/openbadge/bridge/internal/hfp"
	"github.com/openbadge/bridge/internal/transport"
)

// maxSCOPacket bounds a single SCO read. Controllers use 48 or 60 byte
// packets; larger MTUs are still read whole.
const maxSCOPacket = 1024

// scoLink pumps one voice connection. The link is clocked by the phone: each
// packet read is answered with a packet of the same size pulled from the
// outbound source, padded with silence.
type scoLink struct {
	fd    int
	codec hfp.Codec

	pull    func() transport.OutboundAudioFunc
	inbound func([]byte)
	onEnd   func(l *scoLink, err error)

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newSCOLink(fd int, codec hfp.Codec) *scoLink {
	return &scoLink{fd: fd, codec: codec, done: make(chan struct{})}
}

func (l *scoLink) run() {
	buf := make([]byte, maxSCOPacket)
	var err error
	defer func() {
		l.release()
		close(l.done)
		if l.onEnd != nil {
			l.onEnd(l, err)
		}
	}()

	for {
		var n int
		n, err = unix.Read(l.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			return
		}
		if l.inbound != nil {
			l.inbound(append([]byte(nil), buf[:n]...))
		}
		if err = l.answer(n); err != nil {
			return
		}
	}
}

func (l *scoLink) answer(size int) error {
	out := make([]byte, size)
	if l.pull != nil {
		if fn := l.pull(); fn != nil {
			copy(out, fn(size))
		}
	}
	for len(out) > 0 {
		n, err := unix.Write(l.fd, out)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		out = out[n:]
	}
	return nil
}

// stop shuts the socket down, which unblocks the reader, and waits for the
// pump to exit.
func (l *scoLink) stop() {
	l.mu.Lock()
	if !l.closed {
		_ = unix.Shutdown(l.fd, unix.SHUT_RDWR)
	}
	l.mu.Unlock()
	<-l.done
}

func (l *scoLink) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		_ = unix.Close(l.fd)
	}
}

func closeFD(fd int) error { return unix.Close(fd) }
