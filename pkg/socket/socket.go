// Package socket wraps one established connection into the socket and stream
// lifecycle shared by every medium backend: streams are valid only while the
// socket is open, Close is idempotent and a teardown fault still leaves the
// socket closed.
package socket

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/rescp17/lanLinker/pkg/discovery"
	"github.com/rescp17/lanLinker/pkg/stream"
)

// ErrSocketClosed is returned by accessors once Close has been observed.
var ErrSocketClosed = errors.New("socket is closed")

// Socket owns exactly one established connection and its stream pair. The
// socket is the sole owner of both streams; they are invalidated, not handed
// over, when the socket closes.
type Socket struct {
	conn      net.Conn
	in        *stream.ConnInput
	out       *stream.ConnOutput
	remote    discovery.ServiceInfo
	hasRemote bool
	closed    atomic.Bool
}

// Option configures a Socket at construction time.
type Option func(*Socket)

// WithRemote attaches the peer identity the connection was made to or
// accepted from.
func WithRemote(info discovery.ServiceInfo) Option {
	return func(s *Socket) {
		s.remote = info
		s.hasRemote = true
	}
}

// New wraps an already-established connection. The connection is owned by the
// returned socket from this point on.
func New(conn net.Conn, opts ...Option) *Socket {
	s := &Socket{
		conn: conn,
		// The conn is released once, by Socket.Close; the streams only mark
		// themselves closed.
		in:  stream.NewInput(conn, nil),
		out: stream.NewOutput(conn, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Input returns the socket's input stream. It fails once the socket closed,
// instead of handing out a reference to released resources.
func (s *Socket) Input() (stream.Input, error) {
	if s.closed.Load() {
		return nil, ErrSocketClosed
	}
	return s.in, nil
}

// Output returns the socket's output stream, failing after close.
func (s *Socket) Output() (stream.Output, error) {
	if s.closed.Load() {
		return nil, ErrSocketClosed
	}
	return s.out, nil
}

// Remote returns the peer identity, if the link layer supplied one.
func (s *Socket) Remote() (discovery.ServiceInfo, bool) {
	return s.remote, s.hasRemote
}

// RemoteAddr exposes the transport-level peer address.
func (s *Socket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// LocalAddr exposes the transport-level local address.
func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close releases the connection and invalidates both streams. It is
// idempotent; the first call decides the outcome and later calls return nil.
// The connection is released before the streams are marked closed: that
// teardown is what unblocks a reader or writer parked inside them, so Close
// itself never waits on in-flight I/O. A teardown fault is reported but the
// socket still ends up permanently closed.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	cerr := s.conn.Close()
	_ = s.out.Close()
	_ = s.in.Close()
	if cerr != nil {
		return fmt.Errorf("socket close: %w", cerr)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Socket) Closed() bool {
	return s.closed.Load()
}
