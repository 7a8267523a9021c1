package socket

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
)

// ErrServerClosed is the "no socket" result every Accept resolves to once the
// server socket is closed.
var ErrServerClosed = errors.New("server socket is closed")

// ServerSocket is a passive listener bound to one logical service identifier.
// Its life is one-directional: it listens, produces zero or more sockets, and
// is closed exactly once.
type ServerSocket struct {
	id      string
	ln      net.Listener
	closed  atomic.Bool
	onClose func()
}

// NewServer wraps a bound listener. onClose, if non-nil, runs exactly once
// when the server socket closes; media use it to release the identifier
// binding.
func NewServer(id string, ln net.Listener, onClose func()) *ServerSocket {
	return &ServerSocket{id: id, ln: ln, onClose: onClose}
}

// ID returns the logical service identifier this listener is bound to.
func (s *ServerSocket) ID() string {
	return s.id
}

// Addr returns the transport address the listener is bound to.
func (s *ServerSocket) Addr() net.Addr {
	return s.ln.Addr()
}

// Accept blocks until an inbound connection arrives or the server socket is
// closed. A concurrent Close resolves a pending Accept to ErrServerClosed
// rather than leaving it parked; once closed, every Accept fails immediately.
func (s *ServerSocket) Accept() (*Socket, error) {
	if s.closed.Load() {
		return nil, ErrServerClosed
	}
	conn, err := s.ln.Accept()
	if err != nil {
		if s.closed.Load() {
			return nil, ErrServerClosed
		}
		return nil, fmt.Errorf("accept on %q: %w", s.id, err)
	}
	if s.closed.Load() {
		// Close raced us past the native accept; the connection must not
		// escape a closed server socket.
		_ = conn.Close()
		return nil, ErrServerClosed
	}
	return New(conn), nil
}

// Close releases the listening resource and unblocks pending Accepts. It is
// idempotent and a teardown fault still leaves the socket closed.
func (s *ServerSocket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.ln.Close()
	if s.onClose != nil {
		s.onClose()
	}
	if err != nil {
		return fmt.Errorf("close listener %q: %w", s.id, err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *ServerSocket) Closed() bool {
	return s.closed.Load()
}
