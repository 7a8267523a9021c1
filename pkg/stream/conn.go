package stream

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ConnInput is an Input over the read half of a connection. Close marks the
// stream closed and runs the optional closer; a reader blocked in Read is
// unblocked by whoever tears down the underlying connection (normally the
// owning socket).
type ConnInput struct {
	r      io.Reader
	closer func() error
	closed atomic.Bool
}

// NewInput wraps r. closer, if non-nil, is invoked exactly once on Close.
func NewInput(r io.Reader, closer func() error) *ConnInput {
	return &ConnInput{r: r, closer: closer}
}

// Read returns up to maxSize bytes from the connection.
func (s *ConnInput) Read(maxSize int) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if maxSize <= 0 {
		return []byte{}, nil
	}
	buf := make([]byte, maxSize)
	n, err := s.r.Read(buf)
	if n > 0 {
		// Deliver the bytes; a terminal error resurfaces on the next call.
		return buf[:n], nil
	}
	if err != nil {
		if s.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("stream read: %w", err)
	}
	return []byte{}, nil
}

// Close marks the stream closed and releases the read half.
func (s *ConnInput) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.closer == nil {
		return nil
	}
	if err := s.closer(); err != nil {
		return fmt.Errorf("stream close: %w", err)
	}
	return nil
}

// ConnOutput is an Output over the write half of a connection. Writes are
// buffered; Flush pushes them to the wire. Concurrent Write/Flush calls are
// serialized.
type ConnOutput struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer func() error
	closed atomic.Bool
}

// NewOutput wraps w. closer, if non-nil, is invoked exactly once on Close.
func NewOutput(w io.Writer, closer func() error) *ConnOutput {
	return &ConnOutput{w: bufio.NewWriter(w), closer: closer}
}

// Write buffers p for delivery. The bytes are guaranteed to have left this
// component only after a successful Flush.
func (s *ConnOutput) Write(p []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	if _, err := s.w.Write(p); err != nil {
		return fmt.Errorf("stream write: %w", err)
	}
	return nil
}

// Flush forces buffered bytes down to the connection.
func (s *ConnOutput) Flush() error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("stream flush: %w", err)
	}
	return nil
}

// Close marks the stream closed and releases the write half. Buffered bytes
// that were never flushed are discarded: delivery is guaranteed only by a
// successful Flush. Close does not take the mutex, so a Flush parked on a
// non-reading peer cannot stall it; releasing the connection is what
// unblocks that writer.
func (s *ConnOutput) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.closer == nil {
		return nil
	}
	if err := s.closer(); err != nil {
		return fmt.Errorf("stream close: %w", err)
	}
	return nil
}
