package stream

import "errors"

// ErrClosed is returned by every operation on a stream after Close has been
// observed. Callers can rely on ErrClosed instead of racing the underlying
// connection teardown.
var ErrClosed = errors.New("stream is closed")

// Input is a readable byte channel. Implementations report broken or closed
// channels as errors; they never panic and never block after Close.
type Input interface {
	// Read returns up to maxSize bytes. An empty, non-nil slice with a nil
	// error is a valid result and signals transient no-data.
	Read(maxSize int) ([]byte, error)
	// Close releases the underlying resource. It is idempotent: the second
	// and later calls return nil without further effect.
	Close() error
}

// Output is a writable byte channel with explicit flush.
type Output interface {
	Write(p []byte) error
	// Flush forces buffered bytes down to the underlying connection.
	Flush() error
	Close() error
}
