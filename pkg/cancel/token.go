package cancel

import "sync"

// Token is a shared cancellation flag consulted by blocking operations such as
// Medium.ConnectToService. The caller sets it; the operation only reads it.
// A Token may be shared across several operations and outlive all of them.
//
// A nil *Token is valid and means "not cancellable".
type Token struct {
	once sync.Once
	done chan struct{}
}

// NewToken creates a token in the not-cancelled state.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the flag. Calling it more than once is safe and has no further
// effect. Cancel never blocks.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the token is cancelled.
// For a nil token it returns a nil channel, which blocks forever in a select.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}
