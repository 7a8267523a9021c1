package medium

import (
	"context"
	"fmt"
	"net"

	"github.com/rescp17/lanLinker/pkg/cancel"
)

// DialFunc establishes one transport connection. Implementations must honor
// ctx cancellation to keep connect abort latency bounded.
type DialFunc func(ctx context.Context) (net.Conn, error)

// DialWithToken runs dial and races it against tok. Setting the token makes
// the call return ErrCancelled promptly: the dial context is cancelled so a
// well-behaved dialer aborts, and a connection that still materializes
// afterwards is closed rather than leaked. A nil token never fires.
func DialWithToken(ctx context.Context, dial DialFunc, tok *cancel.Token) (net.Conn, error) {
	if tok.Cancelled() {
		return nil, ErrCancelled
	}

	dialCtx, cancelDial := context.WithCancel(ctx)

	ch := make(chan dialResult, 1)
	go func() {
		conn, err := dial(dialCtx)
		ch <- dialResult{conn, err}
	}()

	select {
	case res := <-ch:
		cancelDial()
		if res.err != nil {
			if tok.Cancelled() {
				return nil, ErrCancelled
			}
			return nil, fmt.Errorf("connect: %w", res.err)
		}
		if tok.Cancelled() {
			_ = res.conn.Close()
			return nil, ErrCancelled
		}
		return res.conn, nil
	case <-tok.Done():
		cancelDial()
		go reapDial(ch)
		return nil, ErrCancelled
	case <-ctx.Done():
		cancelDial()
		go reapDial(ch)
		return nil, fmt.Errorf("connect: %w", ctx.Err())
	}
}

type dialResult struct {
	conn net.Conn
	err  error
}

// reapDial waits out an abandoned dial attempt and releases its connection if
// one was established after the caller had already given up.
func reapDial(ch <-chan dialResult) {
	if res := <-ch; res.conn != nil {
		_ = res.conn.Close()
	}
}
