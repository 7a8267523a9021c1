package medium

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/lanLinker/pkg/cancel"
)

func TestDialWithToken_PreCancelledNeverDials(t *testing.T) {
	tok := cancel.NewToken()
	tok.Cancel()

	var dialled atomic.Bool
	start := time.Now()
	conn, err := DialWithToken(context.Background(), func(ctx context.Context) (net.Conn, error) {
		dialled.Store(true)
		return nil, errors.New("unreachable")
	}, tok)

	assert.Nil(t, conn)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, dialled.Load(), "a pre-cancelled token must short-circuit the dial")
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDialWithToken_CancelDuringDialReturnsPromptly(t *testing.T) {
	tok := cancel.NewToken()
	dialStarted := make(chan struct{})

	result := make(chan error, 1)
	go func() {
		_, err := DialWithToken(context.Background(), func(ctx context.Context) (net.Conn, error) {
			close(dialStarted)
			<-ctx.Done()
			return nil, ctx.Err()
		}, tok)
		result <- err
	}()

	<-dialStarted
	tok.Cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("cancelled dial did not return within bounded time")
	}
}

func TestDialWithToken_LateConnectionIsReaped(t *testing.T) {
	tok := cancel.NewToken()
	a, b := net.Pipe()
	defer b.Close()

	dialStarted := make(chan struct{})
	released := make(chan struct{})
	dial := func(ctx context.Context) (net.Conn, error) {
		close(dialStarted)
		<-released
		return a, nil
	}

	result := make(chan error, 1)
	go func() {
		_, err := DialWithToken(context.Background(), dial, tok)
		result <- err
	}()
	<-dialStarted
	tok.Cancel()
	require.ErrorIs(t, <-result, ErrCancelled)

	// The dial completes after the caller gave up; the stray connection must
	// be closed, which the peer observes as EOF.
	close(released)
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := b.Read(buf)
		done <- err
	}()
	select {
	case err := <-done:
		require.Error(t, err, "abandoned connection must be closed")
	case <-time.After(time.Second):
		t.Fatal("abandoned connection was never released")
	}
}

func TestDialWithToken_SuccessPassesConnThrough(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn, err := DialWithToken(context.Background(), func(ctx context.Context) (net.Conn, error) {
		return a, nil
	}, nil)
	require.NoError(t, err)
	assert.Same(t, a, conn)
}

func TestDialWithToken_DialFailureIsNotCancellation(t *testing.T) {
	boom := errors.New("connection refused")
	conn, err := DialWithToken(context.Background(), func(ctx context.Context) (net.Conn, error) {
		return nil, boom
	}, cancel.NewToken())

	assert.Nil(t, conn)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestDialWithToken_ContextCancellation(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	dialStarted := make(chan struct{})

	result := make(chan error, 1)
	go func() {
		_, err := DialWithToken(ctx, func(ctx context.Context) (net.Conn, error) {
			close(dialStarted)
			<-ctx.Done()
			return nil, ctx.Err()
		}, nil)
		result <- err
	}()

	<-dialStarted
	cancelCtx()

	select {
	case err := <-result:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("context-cancelled dial did not return")
	}
}
