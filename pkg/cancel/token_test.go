package cancel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_StartsUncancelled(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.Cancelled())

	select {
	case <-tok.Done():
		t.Fatal("Done channel fired before Cancel")
	default:
	}
}

func TestToken_CancelIsIdempotent(t *testing.T) {
	tok := NewToken()
	tok.Cancel()
	tok.Cancel()
	tok.Cancel()
	assert.True(t, tok.Cancelled())

	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel did not fire after Cancel")
	}
}

func TestToken_SharedAcrossWaiters(t *testing.T) {
	tok := NewToken()
	results := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-tok.Done()
			results <- struct{}{}
		}()
	}
	tok.Cancel()
	for i := 0; i < 2; i++ {
		select {
		case <-results:
		case <-time.After(time.Second):
			t.Fatal("waiter was not released by Cancel")
		}
	}
}

func TestToken_NilIsNeverCancelled(t *testing.T) {
	var tok *Token
	require.NotPanics(t, func() {
		tok.Cancel()
		assert.False(t, tok.Cancelled())
	})

	select {
	case <-tok.Done():
		t.Fatal("nil token Done channel must block forever")
	case <-time.After(20 * time.Millisecond):
	}
}
