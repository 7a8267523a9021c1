package concurrency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_RejectsOverlappingWork(t *testing.T) {
	g := NewGuard()

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = g.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	assert.True(t, g.Busy())
	err := g.Execute(func() error {
		t.Error("second task must not run while the first holds the guard")
		return nil
	})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()
	assert.False(t, g.Busy())
}

func TestGuard_ReleasedAfterError(t *testing.T) {
	g := NewGuard()

	boom := assert.AnError
	err := g.Execute(func() error { return boom })
	require.ErrorIs(t, err, boom)

	// A failed task must not leave the guard held.
	err = g.Execute(func() error { return nil })
	assert.NoError(t, err)
}
