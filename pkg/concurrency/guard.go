package concurrency

import (
	"errors"
	"sync"
)

// ErrBusy is returned when a guarded operation is already in flight.
var ErrBusy = errors.New("another operation is already in progress")

// Guard admits one operation at a time without queueing: a second caller gets
// ErrBusy immediately instead of waiting. The CLI uses it so a connect
// attempt cannot be stacked on top of a running one.
type Guard struct {
	mu     sync.Mutex
	isBusy bool
}

func NewGuard() *Guard {
	return &Guard{}
}

// Execute runs task unless another task is in flight.
func (g *Guard) Execute(task func() error) error {
	g.mu.Lock()
	if g.isBusy {
		g.mu.Unlock()
		return ErrBusy
	}
	g.isBusy = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.isBusy = false
		g.mu.Unlock()
	}()
	return task()
}

// Busy reports whether a task is currently running.
func (g *Guard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isBusy
}
