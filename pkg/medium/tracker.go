package medium

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rescp17/lanLinker/pkg/discovery"
	"github.com/rescp17/lanLinker/pkg/socket"
)

// AdvertiseFunc runs one advertising registration. It must call ready exactly
// when the service has become discoverable and then keep serving until ctx is
// cancelled. An error return before ready is an initiation failure.
type AdvertiseFunc func(ctx context.Context, ready func()) error

// BrowseFunc runs one discovery registration until ctx is cancelled,
// reporting events through found and lost.
type BrowseFunc func(ctx context.Context, found, lost func(discovery.ServiceInfo)) error

// Tracker implements the advertising, discovery and listener-binding state
// machines shared by every medium backend. Backends supply the transport
// behavior as AdvertiseFunc/BrowseFunc; the tracker owns the lifecycle rules:
// one advertisement at a time, per-subscription callback draining, and
// exclusive service-identifier bindings.
type Tracker struct {
	mu       sync.Mutex
	closed   bool
	adv      *advertisement
	subs     map[*Registration]struct{}
	bound    map[string]*socket.ServerSocket
	registry *discovery.Registry
}

func NewTracker() *Tracker {
	return &Tracker{
		subs:     make(map[*Registration]struct{}),
		bound:    make(map[string]*socket.ServerSocket),
		registry: discovery.NewRegistry(),
	}
}

type advertisement struct {
	info   discovery.ServiceInfo
	cancel context.CancelFunc
	done   chan struct{}
}

// Registration is the Subscription handle produced by StartDiscovery.
type Registration struct {
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	done    chan struct{}
}

func (*Registration) subscription() {}

// deliver runs fn unless the registration has been stopped. The waitgroup
// entry taken under the lock is what lets StopDiscovery wait out in-flight
// callbacks before returning.
func (r *Registration) deliver(fn func()) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()
	defer r.wg.Done()
	fn()
}

// StartAdvertising drives run for info. It returns once run reports ready, or
// an initiation failure if run ends first. A second start with the same
// record is a no-op success; with a different record it fails rather than
// silently replacing the live registration.
func (t *Tracker) StartAdvertising(info discovery.ServiceInfo, run AdvertiseFunc) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrMediumClosed
	}
	if t.adv != nil {
		live := t.adv.info
		t.mu.Unlock()
		if live.Equal(info) {
			return nil
		}
		return ErrAlreadyAdvertising
	}
	ctx, cancelFn := context.WithCancel(context.Background())
	a := &advertisement{info: info, cancel: cancelFn, done: make(chan struct{})}
	t.adv = a
	t.mu.Unlock()

	readyCh := make(chan struct{})
	var readyOnce sync.Once
	ready := func() { readyOnce.Do(func() { close(readyCh) }) }

	result := make(chan error, 1)
	go func() {
		err := run(ctx, ready)
		result <- err
		t.clearAdvertisement(a)
		close(a.done)
		if err != nil && ctx.Err() == nil {
			slog.Error("advertising backend stopped", "service", a.info.Name, "error", err)
		}
	}()

	select {
	case <-readyCh:
		return nil
	case err := <-result:
		<-a.done
		if err == nil {
			err = errors.New("advertising ended before becoming ready")
		}
		return initiationFailure("advertising", err)
	}
}

// StopAdvertising cancels the live registration if it matches info and waits
// for the backend to wind down. Idle media and non-matching records are
// no-op successes.
func (t *Tracker) StopAdvertising(info discovery.ServiceInfo) error {
	t.mu.Lock()
	a := t.adv
	t.mu.Unlock()
	if a == nil || !a.info.Equal(info) {
		return nil
	}
	a.cancel()
	<-a.done
	return nil
}

func (t *Tracker) clearAdvertisement(a *advertisement) {
	t.mu.Lock()
	if t.adv == a {
		t.adv = nil
	}
	t.mu.Unlock()
}

// Advertising returns the currently advertised record, if any.
func (t *Tracker) Advertising() (discovery.ServiceInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.adv == nil {
		return discovery.ServiceInfo{}, false
	}
	return t.adv.info, true
}

// StartDiscovery registers cb and drives run until the returned subscription
// is stopped. Found services are mirrored into the medium's registry before
// cb sees them.
func (t *Tracker) StartDiscovery(cb Callback, run BrowseFunc) (Subscription, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrMediumClosed
	}
	ctx, cancelFn := context.WithCancel(context.Background())
	reg := &Registration{cancel: cancelFn, done: make(chan struct{})}
	t.subs[reg] = struct{}{}
	t.mu.Unlock()

	found := func(info discovery.ServiceInfo) {
		reg.deliver(func() {
			t.registry.Add(info)
			if cb.OnFound != nil {
				cb.OnFound(info)
			}
		})
	}
	lost := func(info discovery.ServiceInfo) {
		reg.deliver(func() {
			t.registry.Remove(info)
			if cb.OnLost != nil {
				cb.OnLost(info)
			}
		})
	}

	go func() {
		defer close(reg.done)
		if err := run(ctx, found, lost); err != nil && ctx.Err() == nil {
			slog.Error("discovery backend stopped", "error", err)
		}
	}()
	return reg, nil
}

// StopDiscovery deactivates sub. When it returns, no further callback
// delivery for sub can happen: new deliveries are fenced off first, then
// in-flight ones are drained. Handles from another medium, or already
// stopped ones, are no-op successes.
func (t *Tracker) StopDiscovery(sub Subscription) error {
	reg, ok := sub.(*Registration)
	if !ok || reg == nil {
		return nil
	}
	t.mu.Lock()
	_, live := t.subs[reg]
	delete(t.subs, reg)
	remaining := len(t.subs)
	t.mu.Unlock()
	if !live {
		return nil
	}

	reg.mu.Lock()
	reg.stopped = true
	reg.mu.Unlock()
	reg.cancel()
	reg.wg.Wait()
	<-reg.done

	if remaining == 0 {
		// The registry only reflects what some live registration is watching.
		t.registry.Clear()
	}
	return nil
}

// Bind reserves serviceID for a new listener.
func (t *Tracker) Bind(serviceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrMediumClosed
	}
	if _, dup := t.bound[serviceID]; dup {
		return ErrAlreadyBound
	}
	t.bound[serviceID] = nil
	return nil
}

// Attach records the server socket occupying a previously bound serviceID.
// It reports false when the binding no longer exists, which happens when the
// tracker closed between Bind and Attach; the caller must close the listener
// rather than hand it out, or it would outlive the medium.
func (t *Tracker) Attach(serviceID string, srv *socket.ServerSocket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if _, bound := t.bound[serviceID]; !bound {
		return false
	}
	t.bound[serviceID] = srv
	return true
}

// Release frees serviceID so it can be bound again.
func (t *Tracker) Release(serviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bound, serviceID)
}

// Closed reports whether the tracker has been shut down.
func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Lookup is the non-blocking registry read behind Medium.GetRemoteService.
func (t *Tracker) Lookup(addr string, port int) (discovery.ServiceInfo, bool) {
	return t.registry.Lookup(addr, port)
}

// Visible returns a snapshot of the services currently in the registry.
func (t *Tracker) Visible() []discovery.ServiceInfo {
	return t.registry.Snapshot()
}

// Close stops advertising, drains every discovery registration and closes
// every attached listener. It is idempotent.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	adv := t.adv
	regs := make([]*Registration, 0, len(t.subs))
	for reg := range t.subs {
		regs = append(regs, reg)
	}
	clear(t.subs)
	servers := make([]*socket.ServerSocket, 0, len(t.bound))
	for _, srv := range t.bound {
		if srv != nil {
			servers = append(servers, srv)
		}
	}
	clear(t.bound)
	t.mu.Unlock()

	if adv != nil {
		adv.cancel()
		<-adv.done
	}
	for _, reg := range regs {
		reg.mu.Lock()
		reg.stopped = true
		reg.mu.Unlock()
		reg.cancel()
		reg.wg.Wait()
		<-reg.done
	}
	var errs []error
	for _, srv := range servers {
		if err := srv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.registry.Clear()
	return errors.Join(errs...)
}
