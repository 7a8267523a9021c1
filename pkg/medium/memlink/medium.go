package memlink

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/rescp17/lanLinker/internal/netutil"
	"github.com/rescp17/lanLinker/pkg/cancel"
	"github.com/rescp17/lanLinker/pkg/discovery"
	"github.com/rescp17/lanLinker/pkg/medium"
	"github.com/rescp17/lanLinker/pkg/socket"
)

// Medium is one endpoint on a memlink bus. Media attached to the same bus
// discover and connect to each other with full Medium semantics.
type Medium struct {
	bus        *Bus
	host       string
	tracker    *medium.Tracker
	listenPort atomic.Int32
}

// New attaches a fresh medium to bus under a unique synthetic host name.
func New(bus *Bus) *Medium {
	return &Medium{
		bus:     bus,
		host:    bus.nextHost(),
		tracker: medium.NewTracker(),
	}
}

// Host returns the medium's synthetic host name on the bus.
func (m *Medium) Host() string {
	return m.host
}

// StartAdvertising publishes info on the bus. An empty address is filled in
// with this medium's host name.
func (m *Medium) StartAdvertising(info discovery.ServiceInfo) error {
	if info.Addr == "" {
		info.Addr = m.host
	}
	run := func(ctx context.Context, ready func()) error {
		m.bus.publish(info)
		ready()
		<-ctx.Done()
		m.bus.unpublish(info)
		return nil
	}
	return m.tracker.StartAdvertising(info, run)
}

// StopAdvertising stops the registration matching info; a no-op when idle.
func (m *Medium) StopAdvertising(info discovery.ServiceInfo) error {
	if info.Addr == "" {
		info.Addr = m.host
	}
	return m.tracker.StopAdvertising(info)
}

// StartDiscovery begins observing the bus, replaying already-published
// records as found events.
func (m *Medium) StartDiscovery(cb medium.Callback) (medium.Subscription, error) {
	run := func(ctx context.Context, found, lost func(discovery.ServiceInfo)) error {
		unwatch := m.bus.watch(found, lost)
		defer unwatch()
		<-ctx.Done()
		return nil
	}
	return m.tracker.StartDiscovery(cb, run)
}

// StopDiscovery deactivates sub; no event for sub is delivered afterwards.
func (m *Medium) StopDiscovery(sub medium.Subscription) error {
	return m.tracker.StopDiscovery(sub)
}

// ConnectToService opens a pipe pair to the service's listener.
func (m *Medium) ConnectToService(info discovery.ServiceInfo, tok *cancel.Token) (*socket.Socket, error) {
	if m.tracker.Closed() {
		return nil, medium.ErrMediumClosed
	}
	dial := func(ctx context.Context) (net.Conn, error) {
		return m.bus.dial(ctx, info.HostPort())
	}
	conn, err := medium.DialWithToken(context.Background(), dial, tok)
	if err != nil {
		return nil, err
	}
	return socket.New(conn, socket.WithRemote(info)), nil
}

// ListenForService binds a bus listener under the given identifier.
func (m *Medium) ListenForService(serviceID string) (*socket.ServerSocket, error) {
	if err := m.tracker.Bind(serviceID); err != nil {
		return nil, err
	}
	port := m.bus.nextPort()
	ln := newMemListener(m.bus, netutil.JoinHostPort(m.host, port))
	m.bus.addListener(ln)
	srv := socket.NewServer(serviceID, ln, func() {
		m.tracker.Release(serviceID)
	})
	if !m.tracker.Attach(serviceID, srv) {
		_ = srv.Close()
		return nil, medium.ErrMediumClosed
	}
	m.listenPort.Store(int32(port))
	return srv, nil
}

// GetRemoteService looks up a currently visible service without blocking.
func (m *Medium) GetRemoteService(addr string, port int) (discovery.ServiceInfo, bool) {
	return m.tracker.Lookup(addr, port)
}

// ServiceAddress reports the synthetic host plus the most recent listener
// port, zero until a listener exists.
func (m *Medium) ServiceAddress() (string, int, error) {
	port := int(m.listenPort.Load())
	if port == 0 {
		return m.host, 0, fmt.Errorf("no listener bound on %s", m.host)
	}
	return m.host, port, nil
}

// Close shuts down advertising, discovery and all listeners.
func (m *Medium) Close() error {
	return m.tracker.Close()
}

var _ medium.Medium = (*Medium)(nil)
