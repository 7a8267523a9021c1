// Package bluetooth implements the Medium contract over Bluetooth Classic
// RFCOMM sockets. The socket path is fully supported on Linux; discovery and
// advertising require an inquiry backend (SDP or a management daemon), which
// is injected as a discovery.Adapter since it needs privileges this library
// cannot assume.
package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/rescp17/lanLinker/pkg/cancel"
	"github.com/rescp17/lanLinker/pkg/discovery"
	"github.com/rescp17/lanLinker/pkg/medium"
	"github.com/rescp17/lanLinker/pkg/socket"
)

// ErrNoAdapter is wrapped into the initiation failure returned by advertise
// and discovery operations when no inquiry backend was configured.
var ErrNoAdapter = errors.New("no bluetooth inquiry adapter configured")

// provider is the platform RFCOMM implementation, selected by build tags.
type provider interface {
	// dial opens an RFCOMM connection to the device at mac on channel.
	dial(ctx context.Context, mac string, channel uint8) (net.Conn, error)
	// listen binds an RFCOMM listener on channel; channel 0 lets the stack
	// pick one.
	listen(channel uint8) (net.Listener, error)
	// localAddr reports the local adapter address, if the platform exposes it.
	localAddr() (string, error)
}

// Medium is the Bluetooth Classic transport backend.
type Medium struct {
	tracker  *medium.Tracker
	provider provider
	adapter  discovery.Adapter
	channel  uint8
	listenCh atomic.Int32
}

// Option configures a Bluetooth medium.
type Option func(*Medium)

// WithAdapter installs the inquiry backend used for advertise and discovery.
func WithAdapter(a discovery.Adapter) Option {
	return func(m *Medium) { m.adapter = a }
}

// WithChannel fixes the RFCOMM channel listeners bind to. Zero, the default,
// lets the stack pick a free channel.
func WithChannel(channel uint8) Option {
	return func(m *Medium) { m.channel = channel }
}

// New creates a Bluetooth Classic medium for the current platform.
func New(opts ...Option) *Medium {
	m := &Medium{
		tracker:  medium.NewTracker(),
		provider: platformProvider(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartAdvertising publishes info through the inquiry adapter.
func (m *Medium) StartAdvertising(info discovery.ServiceInfo) error {
	if m.adapter == nil {
		return medium.NewInitiationError("bluetooth advertising", ErrNoAdapter)
	}
	run := func(ctx context.Context, ready func()) error {
		ready()
		return m.adapter.Announce(ctx, info)
	}
	return m.tracker.StartAdvertising(info, run)
}

// StopAdvertising stops the registration matching info; a no-op when idle.
func (m *Medium) StopAdvertising(info discovery.ServiceInfo) error {
	return m.tracker.StopAdvertising(info)
}

// StartDiscovery begins inquiry through the configured adapter.
func (m *Medium) StartDiscovery(cb medium.Callback) (medium.Subscription, error) {
	if m.adapter == nil {
		return nil, medium.NewInitiationError("bluetooth discovery", ErrNoAdapter)
	}
	run := func(ctx context.Context, found, lost func(discovery.ServiceInfo)) error {
		return m.adapter.Browse(ctx, discovery.DefaultServiceType, found, lost)
	}
	return m.tracker.StartDiscovery(cb, run)
}

// StopDiscovery deactivates sub; no event for sub is delivered afterwards.
func (m *Medium) StopDiscovery(sub medium.Subscription) error {
	return m.tracker.StopDiscovery(sub)
}

// ConnectToService opens an RFCOMM connection to the service. The service
// address is the remote device MAC ("AA:BB:CC:DD:EE:FF"); the port is the
// RFCOMM channel.
func (m *Medium) ConnectToService(info discovery.ServiceInfo, tok *cancel.Token) (*socket.Socket, error) {
	if m.tracker.Closed() {
		return nil, medium.ErrMediumClosed
	}
	if info.Port < 1 || info.Port > 30 {
		return nil, fmt.Errorf("invalid RFCOMM channel %d", info.Port)
	}
	dial := func(ctx context.Context) (net.Conn, error) {
		return m.provider.dial(ctx, info.Addr, uint8(info.Port))
	}
	conn, err := medium.DialWithToken(context.Background(), dial, tok)
	if err != nil {
		return nil, err
	}
	return socket.New(conn, socket.WithRemote(info)), nil
}

// ListenForService binds an RFCOMM listener under the given identifier.
func (m *Medium) ListenForService(serviceID string) (*socket.ServerSocket, error) {
	if err := m.tracker.Bind(serviceID); err != nil {
		return nil, err
	}
	ln, err := m.provider.listen(m.channel)
	if err != nil {
		m.tracker.Release(serviceID)
		return nil, fmt.Errorf("rfcomm listen for %q: %w", serviceID, err)
	}
	srv := socket.NewServer(serviceID, ln, func() {
		m.tracker.Release(serviceID)
	})
	if !m.tracker.Attach(serviceID, srv) {
		_ = srv.Close()
		return nil, medium.ErrMediumClosed
	}
	if addr, ok := ln.Addr().(*rfcommAddr); ok {
		m.listenCh.Store(int32(addr.channel))
	}
	return srv, nil
}

// GetRemoteService looks up a currently visible service without blocking.
func (m *Medium) GetRemoteService(addr string, port int) (discovery.ServiceInfo, bool) {
	return m.tracker.Lookup(addr, port)
}

// ServiceAddress reports the local adapter MAC and the bound RFCOMM channel.
func (m *Medium) ServiceAddress() (string, int, error) {
	mac, err := m.provider.localAddr()
	if err != nil {
		return "", 0, err
	}
	return mac, int(m.listenCh.Load()), nil
}

// Close shuts down advertising, discovery and all listeners.
func (m *Medium) Close() error {
	return m.tracker.Close()
}

var _ medium.Medium = (*Medium)(nil)
