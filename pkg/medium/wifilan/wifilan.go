// Package wifilan implements the Medium contract over the local network:
// mDNS service records for advertising and discovery, TCP for connections.
package wifilan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rescp17/lanLinker/internal/netutil"
	"github.com/rescp17/lanLinker/pkg/cancel"
	"github.com/rescp17/lanLinker/pkg/discovery"
	"github.com/rescp17/lanLinker/pkg/medium"
	"github.com/rescp17/lanLinker/pkg/socket"
)

// startupGrace is how long the mDNS responder gets to fail fast before a
// started advertisement is reported as discoverable.
const startupGrace = 150 * time.Millisecond

// Medium is the WifiLan transport backend.
type Medium struct {
	tracker     *medium.Tracker
	adapter     discovery.Adapter
	serviceType string
	domain      string
	listenAddr  string
	dialTimeout time.Duration
	listenPort  atomic.Int32
}

// Option configures a WifiLan medium.
type Option func(*Medium)

// WithAdapter replaces the mDNS backend, mainly for tests.
func WithAdapter(a discovery.Adapter) Option {
	return func(m *Medium) { m.adapter = a }
}

// WithServiceType overrides the advertised/browsed service type.
func WithServiceType(serviceType string) Option {
	return func(m *Medium) { m.serviceType = serviceType }
}

// WithDialTimeout bounds each ConnectToService attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Medium) { m.dialTimeout = d }
}

// WithListenAddr sets the TCP address listeners bind to, default ":0".
func WithListenAddr(addr string) Option {
	return func(m *Medium) { m.listenAddr = addr }
}

// New creates a WifiLan medium backed by multicast DNS.
func New(opts ...Option) *Medium {
	m := &Medium{
		tracker:     medium.NewTracker(),
		adapter:     &discovery.MDNSAdapter{},
		serviceType: discovery.DefaultServiceType,
		domain:      discovery.DefaultDomain,
		listenAddr:  ":0",
		dialTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartAdvertising publishes info over mDNS until StopAdvertising.
func (m *Medium) StartAdvertising(info discovery.ServiceInfo) error {
	if info.Port <= 0 || info.Port > 65535 {
		return fmt.Errorf("invalid advertised port %d", info.Port)
	}
	if info.Name == "" {
		info.Name = uuid.New().String()
	}
	if info.Type == "" {
		info.Type = m.serviceType
	}
	if info.Domain == "" {
		info.Domain = m.domain
	}
	run := func(ctx context.Context, ready func()) error {
		// The responder surfaces bind and registration failures quickly;
		// give it that window before declaring the record discoverable.
		t := time.AfterFunc(startupGrace, ready)
		defer t.Stop()
		return m.adapter.Announce(ctx, info)
	}
	return m.tracker.StartAdvertising(info, run)
}

// StopAdvertising stops the registration matching info; a no-op when idle.
func (m *Medium) StopAdvertising(info discovery.ServiceInfo) error {
	return m.tracker.StopAdvertising(info)
}

// StartDiscovery begins browsing for services of the medium's type.
func (m *Medium) StartDiscovery(cb medium.Callback) (medium.Subscription, error) {
	browse := fmt.Sprintf("%s.%s.", m.serviceType, m.domain)
	run := func(ctx context.Context, found, lost func(discovery.ServiceInfo)) error {
		return m.adapter.Browse(ctx, browse, found, lost)
	}
	return m.tracker.StartDiscovery(cb, run)
}

// StopDiscovery deactivates sub; no event for sub is delivered afterwards.
func (m *Medium) StopDiscovery(sub medium.Subscription) error {
	return m.tracker.StopDiscovery(sub)
}

// ConnectToService dials the service over TCP, honoring tok.
func (m *Medium) ConnectToService(info discovery.ServiceInfo, tok *cancel.Token) (*socket.Socket, error) {
	if m.tracker.Closed() {
		return nil, medium.ErrMediumClosed
	}
	if info.Addr == "" {
		return nil, fmt.Errorf("service %q has no address", info.Name)
	}
	dial := func(ctx context.Context) (net.Conn, error) {
		d := net.Dialer{Timeout: m.dialTimeout}
		return d.DialContext(ctx, "tcp", info.HostPort())
	}
	conn, err := medium.DialWithToken(context.Background(), dial, tok)
	if err != nil {
		return nil, err
	}
	return socket.New(conn, socket.WithRemote(info)), nil
}

// ListenForService binds a TCP listener under the given identifier.
func (m *Medium) ListenForService(serviceID string) (*socket.ServerSocket, error) {
	if err := m.tracker.Bind(serviceID); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", m.listenAddr)
	if err != nil {
		m.tracker.Release(serviceID)
		return nil, fmt.Errorf("listen for %q: %w", serviceID, err)
	}
	srv := socket.NewServer(serviceID, ln, func() {
		m.tracker.Release(serviceID)
	})
	if !m.tracker.Attach(serviceID, srv) {
		_ = srv.Close()
		return nil, medium.ErrMediumClosed
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		m.listenPort.Store(int32(tcpAddr.Port))
	}
	return srv, nil
}

// GetRemoteService looks up a currently visible service without blocking.
func (m *Medium) GetRemoteService(addr string, port int) (discovery.ServiceInfo, bool) {
	return m.tracker.Lookup(addr, port)
}

// Visible returns a snapshot of every service discovery currently sees.
func (m *Medium) Visible() []discovery.ServiceInfo {
	return m.tracker.Visible()
}

// ServiceAddress reports the LAN address and the most recently bound listener
// port. The port is zero until a listener exists.
func (m *Medium) ServiceAddress() (string, int, error) {
	ip, err := netutil.OutboundIP()
	if err != nil {
		return "", 0, errors.New("no reachable LAN address")
	}
	return ip.String(), int(m.listenPort.Load()), nil
}

// Close shuts down advertising, discovery and all listeners.
func (m *Medium) Close() error {
	return m.tracker.Close()
}

var _ medium.Medium = (*Medium)(nil)
