// Package medium defines the transport-neutral contract for advertising,
// discovering, connecting to and listening for nearby services, together with
// the lifecycle bookkeeping shared by every concrete backend (WifiLan mDNS,
// Bluetooth RFCOMM, in-process loopback).
//
// The upper-layer connection engine is written once against Medium and never
// needs to know which transport is underneath.
package medium

import (
	"github.com/rescp17/lanLinker/pkg/cancel"
	"github.com/rescp17/lanLinker/pkg/discovery"
	"github.com/rescp17/lanLinker/pkg/socket"
)

// Callback receives discovery events. Either function may be nil. Both may be
// invoked concurrently from unspecified goroutines while the registration is
// live, and never after StopDiscovery for that registration has returned.
type Callback struct {
	OnFound func(discovery.ServiceInfo)
	OnLost  func(discovery.ServiceInfo)
}

// Subscription identifies one live discovery registration. StartDiscovery
// returns it and StopDiscovery requires it, so stopping is matched by handle
// rather than by comparing callback values.
type Subscription interface {
	// subscription pins implementations to this package's tracker.
	subscription()
}

// Medium is the façade for one transport type. Advertising and discovery are
// independent state machines on the same medium; connect and listen produce
// sockets that follow the package socket lifecycle.
//
// Error-returning start operations report initiation failure only; retry
// policy belongs to the caller. Object-returning operations return a nil
// object plus an error, never a partially initialized result.
type Medium interface {
	// StartAdvertising publishes info until StopAdvertising. Starting again
	// with a different record fails with ErrAlreadyAdvertising instead of
	// silently replacing the running one.
	StartAdvertising(info discovery.ServiceInfo) error

	// StopAdvertising stops the registration matching info. Stopping an idle
	// medium, or with a non-matching record, is a no-op success.
	StopAdvertising(info discovery.ServiceInfo) error

	// StartDiscovery begins observing remote services. Events are delivered
	// to cb until the returned subscription is stopped.
	StartDiscovery(cb Callback) (Subscription, error)

	// StopDiscovery deactivates sub. No callback delivery for sub happens
	// after it returns. Stopping a foreign or already-stopped subscription is
	// a no-op success.
	StopDiscovery(sub Subscription) error

	// ConnectToService dials the remote service. Setting tok makes the call
	// return ErrCancelled within bounded time. tok may be nil.
	ConnectToService(info discovery.ServiceInfo, tok *cancel.Token) (*socket.Socket, error)

	// ListenForService binds a passive listener to the opaque serviceID,
	// failing with ErrAlreadyBound if this process already holds it.
	ListenForService(serviceID string) (*socket.ServerSocket, error)

	// GetRemoteService looks up a currently visible service without blocking.
	GetRemoteService(addr string, port int) (discovery.ServiceInfo, bool)

	// ServiceAddress reports the address and port this medium is reachable
	// on, once a listener is bound.
	ServiceAddress() (string, int, error)

	// Close tears down advertising, discovery and listeners. Idempotent.
	Close() error
}
