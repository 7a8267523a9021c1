package discovery

import "context"

// Adapter is the native advertise/browse backend behind a medium. Both calls
// block until ctx is cancelled; setup failures are returned before the call
// starts serving, so a prompt error return means initiation failed.
type Adapter interface {
	// Announce publishes info until ctx is cancelled. Cancellation is a
	// normal shutdown, not an error.
	Announce(ctx context.Context, info ServiceInfo) error

	// Browse watches for services of serviceType and invokes found/lost as
	// records appear and disappear. The callbacks may fire on any goroutine.
	Browse(ctx context.Context, serviceType string, found, lost func(ServiceInfo)) error
}
