package medium

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/lanLinker/pkg/discovery"
	"github.com/rescp17/lanLinker/pkg/socket"
)

// blockingAdvertise reports ready immediately and serves until cancelled.
func blockingAdvertise(ctx context.Context, ready func()) error {
	ready()
	<-ctx.Done()
	return nil
}

func TestTracker_AdvertisingStateMachine(t *testing.T) {
	tr := NewTracker()
	info := discovery.NewServiceInfo("Device-A", "10.0.0.5", 4242, nil)
	other := discovery.NewServiceInfo("Device-B", "10.0.0.6", 4242, nil)

	require.NoError(t, tr.StartAdvertising(info, blockingAdvertise))
	live, ok := tr.Advertising()
	require.True(t, ok)
	assert.True(t, info.Equal(live))

	// Same record again is a no-op success, a different one must not
	// silently replace the live registration.
	assert.NoError(t, tr.StartAdvertising(info, blockingAdvertise))
	assert.ErrorIs(t, tr.StartAdvertising(other, blockingAdvertise), ErrAlreadyAdvertising)

	// Stopping with a non-matching record changes nothing.
	require.NoError(t, tr.StopAdvertising(other))
	_, ok = tr.Advertising()
	assert.True(t, ok)

	require.NoError(t, tr.StopAdvertising(info))
	_, ok = tr.Advertising()
	assert.False(t, ok)

	// Stop on an idle tracker is a no-op success.
	assert.NoError(t, tr.StopAdvertising(info))
}

func TestTracker_AdvertisingInitiationFailure(t *testing.T) {
	tr := NewTracker()
	info := discovery.NewServiceInfo("Device-A", "10.0.0.5", 4242, nil)

	boom := errors.New("responder bind failed")
	err := tr.StartAdvertising(info, func(ctx context.Context, ready func()) error {
		return boom
	})
	require.Error(t, err)
	var initErr *InitiationError
	require.ErrorAs(t, err, &initErr)
	assert.ErrorIs(t, err, boom)

	// The failed attempt must leave the tracker idle and restartable.
	_, ok := tr.Advertising()
	assert.False(t, ok)
	assert.NoError(t, tr.StartAdvertising(info, blockingAdvertise))
	require.NoError(t, tr.StopAdvertising(info))
}

func TestTracker_StopDiscoveryMatchesByHandle(t *testing.T) {
	tr := NewTracker()
	run := func(ctx context.Context, found, lost func(discovery.ServiceInfo)) error {
		<-ctx.Done()
		return nil
	}

	subA, err := tr.StartDiscovery(Callback{}, run)
	require.NoError(t, err)
	subB, err := tr.StartDiscovery(Callback{}, run)
	require.NoError(t, err)

	// Stopping B leaves A live; stopping A twice is harmless; a nil or
	// foreign handle is a no-op success.
	require.NoError(t, tr.StopDiscovery(subB))
	require.NoError(t, tr.StopDiscovery(nil))
	require.NoError(t, tr.StopDiscovery(subB))
	require.NoError(t, tr.StopDiscovery(subA))
	require.NoError(t, tr.StopDiscovery(subA))
}

func TestTracker_NoDeliveryAfterStopReturns(t *testing.T) {
	tr := NewTracker()

	emit := make(chan discovery.ServiceInfo)
	run := func(ctx context.Context, found, lost func(discovery.ServiceInfo)) error {
		for {
			select {
			case info := <-emit:
				found(info)
			case <-ctx.Done():
				return nil
			}
		}
	}

	var delivered atomic.Int64
	var inCallback sync.WaitGroup
	inCallback.Add(1)
	release := make(chan struct{})
	first := true
	sub, err := tr.StartDiscovery(Callback{
		OnFound: func(discovery.ServiceInfo) {
			if first {
				first = false
				inCallback.Done()
				<-release
			}
			delivered.Add(1)
		},
	}, run)
	require.NoError(t, err)

	info := discovery.NewServiceInfo("Device-A", "10.0.0.5", 4242, nil)
	emit <- info
	inCallback.Wait()

	// Stop while a delivery is in flight: StopDiscovery must wait it out.
	stopped := make(chan struct{})
	go func() {
		assert.NoError(t, tr.StopDiscovery(sub))
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("StopDiscovery returned while a callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("StopDiscovery did not return after the callback drained")
	}

	after := delivered.Load()
	assert.Equal(t, int64(1), after)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, delivered.Load(), "no delivery may happen after StopDiscovery returns")
}

func TestTracker_FoundEventsPopulateRegistry(t *testing.T) {
	tr := NewTracker()
	emit := make(chan discovery.ServiceInfo)
	gone := make(chan discovery.ServiceInfo)
	run := func(ctx context.Context, found, lost func(discovery.ServiceInfo)) error {
		for {
			select {
			case info := <-emit:
				found(info)
			case info := <-gone:
				lost(info)
			case <-ctx.Done():
				return nil
			}
		}
	}

	seen := make(chan struct{}, 4)
	sub, err := tr.StartDiscovery(Callback{
		OnFound: func(discovery.ServiceInfo) { seen <- struct{}{} },
		OnLost:  func(discovery.ServiceInfo) { seen <- struct{}{} },
	}, run)
	require.NoError(t, err)
	defer tr.StopDiscovery(sub)

	info := discovery.NewServiceInfo("Device-A", "10.0.0.5", 4242, nil)
	emit <- info
	<-seen

	got, ok := tr.Lookup("10.0.0.5", 4242)
	require.True(t, ok)
	assert.True(t, info.Equal(got))
	assert.Len(t, tr.Visible(), 1)

	gone <- info
	<-seen
	_, ok = tr.Lookup("10.0.0.5", 4242)
	assert.False(t, ok)
}

func TestTracker_BindReleasesAndRejectsDuplicates(t *testing.T) {
	tr := NewTracker()

	require.NoError(t, tr.Bind("svc-id-1"))
	assert.ErrorIs(t, tr.Bind("svc-id-1"), ErrAlreadyBound)
	require.NoError(t, tr.Bind("svc-id-2"))

	tr.Release("svc-id-1")
	assert.NoError(t, tr.Bind("svc-id-1"))
}

func TestTracker_ConcurrentDuplicateBind(t *testing.T) {
	tr := NewTracker()

	var okCount, dupCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := tr.Bind("svc-id-1"); {
			case err == nil:
				okCount.Add(1)
			case errors.Is(err, ErrAlreadyBound):
				dupCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), okCount.Load(), "exactly one bind may win")
	assert.Equal(t, int64(7), dupCount.Load())
}

func TestTracker_AttachRecordsLiveBinding(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Bind("svc-id-1"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := socket.NewServer("svc-id-1", ln, func() { tr.Release("svc-id-1") })
	require.True(t, tr.Attach("svc-id-1", srv))

	require.NoError(t, tr.Close())
	assert.True(t, srv.Closed(), "the close sweep must reach attached listeners")
}

func TestTracker_AttachLosesRaceWithClose(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Bind("svc-id-1"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := socket.NewServer("svc-id-1", ln, nil)
	defer srv.Close()

	// Close lands between Bind and Attach: the binding is swept away and the
	// attach must fail so the caller closes the listener instead of handing
	// it out.
	require.NoError(t, tr.Close())
	assert.True(t, tr.Closed())
	assert.False(t, tr.Attach("svc-id-1", srv))
}

func TestTracker_CloseShutsEverythingDown(t *testing.T) {
	tr := NewTracker()
	info := discovery.NewServiceInfo("Device-A", "10.0.0.5", 4242, nil)
	require.NoError(t, tr.StartAdvertising(info, blockingAdvertise))

	_, err := tr.StartDiscovery(Callback{}, func(ctx context.Context, found, lost func(discovery.ServiceInfo)) error {
		<-ctx.Done()
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, tr.Bind("svc-id-1"))

	require.NoError(t, tr.Close())
	assert.NoError(t, tr.Close(), "Close is idempotent")

	assert.ErrorIs(t, tr.StartAdvertising(info, blockingAdvertise), ErrMediumClosed)
	_, err = tr.StartDiscovery(Callback{}, nil)
	assert.ErrorIs(t, err, ErrMediumClosed)
	assert.ErrorIs(t, tr.Bind("svc-id-2"), ErrMediumClosed)
}
