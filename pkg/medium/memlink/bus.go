// Package memlink implements the Medium contract entirely in process: an
// in-memory service bus for advertising and discovery, net.Pipe for
// connections. It exists for tests and self-checks that need full medium
// semantics without touching OS networking.
package memlink

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rescp17/lanLinker/pkg/discovery"
)

// Bus is the shared in-memory fabric a group of memlink media attach to.
// Advertised records and bound listeners are visible to every medium on the
// same bus.
type Bus struct {
	mu        sync.Mutex
	hosts     int
	ports     int
	services  map[string]discovery.ServiceInfo
	listeners map[string]*memListener
	watchers  map[*watcher]struct{}
}

// NewBus creates an empty fabric.
func NewBus() *Bus {
	return &Bus{
		services:  make(map[string]discovery.ServiceInfo),
		listeners: make(map[string]*memListener),
		watchers:  make(map[*watcher]struct{}),
	}
}

type watcher struct {
	found func(discovery.ServiceInfo)
	lost  func(discovery.ServiceInfo)
}

// nextHost hands out a unique synthetic host name for an attaching medium.
func (b *Bus) nextHost() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hosts++
	return fmt.Sprintf("mem-host-%d", b.hosts)
}

// nextPort hands out a unique synthetic port for a listener.
func (b *Bus) nextPort() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ports++
	return 40000 + b.ports
}

// publish makes info visible on the bus and notifies every watcher.
func (b *Bus) publish(info discovery.ServiceInfo) {
	b.mu.Lock()
	b.services[info.Key()] = info
	ws := b.watcherList()
	b.mu.Unlock()
	for _, w := range ws {
		w.found(info)
	}
}

// unpublish removes info from the bus and notifies every watcher.
func (b *Bus) unpublish(info discovery.ServiceInfo) {
	b.mu.Lock()
	delete(b.services, info.Key())
	ws := b.watcherList()
	b.mu.Unlock()
	for _, w := range ws {
		w.lost(info)
	}
}

func (b *Bus) watcherList() []*watcher {
	ws := make([]*watcher, 0, len(b.watchers))
	for w := range b.watchers {
		ws = append(ws, w)
	}
	return ws
}

// watch registers found/lost observers, replaying the currently published
// records first, and returns the deregistration func.
func (b *Bus) watch(found, lost func(discovery.ServiceInfo)) func() {
	w := &watcher{found: found, lost: lost}
	b.mu.Lock()
	snapshot := make([]discovery.ServiceInfo, 0, len(b.services))
	for _, info := range b.services {
		snapshot = append(snapshot, info)
	}
	b.watchers[w] = struct{}{}
	b.mu.Unlock()
	for _, info := range snapshot {
		w.found(info)
	}
	return func() {
		b.mu.Lock()
		delete(b.watchers, w)
		b.mu.Unlock()
	}
}

// addListener binds l under its host:port key.
func (b *Bus) addListener(l *memListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[l.addr.String()] = l
}

// removeListener unbinds l if it is still the bound one.
func (b *Bus) removeListener(l *memListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners[l.addr.String()] == l {
		delete(b.listeners, l.addr.String())
	}
}

// dial connects to the listener at hostport over a fresh pipe pair.
func (b *Bus) dial(ctx context.Context, hostport string) (net.Conn, error) {
	b.mu.Lock()
	l := b.listeners[hostport]
	b.mu.Unlock()
	if l == nil {
		return nil, fmt.Errorf("memlink: connection refused: %s", hostport)
	}
	client, server := net.Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
		_ = client.Close()
		return nil, fmt.Errorf("memlink: connection refused: %s", hostport)
	case <-ctx.Done():
		_ = client.Close()
		return nil, ctx.Err()
	}
}
