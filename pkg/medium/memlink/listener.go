package memlink

import (
	"net"
	"sync"
)

// memAddr is the synthetic transport address of a bus listener.
type memAddr struct {
	hostport string
}

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return a.hostport }

// memListener is a net.Listener over a channel of pipe-backed connections.
type memListener struct {
	addr      memAddr
	bus       *Bus
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newMemListener(bus *Bus, hostport string) *memListener {
	return &memListener{
		addr:  memAddr{hostport: hostport},
		bus:   bus,
		conns: make(chan net.Conn, 16),
		done:  make(chan struct{}),
	}
}

func (l *memListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *memListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.bus.removeListener(l)
	})
	return nil
}

func (l *memListener) Addr() net.Addr { return l.addr }
