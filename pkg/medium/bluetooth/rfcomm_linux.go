//go:build linux

package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

func platformProvider() provider { return &linuxProvider{} }

// linuxProvider talks RFCOMM through BlueZ kernel sockets.
type linuxProvider struct{}

func (p *linuxProvider) dial(ctx context.Context, mac string, channel uint8) (net.Conn, error) {
	addr, err := parseMAC(mac)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("rfcomm socket: %w", err)
	}
	// The connect syscall itself is not interruptible by ctx; the caller
	// abandons us via DialWithToken and we close the socket on our way out.
	sa := &unix.SockaddrRFCOMM{Addr: addr, Channel: channel}
	if err := unix.Connect(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("rfcomm connect %s/%d: %w", mac, channel, err)
	}
	if ctx.Err() != nil {
		_ = unix.Close(fd)
		return nil, ctx.Err()
	}
	local := &rfcommAddr{mac: localMACOf(fd), channel: channel}
	remote := &rfcommAddr{mac: mac, channel: channel}
	return newRFCOMMConn(fd, local, remote), nil
}

func (p *linuxProvider) listen(channel uint8) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("rfcomm socket: %w", err)
	}
	// BDADDR_ANY plus channel 0 asks the stack for any free channel.
	sa := &unix.SockaddrRFCOMM{Channel: channel}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("rfcomm bind channel %d: %w", channel, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("rfcomm listen: %w", err)
	}
	bound := channel
	if sa, err := unix.Getsockname(fd); err == nil {
		if rc, ok := sa.(*unix.SockaddrRFCOMM); ok {
			bound = rc.Channel
		}
	}
	return &rfcommListener{
		fd:   fd,
		addr: &rfcommAddr{mac: localMACOf(fd), channel: bound},
	}, nil
}

func (p *linuxProvider) localAddr() (string, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return "", fmt.Errorf("rfcomm socket: %w", err)
	}
	defer unix.Close(fd)
	if err := unix.Bind(fd, &unix.SockaddrRFCOMM{}); err != nil {
		return "", fmt.Errorf("rfcomm bind: %w", err)
	}
	mac := localMACOf(fd)
	if mac == "" {
		return "", errors.New("no local bluetooth adapter")
	}
	return mac, nil
}

func localMACOf(fd int) string {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return ""
	}
	rc, ok := sa.(*unix.SockaddrRFCOMM)
	if !ok {
		return ""
	}
	return formatMAC(rc.Addr)
}

// rfcommConn is a net.Conn over an RFCOMM socket descriptor.
type rfcommConn struct {
	fd     int
	local  *rfcommAddr
	remote *rfcommAddr
	closed atomic.Bool
}

func newRFCOMMConn(fd int, local, remote *rfcommAddr) *rfcommConn {
	return &rfcommConn{fd: fd, local: local, remote: remote}
}

func (c *rfcommConn) Read(p []byte) (int, error) {
	n, err := unix.Read(c.fd, p)
	if err != nil {
		if c.closed.Load() {
			return 0, net.ErrClosed
		}
		return 0, fmt.Errorf("rfcomm read: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *rfcommConn) Write(p []byte) (int, error) {
	n, err := unix.Write(c.fd, p)
	if err != nil {
		if c.closed.Load() {
			return 0, net.ErrClosed
		}
		return n, fmt.Errorf("rfcomm write: %w", err)
	}
	return n, nil
}

// Close shuts the link down before releasing the descriptor so that a reader
// blocked in Read observes EOF instead of hanging.
func (c *rfcommConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = unix.Shutdown(c.fd, unix.SHUT_RDWR)
	if err := unix.Close(c.fd); err != nil {
		return fmt.Errorf("rfcomm close: %w", err)
	}
	return nil
}

func (c *rfcommConn) LocalAddr() net.Addr  { return c.local }
func (c *rfcommConn) RemoteAddr() net.Addr { return c.remote }

// RFCOMM sockets carry no userspace deadline support here; the socket layer
// above relies on Close to unblock I/O.
func (c *rfcommConn) SetDeadline(time.Time) error      { return errDeadlineUnsupported }
func (c *rfcommConn) SetReadDeadline(time.Time) error  { return errDeadlineUnsupported }
func (c *rfcommConn) SetWriteDeadline(time.Time) error { return errDeadlineUnsupported }

var errDeadlineUnsupported = errors.New("rfcomm: deadlines not supported")

// rfcommListener is a net.Listener over a bound RFCOMM socket.
type rfcommListener struct {
	fd     int
	addr   *rfcommAddr
	closed atomic.Bool
}

func (l *rfcommListener) Accept() (net.Conn, error) {
	for {
		nfd, sa, err := unix.Accept(l.fd)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if l.closed.Load() {
				return nil, net.ErrClosed
			}
			return nil, fmt.Errorf("rfcomm accept: %w", err)
		}
		remote := &rfcommAddr{channel: l.addr.channel}
		if rc, ok := sa.(*unix.SockaddrRFCOMM); ok {
			remote.mac = formatMAC(rc.Addr)
			remote.channel = rc.Channel
		}
		return newRFCOMMConn(nfd, l.addr, remote), nil
	}
}

func (l *rfcommListener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = unix.Shutdown(l.fd, unix.SHUT_RDWR)
	if err := unix.Close(l.fd); err != nil {
		return fmt.Errorf("rfcomm close: %w", err)
	}
	return nil
}

func (l *rfcommListener) Addr() net.Addr { return l.addr }
