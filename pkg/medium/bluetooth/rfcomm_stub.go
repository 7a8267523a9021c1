//go:build !linux

package bluetooth

import (
	"context"
	"errors"
	"net"
	"runtime"
)

// ErrUnsupportedPlatform is returned by RFCOMM operations on platforms
// without a kernel Bluetooth socket backend in this library.
var ErrUnsupportedPlatform = errors.New("bluetooth rfcomm not supported on " + runtime.GOOS)

func platformProvider() provider { return unsupportedProvider{} }

type unsupportedProvider struct{}

func (unsupportedProvider) dial(context.Context, string, uint8) (net.Conn, error) {
	return nil, ErrUnsupportedPlatform
}

func (unsupportedProvider) listen(uint8) (net.Listener, error) {
	return nil, ErrUnsupportedPlatform
}

func (unsupportedProvider) localAddr() (string, error) {
	return "", ErrUnsupportedPlatform
}
