package bluetooth

import (
	"fmt"
	"strconv"
	"strings"
)

// rfcommAddr is the transport address of an RFCOMM endpoint: a device MAC
// plus a channel number.
type rfcommAddr struct {
	mac     string
	channel uint8
}

func (a *rfcommAddr) Network() string { return "rfcomm" }

func (a *rfcommAddr) String() string {
	return fmt.Sprintf("%s/%d", a.mac, a.channel)
}

// parseMAC converts "AA:BB:CC:DD:EE:FF" into the byte order the socket layer
// expects (least significant byte first).
func parseMAC(mac string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("invalid bluetooth address %q", mac)
	}
	for i, part := range parts {
		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return out, fmt.Errorf("invalid bluetooth address %q: %w", mac, err)
		}
		out[5-i] = byte(b)
	}
	return out, nil
}

// formatMAC is the inverse of parseMAC.
func formatMAC(b [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[5], b[4], b[3], b[2], b[1], b[0])
}
