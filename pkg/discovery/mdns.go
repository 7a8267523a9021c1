package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
)

// MDNSAdapter advertises and browses services over multicast DNS. It is the
// WifiLan backend used on every platform with a working mDNS stack.
type MDNSAdapter struct{}

// Announce publishes info as an mDNS service record and answers queries until
// ctx is cancelled.
func (m *MDNSAdapter) Announce(ctx context.Context, info ServiceInfo) error {
	cfg := dnssd.Config{
		Name:   info.Name,
		Type:   info.Type,
		Domain: info.Domain,
		// mDNS multicasts to the local link, so explicit IPs are not needed.
		IPs:  nil,
		Text: attrsToText(info.Attrs()),
		Port: info.Port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}

	if _, err = rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	if err = rp.Respond(ctx); err != nil {
		// Context cancellation is the normal way to stop advertising.
		if err == context.Canceled {
			return nil
		}
		return fmt.Errorf("failed to respond to mDNS queries: %w", err)
	}
	return nil
}

// Browse watches serviceType records until ctx is cancelled, reporting
// appearing and disappearing services through found and lost.
func (m *MDNSAdapter) Browse(ctx context.Context, serviceType string, found, lost func(ServiceInfo)) error {
	addFn := func(e dnssd.BrowseEntry) {
		if found != nil {
			found(entryToServiceInfo(e))
		}
	}
	rmvFn := func(e dnssd.BrowseEntry) {
		if lost != nil {
			lost(entryToServiceInfo(e))
		}
	}

	if err := dnssd.LookupType(ctx, serviceType, addFn, rmvFn); err != nil {
		if err == context.Canceled {
			return nil
		}
		return fmt.Errorf("mDNS lookup failed: %w", err)
	}
	return nil
}

func entryToServiceInfo(e dnssd.BrowseEntry) ServiceInfo {
	addr := ""
	if len(e.IPs) > 0 {
		addr = e.IPs[0].String()
	}
	info := NewServiceInfo(e.Name, addr, e.Port, textToAttrs(e.Text))
	info.Type = e.Type
	info.Domain = e.Domain
	return info
}

func attrsToText(attrs map[string][]byte) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	text := make(map[string]string, len(attrs))
	for k, v := range attrs {
		text[k] = string(v)
	}
	return text
}

func textToAttrs(text map[string]string) map[string][]byte {
	if len(text) == 0 {
		return nil
	}
	attrs := make(map[string][]byte, len(text))
	for k, v := range text {
		attrs[k] = []byte(v)
	}
	return attrs
}
