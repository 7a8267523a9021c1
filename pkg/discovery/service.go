package discovery

import (
	"bytes"
	"sort"

	"github.com/rescp17/lanLinker/internal/netutil"
)

const (
	DefaultServiceType = "_lanlinker._tcp"
	DefaultDomain      = "local"
)

// ServiceInfo identifies one discoverable endpoint: its instance name, the
// mDNS-style service type and domain, a textual address, a port and a small
// key to byte-value attribute record. Values are copied on the way in and on
// the way out, so a ServiceInfo never changes after construction.
type ServiceInfo struct {
	Name   string // instance name, e.g. "Device-A"
	Type   string // service type, e.g. "_lanlinker._tcp"
	Domain string // domain, e.g. "local"
	Addr   string // IPv4/IPv6 literal or hostname
	Port   int
	attrs  map[string][]byte
}

// NewServiceInfo builds an immutable record. attrs may be nil; it is copied.
func NewServiceInfo(name, addr string, port int, attrs map[string][]byte) ServiceInfo {
	return ServiceInfo{
		Name:   name,
		Type:   DefaultServiceType,
		Domain: DefaultDomain,
		Addr:   addr,
		Port:   port,
		attrs:  copyAttrs(attrs),
	}
}

// WithType returns a copy of the record with the given service type.
func (s ServiceInfo) WithType(serviceType string) ServiceInfo {
	s.Type = serviceType
	return s
}

// Attr returns the value stored under key.
func (s ServiceInfo) Attr(key string) ([]byte, bool) {
	v, ok := s.attrs[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// AttrKeys returns the attribute keys in sorted order.
func (s ServiceInfo) AttrKeys() []string {
	keys := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Attrs returns a copy of the whole attribute record.
func (s ServiceInfo) Attrs() map[string][]byte {
	return copyAttrs(s.attrs)
}

// Equal reports identity equality: same address, port and instance name.
// Attribute content does not participate.
func (s ServiceInfo) Equal(o ServiceInfo) bool {
	return s.Addr == o.Addr && s.Port == o.Port && s.Name == o.Name
}

// Key is the registry index for this record.
func (s ServiceInfo) Key() string {
	return netutil.JoinHostPort(s.Addr, s.Port)
}

// HostPort renders the dialable "host:port" form of the address.
func (s ServiceInfo) HostPort() string {
	return netutil.JoinHostPort(s.Addr, s.Port)
}

func copyAttrs(attrs map[string][]byte) map[string][]byte {
	if len(attrs) == 0 {
		return nil
	}
	cp := make(map[string][]byte, len(attrs))
	for k, v := range attrs {
		cp[k] = bytes.Clone(v)
	}
	return cp
}
