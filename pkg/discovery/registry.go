package discovery

import "sync"

// Registry tracks the currently visible services for one medium. It is
// written by the discovery callback path and read by non-blocking lookup
// calls, so every access goes through the mutex.
type Registry struct {
	mu       sync.RWMutex
	services map[string]ServiceInfo
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[string]ServiceInfo)}
}

// Add records info as visible, replacing any previous record with the same
// address and port.
func (r *Registry) Add(info ServiceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[info.Key()] = info
}

// Remove drops the record for info, if present.
func (r *Registry) Remove(info ServiceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, info.Key())
}

// Lookup returns the visible service at addr:port.
func (r *Registry) Lookup(addr string, port int) (ServiceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.services[NewServiceInfo("", addr, port, nil).Key()]
	return info, ok
}

// Snapshot returns a copy of all visible services.
func (r *Registry) Snapshot() []ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceInfo, 0, len(r.services))
	for _, info := range r.services {
		out = append(out, info)
	}
	return out
}

// Len reports the number of visible services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// Clear removes every record, used when discovery stops.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.services)
}
