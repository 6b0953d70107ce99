package backend

import (
	"fmt"
	"sync"
)

// RegisteredCallback is notified whenever a new protocol is registered,
// so the notification broker can adopt its backend's fd into the event
// loop without depending on ambient global state.
type RegisteredCallback func(protocol string, b Backend)

// Registry maps protocol name to Backend and lets new protocols be
// installed while the server is live. Registry replaces the original
// implementation's global FilesystemProtocolEvent with an explicit,
// injectable object the broker subscribes to.
type Registry struct {
	mu        sync.RWMutex
	backends  map[string]Backend
	observers []RegisteredCallback
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register installs b under protocol, replacing any existing backend
// for the same name, and notifies every observer registered via
// OnRegistered.
func (r *Registry) Register(protocol string, b Backend) {
	r.mu.Lock()
	r.backends[protocol] = b
	observers := append([]RegisteredCallback(nil), r.observers...)
	r.mu.Unlock()

	for _, obs := range observers {
		obs(protocol, b)
	}
}

// OnRegistered subscribes cb to future Register calls. It does not
// replay already-registered protocols; callers that need the current
// set should call Lookup/All before subscribing.
func (r *Registry) OnRegistered(cb RegisteredCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, cb)
}

// Lookup returns the backend registered for protocol, or an error if
// none is registered.
func (r *Registry) Lookup(protocol string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[protocol]
	if !ok {
		return nil, fmt.Errorf("backend: unknown protocol %q", protocol)
	}
	return b, nil
}

// All returns a snapshot of every registered protocol name and its
// backend.
func (r *Registry) All() map[string]Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Backend, len(r.backends))
	for k, v := range r.backends {
		out[k] = v
	}
	return out
}
