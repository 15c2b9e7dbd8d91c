package registry

import "sync"

// Endpoint is an opaque handle that can deliver one frame to exactly one
// live connection. Implementations must be safe for concurrent use.
type Endpoint interface {
	Deliver(frame []byte) error
}

// Registry maps an authenticated user id to its active endpoint. A later
// connection from the same user overwrites the earlier mapping (one
// active session per user, last writer wins).
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

func New() *Registry {
	return &Registry{
		endpoints: make(map[string]Endpoint),
	}
}

// Register records the endpoint for userID, replacing any existing one.
func (r *Registry) Register(userID string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[userID] = ep
}

// Unregister drops the mapping for userID. Unknown ids are a no-op.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, userID)
}

// UnregisterEndpoint drops the mapping for userID only if ep is still the
// registered endpoint. A stale disconnect therefore never evicts the
// connection that replaced it.
func (r *Registry) UnregisterEndpoint(userID string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoints[userID] == ep {
		delete(r.endpoints, userID)
	}
}

// Resolve returns the live endpoint for every id that currently has one.
// Ids without an active connection are silently skipped; callers must not
// rely on the order of the result.
func (r *Registry) Resolve(userIDs []string) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var eps []Endpoint
	for _, id := range userIDs {
		if ep, ok := r.endpoints[id]; ok {
			eps = append(eps, ep)
		}
	}
	return eps
}

// All returns every registered endpoint, for process-wide broadcasts.
func (r *Registry) All() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eps := make([]Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		eps = append(eps, ep)
	}
	return eps
}
