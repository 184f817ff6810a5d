package attempt

import "sync"

// Registry is the authoritative id -> attempt map.
type Registry struct {
	mu       sync.RWMutex
	attempts map[string]*Attempt
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{attempts: make(map[string]*Attempt)}
}

// Put registers a. Registering the same id twice keeps the latest pointer.
func (r *Registry) Put(a *Attempt) {
	r.mu.Lock()
	r.attempts[a.ID()] = a
	r.mu.Unlock()
}

// Get returns a snapshot of the attempt with the given id.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.RLock()
	a, ok := r.attempts[id]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return a.Snapshot(), true
}

// Len returns the number of tracked attempts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts)
}
