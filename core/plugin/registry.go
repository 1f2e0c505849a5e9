package plugin

import (
	"fmt"
	"sync"
)

// Registry holds plugin factories.
// Thread-safe for concurrent access.
type Registry struct {
	mu        sync.RWMutex
	factories []Factory
}

// NewRegistry creates a registry holding factories.
func NewRegistry(factories ...Factory) *Registry {
	r := &Registry{}
	for _, f := range factories {
		// Duplicates in the constructor are programmer errors.
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a factory. Returns error if a factory with an identical
// tag is already registered.
func (r *Registry) Register(f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.factories {
		if existing.Tag() == f.Tag() {
			return fmt.Errorf("plugin factory %q already registered", f.Tag())
		}
	}
	r.factories = append(r.factories, f)
	return nil
}

// FindFactoryMatching returns the first registered factory whose tag
// matches q.
func (r *Registry) FindFactoryMatching(q Tag) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.factories {
		if f.Tag().Matches(q) {
			return f, true
		}
	}
	return nil, false
}

// List returns the registered factories in registration order.
func (r *Registry) List() []Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Factory, len(r.factories))
	copy(out, r.factories)
	return out
}
