package embeddings

import (
	"fmt"
	"sync"

	"github.com/echolens/echolens/insight-engine/pkg/contracts"
)

// Registry holds available embedding drivers keyed by kind.
// Thread-safe.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]contracts.EmbeddingDriver
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]contracts.EmbeddingDriver)}
}

// Register adds a driver. Replaces any existing driver of the same kind.
func (r *Registry) Register(d contracts.EmbeddingDriver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Kind()] = d
}

// Get returns the driver for a kind.
func (r *Registry) Get(kind string) (contracts.EmbeddingDriver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[kind]
	if !ok {
		return nil, fmt.Errorf("embedding driver %q not registered", kind)
	}
	return d, nil
}

// Kinds lists registered driver kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.drivers))
	for k := range r.drivers {
		kinds = append(kinds, k)
	}
	return kinds
}
