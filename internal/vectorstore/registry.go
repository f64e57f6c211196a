package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// DocStore is the full store surface: the search contracts plus the
// write/maintenance operations the scout pipeline needs.
type DocStore interface {
	Kind() string
	Upsert(ctx context.Context, campaignID string, docs []Doc) error
	SearchVector(ctx context.Context, campaignID string, vector []float64, topK int, filter map[string]string) ([]models.RetrievalResult, error)
	SearchKeyword(ctx context.Context, campaignID string, query string, topK int) ([]models.RetrievalResult, error)
	Delete(ctx context.Context, campaignID string, ids []string) error
	Count(ctx context.Context, campaignID string) (int, error)
	HealthCheck(ctx context.Context) error
}

// Registry holds available document stores keyed by kind. Thread-safe.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]DocStore
}

// NewRegistry creates an empty store registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]DocStore)}
}

// Register adds a store. Replaces any existing store of the same kind.
func (r *Registry) Register(s DocStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[s.Kind()] = s
}

// Get returns the store for a kind.
func (r *Registry) Get(kind string) (DocStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[kind]
	if !ok {
		return nil, fmt.Errorf("document store %q not registered", kind)
	}
	return s, nil
}
