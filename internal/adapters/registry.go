package adapters

import (
	"context"
	"sort"
	"sync"

	"fastsearch-cache/internal/common/errors"
)

// Factory builds an adapter. Factories close over their own configuration.
type Factory func(ctx context.Context) (Adapter, error)

// Registry maps adapter names to factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create builds the adapter registered under name.
func (r *Registry) Create(ctx context.Context, name string) (Adapter, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.NotFoundError("adapter " + name)
	}

	adapter, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// GetAvailableTypes returns the registered adapter names in sorted order.
func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a factory exists for name.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}
