package engine

import (
	"sync"

	"github.com/flowmesh/workflow/primitive"
	"github.com/flowmesh/workflow/surface"
)

// AdapterRegistry holds the process's surface adapters, keyed by surfaceId.
// Registries are process-scoped by convention but each Engine owns one by
// construction, so tests can build isolated engines per spec.md §9.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]surface.Adapter
}

// NewAdapterRegistry returns an empty AdapterRegistry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]surface.Adapter)}
}

// Register installs adapter under its own SurfaceID, replacing any prior
// adapter for that surface.
func (r *AdapterRegistry) Register(adapter surface.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.SurfaceID()] = adapter
}

// Adapter returns the adapter registered for surfaceID.
func (r *AdapterRegistry) Adapter(surfaceID string) (surface.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[surfaceID]
	return a, ok
}

// Capabilities returns the SurfaceCapabilities published by surfaceID's
// adapter, the engine API surface's getSurfaceCapabilities operation.
func (r *AdapterRegistry) Capabilities(surfaceID string) (primitive.SurfaceCapabilities, bool) {
	a, ok := r.Adapter(surfaceID)
	if !ok {
		return primitive.SurfaceCapabilities{}, false
	}
	return a.Capabilities(), true
}
