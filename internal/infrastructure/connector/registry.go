// Package connector holds the platform adapter infrastructure: the builder
// registry, the live-instance cache, the circuit breaker decorator, and the
// REST adapter for self-hosted systems.
package connector

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/truthsource/backend/internal/domain/integration"
)

// ErrNilBuilder indicates a registration attempt without a builder
var ErrNilBuilder = errors.New("connector: builder must not be nil")

// Registry implements ConnectorRegistry with a mutex-guarded builder map.
// Adapters register at wiring time; registration replaces silently so tests
// can swap builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[integration.PlatformType]integration.ConnectorBuilder
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[integration.PlatformType]integration.ConnectorBuilder),
	}
}

// Register adds a builder for a platform, replacing any existing one
func (r *Registry) Register(platform integration.PlatformType, builder integration.ConnectorBuilder) error {
	if !platform.IsValid() {
		return fmt.Errorf("%w: %q", integration.ErrInvalidPlatform, platform)
	}
	if builder == nil {
		return ErrNilBuilder
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[platform] = builder
	return nil
}

// Build constructs an uninitialized connector for the platform
func (r *Registry) Build(platform integration.PlatformType, cfg integration.ConnectorConfig) (integration.Connector, error) {
	r.mu.RLock()
	builder, ok := r.builders[platform]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", integration.ErrConnectorNotRegistered, platform)
	}
	return builder(cfg)
}

// Platforms returns the platform types with a registered builder, sorted
// for stable output
func (r *Registry) Platforms() []integration.PlatformType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]integration.PlatformType, 0, len(r.builders))
	for p := range r.builders {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}

// Ensure Registry implements ConnectorRegistry
var _ integration.ConnectorRegistry = (*Registry)(nil)
