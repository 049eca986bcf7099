package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openalgo/gateway/config"
	"github.com/openalgo/gateway/internal/stream"
	"github.com/openalgo/gateway/internal/symbols"
)

// Deps bundles the shared services every adapter constructor receives.
type Deps struct {
	Symbols symbols.Store
	Hub     *stream.Hub
}

// Factory constructs an adapter instance from its broker settings.
type Factory func(ctx context.Context, cfg config.BrokerSettings, deps Deps) (Broker, error)

// Registry maintains adapter factories keyed by broker name.
type Registry struct {
	mu        sync.RWMutex
	factories map[config.Broker]Factory
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[config.Broker]Factory)}
}

// Register registers an adapter factory for the given broker name.
func (r *Registry) Register(name config.Broker, factory Factory) {
	if factory == nil {
		panic("broker factory required")
	}
	r.mu.Lock()
	r.factories[name] = factory
	r.mu.Unlock()
}

// Create instantiates the adapter registered under cfg's broker name.
func (r *Registry) Create(ctx context.Context, name config.Broker, cfg config.BrokerSettings, deps Deps) (Broker, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("broker %q not registered", name)
	}
	adapter, err := factory(ctx, cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("instantiate broker %s: %w", name, err)
	}
	return adapter, nil
}

// Names lists the registered broker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
