package gitprovider

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Strob0t/Weaver/internal/domain/provider"
)

// Factory is a constructor function that creates a new Client instance.
type Factory func(cfg Config) (Client, error)

var (
	mu        sync.RWMutex
	factories = make(map[provider.Type]Factory)
)

// Register makes a client factory available for a provider type.
// It is typically called from an init() function in the adapter package.
func Register(t provider.Type, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[t]; exists {
		panic(fmt.Sprintf("gitprovider: duplicate registration for %q", t))
	}
	factories[t] = factory
}

// New creates a Client for the provider type using the registered factory.
func New(t provider.Type, cfg Config) (Client, error) {
	mu.RLock()
	factory, ok := factories[t]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("gitprovider: unknown provider type %q", t)
	}
	return factory(cfg)
}

// Available returns the registered provider types in sorted order.
func Available() []provider.Type {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]provider.Type, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
