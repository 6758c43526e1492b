package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leaprow/pkg/core"
)

// Factory creates an unconnected adapter.
type Factory func(*slog.Logger) Adapter

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds an adapter factory to the registry.
// Called by adapter implementations in their init() functions.
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(kind)] = factory
}

// Get retrieves an adapter factory by kind.
func Get(kind string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(kind)]
	return f, ok
}

// NewAdapter creates a new, unconnected adapter instance based on cfg.Kind.
// The logger parameter is passed to the adapter constructor (nil uses discard logger).
func NewAdapter(cfg core.Config, logger *slog.Logger) (Adapter, error) {
	if !cfg.HasKind() {
		return nil, core.ErrConnectionMisconfigured
	}

	factory, ok := Get(cfg.NormalizedKind())
	if !ok {
		return nil, &UnknownAdapterError{
			Kind:      cfg.Kind,
			Available: ListAdapters(),
		}
	}
	return factory(logger), nil
}

// ListAdapters returns all registered adapter kinds (sorted).
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if an adapter kind is registered.
func IsRegistered(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[strings.ToLower(kind)]
	return ok
}

// UnknownAdapterError is returned when an unknown adapter kind is requested.
type UnknownAdapterError struct {
	Kind      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter kind %q\nAvailable adapters: %v\nHint: Check the kind of the connection in leaprow.yaml", e.Kind, e.Available)
}
