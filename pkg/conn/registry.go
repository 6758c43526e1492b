package conn

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/leaprow/pkg/core"
	"golang.org/x/sync/singleflight"
)

// DefaultName is the registry name resolved for an empty connection name
// until SetDefaultName changes it.
const DefaultName = "default"

type entry struct {
	cfg  core.Config
	conn *Connection
}

// Registry maps names to connections. A name holds either a live Connection
// or a config bundle that is materialised on first Resolve. Names are
// write-once.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	defaultName string
	group       singleflight.Group
	logger      *slog.Logger
}

// NewRegistry creates an empty registry. If logger is nil, a discard logger is used.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		entries:     make(map[string]*entry),
		defaultName: DefaultName,
		logger:      logger,
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultRegistryOnce.Do(func() { defaultRegistry = NewRegistry(nil) })
	return defaultRegistry
}

// Register stores a config bundle under name. It returns false, leaving the
// existing entry untouched, when name is already registered.
func (r *Registry) Register(name string, cfg core.Config) bool {
	return r.insert(name, &entry{cfg: cfg})
}

// RegisterMap decodes a raw bundle such as {"kind": "sqlite", "path": "app.db"}
// and registers it.
func (r *Registry) RegisterMap(name string, raw map[string]any) (bool, error) {
	cfg, err := core.ConfigFromMap(raw)
	if err != nil {
		return false, &core.ConnectionError{Name: name, Err: err}
	}
	return r.Register(name, cfg), nil
}

// RegisterConnection stores a live connection under name. It returns false
// when name is already registered.
func (r *Registry) RegisterConnection(name string, c *Connection) bool {
	return r.insert(name, &entry{cfg: c.Config(), conn: c})
}

func (r *Registry) insert(name string, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		r.logger.Debug("connection already registered", slog.String("conn", name))
		return false
	}
	r.entries[name] = e
	return true
}

// SetDefaultName sets the name resolved for "".
func (r *Registry) SetDefaultName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// DefaultName returns the name resolved for "".
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Resolve returns the connection registered under name, creating it from its
// config bundle on first use. Concurrent first resolves share one creation.
// An empty name resolves the default name.
func (r *Registry) Resolve(ctx context.Context, name string) (*Connection, error) {
	r.mu.RLock()
	if name == "" {
		name = r.defaultName
	}
	e, ok := r.entries[name]
	var live *Connection
	if ok {
		live = e.conn
	}
	r.mu.RUnlock()

	if !ok {
		return nil, &core.ConnectionError{Name: name, Err: core.ErrConnectionNotFound}
	}
	if live != nil {
		return live, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		r.mu.RLock()
		e := r.entries[name]
		existing, cfg := e.conn, e.cfg
		r.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		c, err := create(ctx, name, cfg, r.logger)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		e.conn = c
		r.mu.Unlock()
		r.logger.Debug("connection resolved", slog.String("conn", name), slog.String("conn_id", c.ID()))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Connection), nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns the bundle registered under name. Live connections
// registered with RegisterConnection report their creation config, which is
// the zero Config for connections built with New.
func (r *Registry) Config(name string) (core.Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return core.Config{}, false
	}
	return e.cfg, true
}

// Resolved reports whether name has a live connection.
func (r *Registry) Resolved(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.conn != nil
}

// Close closes every materialised connection. Registrations are kept, so a
// later Resolve reopens config-backed entries. Intended for process shutdown
// and tests.
func (r *Registry) Close() error {
	r.mu.Lock()
	var conns []*Connection
	for _, e := range r.entries {
		if e.conn != nil {
			conns = append(conns, e.conn)
			if e.cfg.HasKind() {
				e.conn = nil
			}
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, c := range conns {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Register stores cfg under name in the default registry.
func Register(name string, cfg core.Config) bool { return Default().Register(name, cfg) }

// Resolve resolves name in the default registry.
func Resolve(ctx context.Context, name string) (*Connection, error) {
	return Default().Resolve(ctx, name)
}
