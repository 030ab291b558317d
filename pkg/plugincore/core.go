package plugincore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/randalmurphal/plugincore/pkg/plugincore/config"
	"github.com/randalmurphal/plugincore/pkg/plugincore/event"
	"github.com/randalmurphal/plugincore/pkg/plugincore/eventstore"
	"github.com/randalmurphal/plugincore/pkg/plugincore/plugin"
)

// Sentinel errors for Core lifecycle.
var (
	// ErrAlreadyStarted is returned by Start on a running Core.
	ErrAlreadyStarted = errors.New("plugin core already started")

	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("plugin core not started")
)

// PluginInfo is the payload of plugin:registered, plugin:unregistered and
// plugin:loaded events.
type PluginInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// StatusChange is the payload of plugin:status events.
type StatusChange struct {
	Plugin string        `json:"plugin"`
	From   plugin.Status `json:"from"`
	To     plugin.Status `json:"to"`
}

// Started is the payload of app:started events.
type Started struct {
	// LoadOrder lists every registered plugin, dependencies first.
	LoadOrder []string `json:"load_order"`
}

// Core owns one plugin registry, one events manager and the event store
// they share. Registry changes are announced as framework events.
type Core struct {
	cfg      config.Config
	registry *plugin.Registry
	events   *event.Manager
	store    event.Store
	logger   *slog.Logger
	started  atomic.Bool
}

// New builds a Core from cfg. The configuration is validated first.
func New(cfg config.Config, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := resolveOptions(cfg, opts)

	store := o.store
	if store == nil && !o.storeSet {
		var err error
		store, err = newStore(cfg.Store)
		if err != nil {
			return nil, err
		}
	}

	c := &Core{cfg: cfg, store: store, logger: o.logger}
	c.registry = plugin.NewRegistry(
		plugin.WithLogger(o.logger),
		plugin.WithMetrics(o.metrics),
		plugin.WithClock(o.now),
	)

	checker := o.checker
	if checker == nil {
		checker = event.PermissionFunc(c.HasPermission)
	}
	mgrOpts := []event.Option{
		event.WithConfig(event.Config{
			HandlerTimeout: cfg.Events.HandlerTimeout,
			MaxDepth:       cfg.Events.MaxDepth,
		}),
		event.WithPermissionChecker(checker),
		event.WithLogger(o.logger),
		event.WithMetrics(o.metrics),
		event.WithSpanManager(o.spans),
		event.WithClock(o.now),
	}
	if store != nil {
		mgrOpts = append(mgrOpts, event.WithStore(store))
	}
	c.events = event.NewManager(mgrOpts...)
	return c, nil
}

func newStore(cfg config.StoreConfig) (event.Store, error) {
	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendSQLite:
		s, err := eventstore.NewSQLiteStore(cfg.Path, eventstore.WithMaxRows(cfg.MaxRows))
		if err != nil {
			return nil, fmt.Errorf("open event store: %w", err)
		}
		return s, nil
	default:
		return eventstore.NewMemoryStore(cfg.Capacity), nil
	}
}

// Registry returns the plugin registry.
func (c *Core) Registry() *plugin.Registry { return c.registry }

// Events returns the events manager.
func (c *Core) Events() *event.Manager { return c.events }

// Store returns the event store, or nil when none is configured.
func (c *Core) Store() event.Store { return c.store }

// Config returns the configuration the Core was built with.
func (c *Core) Config() config.Config { return c.cfg }

// HasPermission reports whether a registered plugin's manifest requests the
// permission type. Unknown plugins have no permissions.
func (c *Core) HasPermission(name, permission string) bool {
	e, ok := c.registry.Get(name)
	return ok && e.Manifest.HasPermission(permission)
}

// Register adds a plugin and announces it with plugin:registered.
func (c *Core) Register(ctx context.Context, p plugin.Plugin, m *plugin.Manifest) error {
	if err := c.registry.Register(ctx, p, m); err != nil {
		return err
	}
	c.announce(ctx, event.PluginRegistered, PluginInfo{Name: m.Name, Version: m.Version})
	return nil
}

// Unregister removes a plugin and announces it with plugin:unregistered.
func (c *Core) Unregister(ctx context.Context, name string) error {
	e, ok := c.registry.Get(name)
	if err := c.registry.Unregister(ctx, name); err != nil {
		return err
	}
	info := PluginInfo{Name: name}
	if ok {
		info.Version = e.Manifest.Version
	}
	c.announce(ctx, event.PluginUnregistered, info)
	return nil
}

// SetStatus moves a plugin to a new status and announces the change with
// plugin:status. Entering StatusRunning also emits plugin:loaded.
func (c *Core) SetStatus(ctx context.Context, name string, status plugin.Status) error {
	prev, err := c.registry.UpdateStatus(name, status)
	if err != nil {
		return err
	}
	if prev == status {
		return nil
	}
	c.announce(ctx, event.PluginStatus, StatusChange{Plugin: name, From: prev, To: status})
	if status == plugin.StatusRunning {
		info := PluginInfo{Name: name}
		if e, ok := c.registry.Get(name); ok {
			info.Version = e.Manifest.Version
		}
		c.announce(ctx, event.PluginLoaded, info)
	}
	return nil
}

// Start resolves the load order of every registered plugin and emits
// app:starting and app:started around it.
func (c *Core) Start(ctx context.Context) ([]string, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	c.announce(ctx, event.AppStarting, nil)

	order, err := c.registry.ResolveDependencies(nil)
	if err != nil {
		c.started.Store(false)
		return nil, fmt.Errorf("resolve load order: %w", err)
	}
	c.announce(ctx, event.AppStarted, Started{LoadOrder: order})
	return order, nil
}

// Stop emits app:stopping and app:stopped.
func (c *Core) Stop(ctx context.Context) error {
	if !c.started.CompareAndSwap(true, false) {
		return ErrNotStarted
	}
	c.announce(ctx, event.AppStopping, nil)
	c.announce(ctx, event.AppStopped, nil)
	return nil
}

// Close stops the events manager and closes the store.
func (c *Core) Close() error {
	err := c.events.Close()
	if c.store != nil {
		err = errors.Join(err, c.store.Close())
	}
	return err
}

// announce emits a framework event synchronously. Emission failures are
// logged; the registry change they describe has already happened.
func (c *Core) announce(ctx context.Context, eventType string, data any) {
	if _, err := c.events.Emit(ctx, eventType, data); err != nil {
		c.logger.Warn("framework event not emitted",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}
