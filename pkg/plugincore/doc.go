/*
Package plugincore provides the orchestration core of a plugin framework:
a dependency-aware plugin registry and a priority-ordered event bus.

# Overview

A Core is built explicitly from a config and owns:

  - a plugin.Registry that validates manifests, checks version ranges,
    rejects dependency cycles and resolves load order
  - an event.Manager that dispatches events to prioritized subscriptions
    through filters and middleware, isolating handler failures
  - an optional event.Store (ring buffer or SQLite) recording emissions

There are no package-level instances; hosts may run several Cores side by
side.

# Basic Usage

	cfg := config.Default()
	core, err := plugincore.New(cfg)
	if err != nil {
	    log.Fatal(err)
	}
	defer core.Close()

	core.Events().On(event.PluginRegistered, event.HandlerFunc(
	    func(ctx context.Context, evt *event.Event) error {
	        info := evt.Data.(plugincore.PluginInfo)
	        log.Printf("registered %s@%s", info.Name, info.Version)
	        return nil
	    }))

	if err := core.Register(ctx, authPlugin, authManifest); err != nil {
	    log.Fatal(err)
	}
	order, err := core.Start(ctx)

# Permissions

Plugin-owned subscriptions and plugin-sourced emissions are checked
against the plugin's manifest: a plugin may subscribe when it declares an
"events:subscribe" permission and emit when it declares "events:emit".
Use WithPermissionChecker to substitute another policy.

# Framework Events

Registry changes and lifecycle transitions are emitted synchronously as
the event types listed in event.FrameworkEvents.

# Packages

  - plugin: manifests, registry, validation and search
  - graph: the dependency graph with cycle detection
  - version: strict semver and caret/tilde ranges
  - event: the events manager, subscriptions and batch emission
  - eventstore: MemoryStore and SQLiteStore
  - observability: slog helpers, OpenTelemetry metrics and spans
  - config: YAML/JSON configuration
*/
package plugincore
