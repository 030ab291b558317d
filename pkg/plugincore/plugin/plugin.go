// Package plugin implements the plugin registry: manifest validation,
// dependency resolution with cycle detection, version compatibility checks,
// lifecycle status tracking and search.
//
// A Registry is constructed explicitly and owned by its host:
//
//	reg := plugin.NewRegistry(plugin.WithLogger(logger))
//	if err := reg.Register(ctx, authPlugin, authManifest); err != nil {
//	    switch plugin.KindOf(err) {
//	    case plugin.KindMissingDependency:
//	        // ...
//	    }
//	}
//	order, err := reg.ResolveDependencies(nil)
package plugin

import "time"

// Plugin is the object a host registers. The registry only needs its
// identity; lifecycle behaviour is driven by the host.
type Plugin interface {
	Name() string
	Version() string
}

// Entry is a registered plugin as reported by the registry.
// Entries returned to callers are copies.
type Entry struct {
	Plugin       Plugin
	Manifest     *Manifest
	Status       Status
	RegisteredAt time.Time
	// Dependencies are the manifest's plugin-kind dependencies.
	Dependencies []Dependency
}

func (e *Entry) clone() Entry {
	c := *e
	c.Manifest = e.Manifest.Clone()
	c.Dependencies = append([]Dependency(nil), e.Dependencies...)
	return c
}

// Descriptor is a Plugin that carries only a manifest's identity.
// It is used when registering from manifests alone, as the CLI does.
type Descriptor struct {
	name    string
	version string
}

// Describe returns a Descriptor for the manifest.
func Describe(m *Manifest) Descriptor {
	return Descriptor{name: m.Name, version: m.Version}
}

// Name implements Plugin.
func (d Descriptor) Name() string { return d.name }

// Version implements Plugin.
func (d Descriptor) Version() string { return d.version }
