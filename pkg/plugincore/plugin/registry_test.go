package plugin_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/plugincore/pkg/plugincore/plugin"
)

type stubPlugin struct {
	name, version string
}

func (s stubPlugin) Name() string    { return s.name }
func (s stubPlugin) Version() string { return s.version }

func manifest(name, ver string, deps ...plugin.Dependency) *plugin.Manifest {
	return &plugin.Manifest{
		Name:         name,
		Version:      ver,
		Main:         name + ".so",
		Dependencies: deps,
	}
}

func requires(name, rng string) plugin.Dependency {
	return plugin.Dependency{Name: name, Version: rng, Type: plugin.DependencyPlugin}
}

func optional(name string) plugin.Dependency {
	return plugin.Dependency{Name: name, Version: "*", Optional: true}
}

func register(t *testing.T, r *plugin.Registry, m *plugin.Manifest) {
	t.Helper()
	require.NoError(t, r.Register(context.Background(), plugin.Describe(m), m))
}

func TestRegister(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := plugin.NewRegistry(plugin.WithClock(func() time.Time { return fixed }))

	m := manifest("auth", "1.0.0")
	m.Metadata.Category = "security"
	register(t, r, m)

	e, ok := r.Get("auth")
	require.True(t, ok)
	assert.Equal(t, plugin.StatusRegistered, e.Status)
	assert.Equal(t, fixed, e.RegisteredAt)
	assert.Equal(t, "security", e.Manifest.Metadata.Category)

	// returned entries are copies
	e.Manifest.Name = "mutated"
	again, _ := r.Get("auth")
	assert.Equal(t, "auth", again.Manifest.Name)

	// manifest passed in is copied on registration
	m.Metadata.Category = "changed"
	again, _ = r.Get("auth")
	assert.Equal(t, "security", again.Manifest.Metadata.Category)
}

func TestRegister_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		setup  []*plugin.Manifest
		plugin plugin.Plugin
		m      *plugin.Manifest
		kind   plugin.Kind
	}{
		{
			name:   "duplicate name",
			setup:  []*plugin.Manifest{manifest("a", "1.0.0")},
			plugin: stubPlugin{"a", "2.0.0"},
			m:      manifest("a", "2.0.0"),
			kind:   plugin.KindDuplicateName,
		},
		{
			name:   "name mismatch",
			plugin: stubPlugin{"x", "1.0.0"},
			m:      manifest("y", "1.0.0"),
			kind:   plugin.KindNameMismatch,
		},
		{
			name:   "version mismatch",
			plugin: stubPlugin{"x", "1.0.1"},
			m:      manifest("x", "1.0.0"),
			kind:   plugin.KindVersionMismatch,
		},
		{
			name:   "missing main",
			plugin: stubPlugin{"x", "1.0.0"},
			m:      &plugin.Manifest{Name: "x", Version: "1.0.0"},
			kind:   plugin.KindMalformedManifest,
		},
		{
			name:   "non-semver version",
			plugin: stubPlugin{"x", "1.0"},
			m:      manifest("x", "1.0"),
			kind:   plugin.KindMalformedManifest,
		},
		{
			name:   "nil manifest",
			plugin: stubPlugin{"x", "1.0.0"},
			kind:   plugin.KindMalformedManifest,
		},
		{
			name:   "missing dependency",
			plugin: stubPlugin{"b", "1.0.0"},
			m:      manifest("b", "1.0.0", requires("a", "^1.0.0")),
			kind:   plugin.KindMissingDependency,
		},
		{
			name:   "incompatible dependency",
			setup:  []*plugin.Manifest{manifest("a", "2.0.0")},
			plugin: stubPlugin{"b", "1.0.0"},
			m:      manifest("b", "1.0.0", requires("a", "^1.0.0")),
			kind:   plugin.KindVersionIncompatible,
		},
		{
			name:   "self dependency",
			plugin: stubPlugin{"s", "1.0.0"},
			m:      manifest("s", "1.0.0", optional("s")),
			kind:   plugin.KindCircularDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := plugin.NewRegistry()
			for _, m := range tt.setup {
				register(t, r, m)
			}
			before := r.Names()

			err := r.Register(ctx, tt.plugin, tt.m)
			require.Error(t, err)
			assert.Equal(t, tt.kind, plugin.KindOf(err), "got %v", err)
			assert.True(t, errors.Is(err, tt.kind.Err()))
			assert.Equal(t, before, r.Names(), "registry must be unchanged")
		})
	}
}

func TestRegister_NameMismatchLeavesRegistryEmpty(t *testing.T) {
	r := plugin.NewRegistry()
	err := r.Register(context.Background(), stubPlugin{"x", "1.0.0"}, manifest("y", "1.0.0"))

	var regErr *plugin.RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, plugin.KindNameMismatch, regErr.Kind)
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Has("x"))
	assert.False(t, r.Has("y"))
}

func TestRegister_IgnoresNonPluginDependencies(t *testing.T) {
	r := plugin.NewRegistry()
	m := manifest("api", "1.0.0", plugin.Dependency{Name: "postgres", Version: "^14.0.0", Type: plugin.DependencyService})
	register(t, r, m)

	e, _ := r.Get("api")
	assert.Empty(t, e.Dependencies)
}

func TestRegister_CycleThroughOptionalDependency(t *testing.T) {
	r := plugin.NewRegistry()
	register(t, r, manifest("A", "1.0.0", optional("C")))
	register(t, r, manifest("B", "1.0.0", requires("A", "^1.0.0")))

	err := r.Register(context.Background(), stubPlugin{"C", "1.0.0"}, manifest("C", "1.0.0", requires("B", "^1.0.0")))
	require.Error(t, err)

	var depErr *plugin.DependencyError
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, plugin.KindCircularDependency, depErr.Kind)
	assert.Equal(t, []string{"C", "B", "A", "C"}, depErr.Cycle)
	assert.False(t, r.Has("C"))
}

func TestResolveDependencies(t *testing.T) {
	r := plugin.NewRegistry()
	register(t, r, manifest("A", "1.0.0"))
	register(t, r, manifest("B", "1.0.0", requires("A", "^1.0.0")))
	register(t, r, manifest("C", "1.0.0", requires("B", "^1.0.0")))

	order, err := r.ResolveDependencies([]string{"C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, order)

	all, err := r.ResolveDependencies(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, all)

	_, err = r.ResolveDependencies([]string{"ghost"})
	assert.Equal(t, plugin.KindNotFound, plugin.KindOf(err))
}

func TestResolveDependencies_OrderProperty(t *testing.T) {
	r := plugin.NewRegistry()
	// a layered DAG where each plugin requires up to two lower-numbered ones
	for i := 0; i < 30; i++ {
		var deps []plugin.Dependency
		if i >= 1 {
			deps = append(deps, requires(fmt.Sprintf("p%02d", i-1), "^1.0.0"))
		}
		if i >= 3 && i%3 == 0 {
			deps = append(deps, requires(fmt.Sprintf("p%02d", i/3), "~1.0.0"))
		}
		register(t, r, manifest(fmt.Sprintf("p%02d", i), "1.0.0", deps...))
	}

	order, err := r.ResolveDependencies(nil)
	require.NoError(t, err)
	require.Len(t, order, 30)

	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	for _, e := range r.List() {
		for _, d := range e.Dependencies {
			assert.Less(t, pos[d.Name], pos[e.Manifest.Name], "%s must load before %s", d.Name, e.Manifest.Name)
		}
	}
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()
	register(t, r, manifest("A", "1.0.0"))
	register(t, r, manifest("B", "1.0.0", requires("A", "^1.0.0")))
	register(t, r, manifest("C", "1.0.0", requires("A", "~1.0.0")))

	err := r.Unregister(ctx, "A")
	var depErr *plugin.DependencyError
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, plugin.KindHasDependents, depErr.Kind)
	assert.Equal(t, []string{"B", "C"}, depErr.Blocking)
	assert.True(t, r.Has("A"))

	require.NoError(t, r.Unregister(ctx, "B"))
	require.NoError(t, r.Unregister(ctx, "C"))
	require.NoError(t, r.Unregister(ctx, "A"))
	assert.Equal(t, 0, r.Len())

	err = r.Unregister(ctx, "A")
	assert.Equal(t, plugin.KindNotFound, plugin.KindOf(err))
}

func TestUnregister_OptionalDependentDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()
	register(t, r, manifest("theme", "1.0.0"))
	register(t, r, manifest("ui", "1.0.0", optional("theme")))

	require.NoError(t, r.Unregister(ctx, "theme"))
	order, err := r.ResolveDependencies([]string{"ui"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ui"}, order)

	// re-registering restores the ordering edge
	register(t, r, manifest("theme", "1.0.0"))
	order, err = r.ResolveDependencies([]string{"ui"})
	require.NoError(t, err)
	assert.Equal(t, []string{"theme", "ui"}, order)
}

func TestGetDependents(t *testing.T) {
	r := plugin.NewRegistry()
	register(t, r, manifest("core", "1.0.0"))
	register(t, r, manifest("x", "1.0.0", requires("core", "*")))
	register(t, r, manifest("y", "1.0.0", optional("core")))
	register(t, r, manifest("z", "1.0.0"))

	assert.Equal(t, []string{"x", "y"}, r.GetDependents("core"))
	assert.Empty(t, r.GetDependents("z"))
	assert.Empty(t, r.GetDependents("unknown"))
}

func TestGetDependents_RegistrationOrder(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()
	register(t, r, manifest("core", "1.0.0"))
	register(t, r, manifest("tmp", "1.0.0"))
	register(t, r, manifest("x", "1.0.0", requires("core", "^1.0.0")))
	require.NoError(t, r.Unregister(ctx, "tmp"))

	// w may reuse tmp's graph slot, ahead of x
	register(t, r, manifest("w", "1.0.0", requires("core", "^1.0.0")))
	svc := manifest("svc", "1.0.0", plugin.Dependency{Name: "core", Type: plugin.DependencyService})
	register(t, r, svc)

	assert.Equal(t, []string{"x", "w"}, r.GetDependents("core"))

	err := r.Unregister(ctx, "core")
	var depErr *plugin.DependencyError
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, []string{"x", "w"}, depErr.Blocking)
}

func TestAreDependenciesSatisfied(t *testing.T) {
	r := plugin.NewRegistry()
	register(t, r, manifest("db", "1.0.0"))
	register(t, r, manifest("api", "1.0.0", requires("db", "^1.0.0"), optional("cache")))

	assert.False(t, r.AreDependenciesSatisfied("api"), "db is only registered")

	_, err := r.UpdateStatus("db", plugin.StatusInitialized)
	require.NoError(t, err)
	assert.True(t, r.AreDependenciesSatisfied("api"))

	_, err = r.UpdateStatus("db", plugin.StatusRunning)
	require.NoError(t, err)
	assert.True(t, r.AreDependenciesSatisfied("api"))

	_, err = r.UpdateStatus("db", plugin.StatusDisabled)
	require.NoError(t, err)
	assert.False(t, r.AreDependenciesSatisfied("api"))

	assert.True(t, r.AreDependenciesSatisfied("db"), "no dependencies")
	assert.False(t, r.AreDependenciesSatisfied("ghost"))
}

func TestUpdateStatus(t *testing.T) {
	r := plugin.NewRegistry()
	register(t, r, manifest("p", "1.0.0"))

	prev, err := r.UpdateStatus("p", plugin.StatusInitialized)
	require.NoError(t, err)
	assert.Equal(t, plugin.StatusRegistered, prev)

	_, err = r.UpdateStatus("p", plugin.StatusDisabled)
	var se *plugin.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, plugin.KindInvalidTransition, se.Kind)
	assert.Equal(t, plugin.StatusInitialized, se.From)

	_, err = r.UpdateStatus("missing", plugin.StatusRunning)
	assert.Equal(t, plugin.KindNotFound, plugin.KindOf(err))
}

func TestFind(t *testing.T) {
	r := plugin.NewRegistry()
	mk := func(name, ver, category, author string, tags ...string) *plugin.Manifest {
		m := manifest(name, ver)
		m.Author = author
		m.Metadata = plugin.Metadata{Category: category, Tags: tags}
		return m
	}
	register(t, r, mk("auth-jwt", "1.2.0", "security", "alice", "auth", "jwt"))
	register(t, r, mk("auth-oauth", "2.0.0", "security", "bob", "auth", "oauth"))
	register(t, r, mk("cache-redis", "1.0.0", "storage", "alice", "cache"))
	_, err := r.UpdateStatus("cache-redis", plugin.StatusInitialized)
	require.NoError(t, err)

	names := func(entries []plugin.Entry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.Manifest.Name)
		}
		return out
	}

	tests := []struct {
		name     string
		criteria plugin.Criteria
		want     []string
	}{
		{"all", plugin.Criteria{}, []string{"auth-jwt", "auth-oauth", "cache-redis"}},
		{"name substring", plugin.Criteria{Name: "AUTH"}, []string{"auth-jwt", "auth-oauth"}},
		{"category", plugin.Criteria{Category: "storage"}, []string{"cache-redis"}},
		{"tag match any", plugin.Criteria{Tags: []string{"jwt", "cache"}}, []string{"auth-jwt", "cache-redis"}},
		{"author", plugin.Criteria{Author: "alice"}, []string{"auth-jwt", "cache-redis"}},
		{"status", plugin.Criteria{Status: plugin.StatusInitialized}, []string{"cache-redis"}},
		{"version range", plugin.Criteria{Version: "^1.0.0"}, []string{"auth-jwt", "cache-redis"}},
		{"combined", plugin.Criteria{Category: "security", Version: "^2.0.0"}, []string{"auth-oauth"}},
		{"no match", plugin.Criteria{Author: "carol"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(r.Find(tt.criteria)))
		})
	}
}

func TestStats(t *testing.T) {
	r := plugin.NewRegistry()
	a := manifest("a", "1.0.0")
	a.Metadata.Category = "net"
	register(t, r, a)
	register(t, r, manifest("b", "1.0.0"))
	_, err := r.UpdateStatus("b", plugin.StatusInitialized)
	require.NoError(t, err)

	s := r.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.ByStatus[plugin.StatusRegistered])
	assert.Equal(t, 1, s.ByStatus[plugin.StatusInitialized])
	assert.Equal(t, map[string]int{"net": 1, "uncategorized": 1}, s.ByCategory)
}

func TestValidate(t *testing.T) {
	r := plugin.NewRegistry()
	register(t, r, manifest("db", "2.0.0"))

	t.Run("valid with warnings", func(t *testing.T) {
		m := manifest("api", "1.0.0", requires("db", "^2.0.0"), optional("cache"))
		res := r.Validate(plugin.Describe(m), m)
		assert.True(t, res.Valid)
		assert.Empty(t, res.Errors)
		assert.Contains(t, res.Warnings, `optional dependency "cache" is not registered`)
		assert.Contains(t, res.Warnings, "author is empty")
	})

	t.Run("collects every error", func(t *testing.T) {
		m := &plugin.Manifest{
			Name:         "db",
			Version:      "one",
			Dependencies: []plugin.Dependency{requires("db", "*"), requires("missing", "^1.0.0")},
			Permissions:  []plugin.Permission{{}},
		}
		res := r.Validate(stubPlugin{"other", "1.0.0"}, m)
		assert.False(t, res.Valid)
		assert.Contains(t, res.Errors, `version "one" is not a semantic version`)
		assert.Contains(t, res.Errors, "main is required")
		assert.Contains(t, res.Errors, `plugin "db" is already registered`)
		assert.Contains(t, res.Errors, "plugin depends on itself")
		assert.Contains(t, res.Errors, `required dependency "missing" is not registered`)
		assert.Contains(t, res.Errors, "permission 0 has no type")
		assert.Len(t, res.Errors, 8)
	})

	t.Run("incompatible dependency", func(t *testing.T) {
		m := manifest("api", "1.0.0", requires("db", "~1.4.0"))
		res := r.Validate(plugin.Describe(m), m)
		assert.False(t, res.Valid)
		assert.Equal(t, []string{`dependency "db" requires ~1.4.0, installed 2.0.0`}, res.Errors)
	})

	t.Run("does not mutate", func(t *testing.T) {
		m := manifest("new", "1.0.0")
		r.Validate(plugin.Describe(m), m)
		assert.False(t, r.Has("new"))
	})

	t.Run("whitespace name", func(t *testing.T) {
		m := manifest(" ", "1.0.0")
		m.Main = "x.so"
		res := r.Validate(plugin.Describe(m), m)
		assert.False(t, res.Valid)
		assert.Contains(t, res.Errors, "name is required")
	})
}

func TestValidate_CycleThroughOptionalDependency(t *testing.T) {
	r := plugin.NewRegistry()
	register(t, r, manifest("A", "1.0.0", optional("C")))
	register(t, r, manifest("B", "1.0.0", requires("A", "^1.0.0")))

	c := manifest("C", "1.0.0", requires("B", "^1.0.0"))
	res := r.Validate(plugin.Describe(c), c)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"circular dependency: C -> B -> A -> C"}, res.Errors)
	assert.False(t, r.Has("C"))

	err := r.Register(context.Background(), plugin.Describe(c), c)
	assert.Equal(t, plugin.KindCircularDependency, plugin.KindOf(err))

	ok := manifest("D", "1.0.0", requires("B", "^1.0.0"))
	assert.True(t, r.Validate(plugin.Describe(ok), ok).Valid)
}

// Validate must reject whatever Register rejects.
func TestValidate_AgreesWithRegister(t *testing.T) {
	tests := []struct {
		name string
		m    *plugin.Manifest
	}{
		{"blank name", manifest("  ", "1.0.0")},
		{"blank main", &plugin.Manifest{Name: "x", Version: "1.0.0", Main: " "}},
		{"blank dependency name", manifest("x", "1.0.0", requires(" ", "*"))},
		{"blank permission", &plugin.Manifest{Name: "x", Version: "1.0.0", Main: "x.so", Permissions: []plugin.Permission{{Type: " "}}}},
		{"bad version", manifest("x", "1.0")},
		{"self dependency", manifest("x", "1.0.0", requires("x", "*"))},
		{"missing dependency", manifest("x", "1.0.0", requires("ghost", "*"))},
		{"incompatible dependency", manifest("x", "1.0.0", requires("base", "^2.0.0"))},
		{"duplicate", manifest("base", "1.0.0")},
		{"cycle", manifest("loop", "1.0.0", requires("needs-loop", "*"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := plugin.NewRegistry()
			register(t, r, manifest("base", "1.0.0"))
			register(t, r, manifest("needs-loop", "1.0.0", optional("loop")))

			res := r.Validate(plugin.Describe(tt.m), tt.m)
			err := r.Register(context.Background(), plugin.Describe(tt.m), tt.m)
			require.Error(t, err)
			assert.False(t, res.Valid, "register failed with %v", err)
		})
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := plugin.NewRegistry()
	register(t, r, manifest("base", "1.0.0"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := manifest(fmt.Sprintf("p%d", i), "1.0.0", requires("base", "^1.0.0"))
			assert.NoError(t, r.Register(context.Background(), plugin.Describe(m), m))
			r.Find(plugin.Criteria{Name: "p"})
			r.AreDependenciesSatisfied(m.Name)
			_, _ = r.ResolveDependencies(nil)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 21, r.Len())
	assert.Len(t, r.GetDependents("base"), 20)
}
