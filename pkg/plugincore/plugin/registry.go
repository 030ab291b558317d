package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/plugincore/pkg/plugincore/graph"
	"github.com/randalmurphal/plugincore/pkg/plugincore/observability"
	"github.com/randalmurphal/plugincore/pkg/plugincore/registry"
	"github.com/randalmurphal/plugincore/pkg/plugincore/version"
)

// Registry owns registered plugins and their dependency graph.
// It is safe for concurrent use; mutations are serialized.
type Registry struct {
	mu      sync.RWMutex
	entries *registry.Registry[string, *Entry]
	graph   *graph.Graph

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithClock overrides the time source used for RegisteredAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: registry.New[string, *Entry](),
		graph:   graph.New(),
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates p and m and adds them to the registry with status
// StatusRegistered. On failure the registry is unchanged and the error is a
// *RegistrationError or *DependencyError.
func (r *Registry) Register(ctx context.Context, p Plugin, m *Manifest) error {
	r.mu.Lock()
	err := r.register(p, m)
	r.mu.Unlock()

	name := ""
	if m != nil {
		name = m.Name
	}
	r.metrics.RecordRegistration(ctx, name, err)
	if err != nil {
		observability.LogRegistrationFailed(r.logger, name, "register", err)
		return err
	}
	observability.LogPluginRegistered(r.logger, m.Name, m.Version, len(m.PluginDependencies()))
	return nil
}

func (r *Registry) register(p Plugin, m *Manifest) error {
	if m == nil {
		return &RegistrationError{Kind: KindMalformedManifest, Detail: "manifest is nil"}
	}
	if p == nil {
		return &RegistrationError{Kind: KindMalformedManifest, Plugin: m.Name, Detail: "plugin is nil"}
	}
	if r.entries.Has(m.Name) {
		return &RegistrationError{Kind: KindDuplicateName, Plugin: m.Name}
	}
	if p.Name() != m.Name {
		return &RegistrationError{
			Kind:   KindNameMismatch,
			Plugin: m.Name,
			Detail: fmt.Sprintf("plugin reports %q", p.Name()),
		}
	}
	if p.Version() != m.Version {
		return &RegistrationError{
			Kind:   KindVersionMismatch,
			Plugin: m.Name,
			Detail: fmt.Sprintf("plugin reports %q, manifest declares %q", p.Version(), m.Version),
		}
	}
	if detail := structuralProblem(m); detail != "" {
		return &RegistrationError{Kind: KindMalformedManifest, Plugin: m.Name, Detail: detail}
	}

	deps := m.PluginDependencies()
	names := make([]string, 0, len(deps))
	for _, d := range deps {
		names = append(names, d.Name)
		if d.Optional {
			continue
		}
		dep, ok := r.entries.Get(d.Name)
		if !ok {
			return &DependencyError{Kind: KindMissingDependency, Plugin: m.Name, Dependency: d.Name, Required: d.Version}
		}
		if !version.Satisfies(dep.Manifest.Version, d.Version) {
			return &DependencyError{
				Kind:       KindVersionIncompatible,
				Plugin:     m.Name,
				Dependency: d.Name,
				Required:   d.Version,
				Installed:  dep.Manifest.Version,
			}
		}
	}

	if err := r.graph.Add(m.Name, names); err != nil {
		var ce *graph.CycleError
		if errors.As(err, &ce) {
			return &DependencyError{Kind: KindCircularDependency, Plugin: m.Name, Cycle: ce.Path, Err: err}
		}
		return &RegistrationError{Kind: KindDuplicateName, Plugin: m.Name, Detail: err.Error()}
	}

	manifest := m.Clone()
	r.entries.Insert(m.Name, &Entry{
		Plugin:       p,
		Manifest:     manifest,
		Status:       StatusRegistered,
		RegisteredAt: r.now(),
		Dependencies: manifest.PluginDependencies(),
	})
	return nil
}

// structuralProblem returns a description of the first structural defect in
// m, or "" if there is none.
func structuralProblem(m *Manifest) string {
	if problems := structuralProblems(m); len(problems) > 0 {
		return problems[0]
	}
	return ""
}

// structuralProblems lists every structural defect in m, in field order.
func structuralProblems(m *Manifest) []string {
	var out []string
	if strings.TrimSpace(m.Name) == "" {
		out = append(out, "name is required")
	}
	switch {
	case m.Version == "":
		out = append(out, "version is required")
	case !version.Valid(m.Version):
		out = append(out, fmt.Sprintf("version %q is not a semantic version", m.Version))
	}
	if strings.TrimSpace(m.Main) == "" {
		out = append(out, "main is required")
	}
	for i, d := range m.Dependencies {
		if strings.TrimSpace(d.Name) == "" {
			out = append(out, fmt.Sprintf("dependency %d has no name", i))
		}
	}
	for i, p := range m.Permissions {
		if strings.TrimSpace(p.Type) == "" {
			out = append(out, fmt.Sprintf("permission %d has no type", i))
		}
	}
	return out
}

// Unregister removes a plugin. It fails with KindHasDependents, listing the
// blockers, while any registered plugin requires it.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	err := r.unregister(name)
	r.mu.Unlock()

	if err != nil {
		observability.LogRegistrationFailed(r.logger, name, "unregister", err)
		return err
	}
	observability.LogPluginUnregistered(r.logger, name)
	return nil
}

func (r *Registry) unregister(name string) error {
	if !r.entries.Has(name) {
		return &StatusError{Kind: KindNotFound, Plugin: name}
	}
	if blocking := r.requiredBy(name); len(blocking) > 0 {
		return &DependencyError{Kind: KindHasDependents, Plugin: name, Blocking: blocking}
	}
	r.graph.Remove(name)
	r.entries.Delete(name)
	return nil
}

// requiredBy lists, in registration order, the plugins with a non-optional
// dependency on name. Callers hold r.mu.
func (r *Registry) requiredBy(name string) []string {
	return r.dependents(name, func(e *Entry) bool {
		for _, d := range e.Dependencies {
			if d.Name == name && !d.Optional {
				return true
			}
		}
		return false
	})
}

// dependents returns the graph's dependents of name that keep satisfies,
// ordered by registration. Callers hold r.mu.
func (r *Registry) dependents(name string, keep func(*Entry) bool) []string {
	from := r.graph.Dependents(name)
	if len(from) == 0 {
		return nil
	}
	want := make(map[string]bool, len(from))
	for _, n := range from {
		want[n] = true
	}
	var out []string
	r.entries.Range(func(k string, e *Entry) bool {
		if want[k] && (keep == nil || keep(e)) {
			out = append(out, k)
		}
		return len(out) < len(from)
	})
	return out
}

// ResolveDependencies returns names and their transitive dependencies in
// load order: every plugin appears after the plugins it depends on. With no
// names, every registered plugin is resolved in registration order.
func (r *Registry) ResolveDependencies(names []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		names = r.entries.Keys()
	}
	for _, name := range names {
		if !r.graph.Has(name) {
			return nil, &StatusError{Kind: KindNotFound, Plugin: name}
		}
	}

	order, err := r.graph.Resolve(names)
	if err == nil {
		return order, nil
	}
	var ce *graph.CycleError
	if errors.As(err, &ce) {
		return nil, &DependencyError{Kind: KindCircularDependency, Plugin: ce.Node, Cycle: ce.Path, Err: err}
	}
	return nil, err
}

// Get returns a copy of the entry for name.
func (r *Registry) Get(name string) (Entry, bool) {
	e, ok := r.entries.Get(name)
	if !ok {
		return Entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.clone(), true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	return r.entries.Has(name)
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	return r.entries.Len()
}

// Names returns registered plugin names in registration order.
func (r *Registry) Names() []string {
	return r.entries.Keys()
}

// List returns copies of all entries in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.entries.Values()
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.clone())
	}
	return out
}

// GetDependents returns the plugins with a plugin dependency on name,
// optional or not, in registration order.
func (r *Registry) GetDependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dependents(name, nil)
}

// AreDependenciesSatisfied reports whether every required dependency of name
// is registered and initialized or running. Unknown plugins are unsatisfied.
func (r *Registry) AreDependenciesSatisfied(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries.Get(name)
	if !ok {
		return false
	}
	for _, d := range e.Dependencies {
		if d.Optional {
			continue
		}
		dep, ok := r.entries.Get(d.Name)
		if !ok || !dep.Status.Active() {
			return false
		}
	}
	return true
}

// UpdateStatus moves a plugin to a new lifecycle status and returns the
// previous one. Transitions the lifecycle does not allow fail with
// KindInvalidTransition.
func (r *Registry) UpdateStatus(name string, status Status) (Status, error) {
	r.mu.Lock()
	e, ok := r.entries.Get(name)
	if !ok {
		r.mu.Unlock()
		return 0, &StatusError{Kind: KindNotFound, Plugin: name}
	}
	prev := e.Status
	if !prev.CanTransitionTo(status) {
		r.mu.Unlock()
		return prev, &StatusError{Kind: KindInvalidTransition, Plugin: name, From: prev, To: status}
	}
	r.entries.Update(name, func(old *Entry) *Entry {
		next := *old
		next.Status = status
		return &next
	})
	r.mu.Unlock()

	if prev != status {
		observability.LogStatusChange(r.logger, name, prev.String(), status.String())
	}
	return prev, nil
}
