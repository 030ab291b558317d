package plugin

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/plugincore/pkg/plugincore/version"
)

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (v *ValidationResult) errorf(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *ValidationResult) warnf(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks p and m against the current registry without changing it.
// Everything Register would reject is reported as an error; softer issues
// are reported as warnings.
func (r *Registry) Validate(p Plugin, m *Manifest) ValidationResult {
	var res ValidationResult
	if m == nil {
		res.errorf("manifest is nil")
		return res
	}
	if p == nil {
		res.errorf("plugin is nil")
	}

	res.Errors = append(res.Errors, structuralProblems(m)...)
	if p != nil {
		if p.Name() != m.Name {
			res.errorf("plugin name %q does not match manifest name %q", p.Name(), m.Name)
		}
		if p.Version() != m.Version {
			res.errorf("plugin version %q does not match manifest version %q", p.Version(), m.Version)
		}
	}
	if m.Name != "" && r.Has(m.Name) {
		res.errorf("plugin %q is already registered", m.Name)
	}

	if m.Description == "" {
		res.warnf("description is empty")
	}
	if m.Author == "" {
		res.warnf("author is empty")
	}
	if m.Metadata.Category == "" {
		res.warnf("category is empty")
	}

	r.validateDependencies(m, &res)

	res.Valid = len(res.Errors) == 0
	return res
}

func (r *Registry) validateDependencies(m *Manifest, res *ValidationResult) {
	seen := make(map[string]bool)
	var edges []string
	for _, d := range m.Dependencies {
		if strings.TrimSpace(d.Name) == "" {
			continue
		}
		if seen[d.Name] {
			res.warnf("dependency %q is listed more than once", d.Name)
		}
		seen[d.Name] = true

		if !d.IsPlugin() {
			continue
		}
		if d.Name == m.Name {
			res.errorf("plugin depends on itself")
			continue
		}
		edges = append(edges, d.Name)

		rng := version.ParseRange(d.Version)
		if rng.Op != version.OpExact && rng.Op != version.OpAny && !version.Valid(d.Version[1:]) {
			res.warnf("dependency %q has malformed range %q", d.Name, d.Version)
		}

		dep, ok := r.Get(d.Name)
		switch {
		case !ok && d.Optional:
			res.warnf("optional dependency %q is not registered", d.Name)
		case !ok:
			res.errorf("required dependency %q is not registered", d.Name)
		case !rng.Allows(dep.Manifest.Version) && d.Optional:
			res.warnf("optional dependency %q requires %s, installed %s", d.Name, d.Version, dep.Manifest.Version)
		case !rng.Allows(dep.Manifest.Version):
			res.errorf("dependency %q requires %s, installed %s", d.Name, d.Version, dep.Manifest.Version)
		}
	}

	if len(edges) == 0 || r.Has(m.Name) {
		return
	}
	r.mu.RLock()
	cycle := r.graph.WouldCycle(m.Name, edges)
	r.mu.RUnlock()
	if cycle != nil {
		res.errorf("circular dependency: %s", strings.Join(cycle, " -> "))
	}
}
