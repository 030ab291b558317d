package plugin

import (
	"strings"

	"github.com/randalmurphal/plugincore/pkg/plugincore/version"
)

// Criteria selects registered plugins. Zero-valued fields match everything.
type Criteria struct {
	// Name matches plugins whose name contains it, case-insensitively.
	Name     string
	Category string
	// Tags matches plugins carrying at least one of the tags.
	Tags   []string
	Author string
	Status Status
	// Version is a range the plugin's version must satisfy.
	Version string
}

func (c Criteria) matches(e *Entry) bool {
	m := e.Manifest
	if c.Name != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(c.Name)) {
		return false
	}
	if c.Category != "" && m.Metadata.Category != c.Category {
		return false
	}
	if len(c.Tags) > 0 && !m.HasTag(c.Tags...) {
		return false
	}
	if c.Author != "" && m.Author != c.Author {
		return false
	}
	if c.Status != 0 && e.Status != c.Status {
		return false
	}
	if c.Version != "" && !version.Satisfies(m.Version, c.Version) {
		return false
	}
	return true
}

// Find returns copies of the entries matching c, in registration order.
func (r *Registry) Find(c Criteria) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	r.entries.Range(func(_ string, e *Entry) bool {
		if c.matches(e) {
			out = append(out, e.clone())
		}
		return true
	})
	return out
}

// Stats summarizes the registry.
type Stats struct {
	Total      int
	ByStatus   map[Status]int
	ByCategory map[string]int
}

// Stats counts plugins by status and by category. Plugins without a
// category are counted under "uncategorized".
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		ByStatus:   make(map[Status]int),
		ByCategory: make(map[string]int),
	}
	r.entries.Range(func(_ string, e *Entry) bool {
		s.Total++
		s.ByStatus[e.Status]++
		category := e.Manifest.Metadata.Category
		if category == "" {
			category = "uncategorized"
		}
		s.ByCategory[category]++
		return true
	})
	return s
}
