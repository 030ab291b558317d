package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DependencyType classifies what a dependency refers to.
type DependencyType string

const (
	// DependencyPlugin is another plugin in the same registry.
	DependencyPlugin DependencyType = "plugin"
	// DependencyService is an external service the host provides.
	DependencyService DependencyType = "service"
	// DependencyPackage is a library package.
	DependencyPackage DependencyType = "package"
)

// Dependency is one entry in a manifest's dependency list.
type Dependency struct {
	Name     string         `json:"name" yaml:"name"`
	Version  string         `json:"version,omitempty" yaml:"version,omitempty"`
	Type     DependencyType `json:"type,omitempty" yaml:"type,omitempty"`
	Optional bool           `json:"optional,omitempty" yaml:"optional,omitempty"`
	Scope    string         `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// IsPlugin reports whether the dependency refers to another plugin.
// An untyped dependency is treated as a plugin dependency.
func (d Dependency) IsPlugin() bool {
	return d.Type == "" || d.Type == DependencyPlugin
}

// Permission is a capability a plugin requests from the host.
type Permission struct {
	Type        string `json:"type" yaml:"type"`
	Scope       string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Metadata holds search attributes.
type Metadata struct {
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// Manifest is the declarative description of a plugin.
type Manifest struct {
	Name         string       `json:"name" yaml:"name"`
	Version      string       `json:"version" yaml:"version"`
	Main         string       `json:"main" yaml:"main"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
	Author       string       `json:"author,omitempty" yaml:"author,omitempty"`
	License      string       `json:"license,omitempty" yaml:"license,omitempty"`
	Homepage     string       `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Permissions  []Permission `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Metadata     Metadata     `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// PluginDependencies returns the plugin-kind dependencies in manifest order.
func (m *Manifest) PluginDependencies() []Dependency {
	var out []Dependency
	for _, d := range m.Dependencies {
		if d.IsPlugin() {
			out = append(out, d)
		}
	}
	return out
}

// HasPermission reports whether the manifest requests a permission of the given type.
func (m *Manifest) HasPermission(permType string) bool {
	for _, p := range m.Permissions {
		if p.Type == permType {
			return true
		}
	}
	return false
}

// HasTag reports whether the manifest carries any of the given tags.
func (m *Manifest) HasTag(tags ...string) bool {
	for _, want := range tags {
		for _, have := range m.Metadata.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	c.Dependencies = append([]Dependency(nil), m.Dependencies...)
	c.Permissions = append([]Permission(nil), m.Permissions...)
	c.Metadata.Tags = append([]string(nil), m.Metadata.Tags...)
	c.Metadata.Keywords = append([]string(nil), m.Metadata.Keywords...)
	return &c
}

// DecodeJSON parses a JSON manifest. Unknown fields are rejected.
func DecodeJSON(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode JSON manifest: %w", err)
	}
	return &m, nil
}

// DecodeYAML parses a YAML manifest. Unknown fields are rejected.
func DecodeYAML(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode YAML manifest: %w", err)
	}
	return &m, nil
}

// Decode parses a manifest, choosing the format from the file name's
// extension (.json, .yaml or .yml).
func Decode(filename string, data []byte) (*Manifest, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return DecodeJSON(data)
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", filename)
	}
}
