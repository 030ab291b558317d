package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type decodeFunc func(data []byte, v any) error

var decoders = map[string]decodeFunc{
	".yaml": yaml.Unmarshal,
	".yml":  yaml.Unmarshal,
	".json": json.Unmarshal,
}

// FromFile loads a core configuration file. The format follows the
// extension: .yaml, .yml or .json, matched case-insensitively. Keys the file
// leaves out keep their Default values.
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Config{}, fmt.Errorf("unsupported config file extension %q", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := parse(data, decode)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FromYAML parses a YAML document.
func FromYAML(data []byte) (Config, error) { return parse(data, yaml.Unmarshal) }

// FromJSON parses a JSON document.
func FromJSON(data []byte) (Config, error) { return parse(data, json.Unmarshal) }

// FromMap builds a Config from already-decoded settings, such as a section
// of a host application's own configuration.
func FromMap(m map[string]any) Config {
	return FromValues(NewValues(m))
}

func parse(data []byte, decode decodeFunc) (Config, error) {
	var m map[string]any
	if err := decode(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return FromMap(m), nil
}
