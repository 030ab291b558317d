package config

import (
	"strings"
	"time"
)

// Values wraps a decoded YAML or JSON document for lenient, typed lookups.
// Keys may be dotted paths into nested maps ("store.backend"). Every
// accessor returns its default when the key is missing or the value has the
// wrong type.
type Values struct {
	data map[string]any
}

// NewValues creates Values from the given map.
// If data is nil, empty Values are returned.
func NewValues(data map[string]any) Values {
	if data == nil {
		data = make(map[string]any)
	}
	return Values{data: data}
}

func (v Values) lookup(key string) (any, bool) {
	var cur any = v.data
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether key is present.
func (v Values) Has(key string) bool {
	_, ok := v.lookup(key)
	return ok
}

// String returns the string at key, or defaultVal.
func (v Values) String(key, defaultVal string) string {
	raw, ok := v.lookup(key)
	if !ok {
		return defaultVal
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return defaultVal
}

// Duration returns the duration at key, or defaultVal.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int, int64, float64: interpreted as seconds
//   - time.Duration: used directly
func (v Values) Duration(key string, defaultVal time.Duration) time.Duration {
	raw, ok := v.lookup(key)
	if !ok {
		return defaultVal
	}
	switch val := raw.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// Bool returns the boolean at key, or defaultVal.
func (v Values) Bool(key string, defaultVal bool) bool {
	raw, ok := v.lookup(key)
	if !ok {
		return defaultVal
	}
	if b, ok := raw.(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer at key, or defaultVal. A float64 converts only when
// it has no fractional part.
func (v Values) Int(key string, defaultVal int) int {
	raw, ok := v.lookup(key)
	if !ok {
		return defaultVal
	}
	switch val := raw.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Section returns the nested map at key as Values. A missing or non-map
// key yields empty Values.
func (v Values) Section(key string) Values {
	raw, ok := v.lookup(key)
	if !ok {
		return NewValues(nil)
	}
	m, _ := raw.(map[string]any)
	return NewValues(m)
}

// Raw returns the underlying map.
// The returned map should not be modified.
func (v Values) Raw() map[string]any {
	return v.data
}
