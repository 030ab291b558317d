// Package version validates plugin versions and evaluates dependency ranges.
//
// Versions must be strict semantic versions (MAJOR.MINOR.PATCH with optional
// -prerelease and +build suffixes). Ranges are deliberately narrow:
//
//	^1.2.3   any version with major 1
//	~1.2.3   any version with major 1 and minor 2
//	*        any version (an empty range behaves the same)
//	1.2.3    exactly "1.2.3", compared byte for byte
package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalid is returned when a string is not a strict semantic version.
var ErrInvalid = errors.New("invalid semantic version")

// Parse parses a strict semantic version.
func Parse(s string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalid, s, err)
	}
	return v, nil
}

// Valid reports whether s is a strict semantic version.
func Valid(s string) bool {
	_, err := semver.StrictNewVersion(s)
	return err == nil
}

// Operator identifies how a Range compares versions.
type Operator int

const (
	// OpExact requires byte-for-byte equality.
	OpExact Operator = iota
	// OpCaret requires the same major version.
	OpCaret
	// OpTilde requires the same major and minor version.
	OpTilde
	// OpAny matches every version.
	OpAny
)

// String returns the operator prefix used in range strings.
func (o Operator) String() string {
	switch o {
	case OpCaret:
		return "^"
	case OpTilde:
		return "~"
	case OpAny:
		return "*"
	default:
		return "="
	}
}

// Range is a parsed dependency version range.
type Range struct {
	Op   Operator
	Raw  string
	base *semver.Version
}

// ParseRange parses a range string. It never fails: a caret or tilde range
// whose base is not a valid version simply matches nothing.
func ParseRange(s string) Range {
	r := Range{Raw: s}
	switch {
	case s == "" || s == "*":
		r.Op = OpAny
	case strings.HasPrefix(s, "^"):
		r.Op = OpCaret
		r.base, _ = semver.StrictNewVersion(s[1:])
	case strings.HasPrefix(s, "~"):
		r.Op = OpTilde
		r.base, _ = semver.StrictNewVersion(s[1:])
	default:
		r.Op = OpExact
	}
	return r
}

// Allows reports whether the installed version satisfies the range.
func (r Range) Allows(installed string) bool {
	switch r.Op {
	case OpAny:
		return true
	case OpExact:
		return installed == r.Raw
	}

	if r.base == nil {
		return false
	}
	v, err := semver.StrictNewVersion(installed)
	if err != nil {
		return false
	}
	if v.Major() != r.base.Major() {
		return false
	}
	if r.Op == OpTilde {
		return v.Minor() == r.base.Minor()
	}
	return true
}

// String returns the original range text.
func (r Range) String() string {
	return r.Raw
}

// Satisfies reports whether installed satisfies rng.
func Satisfies(installed, rng string) bool {
	return ParseRange(rng).Allows(installed)
}
