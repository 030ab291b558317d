package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the ways a registry operation can fail.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicateName
	KindNameMismatch
	KindVersionMismatch
	KindMalformedManifest
	KindMissingDependency
	KindVersionIncompatible
	KindCircularDependency
	KindHasDependents
	KindNotFound
	KindInvalidTransition
)

// Sentinel errors, one per Kind. Typed errors match them via errors.Is.
var (
	ErrDuplicateName       = errors.New("plugin already registered")
	ErrNameMismatch        = errors.New("plugin name does not match manifest")
	ErrVersionMismatch     = errors.New("plugin version does not match manifest")
	ErrMalformedManifest   = errors.New("malformed manifest")
	ErrMissingDependency   = errors.New("missing dependency")
	ErrVersionIncompatible = errors.New("incompatible dependency version")
	ErrCircularDependency  = errors.New("circular dependency")
	ErrHasDependents       = errors.New("plugin has dependents")
	ErrNotFound            = errors.New("plugin not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

var kindSentinels = [...]error{
	KindDuplicateName:       ErrDuplicateName,
	KindNameMismatch:        ErrNameMismatch,
	KindVersionMismatch:     ErrVersionMismatch,
	KindMalformedManifest:   ErrMalformedManifest,
	KindMissingDependency:   ErrMissingDependency,
	KindVersionIncompatible: ErrVersionIncompatible,
	KindCircularDependency:  ErrCircularDependency,
	KindHasDependents:       ErrHasDependents,
	KindNotFound:            ErrNotFound,
	KindInvalidTransition:   ErrInvalidTransition,
}

// Err returns the sentinel for k, or nil for KindUnknown.
func (k Kind) Err() error {
	if k <= KindUnknown || int(k) >= len(kindSentinels) {
		return nil
	}
	return kindSentinels[k]
}

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindDuplicateName:
		return "DuplicateName"
	case KindNameMismatch:
		return "NameMismatch"
	case KindVersionMismatch:
		return "VersionMismatch"
	case KindMalformedManifest:
		return "MalformedManifest"
	case KindMissingDependency:
		return "MissingDependency"
	case KindVersionIncompatible:
		return "VersionIncompatible"
	case KindCircularDependency:
		return "CircularDependency"
	case KindHasDependents:
		return "HasDependents"
	case KindNotFound:
		return "NotFound"
	case KindInvalidTransition:
		return "InvalidTransition"
	default:
		return "Unknown"
	}
}

// KindOf returns the Kind of a registry error, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for k := KindDuplicateName; int(k) < len(kindSentinels); k++ {
		if errors.Is(err, kindSentinels[k]) {
			return k
		}
	}
	return KindUnknown
}

// RegistrationError reports a problem with the plugin or manifest itself.
type RegistrationError struct {
	Kind   Kind
	Plugin string
	Detail string
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	msg := fmt.Sprintf("register plugin %q: %v", e.Plugin, e.Kind.Err())
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches the sentinel for the error's Kind.
func (e *RegistrationError) Is(target error) bool {
	return target != nil && target == e.Kind.Err()
}

// DependencyError reports a problem with the dependency graph.
type DependencyError struct {
	Kind       Kind
	Plugin     string
	Dependency string
	Required   string
	Installed  string
	// Blocking lists the dependents that prevent an unregister.
	Blocking []string
	// Cycle lists the cycle path for KindCircularDependency.
	Cycle []string
	Err   error
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	switch e.Kind {
	case KindMissingDependency:
		return fmt.Sprintf("plugin %q: %v %q", e.Plugin, ErrMissingDependency, e.Dependency)
	case KindVersionIncompatible:
		return fmt.Sprintf("plugin %q: %v: %q requires %s, installed %s",
			e.Plugin, ErrVersionIncompatible, e.Dependency, e.Required, e.Installed)
	case KindCircularDependency:
		return fmt.Sprintf("plugin %q: %v: %s", e.Plugin, ErrCircularDependency, strings.Join(e.Cycle, " -> "))
	case KindHasDependents:
		return fmt.Sprintf("plugin %q: %v: %s", e.Plugin, ErrHasDependents, strings.Join(e.Blocking, ", "))
	default:
		return fmt.Sprintf("plugin %q: %v", e.Plugin, e.Kind.Err())
	}
}

// Unwrap returns the underlying graph error, if any.
func (e *DependencyError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's Kind.
func (e *DependencyError) Is(target error) bool {
	return target != nil && target == e.Kind.Err()
}

// StatusError reports a lookup or lifecycle failure for a named plugin.
type StatusError struct {
	Kind   Kind
	Plugin string
	From   Status
	To     Status
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Kind == KindInvalidTransition {
		return fmt.Sprintf("plugin %q: %v from %s to %s", e.Plugin, ErrInvalidTransition, e.From, e.To)
	}
	return fmt.Sprintf("plugin %q: %v", e.Plugin, e.Kind.Err())
}

// Is matches the sentinel for the error's Kind.
func (e *StatusError) Is(target error) bool {
	return target != nil && target == e.Kind.Err()
}
