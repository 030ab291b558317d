package plugin

import "fmt"

// Status is the lifecycle state of a registered plugin.
//
//	registered → initialized → running ⇄ disabled → destroyed
//
// Any live state may also move directly to destroyed.
type Status int

const (
	// StatusRegistered is assigned on successful registration.
	StatusRegistered Status = iota + 1
	// StatusInitialized means the host has run the plugin's setup.
	StatusInitialized
	// StatusRunning means the plugin is active.
	StatusRunning
	// StatusDisabled means the plugin was paused and may resume.
	StatusDisabled
	// StatusDestroyed is terminal.
	StatusDestroyed
)

var statusNames = map[Status]string{
	StatusRegistered:  "registered",
	StatusInitialized: "initialized",
	StatusRunning:     "running",
	StatusDisabled:    "disabled",
	StatusDestroyed:   "destroyed",
}

// String returns the lowercase status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus converts a status name to a Status.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown plugin status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Staying in the same state is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusRegistered:
		return next == StatusInitialized || next == StatusDestroyed
	case StatusInitialized:
		return next == StatusRunning || next == StatusDestroyed
	case StatusRunning:
		return next == StatusDisabled || next == StatusDestroyed
	case StatusDisabled:
		return next == StatusRunning || next == StatusDestroyed
	default:
		return false
	}
}

// Active reports whether a plugin in this status satisfies dependents.
func (s Status) Active() bool {
	return s == StatusInitialized || s == StatusRunning
}
