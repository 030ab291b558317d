package event

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/plugincore/pkg/plugincore/version"
)

// ErrorHandling controls what happens when a subscription's handler fails.
// Every failure is recorded in the subscription's stats regardless.
type ErrorHandling int

const (
	// ErrorHandlingLog logs the failure as a warning and reports it in the
	// emission Result. This is the default.
	ErrorHandlingLog ErrorHandling = iota
	// ErrorHandlingIgnore records the failure in stats only.
	ErrorHandlingIgnore
	// ErrorHandlingThrow logs the failure as an error and reports it in the
	// emission Result.
	ErrorHandlingThrow
)

// String returns the lowercase mode name.
func (e ErrorHandling) String() string {
	switch e {
	case ErrorHandlingIgnore:
		return "ignore"
	case ErrorHandlingThrow:
		return "throw"
	default:
		return "log"
	}
}

// Condition is an extra predicate a subscription applies to events.
type Condition func(evt *Event) bool

// SubscribeOptions configure a subscription.
// Start from DefaultSubscribeOptions: the zero value has PriorityLowest.
type SubscribeOptions struct {
	Priority Priority
	// Once removes the subscription after its first invocation.
	Once bool
	// Namespace, if set, must equal the event's namespace.
	Namespace string
	// Version, if set, is a range the event's version must satisfy.
	Version   string
	Condition Condition
	// Timeout bounds the handler on the asynchronous path. Zero uses the
	// manager's default.
	Timeout       time.Duration
	ErrorHandling ErrorHandling
	// Plugin is the owning plugin. Plugin-owned subscriptions are subject
	// to the permission checker.
	Plugin string
}

// DefaultSubscribeOptions returns normal priority, repeat delivery and
// logged failures.
func DefaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{Priority: PriorityNormal, ErrorHandling: ErrorHandlingLog}
}

// SubscribeOption modifies SubscribeOptions.
type SubscribeOption func(*SubscribeOptions)

// WithPriority sets the subscription priority.
func WithPriority(p Priority) SubscribeOption {
	return func(o *SubscribeOptions) { o.Priority = p }
}

// WithNamespace restricts delivery to events in ns.
func WithNamespace(ns string) SubscribeOption {
	return func(o *SubscribeOptions) { o.Namespace = ns }
}

// WithVersion restricts delivery to events whose version satisfies rng.
func WithVersion(rng string) SubscribeOption {
	return func(o *SubscribeOptions) { o.Version = rng }
}

// WithCondition adds a predicate events must satisfy.
func WithCondition(c Condition) SubscribeOption {
	return func(o *SubscribeOptions) { o.Condition = c }
}

// WithTimeout sets the asynchronous handler timeout.
func WithTimeout(d time.Duration) SubscribeOption {
	return func(o *SubscribeOptions) { o.Timeout = d }
}

// WithErrorHandling sets the failure policy.
func WithErrorHandling(e ErrorHandling) SubscribeOption {
	return func(o *SubscribeOptions) { o.ErrorHandling = e }
}

// WithPlugin marks the subscription as owned by a plugin.
func WithPlugin(name string) SubscribeOption {
	return func(o *SubscribeOptions) { o.Plugin = name }
}

// maxRecentErrors bounds HandlerStats.RecentErrors.
const maxRecentErrors = 10

// ErrorRecord is one entry in a subscription's recent error history.
type ErrorRecord struct {
	Message   string
	EventID   string
	EventType string
	At        time.Time
}

// HandlerStats are the runtime statistics of one subscription.
type HandlerStats struct {
	Invocations     int64
	Successes       int64
	Failures        int64
	AverageDuration time.Duration
	LastExecuted    time.Time
	// RecentErrors holds the last 10 failures, oldest first.
	RecentErrors []ErrorRecord
}

type subscription struct {
	id           string
	eventType    string
	handler      Handler
	opts         SubscribeOptions
	subscribedAt time.Time

	// fired is claimed before invoking a Once subscription.
	fired atomic.Bool

	mu     sync.Mutex
	stats  HandlerStats
	errors [maxRecentErrors]ErrorRecord
	errPos int
	errLen int
}

// matches reports whether the subscription's namespace, version and
// condition accept evt. A panicking condition does not match.
func (s *subscription) matches(evt *Event) (ok bool) {
	if s.opts.Namespace != "" && s.opts.Namespace != evt.Namespace {
		return false
	}
	if s.opts.Version != "" && !version.Satisfies(evt.Version, s.opts.Version) {
		return false
	}
	if s.opts.Condition == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return s.opts.Condition(evt)
}

func (s *subscription) record(evt *Event, d time.Duration, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Invocations++
	s.stats.AverageDuration += (d - s.stats.AverageDuration) / time.Duration(s.stats.Invocations)
	s.stats.LastExecuted = at
	if err == nil {
		s.stats.Successes++
		return
	}
	s.stats.Failures++
	s.errors[s.errPos] = ErrorRecord{Message: err.Error(), EventID: evt.ID, EventType: evt.Type, At: at}
	s.errPos = (s.errPos + 1) % maxRecentErrors
	if s.errLen < maxRecentErrors {
		s.errLen++
	}
}

func (s *subscription) snapshotStats() HandlerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.RecentErrors = make([]ErrorRecord, 0, s.errLen)
	start := (s.errPos - s.errLen + maxRecentErrors) % maxRecentErrors
	for i := 0; i < s.errLen; i++ {
		st.RecentErrors = append(st.RecentErrors, s.errors[(start+i)%maxRecentErrors])
	}
	return st
}

// SubscriptionInfo describes a subscription for introspection.
type SubscriptionInfo struct {
	ID            string
	EventType     string
	Plugin        string
	Priority      Priority
	Once          bool
	Namespace     string
	Version       string
	ErrorHandling ErrorHandling
	SubscribedAt  time.Time
	Stats         HandlerStats
}

func (s *subscription) info() SubscriptionInfo {
	return SubscriptionInfo{
		ID:            s.id,
		EventType:     s.eventType,
		Plugin:        s.opts.Plugin,
		Priority:      s.opts.Priority,
		Once:          s.opts.Once,
		Namespace:     s.opts.Namespace,
		Version:       s.opts.Version,
		ErrorHandling: s.opts.ErrorHandling,
		SubscribedAt:  s.subscribedAt,
		Stats:         s.snapshotStats(),
	}
}
