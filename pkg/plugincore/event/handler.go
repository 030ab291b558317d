package event

import "context"

// Handler processes events delivered to a subscription.
// A returned error (or a panic) is recorded against the subscription and
// never interrupts delivery to other subscriptions.
type Handler interface {
	Handle(ctx context.Context, evt *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt *Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

// Filter decides whether an event is dispatched at all.
// Returning false drops the event silently.
type Filter func(evt *Event) bool

// Next continues a middleware chain.
type Next func(ctx context.Context) error

// Middleware wraps asynchronous dispatch. It must call next to let the event
// reach handlers; returning without calling next stops propagation.
//
// Example:
//
//	audit := func(ctx context.Context, evt *event.Event, next event.Next) error {
//	    log.Printf("dispatching %s", evt.Type)
//	    return next(ctx)
//	}
type Middleware func(ctx context.Context, evt *Event, next Next) error

// chainMiddleware composes middleware so that the first element is outermost.
func chainMiddleware(evt *Event, final Next, middleware []Middleware) Next {
	next := final
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		inner := next
		next = func(ctx context.Context) error {
			return mw(ctx, evt, inner)
		}
	}
	return next
}

// PermissionChecker is the security collaborator consulted before a plugin
// subscribes or emits.
type PermissionChecker interface {
	HasPermission(plugin, permission string) bool
}

// PermissionFunc adapts a function to PermissionChecker.
type PermissionFunc func(plugin, permission string) bool

// HasPermission implements PermissionChecker.
func (f PermissionFunc) HasPermission(plugin, permission string) bool {
	return f(plugin, permission)
}

// Permission types checked by the manager.
const (
	PermissionSubscribe = "events:subscribe"
	PermissionEmit      = "events:emit"
)
