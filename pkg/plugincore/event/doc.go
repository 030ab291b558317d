// Package event provides the publish/subscribe engine plugins and the host
// use to communicate.
//
// # Overview
//
//   - Manager owns a subscription table keyed by event type
//   - Subscriptions run in descending priority, ties in subscription order
//   - Filters drop events before any handler sees them
//   - Middleware wraps asynchronous dispatch and may halt it
//   - Handler failures are isolated and recorded, never raised to the emitter
//   - An optional Store persists every dispatched event
//
// # Subscribing
//
//	mgr := event.NewManager(event.WithLogger(logger))
//
//	id, err := mgr.On("order:placed", event.HandlerFunc(func(ctx context.Context, evt *event.Event) error {
//	    return ship(ctx, evt.Data)
//	}), event.WithPriority(event.PriorityHigh))
//
//	mgr.Once("app:started", warmup)
//	mgr.Off(id)
//
// Namespace, version range and condition restrict which events a
// subscription receives. Conditions are plain predicates or compiled from
// text with ParseCondition.
//
// # Emitting
//
// Emit runs handlers synchronously in priority order on the caller's
// goroutine. EmitAsync and EmitWithOptions run the middleware chain and then
// every matching handler concurrently, each bounded by its timeout:
//
//	res, err := mgr.EmitAsync(ctx, "order:placed", order)
//	if err != nil {
//	    return err // closed manager, permission or depth failure
//	}
//	if res.Failed > 0 {
//	    log.Println(res.Err())
//	}
//
// The subscriber list is captured when an emission starts. Subscriptions
// added or removed by handlers take effect for the next emission.
//
// Handlers may emit further events. The nesting depth travels on the
// context and is capped by Config.MaxDepth.
//
// # Batches
//
// EmitBatch dispatches many events sequentially or in parallel, with
// per-batch failure handling:
//
//	out, err := mgr.EmitBatch(ctx, events, event.BatchOptions{
//	    Mode:     event.BatchParallel,
//	    FailFast: true,
//	})
//
// # Storage
//
// A Store (see the eventstore package) records emitted events. History
// queries it with Criteria.
package event
