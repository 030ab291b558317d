// Package eventstore provides implementations of event.Store.
//
// MemoryStore is a bounded ring buffer and the default store. SQLiteStore
// keeps events in a SQLite database for inspection across restarts; it
// satisfies the same contract and adds no delivery guarantees.
package eventstore

import (
	"context"
	"errors"
	"iter"

	"github.com/randalmurphal/plugincore/pkg/plugincore/event"
)

// DefaultCapacity is the number of events a MemoryStore keeps when no
// capacity is given.
const DefaultCapacity = 10000

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("event store closed")

var (
	_ event.Store = (*MemoryStore)(nil)
	_ event.Store = (*SQLiteStore)(nil)
)

// streamSlice yields events one by one, stopping early when ctx is done.
func streamSlice(ctx context.Context, events []*event.Event, err error) iter.Seq2[*event.Event, error] {
	return func(yield func(*event.Event, error) bool) {
		if err != nil {
			yield(nil, err)
			return
		}
		for _, evt := range events {
			if cerr := ctx.Err(); cerr != nil {
				yield(nil, cerr)
				return
			}
			if !yield(evt, nil) {
				return
			}
		}
	}
}
