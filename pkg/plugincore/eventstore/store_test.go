package eventstore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/plugincore/pkg/plugincore/event"
	"github.com/randalmurphal/plugincore/pkg/plugincore/eventstore"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) event.Store

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newEvent(typ, source string, offset time.Duration) *event.Event {
	opts := event.DefaultEmitOptions()
	opts.Source = source
	return event.New(typ, map[string]any{"n": "v"}, opts, base.Add(offset))
}

func seed(t *testing.T, s event.Store) []*event.Event {
	t.Helper()
	evts := []*event.Event{
		newEvent("user:login", "auth", 1*time.Second),
		newEvent("user:logout", "auth", 2*time.Second),
		newEvent("order:placed", "shop", 3*time.Second),
		newEvent("user:login", "sso", 4*time.Second),
	}
	for _, e := range evts {
		require.NoError(t, s.Store(context.Background(), e))
	}
	return evts
}

func ids(evts []*event.Event) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.ID
	}
	return out
}

// storeContractTest runs behavioural tests against any event.Store.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Store_and_GetByID", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		opts := event.DefaultEmitOptions()
		opts.Namespace = "billing"
		opts.Version = "1.2.0"
		opts.Priority = event.PriorityHigh
		opts.Cancellable = true
		opts.Metadata = map[string]any{"tenant": "acme"}
		evt := event.New("invoice:paid", map[string]any{"amount": "12.50"}, opts, base)
		evt.Cancel()
		require.NoError(t, store.Store(ctx, evt))

		got, err := store.GetByID(ctx, evt.ID)
		require.NoError(t, err)
		assert.Equal(t, evt.ID, got.ID)
		assert.Equal(t, "invoice:paid", got.Type)
		assert.Equal(t, event.SourceSystem, got.Source)
		assert.Equal(t, "billing", got.Namespace)
		assert.Equal(t, "1.2.0", got.Version)
		assert.Equal(t, event.PriorityHigh, got.Priority)
		assert.True(t, got.Cancellable)
		assert.True(t, got.Cancelled())
		assert.True(t, base.Equal(got.Timestamp))
		assert.Equal(t, map[string]any{"amount": "12.50"}, got.Data)
		assert.Equal(t, map[string]any{"tenant": "acme"}, got.Metadata)
	})

	t.Run(name+"/GetByID_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, event.ErrNotFound)
	})

	t.Run(name+"/Returned_events_are_copies", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		evts := seed(t, store)
		evts[0].Metadata = map[string]any{"changed": true}

		got, err := store.GetByID(ctx, evts[0].ID)
		require.NoError(t, err)
		assert.Empty(t, got.Metadata)

		got.Metadata = map[string]any{"mutated": true}
		again, err := store.GetByID(ctx, evts[0].ID)
		require.NoError(t, err)
		assert.Empty(t, again.Metadata)
	})

	t.Run(name+"/Retrieve_filters", func(t *testing.T) {
		store := factory(t)
		defer store.Close()
		evts := seed(t, store)

		tests := []struct {
			name string
			c    event.Criteria
			want []string
		}{
			{"all", event.Criteria{}, ids(evts)},
			{"by type", event.Criteria{Types: []string{"user:login"}}, ids([]*event.Event{evts[0], evts[3]})},
			{"by source", event.Criteria{Sources: []string{"auth"}}, ids(evts[:2])},
			{"by id", event.Criteria{IDs: []string{evts[2].ID}}, ids(evts[2:3])},
			{"since", event.Criteria{Since: base.Add(3 * time.Second)}, ids(evts[2:])},
			{"until", event.Criteria{Until: base.Add(2 * time.Second)}, ids(evts[:2])},
			{"descending", event.Criteria{Descending: true}, ids([]*event.Event{evts[3], evts[2], evts[1], evts[0]})},
			{"by type sorted", event.Criteria{SortBy: event.SortByType}, ids([]*event.Event{evts[2], evts[0], evts[3], evts[1]})},
			{"by source sorted", event.Criteria{SortBy: event.SortBySource}, ids([]*event.Event{evts[0], evts[1], evts[2], evts[3]})},
			{"skip", event.Criteria{Skip: 3}, ids(evts[3:])},
			{"limit", event.Criteria{Limit: 2}, ids(evts[:2])},
			{"skip and limit", event.Criteria{Skip: 1, Limit: 2}, ids(evts[1:3])},
			{"no match", event.Criteria{Types: []string{"nothing"}}, []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := store.Retrieve(ctx, tt.c)
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(got))
			})
		}
	})

	t.Run(name+"/Count_ignores_pagination", func(t *testing.T) {
		store := factory(t)
		defer store.Close()
		seed(t, store)

		n, err := store.Count(ctx, event.Criteria{Types: []string{"user:login"}, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = store.Count(ctx, event.Criteria{})
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		store := factory(t)
		defer store.Close()
		evts := seed(t, store)

		n, err := store.Delete(ctx, event.Criteria{Sources: []string{"auth"}})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := store.Retrieve(ctx, event.Criteria{})
		require.NoError(t, err)
		assert.Equal(t, ids(evts[2:]), ids(got))

		n, err = store.Delete(ctx, event.Criteria{Sources: []string{"auth"}})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run(name+"/Stream", func(t *testing.T) {
		store := factory(t)
		defer store.Close()
		evts := seed(t, store)

		var got []*event.Event
		for evt, err := range store.Stream(ctx, event.Criteria{Types: []string{"user:login"}}) {
			require.NoError(t, err)
			got = append(got, evt)
		}
		assert.Equal(t, ids([]*event.Event{evts[0], evts[3]}), ids(got))
	})

	t.Run(name+"/Stream_early_break", func(t *testing.T) {
		store := factory(t)
		defer store.Close()
		seed(t, store)

		n := 0
		for _, err := range store.Stream(ctx, event.Criteria{}) {
			require.NoError(t, err)
			n++
			if n == 2 {
				break
			}
		}
		assert.Equal(t, 2, n)
	})

	t.Run(name+"/Stream_cancelled", func(t *testing.T) {
		store := factory(t)
		defer store.Close()
		seed(t, store)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		var lastErr error
		for _, err := range store.Stream(cctx, event.Criteria{}) {
			lastErr = err
		}
		assert.ErrorIs(t, lastErr, context.Canceled)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())

		err := store.Store(ctx, newEvent("x", "y", 0))
		assert.ErrorIs(t, err, eventstore.ErrStoreClosed)
		_, err = store.Retrieve(ctx, event.Criteria{})
		assert.ErrorIs(t, err, eventstore.ErrStoreClosed)
		_, err = store.Count(ctx, event.Criteria{})
		assert.ErrorIs(t, err, eventstore.ErrStoreClosed)
		_, err = store.Delete(ctx, event.Criteria{})
		assert.ErrorIs(t, err, eventstore.ErrStoreClosed)
		_, err = store.GetByID(ctx, "x")
		assert.ErrorIs(t, err, eventstore.ErrStoreClosed)
	})

	t.Run(name+"/Concurrent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		const writers, perWriter = 8, 25
		var wg sync.WaitGroup
		for w := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range perWriter {
					evt := newEvent(fmt.Sprintf("type-%d", w), "load", time.Duration(i)*time.Millisecond)
					assert.NoError(t, store.Store(ctx, evt))
					_, err := store.Count(ctx, event.Criteria{})
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		n, err := store.Count(ctx, event.Criteria{})
		require.NoError(t, err)
		assert.Equal(t, writers*perWriter, n)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContractTest(t, "MemoryStore", func(t *testing.T) event.Store {
		return eventstore.NewMemoryStore(0)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContractTest(t, "SQLiteStore", func(t *testing.T) event.Store {
		s, err := eventstore.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
		require.NoError(t, err)
		return s
	})
}
