package event

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/plugincore/pkg/plugincore/observability"
)

// BatchMode selects how a batch is dispatched.
type BatchMode int

const (
	// BatchParallel dispatches every event concurrently.
	BatchParallel BatchMode = iota
	// BatchSequential dispatches events one at a time, in order.
	BatchSequential
)

// String returns the lowercase mode name.
func (m BatchMode) String() string {
	if m == BatchSequential {
		return "sequential"
	}
	return "parallel"
}

// BatchErrorHandling controls how failed events affect the rest of a batch.
type BatchErrorHandling int

const (
	// BatchLog logs failures and continues. This is the default.
	BatchLog BatchErrorHandling = iota
	// BatchIgnore continues silently.
	BatchIgnore
	// BatchThrow stops a sequential batch at the first failure and returns
	// it. A parallel batch without FailFast returns every failure joined.
	BatchThrow
)

// BatchEvent is one event in a batch.
type BatchEvent struct {
	Type    string
	Data    any
	Options EmitOptions
}

// BatchOptions configure EmitBatch.
type BatchOptions struct {
	Mode BatchMode
	// FailFast makes a parallel batch return at the first failure.
	FailFast      bool
	ErrorHandling BatchErrorHandling
}

// BatchResult holds per-event results, index-aligned with the input.
// Events that were never dispatched have a nil Result.
type BatchResult struct {
	Results []*Result
	Errors  []*BatchError
}

// EmitBatch dispatches events on the asynchronous path. An event fails when
// its dispatch returns an error or its Result reports handler failures.
// Events with an empty Options.Source are emitted as system events.
func (m *Manager) EmitBatch(ctx context.Context, events []BatchEvent, opts BatchOptions) (*BatchResult, error) {
	out := &BatchResult{Results: make([]*Result, len(events))}

	var err error
	if opts.Mode == BatchSequential {
		err = m.emitSequential(ctx, events, opts, out)
	} else {
		err = m.emitParallel(ctx, events, opts, out)
	}
	m.metrics.RecordBatch(ctx, opts.Mode.String(), len(events), err)
	return out, err
}

func (m *Manager) emitOne(ctx context.Context, i int, be BatchEvent) (*Result, *BatchError) {
	o := be.Options
	if o.Source == "" {
		o.Source = SourceSystem
	}
	res, err := m.dispatch(ctx, be.Type, be.Data, o, true)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return res, &BatchError{Index: i, EventType: be.Type, Err: err}
	}
	return res, nil
}

func (m *Manager) emitSequential(ctx context.Context, events []BatchEvent, opts BatchOptions, out *BatchResult) error {
	for i, be := range events {
		res, berr := m.emitOne(ctx, i, be)
		out.Results[i] = res
		if berr == nil {
			continue
		}
		out.Errors = append(out.Errors, berr)
		switch opts.ErrorHandling {
		case BatchIgnore:
		case BatchThrow:
			return berr
		default:
			observability.LogBatchItemFailed(m.logger, i, be.Type, berr.Err)
		}
	}
	return nil
}

func (m *Manager) emitParallel(ctx context.Context, events []BatchEvent, opts BatchOptions, out *BatchResult) error {
	var mu sync.Mutex
	record := func(berr *BatchError) {
		mu.Lock()
		out.Errors = append(out.Errors, berr)
		mu.Unlock()
		if opts.ErrorHandling == BatchLog {
			observability.LogBatchItemFailed(m.logger, berr.Index, berr.EventType, berr.Err)
		}
	}

	if opts.FailFast {
		g, gctx := errgroup.WithContext(ctx)
		for i, be := range events {
			g.Go(func() error {
				res, berr := m.emitOne(gctx, i, be)
				out.Results[i] = res
				if berr != nil {
					record(berr)
					return berr
				}
				return nil
			})
		}
		return g.Wait()
	}

	var g errgroup.Group
	for i, be := range events {
		g.Go(func() error {
			res, berr := m.emitOne(ctx, i, be)
			out.Results[i] = res
			if berr != nil {
				record(berr)
			}
			return nil
		})
	}
	_ = g.Wait()

	if opts.ErrorHandling != BatchThrow || len(out.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(out.Errors))
	for i, e := range out.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}
