// Package testutil provides common utility functions for testing.
package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/iwvelando/capacity-trend/pkg/constants"
	"github.com/iwvelando/capacity-trend/pkg/datetime"
	"github.com/iwvelando/capacity-trend/pkg/utilization"
)

// FakeSource is an in-memory data source with failure injection.
//
// FetchIterations applies the exclusive bounds unless Sloppy is set, in which
// case every iteration is returned unfiltered and unordered.
type FakeSource struct {
	Iterations []utilization.Iteration
	Records    []utilization.CapacityRecord

	IterationsErr error
	RecordsErr    error
	Sloppy        bool

	// Block, when set, is waited on by FetchIterations until it is closed or
	// the context is done.
	Block chan struct{}

	mu             sync.Mutex
	iterationCalls int
	recordCalls    int
	lastIDs        []string
}

// FetchIterations returns the configured iterations.
func (f *FakeSource) FetchIterations(ctx context.Context, start, end time.Time) ([]utilization.Iteration, error) {
	f.mu.Lock()
	f.iterationCalls++
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.IterationsErr != nil {
		return nil, f.IterationsErr
	}
	if f.Sloppy {
		return slices.Clone(f.Iterations), nil
	}

	out := make([]utilization.Iteration, 0, len(f.Iterations))
	for _, it := range f.Iterations {
		if datetime.StrictlyBetween(it.StartDate, start, end) {
			out = append(out, it)
		}
	}
	utilization.SortByStart(out)
	return out, nil
}

// FetchCapacityRecords returns the configured records of iterationIDs.
func (f *FakeSource) FetchCapacityRecords(ctx context.Context, iterationIDs []string) ([]utilization.CapacityRecord, error) {
	f.mu.Lock()
	f.recordCalls++
	f.lastIDs = slices.Clone(iterationIDs)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.RecordsErr != nil {
		return nil, f.RecordsErr
	}
	out := make([]utilization.CapacityRecord, 0, len(f.Records))
	for _, rec := range f.Records {
		if slices.Contains(iterationIDs, rec.IterationID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Close implements io.Closer.
func (f *FakeSource) Close() error { return nil }

// Calls returns how many times each fetch was called.
func (f *FakeSource) Calls() (iterations, records int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.iterationCalls, f.recordCalls
}

// LastIDs returns the iteration ids of the most recent record fetch.
func (f *FakeSource) LastIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.lastIDs)
}

// Iteration builds an iteration starting on the given YYYY-MM-DD date.
func Iteration(id, start string) utilization.Iteration {
	t := datetime.MustParseTime(constants.DateLayout, start)
	return utilization.Iteration{ID: id, Name: "Sprint " + id, StartDate: t, EndDate: t.AddDate(0, 0, 14)}
}

// Record builds a capacity record.
func Record(iterationID, user string, estimate, capacity float64) utilization.CapacityRecord {
	return utilization.CapacityRecord{IterationID: iterationID, User: user, Estimate: estimate, Capacity: capacity}
}
