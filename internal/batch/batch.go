// Package batch runs a list of work items through a function in fixed-size
// concurrent chunks, pacing chunks so a requests-per-second budget is kept.
//
// Every item is settled: a failing item never cancels its siblings or later
// chunks. Failures are reported together in a single *Error once all chunks
// have run, and callers decide whether that aggregate is fatal.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/catalogxlate/internal/clock"
)

// Options controls chunking and pacing.
type Options struct {
	// BatchSize is the number of items processed concurrently per chunk.
	// Values below 1 are treated as 1.
	BatchSize int

	// MinDuration is the minimum wall time a chunk occupies before the next
	// chunk starts. Zero disables pacing.
	MinDuration time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock
}

// MinDurationFor converts a requests-per-second budget into the minimum
// duration of one chunk of batchSize requests.
func MinDurationFor(batchSize int, requestsPerSecond float64) time.Duration {
	if batchSize <= 0 || requestsPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(batchSize) / requestsPerSecond * float64(time.Second))
}

// Failure is a single item that returned an error.
type Failure struct {
	Index int
	Err   error
}

// Error aggregates the failures of one Run.
type Error struct {
	Total    int
	Failures []Failure
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d items failed", len(e.Failures), e.Total)
	for i, f := range e.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failures)-3)
			break
		}
		fmt.Fprintf(&b, "; item %d: %v", f.Index, f.Err)
	}
	return b.String()
}

// Unwrap exposes the item errors to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Failed reports whether the item at index failed.
func (e *Error) Failed(index int) bool {
	for _, f := range e.Failures {
		if f.Index == index {
			return true
		}
	}
	return false
}

// Run calls process for every item and returns the results in input order.
//
// Items are split into consecutive chunks of opts.BatchSize. Each chunk runs
// fully concurrently; after every chunk but the last, Run sleeps for whatever
// is left of opts.MinDuration. The result slot of a failed item holds the
// zero value of R. If any item failed the returned error is an *Error.
// A done ctx stops Run before the next chunk and its error is returned.
func Run[T, R any](ctx context.Context, items []T, process func(context.Context, T) (R, error), opts Options) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	size := opts.BatchSize
	if size < 1 {
		size = 1
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	errs := make([]error, len(items))

	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := min(start+size, len(items))
		began := clk.Now()

		var g errgroup.Group
		g.SetLimit(end - start)
		for i := start; i < end; i++ {
			g.Go(func() error {
				r, err := process(ctx, items[i])
				if err != nil {
					errs[i] = err
					return nil
				}
				results[i] = r
				return nil
			})
		}
		_ = g.Wait()

		if end == len(items) {
			break
		}
		if remaining := opts.MinDuration - clk.Now().Sub(began); remaining > 0 {
			if err := clk.Sleep(ctx, remaining); err != nil {
				return results, err
			}
		}
	}

	var agg *Error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if agg == nil {
			agg = &Error{Total: len(items)}
		}
		agg.Failures = append(agg.Failures, Failure{Index: i, Err: err})
	}
	if agg != nil {
		return results, agg
	}
	return results, nil
}

// AsError extracts the aggregate from err, if there is one.
func AsError(err error) (*Error, bool) {
	var agg *Error
	if errors.As(err, &agg) {
		return agg, true
	}
	return nil, false
}
