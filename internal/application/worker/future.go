package worker

import (
	"context"
	"sync"

	"security-monitor-service/internal/domain"
)

// Result is the outcome of one submitted reading.
type Result struct {
	Reading domain.Reading
	Err     error
}

// Future resolves once its reading has been processed, rejected or cancelled.
type Future struct {
	done   chan struct{}
	once   sync.Once
	result Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(reading domain.Reading, err error) *Future {
	f := newFuture()
	f.resolve(Result{Reading: reading, Err: err})
	return f
}

// resolve reports whether r became the result; only the first call wins.
func (f *Future) resolve(r Result) bool {
	won := false
	f.once.Do(func() {
		f.result = r
		close(f.done)
		won = true
	})
	return won
}

// Done is closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the reading resolves or ctx ends.
func (f *Future) Await(ctx context.Context) (domain.Reading, error) {
	select {
	case <-f.done:
		return f.result.Reading, f.result.Err
	case <-ctx.Done():
		return domain.Reading{}, ctx.Err()
	}
}

// BatchFuture joins the futures of one SubmitBatch call. Elements succeed or
// fail independently.
type BatchFuture struct {
	futures []*Future
}

// Len reports the number of readings in the batch.
func (b *BatchFuture) Len() int {
	return len(b.futures)
}

// Await waits for every element and returns results in submission order.
// When ctx ends first the error is ctx.Err() and unresolved slots are zero.
func (b *BatchFuture) Await(ctx context.Context) ([]Result, error) {
	results := make([]Result, len(b.futures))
	for i, f := range b.futures {
		select {
		case <-f.Done():
			results[i] = f.result
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}
	return results, nil
}

// Summary counts successes and failures in a result set.
func Summary(results []Result) (succeeded, failed int) {
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		succeeded++
	}
	return succeeded, failed
}
