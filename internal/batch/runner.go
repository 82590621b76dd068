// Package batch executes a per-item operation over a list of items with
// bounded concurrency, per-item retries, and completion callbacks.
package batch

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultConcurrency is the fallback number of in-flight operations.
	DefaultConcurrency = 3
	// DefaultMaxRetries is the fallback number of extra attempts after the
	// first failure.
	DefaultMaxRetries = 2
	// DefaultRetryBackoff is the base delay between attempts; it doubles
	// per retry.
	DefaultRetryBackoff = 500 * time.Millisecond
)

// ItemResult is the terminal outcome of one item.
type ItemResult struct {
	Index      int       // Position in the input list.
	OK         bool      // Whether the operation eventually succeeded.
	Err        error     // Final error for failed or cancelled items.
	Attempts   int       // Total attempts performed (0 when never started).
	FinishedAt time.Time // When the item reached its terminal state.
}

// Progress reports one terminal item outcome to the caller.
type Progress struct {
	Completed  int        // Items terminal so far; strictly increasing.
	LastResult ItemResult // Outcome of the item that just completed.
}

// Options configures a Run call.
type Options struct {
	Concurrency  int              // Max simultaneously in-flight operations.
	MaxRetries   int              // Extra attempts after the first failure.
	RetryBackoff time.Duration    // Base inter-attempt delay, doubled per retry.
	OnProgress   func(Progress)   // Invoked after every terminal outcome.
	Now          func() time.Time // Clock override for tests.
}

// Statistics aggregates terminal outcomes of a run.
type Statistics struct {
	Total        int
	SuccessCount int
	FailureCount int
}

// Summary is the overall result of a Run call.
type Summary struct {
	Results    []ItemResult
	Statistics Statistics
}

// Operation performs the work for one item, identified by its index.
type Operation func(ctx context.Context, index int) error

// Run executes op for every index in [0, count) and returns once all items
// are terminal. Individual failures are recorded, never returned: the only
// per-item error surface is ItemResult. Context cancellation stops new
// items from starting; in-flight items finish naturally and unstarted items
// are recorded as cancelled.
func Run(ctx context.Context, count int, op Operation, opts Options) Summary {
	if ctx == nil {
		ctx = context.Background()
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if concurrency > count && count > 0 {
		concurrency = count
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	clock := opts.Now
	if clock == nil {
		clock = time.Now
	}

	results := make([]ItemResult, count)
	completed := 0
	var mu sync.Mutex

	record := func(result ItemResult) {
		mu.Lock()
		defer mu.Unlock()
		results[result.Index] = result
		completed++
		// Delivered under the mutex so observers see Completed in order.
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{Completed: completed, LastResult: result})
		}
	}

	indexes := make(chan int)
	go func() {
		defer close(indexes)
		for i := 0; i < count; i++ {
			// Checked before the send so no new item starts once the
			// context is cancelled, even while workers sit ready.
			if ctx.Err() != nil {
				record(ItemResult{Index: i, Err: ctx.Err(), FinishedAt: clock()})
				continue
			}
			select {
			case indexes <- i:
			case <-ctx.Done():
				// Unstarted items are terminal immediately.
				record(ItemResult{Index: i, Err: ctx.Err(), FinishedAt: clock()})
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indexes {
				record(runItem(ctx, index, op, maxRetries, backoff, clock))
			}
		}()
	}
	wg.Wait()

	stats := Statistics{Total: count}
	for i := range results {
		if results[i].OK {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
	}
	return Summary{Results: results, Statistics: stats}
}

// runItem performs sequential attempts for a single item.
func runItem(ctx context.Context, index int, op Operation, maxRetries int, backoff time.Duration, clock func() time.Time) ItemResult {
	var lastErr error
	attempts := 0
	delay := backoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts++
		lastErr = op(ctx, index)
		if lastErr == nil {
			return ItemResult{Index: index, OK: true, Attempts: attempts, FinishedAt: clock()}
		}
		if attempt == maxRetries {
			break
		}
		if errSleep := sleepContext(ctx, delay); errSleep != nil {
			lastErr = errSleep
			break
		}
		delay *= 2
	}
	return ItemResult{Index: index, Err: lastErr, Attempts: attempts, FinishedAt: clock()}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
