// Package ratelimit provides the token bucket shared by all outbound
// requests within one synchronization run.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerMinute is the fallback sustained request rate.
	DefaultRequestsPerMinute = 60
	// DefaultBurst is the fallback instantaneous permit capacity.
	DefaultBurst = 5
)

// Bucket is a token bucket with continuous refill. Acquire blocks the
// calling goroutine until a permit is available; all token accounting is
// serialized inside the underlying limiter.
type Bucket struct {
	limiter *rate.Limiter
}

// NewBucket constructs a bucket refilled at requestsPerMinute/60 tokens per
// second with capacity burst. Non-positive inputs fall back to defaults.
func NewBucket(requestsPerMinute, burst int) *Bucket {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	perSecond := rate.Limit(float64(requestsPerMinute) / 60.0)
	return &Bucket{limiter: rate.NewLimiter(perSecond, burst)}
}

// Acquire consumes one permit, waiting for refill when the bucket is empty.
// A cancelled or expired context returns a wrapped context error instead of
// blocking forever.
func (b *Bucket) Acquire(ctx context.Context) error {
	if b == nil || b.limiter == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if errWait := b.limiter.Wait(ctx); errWait != nil {
		return fmt.Errorf("ratelimit: acquire: %w", errWait)
	}
	return nil
}
