package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles upload attempts with a token bucket.
//
// Each upload attempt (including retries) takes one token. Burst controls
// how many attempts may start back to back once the bucket is full.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter admitting perSecond attempts per second with the
// given burst.
//
// Special cases:
//   - perSecond <= 0: no limit
//   - burst < 1: a burst of 1
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Unlimited reports whether the limiter admits everything.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Allow takes a token without waiting.
//
// Returns:
//   - true if the attempt may start now
//   - false if it should be rejected
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
//
// Returns:
//   - nil if a token was acquired
//   - context error if ctx was cancelled first, or the wait would outlast
//     ctx's deadline
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. perSecond <= 0 removes the limit.
func (r *RateLimiter) SetLimit(perSecond float64) {
	if perSecond <= 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(perSecond))
	if r.limiter.Burst() < 1 {
		r.limiter.SetBurst(1)
	}
}
