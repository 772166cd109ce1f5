package apiclient

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// XRateLimiter adapts golang.org/x/time/rate.Limiter to the RateLimiter interface.
// Useful when several clients must share one externally owned limiter.
type XRateLimiter struct {
	limiter *rate.Limiter
}

// NewXRateLimiter wraps an existing limiter.
func NewXRateLimiter(limiter *rate.Limiter) *XRateLimiter {
	return &XRateLimiter{limiter: limiter}
}

// NewXRateLimiterPerSecond builds a limiter with burst equal to the per-second rate.
func NewXRateLimiterPerSecond(perSecond int) *XRateLimiter {
	return NewXRateLimiter(rate.NewLimiter(rate.Limit(perSecond), perSecond))
}

// Allow checks token availability without blocking.
func (x *XRateLimiter) Allow() bool {
	return x.limiter.Allow()
}

// Wait waits for a single token.
func (x *XRateLimiter) Wait(ctx context.Context) error {
	return x.limiter.Wait(ctx)
}

// WaitN waits for n tokens.
func (x *XRateLimiter) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if n > x.limiter.Burst() {
		return fmt.Errorf("%w: %d > %d", ErrTokensExceedCapacity, n, x.limiter.Burst())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := x.limiter.WaitN(ctx, n); err != nil {
		// rate.Limiter отказывает сразу, если токен не успеет до дедлайна ctx
		if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
			return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return err
	}
	return nil
}

// Capacity returns the limiter burst.
func (x *XRateLimiter) Capacity() int {
	return x.limiter.Burst()
}

// Tokens returns the number of tokens available now.
func (x *XRateLimiter) Tokens() float64 {
	return x.limiter.Tokens()
}
