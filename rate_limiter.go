package apiclient

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter defines the interface for rate limiting requests.
type RateLimiter interface {
	// Allow checks if a request can be executed immediately
	Allow() bool

	// Wait blocks execution until one token is received
	Wait(ctx context.Context) error

	// WaitN blocks execution until n tokens are received
	WaitN(ctx context.Context, n int) error

	// Capacity returns the maximum number of tokens in the bucket
	Capacity() int
}

// TokenBucketLimiter implements the token bucket algorithm for rate limiting requests.
// Tokens are refilled continuously: capacity tokens per second.
type TokenBucketLimiter struct {
	rate     float64    // tokens per second
	capacity int        // maximum bucket capacity
	tokens   float64    // current number of tokens
	lastTime time.Time  // last update time
	mu       sync.Mutex // concurrent access protection
	now      func() time.Time
}

// NewTokenBucketLimiter creates a new rate limiter with the specified parameters.
func NewTokenBucketLimiter(rate float64, capacity int) *TokenBucketLimiter {
	if rate <= 0 {
		panic("rate must be positive")
	}
	if capacity <= 0 {
		panic("capacity must be positive")
	}

	return &TokenBucketLimiter{
		rate:     rate,
		capacity: capacity,
		tokens:   float64(capacity), // start with full bucket
		lastTime: time.Now(),
		now:      time.Now,
	}
}

// NewPerSecondLimiter creates a bucket that holds and refills perSecond tokens per second.
func NewPerSecondLimiter(perSecond int) *TokenBucketLimiter {
	return NewTokenBucketLimiter(float64(perSecond), perSecond)
}

// Allow checks token availability without blocking.
func (tb *TokenBucketLimiter) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}

	return false
}

// Wait waits for a single token.
func (tb *TokenBucketLimiter) Wait(ctx context.Context) error {
	return tb.WaitN(ctx, 1)
}

// WaitN waits until n tokens are available and takes them.
// Check and decrement happen in one critical section, so two callers
// can never both spend the same token. A done ctx never takes tokens.
func (tb *TokenBucketLimiter) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if n > tb.capacity {
		return fmt.Errorf("%w: %d > %d", ErrTokensExceedCapacity, n, tb.capacity)
	}

	need := float64(n)
	for {
		// Отменённый вызов токены не тратит
		if err := ctx.Err(); err != nil {
			return err
		}

		tb.mu.Lock()
		tb.refill()
		if tb.tokens >= need {
			tb.tokens -= need
			tb.mu.Unlock()
			return nil
		}

		// Calculate wait time to get missing tokens
		deficit := need - tb.tokens
		waitTime := time.Duration(deficit / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		if waitTime < time.Millisecond {
			waitTime = time.Millisecond
		}

		// Wait either until tokens appear or context is cancelled
		timer := time.NewTimer(waitTime)
		select {
		case <-timer.C:
			continue
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Tokens returns the current (refilled) number of tokens.
func (tb *TokenBucketLimiter) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

// Capacity returns the maximum bucket size.
func (tb *TokenBucketLimiter) Capacity() int {
	return tb.capacity
}

// refill refills the bucket with tokens based on elapsed time.
// must be called under mutex lock.
func (tb *TokenBucketLimiter) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastTime).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.lastTime = now

	tb.tokens = min(tb.tokens+elapsed*tb.rate, float64(tb.capacity))
}
