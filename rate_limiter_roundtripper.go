package apiclient

import (
	"net/http"
)

// RateLimiterRoundTripper is a wrapper for RoundTripper with rate limiting.
// Для обычного http.Client без очереди и повторов; Client ограничивает
// частоту сам и в этой обёртке не нуждается.
type RateLimiterRoundTripper struct {
	base    http.RoundTripper
	limiter RateLimiter
}

// NewRateLimiterRoundTripper creates a new RoundTripper with rate limiting.
// Nil limiter означает бакет на DefaultRateLimitPerSecond запросов в секунду.
func NewRateLimiterRoundTripper(base http.RoundTripper, limiter RateLimiter) *RateLimiterRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if limiter == nil {
		limiter = NewPerSecondLimiter(DefaultRateLimitPerSecond)
	}
	return &RateLimiterRoundTripper{
		base:    base,
		limiter: limiter,
	}
}

// RoundTrip executes an HTTP request with rate limiting.
func (rt *RateLimiterRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Wait for token availability.
	if err := rt.limiter.Wait(req.Context()); err != nil {
		return nil, &CanceledError{Method: req.Method, URL: req.URL.String(), Cause: err}
	}

	// Execute request through base RoundTripper.
	return rt.base.RoundTrip(req)
}
