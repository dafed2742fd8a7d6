package api

import (
	"net/http"
	"sync"
	"time"

	"propsift/internal/errors"
	"propsift/internal/logging"
)

// limiter is a token bucket refilled at a fixed per-second rate. A zero
// rate disables limiting entirely.
type limiter struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	tokens     float64
	last       time.Time
	retryAfter int

	// now is replaceable in tests.
	now func() time.Time
}

func newLimiter(ratePerSecond, burst, retryAfterSeconds int) *limiter {
	if burst < ratePerSecond {
		burst = ratePerSecond
	}
	l := &limiter{
		rate:       float64(ratePerSecond),
		burst:      float64(burst),
		tokens:     float64(burst),
		retryAfter: retryAfterSeconds,
		now:        time.Now,
	}
	l.last = l.now()
	return l
}

// allow consumes one token when available.
func (l *limiter) allow() bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// RateLimitMiddleware rejects requests beyond the configured rate with a
// RATE_LIMITED error carrying a retry-after hint.
func RateLimitMiddleware(l *limiter, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow() {
				err := errors.New(errors.RateLimited, "too many requests")
				err.RetryAfterSeconds = l.retryAfter
				WriteError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
