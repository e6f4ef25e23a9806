package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/finsight/internal/api/response"
	"github.com/kiranshivaraju/finsight/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateLimitWindow          = time.Minute
)

// RateLimit counts requests per API key in fixed one-minute windows aligned
// to the wall clock. Each window has its own counter key, so a key under
// constant load still resets at the window boundary. A Redis failure lets
// the request through.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	now            func() time.Time
}

type RateLimitOption func(*RateLimit)

// WithClock replaces time.Now as the source of window boundaries.
func WithClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimit) { rl.now = now }
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int, opts ...RateLimitOption) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	rl := &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Limit applies rate limiting based on the key_prefix set by auth middleware.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		start := now.Truncate(rateLimitWindow)
		reset := start.Add(rateLimitWindow)
		untilReset := reset.Sub(now)

		// The counter outlives its window by a second so a request landing on
		// the boundary never sees a fresh key for a window it already used.
		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(prefix, start), untilReset+time.Second)
		if err != nil {
			requestLogger(r.Context()).Warn("rate limit check failed, allowing request", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			retryAfter := max(int(math.Ceil(untilReset.Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			requestLogger(r.Context()).Info("rate limit exceeded",
				"key_prefix", prefix, "count", count, "retry_after_s", retryAfter)
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
