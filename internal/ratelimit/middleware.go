package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// KeyFunc extracts the rate limit key from a request.
type KeyFunc func(r *http.Request) string

// Middleware wraps an HTTP handler with rate limiting.
type Middleware struct {
	limiter *Limiter
	enabled bool
	key     KeyFunc

	// OnLimit, when set, is called with the key of every rejected request.
	OnLimit func(key string)
}

// NewMiddleware creates a new rate limiting middleware.
func NewMiddleware(limiter *Limiter, enabled bool, key KeyFunc) *Middleware {
	return &Middleware{limiter: limiter, enabled: enabled, key: key}
}

// Wrap applies rate limiting to an HTTP handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if !m.enabled || m.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Check(w, r, m.key(r)) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Check consumes a token for key. When the bucket is empty it writes the 429
// response and returns false. Handlers use it for keys that are only known
// after authentication.
func (m *Middleware) Check(w http.ResponseWriter, r *http.Request, key string) bool {
	if !m.enabled || m.limiter == nil {
		return true
	}
	allowed := m.limiter.Allow(key)
	if key != "" {
		m.addHeaders(w, key)
	}
	if allowed {
		return true
	}
	wait := m.limiter.RetryAfter(key)
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	log.WithFields(log.Fields{"key": key, "path": r.URL.Path}).Warn("rate limit exceeded")
	if m.OnLimit != nil {
		m.OnLimit(key)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	return false
}

// See https://datatracker.ietf.org/doc/html/draft-polli-ratelimit-headers
func (m *Middleware) addHeaders(w http.ResponseWriter, key string) {
	limit := m.limiter.Capacity()
	remaining := m.limiter.Remaining(key)
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", math.Floor(remaining)))
	if remaining < limit {
		reset := time.Now().Add(time.Duration((limit - remaining) / m.limiter.refillRate * float64(time.Second)))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	}
}
