package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenBucketBurstAndRefill(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	tb := newTokenBucket(10, 5, clock.Now)

	for i := 0; i < 10; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d should be allowed (burst)", i)
		}
	}
	if tb.Allow() {
		t.Fatalf("11th request should be denied")
	}
	if wait := tb.WaitTime(); wait != 200*time.Millisecond {
		t.Fatalf("expected 200ms wait, got %v", wait)
	}

	clock.Advance(time.Second)
	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Fatalf("request after refill %d should be allowed", i)
		}
	}
	if tb.Allow() {
		t.Fatalf("bucket should be empty again")
	}

	clock.Advance(time.Hour)
	if got := tb.Remaining(); got != 10 {
		t.Fatalf("expected refill capped at capacity, got %v", got)
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 1, Burst: 2})
	defer l.Close()

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst for a should be allowed")
	}
	if l.Allow("a") {
		t.Fatalf("third request for a should be denied")
	}
	if !l.Allow("b") {
		t.Fatalf("b has its own bucket")
	}
	if !l.Allow("") {
		t.Fatalf("empty key is never limited")
	}
}

func TestLimiterCleanupDropsIdleBuckets(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := NewLimiter(Config{RequestsPerSecond: 1, Burst: 2})
	defer l.Close()
	l.now = clock.Now

	l.Allow("busy")
	l.Allow("busy")
	l.Allow("quiet")
	clock.Advance(10 * time.Second)
	l.Allow("busy")
	l.Allow("busy")

	if removed := l.cleanup(); removed != 1 {
		t.Fatalf("expected one idle bucket removed, got %d", removed)
	}
	if _, ok := l.buckets["busy"]; !ok {
		t.Fatalf("active bucket must be kept")
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 1, Burst: 1})
	defer l.Close()
	mw := NewMiddleware(l, true, func(r *http.Request) string { return r.Header.Get("X-Actor") })
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/plugin/ratings", nil)
		req.Header.Set("X-Actor", "42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusNoContent {
		t.Fatalf("expected first request through, got %d", rec.Code)
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "1" || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing rate limit headers: %v", rec.Header())
	}

	disabled := NewMiddleware(l, false, nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec = httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("disabled middleware must pass through, got %d", rec.Code)
	}
}

func TestCheckReportsRejectedKeys(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 0.001, Burst: 1})
	defer l.Close()

	var limited []string
	mw := NewMiddleware(l, true, nil)
	mw.OnLimit = func(key string) { limited = append(limited, key) }

	check := func(key string) (bool, *httptest.ResponseRecorder) {
		rec := httptest.NewRecorder()
		ok := mw.Check(rec, httptest.NewRequest(http.MethodPost, "/plugin/ratings", nil), key)
		return ok, rec
	}

	if ok, _ := check("plugin:1"); !ok {
		t.Fatalf("expected first check to pass")
	}
	if ok, _ := check("plugin:2"); !ok {
		t.Fatalf("other keys have their own bucket")
	}
	ok, rec := check("plugin:1")
	if ok || rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rejection with 429, got ok=%v code=%d", ok, rec.Code)
	}
	if len(limited) != 1 || limited[0] != "plugin:1" {
		t.Fatalf("expected one reported key, got %v", limited)
	}
}
