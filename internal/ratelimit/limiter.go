package ratelimit

import (
	"sync"
	"time"
)

// Config holds limiter settings.
type Config struct {
	RequestsPerSecond float64 // sustained rate per key
	Burst             float64 // bucket capacity per key
	CleanupInterval   time.Duration
}

// DefaultConfig returns the plugin submission defaults.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 2, Burst: 20, CleanupInterval: 5 * time.Minute}
}

// Limiter keeps one token bucket per key (typically an acting user id).
type Limiter struct {
	capacity   float64
	refillRate float64
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*TokenBucket
	stop    chan struct{}
	once    sync.Once
}

// NewLimiter creates a limiter and starts idle-bucket cleanup.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	l := &Limiter{
		capacity:   cfg.Burst,
		refillRate: cfg.RequestsPerSecond,
		now:        time.Now,
		buckets:    make(map[string]*TokenBucket),
		stop:       make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go l.cleanupLoop(cfg.CleanupInterval)
	}
	return l
}

// Allow consumes a token for key. An empty key is never limited.
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		return true
	}
	return l.bucket(key).Allow()
}

// Remaining returns the tokens left for key.
func (l *Limiter) Remaining(key string) float64 {
	if key == "" {
		return l.capacity
	}
	return l.bucket(key).Remaining()
}

// RetryAfter returns how long key must wait for its next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	if key == "" {
		return 0
	}
	return l.bucket(key).WaitTime()
}

// Capacity returns the burst size.
func (l *Limiter) Capacity() float64 { return l.capacity }

// Close stops background cleanup.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) bucket(key string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = newTokenBucket(l.capacity, l.refillRate, l.now)
		l.buckets[key] = b
	}
	return b
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

// cleanup drops buckets that have refilled, so inactive keys do not leak.
func (l *Limiter) cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.idle() {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
