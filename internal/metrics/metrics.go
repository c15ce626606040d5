package metrics

import (
	"sync"
	"time"
)

// Collector tracks request and ledger counters for the /metrics endpoint.
type Collector struct {
	mu sync.RWMutex

	totalRequests      map[string]int64 // by route pattern
	totalRequestsDur   map[string]int64 // ms
	requestErrors      map[string]int64
	requestsInProgress map[string]int64

	rateLimitHits  int64
	rateLimitByKey map[string]int64

	ratingsBySource map[string]int64 // session, plugin
	deletes         int64
	untracks        int64

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		totalRequests:      make(map[string]int64),
		totalRequestsDur:   make(map[string]int64),
		requestErrors:      make(map[string]int64),
		requestsInProgress: make(map[string]int64),
		rateLimitByKey:     make(map[string]int64),
		ratingsBySource:    make(map[string]int64),
		startTime:          time.Now(),
	}
}

// RecordRequestStart increments in-progress requests.
func (c *Collector) RecordRequestStart(route string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsInProgress[route]++
}

// RecordRequestEnd completes a request started with RecordRequestStart.
func (c *Collector) RecordRequestEnd(route string, duration time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsInProgress[route]--
	c.totalRequests[route]++
	c.totalRequestsDur[route] += duration.Milliseconds()
	if failed {
		c.requestErrors[route]++
	}
}

// RecordRateLimitHit records a rate limit rejection.
func (c *Collector) RecordRateLimitHit(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimitHits++
	c.rateLimitByKey[key]++
}

// RecordRating counts an accepted give_credit call.
func (c *Collector) RecordRating(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ratingsBySource[source]++
}

func (c *Collector) RecordDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
}

func (c *Collector) RecordUntrack() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.untracks++
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Uptime             int64
	TotalRequests      map[string]int64
	TotalRequestsDur   map[string]int64
	RequestErrors      map[string]int64
	RequestsInProgress map[string]int64
	RateLimitHits      int64
	RateLimitByKey     map[string]int64
	RatingsBySource    map[string]int64
	Deletes            int64
	Untracks           int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Uptime:             int64(time.Since(c.startTime).Seconds()),
		TotalRequests:      copyMap(c.totalRequests),
		TotalRequestsDur:   copyMap(c.totalRequestsDur),
		RequestErrors:      copyMap(c.requestErrors),
		RequestsInProgress: copyMap(c.requestsInProgress),
		RateLimitHits:      c.rateLimitHits,
		RateLimitByKey:     copyMap(c.rateLimitByKey),
		RatingsBySource:    copyMap(c.ratingsBySource),
		Deletes:            c.deletes,
		Untracks:           c.untracks,
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
