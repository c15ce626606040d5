package membership

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type job struct {
	ownerID  string
	serverID string
}

// EnricherConfig sizes the background membership workers.
type EnricherConfig struct {
	Workers int           // parallel lookups (default 2)
	Buffer  int           // queued jobs before dropping (default 256)
	Timeout time.Duration // per job deadline (default 15s)
}

// Enricher records servers seen in plugin activity off the request path.
// Jobs are queued in memory and may be lost if the process crashes.
type Enricher struct {
	cache    *Cache
	jobs     chan job
	timeout  time.Duration
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewEnricher starts the worker goroutines.
func NewEnricher(cache *Cache, cfg EnricherConfig) *Enricher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	e := &Enricher{
		cache:    cache,
		jobs:     make(chan job, cfg.Buffer),
		timeout:  cfg.Timeout,
		stopChan: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	log.WithFields(log.Fields{"workers": cfg.Workers, "buffer": cfg.Buffer}).Debug("membership enricher started")
	return e
}

// Enqueue schedules a membership lookup without blocking. Jobs are dropped
// when the queue is full or the enricher is closed.
func (e *Enricher) Enqueue(ownerID, serverID string) {
	select {
	case <-e.stopChan:
		return
	default:
	}
	select {
	case e.jobs <- job{ownerID: ownerID, serverID: serverID}:
	default:
		log.WithFields(log.Fields{"user_id": ownerID, "server_id": serverID}).Warn("membership queue full, dropping job")
	}
}

func (e *Enricher) worker(id int) {
	defer e.wg.Done()
	for {
		select {
		case j := <-e.jobs:
			e.process(id, j)
		case <-e.stopChan:
			for {
				select {
				case j := <-e.jobs:
					e.process(id, j)
				default:
					return
				}
			}
		}
	}
}

func (e *Enricher) process(worker int, j job) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	start := time.Now()
	e.cache.RecordIfUnknown(ctx, j.ownerID, j.serverID)
	log.WithFields(log.Fields{
		"worker":    worker,
		"user_id":   j.ownerID,
		"server_id": j.serverID,
		"elapsed":   time.Since(start),
	}).Debug("membership job done")
}

// Close stops accepting jobs, drains the queue and waits for workers.
func (e *Enricher) Close() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()
}
