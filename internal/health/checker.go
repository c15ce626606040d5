package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component represents a system component that can be health-checked.
type Component struct {
	Name string `json:"name"`
	Type string `json:"type"` // store, http
	CheckResult
}

// Pinger is implemented by every ledger store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs health checks on system components.
type Checker struct {
	components []Component
	mu         sync.RWMutex

	store     Pinger
	storeName string
	discord   string

	storeTimeout    time.Duration
	httpTimeout     time.Duration
	maxStoreLatency time.Duration
	httpClient      *http.Client
}

// Config holds health checker configuration.
type Config struct {
	Store     Pinger
	StoreName string

	// DiscordBaseURL is probed for reachability when set.
	DiscordBaseURL string

	StoreTimeout    time.Duration
	HTTPTimeout     time.Duration
	MaxStoreLatency time.Duration
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.MaxStoreLatency == 0 {
		cfg.MaxStoreLatency = 100 * time.Millisecond
	}
	if cfg.StoreName == "" {
		cfg.StoreName = "store"
	}
	return &Checker{
		store:           cfg.Store,
		storeName:       cfg.StoreName,
		discord:         cfg.DiscordBaseURL,
		storeTimeout:    cfg.StoreTimeout,
		httpTimeout:     cfg.HTTPTimeout,
		maxStoreLatency: cfg.MaxStoreLatency,
		httpClient:      &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Check performs all health checks and returns overall status.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	var wg sync.WaitGroup
	results := make(chan Component, 2)

	if c.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.checkStore(ctx)
		}()
	}
	if c.discord != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.checkHTTPEndpoint(ctx, "discord_api", c.discord)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	components := make([]Component, 0, 2)
	for comp := range results {
		components = append(components, comp)
	}

	c.mu.Lock()
	c.components = components
	c.mu.Unlock()

	return calculateOverallStatus(components)
}

func (c *Checker) checkStore(ctx context.Context) Component {
	comp := Component{
		Name:        c.storeName,
		Type:        "store",
		CheckResult: CheckResult{Timestamp: time.Now().UTC()},
	}

	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	err := c.store.Ping(pingCtx)
	comp.Latency = time.Since(start)

	switch {
	case err != nil:
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "Store unreachable"
	case comp.Latency > c.maxStoreLatency:
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("High latency: %v", comp.Latency)
	default:
		comp.Status = StatusHealthy
		comp.Message = "Connected"
	}
	return comp
}

// checkHTTPEndpoint treats any HTTP response as reachable.
func (c *Checker) checkHTTPEndpoint(ctx context.Context, name, baseURL string) Component {
	comp := Component{
		Name:        name,
		Type:        "http",
		CheckResult: CheckResult{Timestamp: time.Now().UTC()},
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Latency = time.Since(start)
		return comp
	}

	resp, err := c.httpClient.Do(req)
	comp.Latency = time.Since(start)
	if err != nil {
		comp.Status = StatusDegraded
		comp.Error = err.Error()
		comp.Message = "Endpoint unreachable"
		return comp
	}
	defer resp.Body.Close()

	comp.Status = StatusHealthy
	comp.Message = fmt.Sprintf("Reachable (HTTP %d)", resp.StatusCode)
	return comp
}

// calculateOverallStatus marks the whole service unhealthy only when the
// store is down; an unreachable Discord API degrades it.
func calculateOverallStatus(components []Component) HealthStatus {
	overall := StatusHealthy
	critical := false

	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			if comp.Type == "store" {
				critical = true
			}
			overall = StatusDegraded
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	if critical {
		overall = StatusUnhealthy
	}

	return HealthStatus{
		Status:     overall,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}
}

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// GetLastStatus returns the last health check result.
func (c *Checker) GetLastStatus() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.components) == 0 {
		return HealthStatus{Status: StatusHealthy, Timestamp: time.Now().UTC()}
	}
	return calculateOverallStatus(c.components)
}
