// internal/monitoring/health.go
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is a named probe of one dependency, such as the record store.
type HealthCheck struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Check    func(ctx context.Context) error
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Critical bool          `json:"critical"`
}

// SystemHealth represents overall health information
type SystemHealth struct {
	Status         HealthStatus  `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
	Uptime         time.Duration `json:"uptime"`
	GoroutineCount int           `json:"goroutine_count"`
	Checks         []CheckResult `json:"checks,omitempty"`
}

// HealthManager runs registered checks on demand.
type HealthManager struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	started time.Time
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		checks:  make(map[string]HealthCheck),
		started: time.Now(),
	}
}

// RegisterCheck adds or replaces a check.
func (hm *HealthManager) RegisterCheck(check HealthCheck) {
	if check.Timeout <= 0 {
		check.Timeout = 5 * time.Second
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[check.Name] = check
}

// GetHealth runs every check concurrently. A failed critical check makes
// the system unhealthy; a failed non-critical one makes it degraded.
func (hm *HealthManager) GetHealth(ctx context.Context) SystemHealth {
	hm.mu.RLock()
	checks := make([]HealthCheck, 0, len(hm.checks))
	for _, c := range hm.checks {
		checks = append(checks, c)
	}
	hm.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c HealthCheck) {
			defer wg.Done()
			results[i] = runCheck(ctx, c)
		}(i, c)
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	health := SystemHealth{
		Status:         HealthStatusHealthy,
		Timestamp:      time.Now().UTC(),
		Uptime:         time.Since(hm.started),
		GoroutineCount: runtime.NumGoroutine(),
		Checks:         results,
	}
	for _, r := range results {
		if r.Status == HealthStatusHealthy {
			continue
		}
		if r.Critical {
			health.Status = HealthStatusUnhealthy
			break
		}
		health.Status = HealthStatusDegraded
	}
	return health
}

func runCheck(ctx context.Context, c HealthCheck) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	result := CheckResult{Name: c.Name, Status: HealthStatusHealthy, Critical: c.Critical}
	if c.Check != nil {
		if err := c.Check(checkCtx); err != nil {
			result.Status = HealthStatusUnhealthy
			result.Error = err.Error()
		}
	}
	result.Duration = time.Since(start)
	return result
}

// HealthHandler returns HTTP handler for the health endpoint
func (hm *HealthManager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.GetHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(health)
	}
}
