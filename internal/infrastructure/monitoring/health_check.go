package monitoring

import (
	"context"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

type HealthChecker struct {
	checks []HealthCheck
	last   map[string]error
	mu     sync.RWMutex
}

// HealthCheck failing marks the service unhealthy when Critical, otherwise
// degraded. The relay keeps serving on the memory fallback, so Redis is a
// non-critical check.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Critical bool
	Interval time.Duration
	Timeout  time.Duration
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		last: make(map[string]error),
	}
}

func (h *HealthChecker) AddCheck(check HealthCheck) {
	if check.Timeout <= 0 {
		check.Timeout = 2 * time.Second
	}
	if check.Interval <= 0 {
		check.Interval = 30 * time.Second
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// CheckAll runs every check now, each under its own timeout.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make(map[string]error, len(checks))
	for _, check := range checks {
		results[check.Name] = h.run(ctx, check)
	}
	return summarize(checks, results)
}

// LastStatus reports the results of the most recent background run.
func (h *HealthChecker) LastStatus() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make(map[string]error, len(h.last))
	for name, err := range h.last {
		results[name] = err
	}
	return summarize(h.checks, results)
}

func (h *HealthChecker) StartBackgroundChecks(ctx context.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, check := range h.checks {
		go h.runCheckPeriodically(ctx, check)
	}
}

func (h *HealthChecker) runCheckPeriodically(ctx context.Context, check HealthCheck) {
	ticker := time.NewTicker(check.Interval)
	defer ticker.Stop()

	for {
		h.run(ctx, check)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *HealthChecker) run(ctx context.Context, check HealthCheck) error {
	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	err := check.Check(checkCtx)
	h.mu.Lock()
	h.last[check.Name] = err
	h.mu.Unlock()
	return err
}

func summarize(checks []HealthCheck, results map[string]error) HealthStatus {
	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(checks)),
	}

	for _, check := range checks {
		err, ran := results[check.Name]
		switch {
		case !ran:
			status.Checks[check.Name] = "pending"
		case err == nil:
			status.Checks[check.Name] = StatusHealthy
		default:
			status.Checks[check.Name] = err.Error()
			if check.Critical {
				status.Status = StatusUnhealthy
			} else if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}
	}
	return status
}
