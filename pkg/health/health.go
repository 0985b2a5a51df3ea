package health

import (
	"time"
)

// NewHealthChecker creates a health checker; uptime counts from now
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:      make(map[string]CheckFunc),
		readyChecks: make(map[string]CheckFunc),
		liveChecks:  make(map[string]CheckFunc),
		started:     time.Now(),
	}
}

// RegisterCheck registers a general health check
func (hc *HealthChecker) RegisterCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// RegisterReadinessCheck registers a readiness check
func (hc *HealthChecker) RegisterReadinessCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.readyChecks[name] = check
}

// RegisterLivenessCheck registers a liveness check
func (hc *HealthChecker) RegisterLivenessCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.liveChecks[name] = check
}

// Check performs all general checks
func (hc *HealthChecker) Check() Response {
	return hc.perform(func() map[string]CheckFunc { return hc.checks })
}

// CheckReadiness performs readiness checks
func (hc *HealthChecker) CheckReadiness() Response {
	return hc.perform(func() map[string]CheckFunc { return hc.readyChecks })
}

// CheckLiveness performs liveness checks
func (hc *HealthChecker) CheckLiveness() Response {
	return hc.perform(func() map[string]CheckFunc { return hc.liveChecks })
}

// perform copies the selected set under the lock and runs the checks
// outside it, so a slow check never blocks registration.
func (hc *HealthChecker) perform(set func() map[string]CheckFunc) Response {
	hc.mu.RLock()
	selected := make(map[string]CheckFunc, len(set()))
	for name, fn := range set() {
		selected[name] = fn
	}
	hc.mu.RUnlock()

	now := time.Now()
	response := Response{
		Status:    StatusHealthy,
		Timestamp: now,
		Checks:    make(map[string]Check, len(selected)),
		Uptime:    now.Sub(hc.started).Seconds(),
	}

	for name, checkFunc := range selected {
		start := time.Now()
		check := checkFunc()
		check.Duration = time.Since(start)
		check.LastChecked = start
		if check.Name == "" {
			check.Name = name
		}
		response.Checks[name] = check
		response.Status = worst(response.Status, check.Status)
	}

	return response
}

// worst returns the more severe of two statuses
func worst(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
