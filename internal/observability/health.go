package observability

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status HealthStatus  `json:"status"`
	Checks []HealthCheck `json:"checks"`
	Uptime float64       `json:"uptime_seconds"`
}

// Health aggregates named checks into one status
type Health struct {
	mu      sync.RWMutex
	checks  map[string]func() HealthCheck
	started time.Time
}

func NewHealth() *Health {
	return &Health{
		checks:  make(map[string]func() HealthCheck),
		started: time.Now(),
	}
}

// Register adds or replaces a named check
func (h *Health) Register(name string, check func() HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Report runs every check in name order
func (h *Health) Report() HealthResponse {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	fns := make(map[string]func() HealthCheck, len(h.checks))
	for k, v := range h.checks {
		fns[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	overall := HealthStatusHealthy
	checks := make([]HealthCheck, 0, len(names))
	for _, name := range names {
		check := fns[name]()
		if check.Name == "" {
			check.Name = name
		}
		if check.LastChecked.IsZero() {
			check.LastChecked = time.Now()
		}
		checks = append(checks, check)

		if check.Status == HealthStatusUnhealthy {
			overall = HealthStatusUnhealthy
		} else if check.Status == HealthStatusDegraded && overall == HealthStatusHealthy {
			overall = HealthStatusDegraded
		}
	}

	return HealthResponse{
		Status: overall,
		Checks: checks,
		Uptime: time.Since(h.started).Seconds(),
	}
}

// Handler serves the health report as JSON, 503 when unhealthy
func (h *Health) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := h.Report()

		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}
