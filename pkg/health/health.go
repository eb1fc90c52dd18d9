// Package health provides liveness and readiness probes for the worker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const checkTimeout = 5 * time.Second

// CheckResult represents the result of a health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type check struct {
	fn       CheckFunc
	critical bool
}

// Checker runs the registered checks. A failing critical check makes the
// worker unhealthy; any other failing check only degrades it.
type Checker struct {
	startTime time.Time
	mu        sync.RWMutex
	ready     bool
	checks    map[string]check
}

// NewChecker creates a new health checker
func NewChecker() *Checker {
	return &Checker{
		startTime: time.Now(),
		checks:    map[string]check{},
	}
}

// Register adds a named check. Registering a name twice replaces the check.
func (c *Checker) Register(name string, fn CheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check{fn: fn, critical: critical}
}

// SetReady marks the worker as ready to take work
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns whether the worker is ready
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// LivenessHandler reports that the process is up.
func (c *Checker) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Status:     StatusHealthy,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// ReadinessHandler reports whether startup finished and every critical
// dependency answers.
func (c *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !c.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
			},
		})
		return
	}

	response := c.Check(r.Context())
	code := http.StatusOK
	if response.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response)
}

// Check runs every registered check.
func (c *Checker) Check(ctx context.Context) Response {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]check, len(c.checks))
	for name, chk := range c.checks {
		checks[name] = chk
	}
	c.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]CheckResult, len(names))
	overall := StatusHealthy
	for _, name := range names {
		chk := checks[name]
		result := run(ctx, chk.fn)
		if result.Status != StatusHealthy {
			if chk.critical {
				result.Status = StatusUnhealthy
				overall = StatusUnhealthy
			} else {
				result.Status = StatusDegraded
				if overall == StatusHealthy {
					overall = StatusDegraded
				}
			}
		}
		results[name] = result
	}

	return Response{
		Status:     overall,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     results,
		ReportedAt: time.Now(),
	}
}

func run(ctx context.Context, fn CheckFunc) CheckResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
			Latency: time.Since(start).String(),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Latency: time.Since(start).String(),
	}
}

func writeJSON(w http.ResponseWriter, code int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
