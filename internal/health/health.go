// Package health provides liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Pinger is a dependency readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthCheck manages health check functionality.
type HealthCheck struct {
	checks        map[string]Pinger
	logger        *zap.Logger
	checkInterval time.Duration
	timeout       time.Duration
	onChange      func(ready bool)

	mu        sync.RWMutex
	ready     bool
	results   map[string]string
	lastCheck time.Time
}

// Option configures a HealthCheck.
type Option func(*HealthCheck)

// WithInterval sets how often the background check runs.
func WithInterval(d time.Duration) Option {
	return func(hc *HealthCheck) { hc.checkInterval = d }
}

// WithOnChange registers a callback run after every check.
func WithOnChange(fn func(ready bool)) Option {
	return func(hc *HealthCheck) { hc.onChange = fn }
}

// NewHealthCheck creates a new HealthCheck over named dependencies.
func NewHealthCheck(checks map[string]Pinger, logger *zap.Logger, opts ...Option) *HealthCheck {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthCheck{
		checks:        checks,
		logger:        logger,
		checkInterval: 5 * time.Second,
		timeout:       2 * time.Second,
		results:       map[string]string{},
	}
	for _, opt := range opts {
		opt(hc)
	}
	return hc
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// LivenessHandler handles GET /health requests.
// Returns 200 OK if the process is running.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "healthy"})
}

// ReadinessHandler handles GET /ready requests.
// Returns 200 OK when the session store and database answer pings.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if hc.IsReady() {
		writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready", Checks: hc.Results()})
		return
	}

	// Perform a fresh check if not ready
	if err := hc.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
			Status: "not_ready",
			Checks: hc.Results(),
			Error:  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready", Checks: hc.Results()})
}

// Check pings every dependency concurrently and records the outcome. It
// returns the first failure.
func (hc *HealthCheck) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			errs[i] = hc.checks[name].Ping(ctx)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]string, len(names))
	var first error
	for i, name := range names {
		if errs[i] != nil {
			results[name] = "unhealthy"
			if first == nil {
				first = errs[i]
			}
			hc.logger.Warn("health check failed", zap.String("check", name), zap.Error(errs[i]))
			continue
		}
		results[name] = "healthy"
	}

	hc.mu.Lock()
	hc.ready = first == nil
	hc.results = results
	hc.lastCheck = time.Now()
	hc.mu.Unlock()

	if hc.onChange != nil {
		hc.onChange(first == nil)
	}
	return first
}

// Run checks dependencies periodically until ctx is cancelled.
func (hc *HealthCheck) Run(ctx context.Context) {
	_ = hc.Check(ctx)

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = hc.Check(ctx)
		}
	}
}

// IsReady returns the current readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// Results returns the latest per-dependency status.
func (hc *HealthCheck) Results() map[string]string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	out := make(map[string]string, len(hc.results))
	for k, v := range hc.results {
		out[k] = v
	}
	return out
}

// SetReady sets the readiness status (for testing).
func (hc *HealthCheck) SetReady(ready bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ready = ready
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
