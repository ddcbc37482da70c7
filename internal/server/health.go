package server

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusFailing      = "failing"
)

// DefaultHealthCheckTimeout bounds each readiness check.
const DefaultHealthCheckTimeout = 2 * time.Second

// CheckFunc is a readiness dependency check, e.g. a database ping.
type CheckFunc func(ctx context.Context) error

// HealthChecker serves the liveness and readiness endpoints. Readiness is the
// conjunction of the manual ready flag, the server context not being shut
// down, and every registered dependency check passing.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
	version       string

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthChecker creates a HealthChecker that starts out ready.
func NewHealthChecker(sc *ServerContext, version string) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
		version:       version,
		checks:        make(map[string]CheckFunc),
	}
	h.ready.Store(true)
	return h
}

// SetReady toggles the manual readiness flag.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the manual readiness flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// AddCheck registers a named dependency check. A later call with the same
// name replaces the earlier check.
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) shuttingDown() bool {
	return h.serverContext != nil && h.serverContext.IsShutdown()
}

// checkResult is one entry of a readiness report.
type checkResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
}

// evaluate runs all dependency checks concurrently, each under its own
// timeout, and folds in the ready flag and shutdown state.
func (h *HealthChecker) evaluate(ctx context.Context) (map[string]checkResult, bool) {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]checkResult, len(checks)+2)
		healthy = true
	)
	record := func(name string, ok bool, failStatus string, took time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		res := checkResult{Status: healthStatusOK}
		if !ok {
			res.Status = failStatus
			healthy = false
		}
		if took > 0 {
			res.Duration = took.Round(time.Millisecond).String()
		}
		results[name] = res
	}

	record("ready", h.ready.Load(), healthStatusNotReady, 0)
	record("shutdown", !h.shuttingDown(), healthStatusShuttingDown, 0)

	var g errgroup.Group
	for _, name := range slices.Sorted(maps.Keys(checks)) {
		check := checks[name]
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, DefaultHealthCheckTimeout)
			defer cancel()
			start := time.Now()
			err := check(checkCtx)
			record(name, err == nil, healthStatusFailing, time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	return results, healthy
}

// statuses flattens a report to name -> status.
func statuses(results map[string]checkResult) map[string]string {
	out := make(map[string]string, len(results))
	for name, res := range results {
		out[name] = res.Status
	}
	return out
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]checkResult `json:"checks,omitempty"`
}

func writeHealth(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler answers /healthz. It only proves the process is serving
// and never consults dependencies.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers /readyz with 503 when any check fails.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results, healthy := h.evaluate(r.Context())
		resp := HealthResponse{Status: healthStatusOK, Checks: statuses(results)}
		code := http.StatusOK
		if !healthy {
			resp.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, resp)
	})
}

// DetailedHealthHandler answers /healthz/detailed with version, uptime and
// per-check timings.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results, healthy := h.evaluate(r.Context())
		resp := DetailedHealthResponse{
			Status:  healthStatusOK,
			Version: h.version,
			Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
			Checks:  results,
		}
		code := http.StatusOK
		switch {
		case h.shuttingDown():
			resp.Status = healthStatusShuttingDown
			code = http.StatusServiceUnavailable
		case !healthy:
			resp.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, resp)
	})
}

// RegisterHealthEndpoints mounts the health endpoints on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("GET /healthz", h.LivenessHandler())
	mux.Handle("GET /readyz", h.ReadinessHandler())
	mux.Handle("GET /healthz/detailed", h.DetailedHealthHandler())
}
