package server

import (
	"context"
	"sync"

	"github.com/breezapp/breez/internal/instrumentation"
	"github.com/breezapp/breez/internal/store"
	"github.com/breezapp/breez/internal/tasksync"
)

// ServerContext holds the dependencies MCP tool handlers share.
type ServerContext struct {
	ctx          context.Context
	cancel       context.CancelFunc
	tasks        *tasksync.Service
	integrations store.IntegrationStore
	metrics      *instrumentation.Metrics
	mu           sync.RWMutex
	shutdown     bool
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, tasks *tasksync.Service, integrations store.IntegrationStore) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:          shutdownCtx,
		cancel:       cancel,
		tasks:        tasks,
		integrations: integrations,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Tasks returns the task service.
func (sc *ServerContext) Tasks() *tasksync.Service {
	return sc.tasks
}

// Integrations returns the integration store.
func (sc *ServerContext) Integrations() store.IntegrationStore {
	return sc.integrations
}

// SetMetrics sets the recorder tool handlers report to.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil when not configured.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
