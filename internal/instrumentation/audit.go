package instrumentation

import (
	"context"
	"log/slog"

	"github.com/breezapp/breez/internal/logging"
)

// IntegrationEvent names a lifecycle change of a calendar integration.
type IntegrationEvent string

// Integration lifecycle events.
const (
	EventIntegrationLinked       IntegrationEvent = "integration_linked"
	EventIntegrationDisconnected IntegrationEvent = "integration_disconnected"
	EventTokenRefreshed          IntegrationEvent = "token_refreshed"
	EventReauthorizationRequired IntegrationEvent = "reauthorization_required"
)

// AuditRecord is one audit log entry.
type AuditRecord struct {
	Event         IntegrationEvent
	UserID        string
	Provider      string
	IntegrationID string
	Err           error
}

// AuditLogger writes integration lifecycle events to a dedicated log stream.
// User ids are hashed unless IncludeUserID is configured.
type AuditLogger struct {
	logger *slog.Logger
	config AuditConfig
}

// NewAuditLogger creates an AuditLogger. If logger is nil, slog.Default() is used.
func NewAuditLogger(logger *slog.Logger, config AuditConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger: logger.With(slog.String("log_type", "audit")),
		config: config,
	}
}

// Log emits rec. A nil receiver or a disabled logger drops the record.
func (a *AuditLogger) Log(ctx context.Context, rec AuditRecord) {
	if a == nil || !a.config.Enabled {
		return
	}

	attrs := []any{
		slog.String("event", string(rec.Event)),
		logging.Provider(rec.Provider),
	}
	if a.config.IncludeUserID {
		attrs = append(attrs, slog.String("user_id", rec.UserID))
	} else {
		attrs = append(attrs, logging.UserHash(rec.UserID))
	}
	if rec.IntegrationID != "" {
		attrs = append(attrs, logging.IntegrationID(rec.IntegrationID))
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}

	if rec.Err != nil {
		a.logger.WarnContext(ctx, "integration_audit", append(attrs, logging.Err(rec.Err))...)
		return
	}
	a.logger.InfoContext(ctx, "integration_audit", attrs...)
}
