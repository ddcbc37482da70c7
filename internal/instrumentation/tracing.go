package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for breez.
const TracerName = "github.com/breezapp/breez"

// Span attribute keys.
const (
	SpanAttrService       = "google.service"
	SpanAttrOperation     = "google.operation"
	SpanAttrCalendarID    = "google.calendar_id"
	SpanAttrEventID       = "google.event_id"
	SpanAttrTool          = "mcp.tool"
	SpanAttrIntegrationID = "breez.integration_id"
	SpanAttrTaskID        = "breez.task_id"
	SpanAttrSyncAction    = "breez.sync.action"
	SpanAttrSyncState     = "breez.sync.state"
	SpanAttrSyncReason    = "breez.sync.reason"
)

// SpanAttributeBuilder helps construct span attributes with consistent naming.
// Empty values are skipped.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 8)}
}

func (b *SpanAttributeBuilder) add(key, value string) *SpanAttributeBuilder {
	if value != "" {
		b.attrs = append(b.attrs, attribute.String(key, value))
	}
	return b
}

// WithIntegration adds the integration id.
func (b *SpanAttributeBuilder) WithIntegration(id string) *SpanAttributeBuilder {
	return b.add(SpanAttrIntegrationID, id)
}

// WithTask adds the task id.
func (b *SpanAttributeBuilder) WithTask(id string) *SpanAttributeBuilder {
	return b.add(SpanAttrTaskID, id)
}

// WithCalendar adds the remote calendar id.
func (b *SpanAttributeBuilder) WithCalendar(id string) *SpanAttributeBuilder {
	return b.add(SpanAttrCalendarID, id)
}

// WithEvent adds the remote event id.
func (b *SpanAttributeBuilder) WithEvent(id string) *SpanAttributeBuilder {
	return b.add(SpanAttrEventID, id)
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span with the given name and attributes.
// The caller must end the span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartGoogleAPISpan starts a client span for a Google API call named
// google.<service>.<operation>.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartSyncSpan starts an internal span for one orchestrator run.
func StartSyncSpan(ctx context.Context, action, taskID string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "sync."+action,
		trace.WithAttributes(
			attribute.String(SpanAttrSyncAction, action),
			attribute.String(SpanAttrTaskID, taskID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartToolSpan starts a server span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "tool."+toolName,
		trace.WithAttributes(attribute.String(SpanAttrTool, toolName)),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the current span in context,
// or "" if no valid span is present.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
