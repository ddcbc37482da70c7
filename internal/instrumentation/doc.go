// Package instrumentation provides OpenTelemetry metrics and tracing for breez.
//
// # Metrics
//
// HTTP:
//   - http_requests_total: requests by method, route pattern and status
//   - http_request_duration_seconds: request latency
//
// Google API:
//   - google_api_operations_total: calls by service (calendar, oauth), operation and status
//   - google_api_operation_duration_seconds: call latency
//
// OAuth:
//   - oauth_auth_total: authorization callbacks by result
//   - oauth_token_refresh_total: refresh attempts by result
//
// Calendar sync:
//   - task_sync_total: orchestrator runs by action, state and failure reason
//   - task_sync_duration_seconds: orchestrator run latency
//
// MCP tools:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for Google API calls (google.<service>.<operation>),
// sync runs (sync.<action>) and MCP tool invocations (tool.<name>).
//
// # Audit
//
// AuditLogger writes integration lifecycle events (linked, disconnected,
// token refreshed, reauthorization required) with hashed user ids.
//
// # Configuration
//
// DefaultConfig reads:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: breez)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_USER_ID
package instrumentation
