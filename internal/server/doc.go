// Package server exposes breez over HTTP.
//
// # Key Components
//
// Server wires the HTTP surface on a net/http.ServeMux:
//   - GET /authorize and GET /callback run the Google consent flow and link
//     the user's calendar integration
//   - POST /disconnect revokes and removes the integration
//   - POST /token/refresh refreshes an integration's access token
//   - GET /integration and GET /events report connection status and the
//     next upcoming events
//   - /tasks is a small JSON task API whose mutations sync to the calendar
//   - /mcp serves the MCP tools over streamable HTTP when configured
//
// The current user is resolved by a UserResolver. HeaderUserResolver trusts
// a header set by an upstream authenticating proxy.
//
// ServerContext carries the task service and stores to MCP tool handlers.
// HealthChecker serves Kubernetes liveness and readiness checks and
// MetricsServer exposes Prometheus metrics on a separate port.
//
// # Security Features
//
//   - HTTPS required for the public base URL (localhost exempt for development)
//   - Signed, expiring OAuth state bound to the user who started the flow
//   - Security headers on all JSON responses
//   - Tokens are never logged or returned by status endpoints
//   - Audit logging for link, refresh and disconnect events
package server
