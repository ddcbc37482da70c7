// Package common provides shared utilities for MCP tool implementations:
// resolving the calling user and wrapping handlers with tracing and metrics.
package common
