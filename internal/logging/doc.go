// Package logging provides structured logging utilities for breez.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package. Every
// component receives its *slog.Logger through its constructor; nothing logs
// through a process-wide facility directly.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (user id anonymization)
//   - Consistent attribute naming across the codebase
//   - Logger adapter interface for flexibility
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "calendar.create")
//	logger.Info("event created",
//	    logging.TaskID(task.ID),
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("token refreshed",
//	    logging.UserHash(integration.UserID),
//	    slog.String("access_token", logging.SanitizeToken(token)))
//
// # Security Considerations
//
//   - User identifiers are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
