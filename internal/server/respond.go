package server

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// setSecurityHeaders sets security headers on HTTP responses
func (s *Server) setSecurityHeaders(w http.ResponseWriter) {
	// Prevent clickjacking attacks
	w.Header().Set("X-Frame-Options", "DENY")

	// Prevent MIME type sniffing
	w.Header().Set("X-Content-Type-Options", "nosniff")

	// Content Security Policy - restrict resource loading
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

	// Referrer policy - don't leak the callback's code and state
	w.Header().Set("Referrer-Policy", "no-referrer")

	w.Header().Set("Cache-Control", "no-store")

	// Only set HSTS when the public base URL is HTTPS
	if s.cfg.BaseURL != "" {
		parsedURL, err := url.Parse(s.cfg.BaseURL)
		if err == nil && parsedURL.Scheme == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
	}
}

// writeJSON writes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	s.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError is a helper to write JSON error responses
func (s *Server) writeError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	s.logger.Debug("Request error", "code", errorCode, "description", description, "status", statusCode)
	s.writeJSON(w, statusCode, ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}
