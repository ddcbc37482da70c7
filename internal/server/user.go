package server

import (
	"context"
	"net/http"
	"strings"
)

// DefaultUserHeader carries the authenticated user id from the upstream proxy.
const DefaultUserHeader = "X-Breez-User-ID"

// UserResolver identifies the user making a request.
type UserResolver interface {
	// ResolveUser returns the user id, or "" when the request is
	// unauthenticated.
	ResolveUser(r *http.Request) string
}

// HeaderUserResolver trusts a header set by an authenticating reverse proxy.
// Only deploy it behind a proxy that strips the header from client requests.
type HeaderUserResolver struct {
	Header string
}

// ResolveUser implements UserResolver.
func (h HeaderUserResolver) ResolveUser(r *http.Request) string {
	header := h.Header
	if header == "" {
		header = DefaultUserHeader
	}
	return strings.TrimSpace(r.Header.Get(header))
}

type userContextKey struct{}

// WithUser returns a copy of ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userContextKey{}).(string)
	return userID, ok && userID != ""
}

type localCallerKey struct{}

// WithLocalCaller marks ctx as coming from the stdio transport, where the
// operator running the process names the user explicitly. HTTP requests
// never carry this mark.
func WithLocalCaller(ctx context.Context) context.Context {
	return context.WithValue(ctx, localCallerKey{}, true)
}

// IsLocalCaller reports whether ctx was marked by WithLocalCaller.
func IsLocalCaller(ctx context.Context) bool {
	local, _ := ctx.Value(localCallerKey{}).(bool)
	return local
}

// RequireUser rejects unauthenticated requests with 401 and stores the user
// in the request context otherwise.
func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := s.users.ResolveUser(r)
		if userID == "" {
			s.writeError(w, "unauthenticated", "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

// mcpContext carries the proxy-authenticated user into MCP tool calls.
// /mcp is mounted behind RequireUser, so the user is normally already on
// the request context.
func (s *Server) mcpContext(ctx context.Context, r *http.Request) context.Context {
	if userID, ok := UserFromContext(r.Context()); ok {
		return WithUser(ctx, userID)
	}
	if userID := s.users.ResolveUser(r); userID != "" {
		return WithUser(ctx, userID)
	}
	return ctx
}
