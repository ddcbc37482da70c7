package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/breezapp/breez/internal/calendar"
	"github.com/breezapp/breez/internal/google"
	"github.com/breezapp/breez/internal/instrumentation"
	"github.com/breezapp/breez/internal/logging"
	"github.com/breezapp/breez/internal/store"
	"github.com/breezapp/breez/internal/tasksync"
)

const (
	// DefaultReadHeaderTimeout bounds reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds writing a response. Calendar calls plus a
	// token refresh must fit within it.
	DefaultWriteTimeout = 60 * time.Second

	// DefaultIdleTimeout closes idle keep-alive connections.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultUpcomingEvents is the number of events GET /events returns.
	DefaultUpcomingEvents = 10
)

// OAuthClient is the subset of google.OAuthClient the HTTP surface uses.
type OAuthClient interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*google.TokenResponse, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*google.TokenResponse, error)
	RevokeToken(ctx context.Context, token string) error
}

// CalendarService is the subset of calendar.Client the HTTP surface uses.
type CalendarService interface {
	EnsureCalendar(ctx context.Context, summary, timeZone string) (string, error)
	ListUpcomingEvents(ctx context.Context, calendarID string, from time.Time, maxResults int64) ([]calendar.EventSummary, error)
}

// CalendarFactory builds a CalendarService bound to an access token.
type CalendarFactory func(ctx context.Context, accessToken string) (CalendarService, error)

// CalendarServiceFactory returns a CalendarFactory backed by calendar.NewClient.
func CalendarServiceFactory(opts ...calendar.ClientOption) CalendarFactory {
	return func(ctx context.Context, accessToken string) (CalendarService, error) {
		return calendar.NewClient(ctx, accessToken, opts...)
	}
}

// Config holds the HTTP surface settings.
type Config struct {
	// BaseURL is the public URL of this server; the OAuth redirect URL is
	// BaseURL + "/callback".
	BaseURL string

	// StatusURL receives the browser after the callback with ?success=true
	// or ?error=<reason> (default: BaseURL + "/integration").
	StatusURL string

	// LoginURL receives unauthenticated browsers hitting /authorize
	// (default: "/login").
	LoginURL string

	// CalendarName is the dedicated calendar's summary
	// (default: calendar.DefaultCalendarSummary).
	CalendarName string

	// TimeZone is set on a newly created calendar (default: "UTC").
	TimeZone string

	// Provider is the integration provider (default: store.ProviderGoogleCalendar).
	Provider string
}

// Deps are the server's collaborators.
type Deps struct {
	Integrations store.IntegrationStore
	Tasks        *tasksync.Service
	OAuth        OAuthClient
	Tokens       google.TokenProvider
	Calendars    CalendarFactory
	States       *StateSigner
	Users        UserResolver
	Health       *HealthChecker

	// Limiter throttles callers; nil disables rate limiting.
	Limiter *RateLimiter

	// MCP is served at /mcp when set.
	MCP *mcpserver.MCPServer

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// Server is the breez HTTP server.
type Server struct {
	cfg          Config
	integrations store.IntegrationStore
	tasks        *tasksync.Service
	oauth        OAuthClient
	tokens       google.TokenProvider
	calendars    CalendarFactory
	states       *StateSigner
	users        UserResolver
	health       *HealthChecker
	limiter      *RateLimiter
	mcp          *mcpserver.MCPServer
	metrics      *instrumentation.Metrics
	audit        *instrumentation.AuditLogger
	logger       *slog.Logger
	now          func() time.Time

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a Server.
func New(cfg Config, deps Deps) (*Server, error) {
	if err := validateHTTPSRequirement(cfg.BaseURL); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.StatusURL == "" {
		cfg.StatusURL = cfg.BaseURL + "/integration"
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = "/login"
	}
	if cfg.CalendarName == "" {
		cfg.CalendarName = calendar.DefaultCalendarSummary
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "UTC"
	}
	if cfg.Provider == "" {
		cfg.Provider = store.ProviderGoogleCalendar
	}

	switch {
	case deps.Integrations == nil:
		return nil, fmt.Errorf("integration store is required")
	case deps.Tasks == nil:
		return nil, fmt.Errorf("task service is required")
	case deps.OAuth == nil:
		return nil, fmt.Errorf("oauth client is required")
	case deps.Tokens == nil:
		return nil, fmt.Errorf("token provider is required")
	case deps.States == nil:
		return nil, fmt.Errorf("state signer is required")
	}
	if deps.Calendars == nil {
		deps.Calendars = CalendarServiceFactory()
	}
	if deps.Users == nil {
		deps.Users = HeaderUserResolver{}
	}
	if deps.Health == nil {
		deps.Health = NewHealthChecker(nil, "")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Server{
		cfg:          cfg,
		integrations: deps.Integrations,
		tasks:        deps.Tasks,
		oauth:        deps.OAuth,
		tokens:       deps.Tokens,
		calendars:    deps.Calendars,
		states:       deps.States,
		users:        deps.Users,
		health:       deps.Health,
		limiter:      deps.Limiter,
		mcp:          deps.MCP,
		metrics:      deps.Metrics,
		audit:        deps.Audit,
		logger:       logging.WithService(deps.Logger, "http"),
		now:          time.Now,
	}, nil
}

// RedirectURL is the OAuth callback URL registered with Google.
func RedirectURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/callback"
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// ========== Calendar integration ==========
	mux.HandleFunc("GET /authorize", s.handleAuthorize)
	mux.HandleFunc("GET /callback", s.handleCallback)
	mux.Handle("POST /disconnect", s.RequireUser(http.HandlerFunc(s.handleDisconnect)))
	mux.Handle("POST /token/refresh", s.RequireUser(http.HandlerFunc(s.handleTokenRefresh)))
	mux.Handle("GET /integration", s.RequireUser(http.HandlerFunc(s.handleIntegration)))
	mux.Handle("POST /integration/calendar", s.RequireUser(http.HandlerFunc(s.handleRepairCalendar)))
	mux.Handle("GET /events", s.RequireUser(http.HandlerFunc(s.handleEvents)))

	// ========== Tasks ==========
	mux.Handle("GET /tasks", s.RequireUser(http.HandlerFunc(s.handleListTasks)))
	mux.Handle("POST /tasks", s.RequireUser(http.HandlerFunc(s.handleCreateTask)))
	mux.Handle("GET /tasks/{id}", s.RequireUser(http.HandlerFunc(s.handleGetTask)))
	mux.Handle("PUT /tasks/{id}", s.RequireUser(http.HandlerFunc(s.handleUpdateTask)))
	mux.Handle("DELETE /tasks/{id}", s.RequireUser(http.HandlerFunc(s.handleDeleteTask)))

	// ========== Health ==========
	s.health.RegisterHealthEndpoints(mux)

	// ========== MCP ==========
	if s.mcp != nil {
		mux.Handle("/mcp", s.RequireUser(mcpserver.NewStreamableHTTPServer(s.mcp,
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithHTTPContextFunc(s.mcpContext),
		)))
	}

	return s.instrumentationMiddleware(s.rateLimitMiddleware(mux))
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Starting HTTP server", "addr", ln.Addr().String(), "base_url", s.cfg.BaseURL)
	return srv.Serve(ln)
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// validateHTTPSRequirement ensures OAuth redirects only travel over HTTPS.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1)
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	// Parse URL to properly validate scheme and host
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	// Allow HTTP only for loopback addresses
	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}

// expiryOf returns the absolute expiry of a token response.
func expiryOf(tok *google.TokenResponse, now time.Time) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry.UTC()
	}
	return now.Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
}
