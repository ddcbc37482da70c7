package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/breezapp/breez/internal/calendar"
	"github.com/breezapp/breez/internal/config"
	"github.com/breezapp/breez/internal/google"
	"github.com/breezapp/breez/internal/instrumentation"
	"github.com/breezapp/breez/internal/resources"
	"github.com/breezapp/breez/internal/server"
	"github.com/breezapp/breez/internal/store"
	"github.com/breezapp/breez/internal/tasksync"
	"github.com/breezapp/breez/internal/tools/task_tools"
)

// serveFlags override environment settings when explicitly set.
type serveFlags struct {
	httpAddr           string
	baseURL            string
	transport          string
	allowWrites        bool
	storage            string
	databaseURL        string
	timeZone           string
	calendarName       string
	syncEnabled        bool
	googleClientID     string
	googleClientSecret string
	metricsEnabled     bool
	metricsAddr        string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the breez server",
		Long: `Start the breez HTTP server.

Endpoints:
  /authorize, /callback        Google Calendar consent flow
  /disconnect, /token/refresh  integration management
  /integration, /events        connection status, calendar repair, upcoming events
  /tasks                       task API with calendar sync
  /mcp                         MCP tools (streamable-http transport)
  /healthz, /readyz            health checks

Transports:
  - streamable-http: MCP tools are served at /mcp (default)
  - stdio: MCP tools are served on stdin/stdout; the HTTP endpoints still
    run so users can link their calendar

Safety Mode:
  By default only read tools are registered over MCP.
  Use --allow-writes to enable task creation, updates and deletion.

Authentication:
  breez trusts the user id in the X-Breez-User-ID header (see
  BREEZ_USER_HEADER). Run it behind a proxy that authenticates users and
  strips that header from client requests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, flags, &cfg)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg, slog.Default())
		},
	}

	addServeFlags(cmd, &flags)

	return cmd
}

// addServeFlags registers the serve flags on cmd.
func addServeFlags(cmd *cobra.Command, flags *serveFlags) {
	fs := cmd.Flags()
	fs.StringVar(&flags.httpAddr, "http-addr", config.DefaultHTTPAddr, "HTTP server address. Can also use BREEZ_HTTP_ADDR env var.")
	fs.StringVar(&flags.baseURL, "base-url", "", "Public base URL; Google redirects to <base-url>/callback. Required for deployed instances. Can also use BREEZ_BASE_URL env var. Example: https://breez.example.com")
	fs.StringVar(&flags.transport, "transport", config.TransportStreamableHTTP, "MCP transport: streamable-http or stdio. Can also use BREEZ_TRANSPORT env var.")
	fs.BoolVar(&flags.allowWrites, "allow-writes", false, "Register MCP write tools (task create, update, delete). Can also use BREEZ_ALLOW_WRITES env var.")
	fs.StringVar(&flags.storage, "storage", config.DefaultStorage, "Storage backend: memory, sqlite or postgres. Can also use BREEZ_STORAGE env var.")
	fs.StringVar(&flags.databaseURL, "database-url", "", "Database DSN (postgres) or file path (sqlite). Can also use BREEZ_DATABASE_URL env var.")
	fs.StringVar(&flags.timeZone, "time-zone", config.DefaultTimeZone, "Time zone task dates and times are interpreted in. Can also use BREEZ_TIME_ZONE env var.")
	fs.StringVar(&flags.calendarName, "calendar-name", calendar.DefaultCalendarSummary, "Name of the dedicated Google calendar. Can also use BREEZ_CALENDAR_NAME env var.")
	fs.BoolVar(&flags.syncEnabled, "sync-enabled", true, "Sync tasks to Google Calendar. Can also use BREEZ_SYNC_ENABLED env var.")
	fs.StringVar(&flags.googleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	fs.StringVar(&flags.googleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	fs.BoolVar(&flags.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	fs.StringVar(&flags.metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
}

// applyServeFlags copies explicitly set flags over the environment values.
func applyServeFlags(cmd *cobra.Command, flags serveFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("http-addr") {
		cfg.HTTPAddr = flags.httpAddr
	}
	if changed("base-url") {
		cfg.BaseURL = flags.baseURL
	}
	if changed("transport") {
		cfg.Transport = flags.transport
	}
	if changed("allow-writes") {
		cfg.AllowWrites = flags.allowWrites
	}
	if changed("storage") {
		cfg.Storage = flags.storage
	}
	if changed("database-url") {
		cfg.DatabaseURL = flags.databaseURL
	}
	if changed("time-zone") {
		cfg.TimeZone = flags.timeZone
	}
	if changed("calendar-name") {
		cfg.CalendarName = flags.calendarName
	}
	if changed("sync-enabled") {
		cfg.SyncEnabled = flags.syncEnabled
	}
	if changed("google-client-id") {
		cfg.GoogleClientID = flags.googleClientID
	}
	if changed("google-client-secret") {
		cfg.GoogleClientSecret = flags.googleClientSecret
	}
	if changed("metrics-enabled") {
		cfg.MetricsEnabled = flags.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}
}

// pinger is implemented by stores that can check their connection.
type pinger interface {
	Ping(ctx context.Context) error
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}
	provider, err := instrumentation.NewProvider(ctx, instrConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during instrumentation shutdown", "error", err)
		}
	}()
	metrics := provider.Metrics()

	tokenCipher, err := cfg.TokenCipher()
	if err != nil {
		return err
	}
	st, err := store.New(cfg.Storage, cfg.DatabaseURL, logger, store.WithTokenCipher(tokenCipher))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Error closing storage", "error", err)
		}
	}()
	if cfg.Storage == store.BackendMemory {
		logger.Warn("Using in-memory storage; integrations and tasks are lost on restart")
	} else if tokenCipher == nil {
		logger.Warn("OAuth tokens are stored unencrypted; set BREEZ_ENCRYPTION_KEY to encrypt them at rest")
	}

	oauthClient, err := google.NewOAuthClient(google.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Metrics:      metrics,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create OAuth client: %w", err)
	}

	tokens := google.NewStoreTokenProvider(oauthClient, st,
		google.WithExpirySkew(cfg.TokenSkew),
		google.WithMetrics(metrics),
		google.WithAudit(provider.Audit()),
		google.WithLogger(logger),
	)

	calendarOpts := []calendar.ClientOption{
		calendar.WithMetrics(metrics),
		calendar.WithLogger(logger),
	}

	orchestrator := tasksync.NewOrchestrator(tasksync.Config{
		Enabled:  cfg.SyncEnabled,
		Location: loc,
	}, tasksync.Deps{
		Integrations: st,
		Tasks:        st,
		Tokens:       tokens,
		Calendars:    tasksync.CalendarClientFactory(calendarOpts...),
		Metrics:      metrics,
		Logger:       logger,
	})
	taskService := tasksync.NewService(st, orchestrator, logger)

	serverContext := server.NewServerContext(ctx, taskService, st)
	serverContext.SetMetrics(metrics)
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", "error", err)
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("breez", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := registerAllTools(mcpSrv, serverContext, cfg.AllowWrites); err != nil {
		return err
	}
	if cfg.AllowWrites {
		logger.Info("MCP write tools enabled (--allow-writes)")
	} else {
		logger.Info("MCP tools are read-only (use --allow-writes to enable task changes)")
	}

	states, err := server.NewStateSigner([]byte(cfg.StateSecret), server.DefaultStateTTL)
	if err != nil {
		return err
	}

	health := server.NewHealthChecker(serverContext, version)
	if p, ok := st.(pinger); ok {
		health.AddCheck("database", p.Ping)
	}

	deps := server.Deps{
		Integrations: st,
		Tasks:        taskService,
		OAuth:        oauthClient,
		Tokens:       tokens,
		Calendars:    server.CalendarServiceFactory(calendarOpts...),
		States:       states,
		Users:        server.HeaderUserResolver{Header: cfg.UserHeader},
		Health:       health,
		Limiter:      server.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Metrics:      metrics,
		Audit:        provider.Audit(),
		Logger:       logger,
	}
	if cfg.Transport == config.TransportStreamableHTTP {
		deps.MCP = mcpSrv
	}
	httpServer, err := server.New(server.Config{
		BaseURL:      cfg.BaseURL,
		StatusURL:    cfg.StatusURL,
		LoginURL:     cfg.LoginURL,
		CalendarName: cfg.CalendarName,
		TimeZone:     cfg.TimeZone,
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.Enabled() && provider.MetricsHandler() != nil {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	logger.Info("Starting breez",
		"version", version,
		"addr", cfg.HTTPAddr,
		"base_url", cfg.BaseURL,
		"redirect_url", cfg.RedirectURL(),
		"transport", cfg.Transport,
		"storage", cfg.Storage,
		"sync_enabled", cfg.SyncEnabled,
	)
	return serve(ctx, httpServer, metricsServer, mcpSrv, cfg, logger)
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, allowWrites bool) error {
	if err := task_tools.RegisterTaskTools(mcpSrv, sc, allowWrites); err != nil {
		return fmt.Errorf("failed to register task tools: %w", err)
	}
	if err := resources.RegisterTaskResources(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register task resources: %w", err)
	}
	return nil
}

// serve runs the listeners until ctx is done or one of them fails, then
// shuts everything down.
func serve(ctx context.Context, httpServer *server.Server, metricsServer *server.MetricsServer, mcpSrv *mcpserver.MCPServer, cfg config.Config, logger *slog.Logger) error {
	errCh := make(chan error, 3)

	go func() {
		if err := httpServer.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server stopped with error: %w", err)
			}
		}()
	}

	stdioCtx, stopStdio := context.WithCancel(ctx)
	defer stopStdio()
	if cfg.Transport == config.TransportStdio {
		stdio := mcpserver.NewStdioServer(mcpSrv)
		stdio.SetErrorLogger(log.New(os.Stderr, "mcp: ", log.LstdFlags))
		stdio.SetContextFunc(server.WithLocalCaller)
		go func() {
			if err := stdio.Listen(stdioCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("stdio server stopped with error: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping servers")
	case runErr = <-errCh:
		logger.Error("Server failed, shutting down", "error", runErr)
	}
	stopStdio()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	errs := []error{runErr}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("error shutting down HTTP server: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down metrics server: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("breez stopped")
	return nil
}
