package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/breezapp/breez/internal/calendar"
	"github.com/breezapp/breez/internal/google"
	"github.com/breezapp/breez/internal/server"
	"github.com/breezapp/breez/internal/store"
)

// Defaults.
const (
	DefaultHTTPAddr    = ":8080"
	DefaultMetricsAddr = ":9090"
	DefaultStorage     = store.BackendSQLite
	DefaultSQLitePath  = "breez.db"
	DefaultTimeZone    = "UTC"
	DefaultRateLimit   = 10.0
	DefaultRateBurst   = 20
)

// Transports the MCP surface can run on.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// Config is the complete runtime configuration.
type Config struct {
	GoogleClientID     string
	GoogleClientSecret string

	BaseURL    string
	HTTPAddr   string
	StatusURL  string
	LoginURL   string
	UserHeader string

	Storage     string
	DatabaseURL string

	// EncryptionKey is a base64 AES-256 key for tokens at rest; empty
	// stores tokens in plaintext.
	EncryptionKey string

	StateSecret  string
	TimeZone     string
	CalendarName string
	TokenSkew    time.Duration
	SyncEnabled  bool

	Transport   string
	AllowWrites bool

	// RateLimit is requests per second per caller; 0 disables limiting.
	RateLimit float64
	RateBurst int

	MetricsEnabled bool
	MetricsAddr    string
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		GoogleClientID:     env("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: env("GOOGLE_CLIENT_SECRET", ""),
		BaseURL:            env("BREEZ_BASE_URL", ""),
		HTTPAddr:           env("BREEZ_HTTP_ADDR", DefaultHTTPAddr),
		StatusURL:          env("BREEZ_STATUS_URL", ""),
		LoginURL:           env("BREEZ_LOGIN_URL", ""),
		UserHeader:         env("BREEZ_USER_HEADER", server.DefaultUserHeader),
		Storage:            env("BREEZ_STORAGE", DefaultStorage),
		DatabaseURL:        env("BREEZ_DATABASE_URL", ""),
		EncryptionKey:      env("BREEZ_ENCRYPTION_KEY", ""),
		StateSecret:        env("BREEZ_STATE_SECRET", ""),
		TimeZone:           env("BREEZ_TIME_ZONE", DefaultTimeZone),
		CalendarName:       env("BREEZ_CALENDAR_NAME", calendar.DefaultCalendarSummary),
		TokenSkew:          google.DefaultExpirySkew,
		SyncEnabled:        true,
		Transport:          env("BREEZ_TRANSPORT", TransportStreamableHTTP),
		MetricsEnabled:     true,
		MetricsAddr:        env("METRICS_ADDR", DefaultMetricsAddr),
		RateLimit:          DefaultRateLimit,
		RateBurst:          DefaultRateBurst,
	}

	var err error
	if v := env("BREEZ_TOKEN_SKEW", ""); v != "" {
		if cfg.TokenSkew, err = time.ParseDuration(v); err != nil {
			return cfg, fmt.Errorf("invalid BREEZ_TOKEN_SKEW %q: %w", v, err)
		}
	}
	if v := env("BREEZ_RATE_LIMIT", ""); v != "" {
		if cfg.RateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return cfg, fmt.Errorf("invalid BREEZ_RATE_LIMIT %q: %w", v, err)
		}
	}
	if v := env("BREEZ_RATE_BURST", ""); v != "" {
		if cfg.RateBurst, err = strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("invalid BREEZ_RATE_BURST %q: %w", v, err)
		}
	}
	if cfg.SyncEnabled, err = envBool(env, "BREEZ_SYNC_ENABLED", true); err != nil {
		return cfg, err
	}
	if cfg.AllowWrites, err = envBool(env, "BREEZ_ALLOW_WRITES", false); err != nil {
		return cfg, err
	}
	if cfg.MetricsEnabled, err = envBool(env, "METRICS_ENABLED", true); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envBool(env func(key, def string) string, key string, def bool) (bool, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q (expected true/false)", key, v)
	}
	return b, nil
}

// ApplyDefaults fills values derived from other settings.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		addr := c.HTTPAddr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		c.BaseURL = "http://" + addr
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.DatabaseURL == "" && c.Storage == store.BackendSQLite {
		c.DatabaseURL = DefaultSQLitePath
	}
}

// RedirectURL is the OAuth redirect URL to register with Google.
func (c *Config) RedirectURL() string {
	return server.RedirectURL(c.BaseURL)
}

// TokenCipher returns the at-rest token cipher, or nil when no key is set.
func (c *Config) TokenCipher() (*store.TokenCipher, error) {
	return store.TokenCipherFromBase64(c.EncryptionKey)
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Validate checks the settings needed to serve.
func (c *Config) Validate() error {
	var errs []error
	if c.GoogleClientID == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID is required"))
	}
	if c.GoogleClientSecret == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_SECRET is required"))
	}
	if c.BaseURL != "" {
		if _, err := url.Parse(c.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid base URL: %w", err))
		}
	}
	if len(c.StateSecret) < server.MinStateSecretLength {
		errs = append(errs, fmt.Errorf("BREEZ_STATE_SECRET must be at least %d bytes", server.MinStateSecretLength))
	}
	switch c.Storage {
	case store.BackendMemory, store.BackendSQLite:
	case store.BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("BREEZ_DATABASE_URL is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage %q (supported: memory, sqlite, postgres)", c.Storage))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.TokenSkew < 0 {
		errs = append(errs, errors.New("token skew cannot be negative"))
	}
	if _, err := c.TokenCipher(); err != nil {
		errs = append(errs, fmt.Errorf("BREEZ_ENCRYPTION_KEY: %w", err))
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst < 1) {
		errs = append(errs, errors.New("rate limit cannot be negative and needs a burst of at least 1"))
	}
	switch c.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		errs = append(errs, fmt.Errorf("unsupported transport %q (supported: stdio, streamable-http)", c.Transport))
	}
	return errors.Join(errs...)
}
