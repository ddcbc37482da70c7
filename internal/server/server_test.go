package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breezapp/breez/internal/calendar"
	"github.com/breezapp/breez/internal/google"
	"github.com/breezapp/breez/internal/store"
	"github.com/breezapp/breez/internal/tasksync"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeOAuth records calls and returns canned responses.
type fakeOAuth struct {
	mu          sync.Mutex
	exchangeErr error
	refreshErr  error
	exchangeTok *google.TokenResponse
	refreshTok  *google.TokenResponse
	revoked     []string
	refreshedBy []string
}

func (f *fakeOAuth) AuthorizationURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (f *fakeOAuth) ExchangeCode(_ context.Context, code string) (*google.TokenResponse, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if f.exchangeTok != nil {
		return f.exchangeTok, nil
	}
	return &google.TokenResponse{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}, nil
}

func (f *fakeOAuth) RefreshAccessToken(_ context.Context, refreshToken string) (*google.TokenResponse, error) {
	f.mu.Lock()
	f.refreshedBy = append(f.refreshedBy, refreshToken)
	f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.refreshTok != nil {
		return f.refreshTok, nil
	}
	return &google.TokenResponse{
		AccessToken: "refreshed",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		Raw:         map[string]any{"access_token": "refreshed", "token_type": "Bearer", "expires_in": float64(3600)},
	}, nil
}

func (f *fakeOAuth) RevokeToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeOAuth) revokedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

// fakeCalendars implements CalendarService.
type fakeCalendars struct {
	ensureErr error
	listErr   error
	events    []calendar.EventSummary
	token     string
	calendar  string
}

func (f *fakeCalendars) EnsureCalendar(_ context.Context, summary, _ string) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	return "cal_" + summary, nil
}

func (f *fakeCalendars) ListUpcomingEvents(_ context.Context, calendarID string, _ time.Time, _ int64) ([]calendar.EventSummary, error) {
	f.calendar = calendarID
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

// passThroughTokens hands out the stored access token unless err is set.
type passThroughTokens struct {
	err error
}

func (p passThroughTokens) AccessToken(_ context.Context, in *store.Integration) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return in.AccessToken, nil
}

type fixture struct {
	srv       *Server
	handler   http.Handler
	store     *store.MemoryStore
	oauth     *fakeOAuth
	calendars *fakeCalendars
	states    *StateSigner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithTokens(t, passThroughTokens{})
}

func newFixtureWithTokens(t *testing.T, tokens google.TokenProvider) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	states, err := NewStateSigner([]byte(testSecret), 0)
	require.NoError(t, err)

	f := &fixture{
		store:     s,
		oauth:     &fakeOAuth{},
		calendars: &fakeCalendars{},
		states:    states,
	}

	orch := tasksync.NewOrchestrator(tasksync.Config{}, tasksync.Deps{Integrations: s, Tasks: s})
	srv, err := New(Config{BaseURL: "http://localhost:8080", CalendarName: "breez"}, Deps{
		Integrations: s,
		Tasks:        tasksync.NewService(s, orch, nil),
		OAuth:        f.oauth,
		Tokens:       tokens,
		Calendars: func(_ context.Context, accessToken string) (CalendarService, error) {
			f.calendars.token = accessToken
			return f.calendars, nil
		},
		States: states,
	})
	require.NoError(t, err)
	srv.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	f.srv = srv
	f.handler = srv.Handler()
	return f
}

// do sends a request as userID ("" for anonymous).
func (f *fixture) do(t *testing.T, method, target, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	if userID != "" {
		req.Header.Set(DefaultUserHeader, userID)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) link(t *testing.T, userID string, settings store.Settings) *store.Integration {
	t.Helper()
	in, err := f.store.LinkIntegration(context.Background(), &store.Integration{
		UserID:       userID,
		Provider:     store.ProviderGoogleCalendar,
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
		Settings:     settings,
	})
	require.NoError(t, err)
	return in
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "valid HTTPS URL", baseURL: "https://breez.example.com"},
		{name: "valid HTTP localhost", baseURL: "http://localhost:8080"},
		{name: "valid HTTP 127.0.0.1", baseURL: "http://127.0.0.1:8080"},
		{name: "valid HTTP ::1 (IPv6 loopback)", baseURL: "http://[::1]:8080"},
		{name: "invalid HTTP non-localhost", baseURL: "http://breez.example.com", wantErr: true},
		{name: "invalid HTTP with localhost substring", baseURL: "http://localhost.example.com", wantErr: true},
		{name: "invalid HTTP with 127.0.0.1 in domain", baseURL: "http://127.0.0.1.example.com", wantErr: true},
		{name: "empty URL", baseURL: "", wantErr: true},
		{name: "invalid scheme", baseURL: "ftp://breez.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	s := store.NewMemoryStore()
	states, err := NewStateSigner([]byte(testSecret), 0)
	require.NoError(t, err)
	service := tasksync.NewService(s, tasksync.NewOrchestrator(tasksync.Config{}, tasksync.Deps{}), nil)

	t.Run("defaults", func(t *testing.T) {
		srv, err := New(Config{BaseURL: "https://breez.example.com/"}, Deps{
			Integrations: s, Tasks: service, OAuth: &fakeOAuth{}, Tokens: passThroughTokens{}, States: states,
		})
		require.NoError(t, err)
		assert.Equal(t, "https://breez.example.com", srv.cfg.BaseURL)
		assert.Equal(t, "https://breez.example.com/integration", srv.cfg.StatusURL)
		assert.Equal(t, "/login", srv.cfg.LoginURL)
		assert.Equal(t, calendar.DefaultCalendarSummary, srv.cfg.CalendarName)
		assert.Equal(t, "UTC", srv.cfg.TimeZone)
		assert.Equal(t, store.ProviderGoogleCalendar, srv.cfg.Provider)
	})

	t.Run("missing dependency", func(t *testing.T) {
		_, err := New(Config{BaseURL: "https://breez.example.com"}, Deps{Integrations: s, Tasks: service})
		assert.ErrorContains(t, err, "oauth client is required")
	})

	t.Run("insecure base URL", func(t *testing.T) {
		_, err := New(Config{BaseURL: "http://breez.example.com"}, Deps{})
		assert.ErrorContains(t, err, "HTTPS")
	})
}

func TestRedirectURL(t *testing.T) {
	assert.Equal(t, "https://breez.example.com/callback", RedirectURL("https://breez.example.com/"))
}

func TestExpiryOf(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(time.Hour), expiryOf(&google.TokenResponse{ExpiresIn: 3600}, now))

	abs := time.Date(2024, 6, 1, 15, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, abs.UTC(), expiryOf(&google.TokenResponse{ExpiresIn: 3600, Expiry: abs}, now))
}

func TestRequireUser(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/integration", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodGet, "/integration", "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/integration", "user-1", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "HSTS only over HTTPS")
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	assert.Equal(t, http.StatusOK, rw.statusCode)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Same(t, rec, rw.Unwrap())
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/nope", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/tasks", "user-1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	f := newFixture(t)

	errCh := make(chan error, 1)
	go func() { errCh <- f.srv.Start("127.0.0.1:0") }()

	require.Eventually(t, func() bool { return f.srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + f.srv.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.srv.Shutdown(ctx))
	assert.True(t, errors.Is(<-errCh, http.ErrServerClosed))
	assert.False(t, f.srv.health.IsReady())
}

func TestMCPContextCarriesUser(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
	req.Header.Set(DefaultUserHeader, "user-1")
	ctx := f.srv.mcpContext(context.Background(), req)
	userID, ok := UserFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", userID)

	req = httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
	_, ok = UserFromContext(f.srv.mcpContext(context.Background(), req))
	assert.False(t, ok)
}
