package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/breezapp/breez/internal/calendar"
	"github.com/breezapp/breez/internal/google"
	"github.com/breezapp/breez/internal/instrumentation"
	"github.com/breezapp/breez/internal/logging"
	"github.com/breezapp/breez/internal/store"
)

// Callback failure reasons passed to the status page as ?error=.
const (
	reasonMissingCode         = "missing_code"
	reasonInvalidState        = "invalid_state"
	reasonUnauthenticated     = "unauthenticated"
	reasonExchangeFailed      = "exchange_failed"
	reasonCalendarSetupFailed = "calendar_setup_failed"
	reasonStorageFailed       = "storage_failed"
)

// handleAuthorize sends the signed-in user to Google's consent screen.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	userID := s.users.ResolveUser(r)
	if userID == "" {
		http.Redirect(w, r, s.cfg.LoginURL, http.StatusFound)
		return
	}

	state := s.states.Sign(userID)
	s.logger.Info("Redirecting to Google for authorization", logging.UserHash(userID))
	http.Redirect(w, r, s.oauth.AuthorizationURL(state), http.StatusFound)
}

// handleCallback completes the consent flow: it exchanges the code,
// provisions the dedicated calendar and links the integration.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	code, err := google.ParseCallback(query)
	if err != nil {
		var cbErr *google.OAuthCallbackError
		if errors.As(err, &cbErr) {
			s.logger.Warn("Google OAuth error", "error", cbErr.Code, "description", cbErr.Description)
			s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultDenied)
			s.redirectStatus(w, r, cbErr.Code)
			return
		}
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.redirectStatus(w, r, reasonMissingCode)
		return
	}

	userID := s.users.ResolveUser(r)
	if userID == "" {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.redirectStatus(w, r, reasonUnauthenticated)
		return
	}

	stateUser, err := s.states.Verify(query.Get("state"))
	if err != nil || stateUser != userID {
		s.logger.Warn("Invalid or expired state", logging.UserHash(userID))
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.redirectStatus(w, r, reasonInvalidState)
		return
	}

	tok, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.Error("Failed to exchange code for Google token", logging.UserHash(userID), logging.Err(err))
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.redirectStatus(w, r, reasonExchangeFailed)
		return
	}

	cal, err := s.calendars(ctx, tok.AccessToken)
	var calendarID string
	if err == nil {
		calendarID, err = cal.EnsureCalendar(ctx, s.cfg.CalendarName, s.cfg.TimeZone)
	}
	if err != nil {
		s.logger.Error("Failed to set up dedicated calendar", logging.UserHash(userID), logging.Err(err))
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.redirectStatus(w, r, reasonCalendarSetupFailed)
		return
	}

	in, err := s.integrations.LinkIntegration(ctx, &store.Integration{
		UserID:       userID,
		Provider:     s.cfg.Provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiryOf(tok, s.now()),
		Settings:     store.Settings{store.SettingCalendarID: calendarID},
	})
	if err != nil {
		s.logger.Error("Failed to store integration", logging.UserHash(userID), logging.Err(err))
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.redirectStatus(w, r, reasonStorageFailed)
		return
	}

	if tok.RefreshToken == "" && in.RefreshToken == "" {
		s.logger.Warn("Google issued no refresh token; the integration will need re-authorization on expiry",
			logging.IntegrationID(in.ID))
	}
	s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	s.audit.Log(ctx, instrumentation.AuditRecord{
		Event:         instrumentation.EventIntegrationLinked,
		UserID:        userID,
		Provider:      in.Provider,
		IntegrationID: in.ID,
	})
	s.logger.Info("Google Calendar linked", logging.IntegrationID(in.ID), logging.CalendarID(calendarID))

	q := url.Values{}
	q.Set("success", "true")
	s.redirectTo(w, r, q)
}

// redirectStatus sends the browser to the status page with ?error=reason.
func (s *Server) redirectStatus(w http.ResponseWriter, r *http.Request, reason string) {
	q := url.Values{}
	q.Set("error", reason)
	s.redirectTo(w, r, q)
}

func (s *Server) redirectTo(w http.ResponseWriter, r *http.Request, params url.Values) {
	target, err := url.Parse(s.cfg.StatusURL)
	if err != nil {
		s.writeError(w, "server_error", "invalid status URL", http.StatusInternalServerError)
		return
	}
	q := target.Query()
	for k, v := range params {
		q[k] = v
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// handleDisconnect revokes the grant at Google on a best effort basis and
// deletes the integration.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserFromContext(ctx)

	in, err := s.integrations.GetIntegration(ctx, userID, s.cfg.Provider)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	if err != nil {
		s.logger.Error("Failed to load integration", logging.UserHash(userID), logging.Err(err))
		s.writeError(w, "server_error", "failed to load integration", http.StatusInternalServerError)
		return
	}

	// Revoking the refresh token ends the whole grant.
	token := in.RefreshToken
	if token == "" {
		token = in.AccessToken
	}
	if err := s.oauth.RevokeToken(ctx, token); err != nil {
		s.logger.Warn("Failed to revoke token at Google", logging.IntegrationID(in.ID), logging.Err(err))
	}

	if err := s.integrations.DeleteIntegration(ctx, userID, s.cfg.Provider); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("Failed to delete integration", logging.IntegrationID(in.ID), logging.Err(err))
		s.writeError(w, "server_error", "failed to delete integration", http.StatusInternalServerError)
		return
	}

	s.audit.Log(ctx, instrumentation.AuditRecord{
		Event:         instrumentation.EventIntegrationDisconnected,
		UserID:        userID,
		Provider:      in.Provider,
		IntegrationID: in.ID,
	})
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// refreshRequest is the POST /token/refresh body.
type refreshRequest struct {
	IntegrationID string `json:"integrationId"`
	RefreshToken  string `json:"refreshToken"`
}

// handleTokenRefresh refreshes an integration's access token and returns the
// provider's token response.
func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserFromContext(ctx)

	var req refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeError(w, "invalid_request", "request body must be JSON", http.StatusBadRequest)
		return
	}
	if req.IntegrationID == "" {
		s.writeError(w, "invalid_request", "integrationId is required", http.StatusBadRequest)
		return
	}

	in, err := s.integrations.GetIntegrationByID(ctx, req.IntegrationID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && in.UserID != userID) {
		s.writeError(w, "not_found", "integration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Failed to load integration", logging.IntegrationID(req.IntegrationID), logging.Err(err))
		s.writeError(w, "server_error", "failed to load integration", http.StatusInternalServerError)
		return
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken = in.RefreshToken
	}
	if refreshToken == "" {
		s.writeError(w, "invalid_request", "no refresh token available", http.StatusBadRequest)
		return
	}

	tok, err := s.oauth.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		s.writeProviderError(w, err)
		return
	}
	s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	if err := s.integrations.UpdateToken(ctx, in.ID, tok.AccessToken, expiryOf(tok, s.now())); err != nil {
		s.logger.Error("Failed to persist refreshed token", logging.IntegrationID(in.ID), logging.Err(err))
		s.writeError(w, "server_error", "failed to store refreshed token", http.StatusInternalServerError)
		return
	}
	s.audit.Log(ctx, instrumentation.AuditRecord{
		Event:         instrumentation.EventTokenRefreshed,
		UserID:        userID,
		Provider:      in.Provider,
		IntegrationID: in.ID,
	})

	s.writeJSON(w, http.StatusOK, tok.Raw)
}

// writeProviderError relays a token endpoint failure with its status.
func (s *Server) writeProviderError(w http.ResponseWriter, err error) {
	var refreshErr *google.TokenRefreshError
	if errors.As(err, &refreshErr) {
		status := refreshErr.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		code := refreshErr.Code
		if code == "" {
			code = "refresh_failed"
		}
		s.writeError(w, code, refreshErr.Description, status)
		return
	}
	if google.IsTransport(err) {
		s.writeError(w, "upstream_unavailable", err.Error(), http.StatusBadGateway)
		return
	}
	s.writeError(w, "refresh_failed", err.Error(), http.StatusBadGateway)
}

// IntegrationStatus is the GET /integration response. It never carries tokens.
type IntegrationStatus struct {
	Connected     bool       `json:"connected"`
	Provider      string     `json:"provider"`
	IntegrationID string     `json:"integrationId,omitempty"`
	CalendarID    string     `json:"calendarId,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	CanRefresh    bool       `json:"canRefresh,omitempty"`
	SyncEnabled   bool       `json:"syncEnabled"`
}

// LookupIntegrationStatus reports the user's integration with provider.
// A missing integration is not an error.
func LookupIntegrationStatus(ctx context.Context, integrations store.IntegrationStore, userID, provider string) (IntegrationStatus, error) {
	in, err := integrations.GetIntegration(ctx, userID, provider)
	if errors.Is(err, store.ErrNotFound) {
		return IntegrationStatus{Provider: provider}, nil
	}
	if err != nil {
		return IntegrationStatus{}, err
	}

	expiresAt := in.ExpiresAt
	return IntegrationStatus{
		Connected:     true,
		Provider:      in.Provider,
		IntegrationID: in.ID,
		CalendarID:    in.CalendarID(),
		ExpiresAt:     &expiresAt,
		CanRefresh:    in.RefreshToken != "",
	}, nil
}

func (s *Server) handleIntegration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserFromContext(ctx)

	status, err := LookupIntegrationStatus(ctx, s.integrations, userID, s.cfg.Provider)
	if err != nil {
		s.writeError(w, "server_error", "failed to load integration", http.StatusInternalServerError)
		return
	}
	status.SyncEnabled = s.tasks.SyncEnabled()
	s.writeJSON(w, http.StatusOK, status)
}

// handleEvents lists the next upcoming events of the dedicated calendar.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserFromContext(ctx)

	in, err := s.integrations.GetIntegration(ctx, userID, s.cfg.Provider)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, "not_connected", "Google Calendar is not connected", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeError(w, "server_error", "failed to load integration", http.StatusInternalServerError)
		return
	}

	token, err := s.tokens.AccessToken(ctx, in)
	if err != nil {
		s.writeCalendarError(w, err)
		return
	}
	calendarID := in.CalendarID()
	if calendarID == "" {
		s.writeCalendarError(w, &calendar.MissingCalendarIDError{IntegrationID: in.ID})
		return
	}

	cal, err := s.calendars(ctx, token)
	if err != nil {
		s.writeCalendarError(w, err)
		return
	}
	events, err := cal.ListUpcomingEvents(ctx, calendarID, s.now(), DefaultUpcomingEvents)
	if err != nil {
		s.writeCalendarError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleRepairCalendar provisions the dedicated calendar again for an
// existing integration and records its id. It recovers integrations whose
// calendarId was lost or whose calendar was deleted at Google, without a
// new consent round trip.
func (s *Server) handleRepairCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserFromContext(ctx)

	in, err := s.integrations.GetIntegration(ctx, userID, s.cfg.Provider)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, "not_connected", "Google Calendar is not connected", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeError(w, "server_error", "failed to load integration", http.StatusInternalServerError)
		return
	}

	token, err := s.tokens.AccessToken(ctx, in)
	if err != nil {
		s.writeCalendarError(w, err)
		return
	}
	cal, err := s.calendars(ctx, token)
	if err != nil {
		s.writeCalendarError(w, err)
		return
	}
	calendarID, err := cal.EnsureCalendar(ctx, s.cfg.CalendarName, s.cfg.TimeZone)
	if err != nil {
		s.writeCalendarError(w, err)
		return
	}

	if err := s.integrations.UpdateSettings(ctx, in.ID, store.Settings{store.SettingCalendarID: calendarID}); err != nil {
		s.logger.Error("Failed to store calendar id", logging.IntegrationID(in.ID), logging.Err(err))
		s.writeError(w, "server_error", "failed to store calendar id", http.StatusInternalServerError)
		return
	}
	if previous := in.CalendarID(); previous != calendarID {
		s.logger.Info("Dedicated calendar repaired",
			logging.IntegrationID(in.ID), logging.CalendarID(calendarID), "previous_calendar_id", previous)
	}

	status, err := LookupIntegrationStatus(ctx, s.integrations, userID, s.cfg.Provider)
	if err != nil {
		s.writeError(w, "server_error", "failed to load integration", http.StatusInternalServerError)
		return
	}
	status.SyncEnabled = s.tasks.SyncEnabled()
	s.writeJSON(w, http.StatusOK, status)
}

// writeCalendarError maps token and calendar failures to HTTP responses.
func (s *Server) writeCalendarError(w http.ResponseWriter, err error) {
	var (
		reauth     *google.ReauthorizationRequiredError
		refreshErr *google.TokenRefreshError
		missingCal *calendar.MissingCalendarIDError
		apiErr     *calendar.CalendarAPIError
	)
	switch {
	case errors.As(err, &reauth):
		s.writeError(w, "reauthorization_required", err.Error(), http.StatusUnauthorized)
	case errors.As(err, &refreshErr) && refreshErr.RequiresReauthorization():
		s.writeError(w, "reauthorization_required", err.Error(), http.StatusUnauthorized)
	case errors.As(err, &missingCal):
		s.writeError(w, "missing_calendar_id", err.Error(), http.StatusConflict)
	case errors.As(err, &apiErr):
		s.writeError(w, "calendar_api_error", err.Error(), http.StatusBadGateway)
	case google.IsTransport(err):
		s.writeError(w, "upstream_unavailable", err.Error(), http.StatusBadGateway)
	default:
		s.logger.Error("Calendar request failed", logging.Err(err))
		s.writeError(w, "server_error", "calendar request failed", http.StatusInternalServerError)
	}
}
