package google

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/breezapp/breez/internal/instrumentation"
	"github.com/breezapp/breez/internal/logging"
)

// DefaultRevokeURL is Google's token revocation endpoint.
const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// DefaultHTTPTimeout bounds every call to the token and revocation endpoints.
const DefaultHTTPTimeout = 30 * time.Second

// OAuthConfig holds the OAuth client configuration.
type OAuthConfig struct {
	// ClientID is the Google OAuth client id.
	ClientID string

	// ClientSecret is the Google OAuth client secret.
	ClientSecret string

	// RedirectURL is the absolute URL of the callback endpoint. It must match
	// one of the redirect URIs registered for the client.
	RedirectURL string

	// Scopes requested on the consent screen (default: DefaultOAuthScopes)
	Scopes []string

	// Endpoint overrides Google's OAuth endpoints (tests)
	Endpoint oauth2.Endpoint

	// RevokeURL overrides the revocation endpoint (default: DefaultRevokeURL)
	RevokeURL string

	// HTTPClient is used for all calls to the provider
	// (default: client with DefaultHTTPTimeout)
	HTTPClient *http.Client

	// Metrics records provider call outcomes. Optional.
	Metrics *instrumentation.Metrics
}

// TokenResponse is the result of a code or refresh token exchange.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Expiry       time.Time

	// Raw is the provider's token response as far as it is exposed by the
	// token endpoint client: the standard fields plus scope and id_token.
	Raw map[string]any
}

// OAuthClient performs the OAuth2 authorization code flow against Google.
type OAuthClient struct {
	conf       *oauth2.Config
	httpClient *http.Client
	revokeURL  string
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewOAuthClient creates an OAuthClient. ClientID, ClientSecret and
// RedirectURL are required.
func NewOAuthClient(cfg OAuthConfig, logger *slog.Logger) (*OAuthClient, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("google client id cannot be empty")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("google client secret cannot be empty")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("oauth redirect url cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	if endpoint.AuthStyle == oauth2.AuthStyleAutoDetect {
		// Auto detection retries a failed exchange with the other style,
		// turning one rejected refresh into two calls.
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = DefaultRevokeURL
	}

	return &OAuthClient{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
		revokeURL:  revokeURL,
		metrics:    cfg.Metrics,
		logger:     logging.WithService(logger, instrumentation.ServiceOAuth),
		now:        time.Now,
	}, nil
}

// AuthorizationURL returns the consent screen URL for state. It always asks
// for offline access and forces the consent prompt so Google issues a
// refresh token on every authorization, including re-authorizations.
func (c *OAuthClient) AuthorizationURL(state string) string {
	return c.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// BuildAuthorizationURL returns Google's consent screen URL. The result is
// deterministic for fixed inputs.
func BuildAuthorizationURL(clientID, redirectURI string, scopes []string, state string) string {
	conf := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Scopes:      scopes,
		Endpoint:    google.Endpoint,
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ParseCallback extracts the authorization code from the callback query.
// An error parameter wins over a code.
func ParseCallback(q url.Values) (string, error) {
	if errCode := q.Get("error"); errCode != "" {
		return "", &OAuthCallbackError{Code: errCode, Description: q.Get("error_description")}
	}
	code := q.Get("code")
	if code == "" {
		return "", &MissingCodeError{}
	}
	return code, nil
}

func (c *OAuthClient) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// ExchangeCode trades an authorization code for tokens. It is a single POST
// with grant_type=authorization_code and is never retried.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if code == "" {
		return nil, &MissingCodeError{}
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange)
	defer span.End()
	start := time.Now()

	tok, err := c.conf.Exchange(c.clientContext(ctx), code)
	if err != nil {
		err = classifyTokenError("exchange authorization code", err, false)
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, err)
		c.logger.Warn("Authorization code exchange failed", logging.Err(err))
		return nil, err
	}

	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, instrumentation.StatusSuccess, time.Since(start))
	instrumentation.SetSpanSuccess(span)
	return c.tokenResponse(tok), nil
}

// RefreshAccessToken exchanges a refresh token for a new access token with
// grant_type=refresh_token. Failures are never retried.
func (c *OAuthClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh)
	defer span.End()
	start := time.Now()

	// An empty access token with a zero expiry forces the source to refresh.
	tok, err := c.conf.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		err = classifyTokenError("refresh access token", err, true)
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, instrumentation.StatusSuccess, time.Since(start))
	instrumentation.SetSpanSuccess(span)
	c.logger.Debug("Refreshed access token", slog.String("access_token", logging.SanitizeToken(tok.AccessToken)))
	return c.tokenResponse(tok), nil
}

// RevokeToken revokes token at Google. Callers treat failures as advisory.
func (c *OAuthClient) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRevoke)
	defer span.End()
	start := time.Now()

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = &TransportError{Op: "revoke token", Err: err}
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRevoke, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err = fmt.Errorf("token revocation returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRevoke, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, err)
		return err
	}

	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRevoke, instrumentation.StatusSuccess, time.Since(start))
	instrumentation.SetSpanSuccess(span)
	return nil
}

func (c *OAuthClient) tokenResponse(tok *oauth2.Token) *TokenResponse {
	expiresIn := tok.ExpiresIn
	if expiresIn == 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(tok.Expiry.Sub(c.now()).Round(time.Second) / time.Second)
	}

	raw := map[string]any{
		"access_token": tok.AccessToken,
		"token_type":   tok.Type(),
		"expires_in":   expiresIn,
	}
	if tok.RefreshToken != "" {
		raw["refresh_token"] = tok.RefreshToken
	}
	for _, key := range []string{"scope", "id_token"} {
		if v := tok.Extra(key); v != nil {
			raw[key] = v
		}
	}

	return &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresIn:    expiresIn,
		Expiry:       tok.Expiry,
		Raw:          raw,
	}
}
