package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"golang.org/x/oauth2"
)

// MissingCodeError is returned when the authorization callback carries
// neither a code nor an error.
type MissingCodeError struct{}

func (e *MissingCodeError) Error() string {
	return "authorization callback is missing the code parameter"
}

// OAuthCallbackError is returned when the provider redirected back with an
// error instead of a code, e.g. access_denied.
type OAuthCallbackError struct {
	Code        string
	Description string
}

func (e *OAuthCallbackError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
	}
	return "authorization failed: " + e.Code
}

// OAuthExchangeError is a non-2xx response to the authorization code exchange.
// Body holds the provider's raw error payload.
type OAuthExchangeError struct {
	Status      int
	Body        string
	Code        string
	Description string
}

func (e *OAuthExchangeError) Error() string {
	return fmt.Sprintf("code exchange failed with status %d: %s", e.Status, describe(e.Code, e.Description, e.Body))
}

// TokenRefreshError is a non-2xx response to a refresh token exchange.
type TokenRefreshError struct {
	Status      int
	Body        string
	Code        string
	Description string
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed with status %d: %s", e.Status, describe(e.Code, e.Description, e.Body))
}

// RequiresReauthorization reports whether the refresh token itself was
// rejected, so only a new interactive grant can recover.
func (e *TokenRefreshError) RequiresReauthorization() bool {
	return e.Code == "invalid_grant" || e.Code == "unauthorized_client"
}

// ReauthorizationRequiredError is returned when a token is expired and the
// integration holds no refresh token.
type ReauthorizationRequiredError struct {
	IntegrationID string
}

func (e *ReauthorizationRequiredError) Error() string {
	return fmt.Sprintf("integration %s needs to be re-authorized: access token expired and no refresh token is stored", e.IntegrationID)
}

// TransportError wraps a network level failure: timeout, DNS, connection
// reset or context cancellation. Callers may retry it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a network level failure.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func describe(code, description, body string) string {
	switch {
	case code != "" && description != "":
		return code + ": " + description
	case code != "":
		return code
	case body != "":
		return body
	default:
		return "no details"
	}
}

// classifyTokenError maps an x/oauth2 error to the package's error types.
// refresh selects TokenRefreshError over OAuthExchangeError.
func classifyTokenError(op string, err error, refresh bool) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if refresh {
			return &TokenRefreshError{Status: status, Body: string(re.Body), Code: re.ErrorCode, Description: re.ErrorDescription}
		}
		return &OAuthExchangeError{Status: status, Body: string(re.Body), Code: re.ErrorCode, Description: re.ErrorDescription}
	}
	if IsTransport(err) {
		return &TransportError{Op: op, Err: err}
	}
	// A 2xx response that could not be used, e.g. no access_token.
	if refresh {
		return &TokenRefreshError{Description: err.Error()}
	}
	return &OAuthExchangeError{Description: err.Error()}
}
