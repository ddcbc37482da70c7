// Package google implements the OAuth2 side of the Google Calendar integration.
//
// OAuthClient builds the consent URL and performs the authorization code and
// refresh token exchanges against Google's token endpoint. It never touches
// storage.
//
// StoreTokenProvider is the token validity guard: it returns a stored access
// token while it is comfortably within its lifetime and refreshes it through
// the OAuthClient otherwise, persisting the result with a conditional write.
// Concurrent refreshes of the same integration are coalesced.
//
// All failures are typed so callers can tell an expired grant
// (ReauthorizationRequiredError) from a rejected refresh (TokenRefreshError)
// or a network failure (TransportError) with errors.As.
package google
