package google

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/breezapp/breez/internal/instrumentation"
	"github.com/breezapp/breez/internal/logging"
	"github.com/breezapp/breez/internal/store"
)

// DefaultExpirySkew is the margin before expiry at which a token is treated
// as expired, so it cannot lapse in the middle of a calendar call.
const DefaultExpirySkew = 5 * time.Minute

// TokenProvider returns a usable access token for an integration.
type TokenProvider interface {
	AccessToken(ctx context.Context, in *store.Integration) (string, error)
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// TokenStore is the subset of the integration store the guard writes to.
type TokenStore interface {
	GetIntegrationByID(ctx context.Context, id string) (*store.Integration, error)
	UpdateTokenIfExpiresBefore(ctx context.Context, id, accessToken string, expiresAt, before time.Time) (bool, error)
}

// StoreTokenProvider is the TokenProvider backed by an integration store.
type StoreTokenProvider struct {
	refresher Refresher
	store     TokenStore
	skew      time.Duration
	now       func() time.Time
	group     singleflight.Group
	metrics   *instrumentation.Metrics
	audit     *instrumentation.AuditLogger
	logger    *slog.Logger
}

var _ TokenProvider = (*StoreTokenProvider)(nil)

// TokenProviderOption configures a StoreTokenProvider.
type TokenProviderOption func(*StoreTokenProvider)

// WithExpirySkew sets the expiry safety margin.
func WithExpirySkew(skew time.Duration) TokenProviderOption {
	return func(p *StoreTokenProvider) {
		if skew >= 0 {
			p.skew = skew
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenProviderOption {
	return func(p *StoreTokenProvider) {
		p.now = now
	}
}

// WithMetrics records refresh outcomes.
func WithMetrics(m *instrumentation.Metrics) TokenProviderOption {
	return func(p *StoreTokenProvider) {
		p.metrics = m
	}
}

// WithAudit emits audit records for refreshes and lapsed grants.
func WithAudit(a *instrumentation.AuditLogger) TokenProviderOption {
	return func(p *StoreTokenProvider) {
		p.audit = a
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TokenProviderOption {
	return func(p *StoreTokenProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewStoreTokenProvider creates a StoreTokenProvider.
func NewStoreTokenProvider(refresher Refresher, tokens TokenStore, opts ...TokenProviderOption) *StoreTokenProvider {
	p := &StoreTokenProvider{
		refresher: refresher,
		store:     tokens,
		skew:      DefaultExpirySkew,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.WithOperation(p.logger, "token_guard")
	return p
}

// isExpired reports whether expiresAt falls within skew of now.
func isExpired(expiresAt, now time.Time, skew time.Duration) bool {
	return !expiresAt.After(now.Add(skew))
}

type refreshed struct {
	accessToken string
	expiresAt   time.Time
}

// AccessToken returns in's access token, refreshing it first when it is
// within the skew of expiry. A refresh updates in and the store; concurrent
// refreshes of the same integration share one provider call.
func (p *StoreTokenProvider) AccessToken(ctx context.Context, in *store.Integration) (string, error) {
	if !isExpired(in.ExpiresAt, p.now(), p.skew) {
		return in.AccessToken, nil
	}

	if in.RefreshToken == "" {
		p.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultNoRefresh)
		err := &ReauthorizationRequiredError{IntegrationID: in.ID}
		p.audit.Log(ctx, instrumentation.AuditRecord{
			Event:         instrumentation.EventReauthorizationRequired,
			UserID:        in.UserID,
			Provider:      in.Provider,
			IntegrationID: in.ID,
			Err:           err,
		})
		return "", err
	}

	ch := p.group.DoChan(in.ID, func() (any, error) {
		// The refresh outlives a cancelled caller so waiters sharing it
		// still get a result and the new token is still persisted.
		return p.refresh(context.WithoutCancel(ctx), in)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", &TransportError{Op: "refresh access token", Err: ctx.Err()}
	}
	if res.Err != nil {
		return "", res.Err
	}

	r := res.Val.(refreshed)
	shared := res.Shared
	in.AccessToken = r.accessToken
	in.ExpiresAt = r.expiresAt
	if shared {
		p.logger.Debug("Shared in-flight token refresh", logging.IntegrationID(in.ID))
	}
	return r.accessToken, nil
}

func (p *StoreTokenProvider) refresh(ctx context.Context, in *store.Integration) (refreshed, error) {
	tok, err := p.refresher.RefreshAccessToken(ctx, in.RefreshToken)
	if err != nil {
		p.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		p.logger.Warn("Token refresh failed", logging.IntegrationID(in.ID), logging.UserHash(in.UserID), logging.Err(err))
		return refreshed{}, err
	}
	p.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = p.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	r := refreshed{accessToken: tok.AccessToken, expiresAt: expiresAt.UTC()}

	updated, err := p.store.UpdateTokenIfExpiresBefore(ctx, in.ID, r.accessToken, r.expiresAt, r.expiresAt)
	if err != nil {
		// The new token is still valid for this request; the next caller
		// refreshes again.
		p.logger.Warn("Failed to persist refreshed token", logging.IntegrationID(in.ID), logging.Err(err))
		return r, nil
	}

	if !updated {
		current, err := p.store.GetIntegrationByID(ctx, in.ID)
		if err != nil {
			return r, nil
		}
		if current.ExpiresAt.After(r.expiresAt) {
			p.logger.Debug("Kept fresher stored token", logging.IntegrationID(in.ID))
			return refreshed{accessToken: current.AccessToken, expiresAt: current.ExpiresAt}, nil
		}
		return r, nil
	}

	p.audit.Log(ctx, instrumentation.AuditRecord{
		Event:         instrumentation.EventTokenRefreshed,
		UserID:        in.UserID,
		Provider:      in.Provider,
		IntegrationID: in.ID,
	})
	p.logger.Debug("Refreshed and stored access token",
		logging.IntegrationID(in.ID),
		slog.Time("expires_at", r.expiresAt))
	return r, nil
}
