package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/metrics"
)

// DefaultMargin is how long before expiry a token is refreshed.
const DefaultMargin = 60 * time.Second

// DefaultLifetime is assumed when the token endpoint omits expires_in.
const DefaultLifetime = 3600 * time.Second

// ErrRefreshFailed is matched by every *RefreshError.
var ErrRefreshFailed = errors.New("token refresh failed")

// RefreshError reports a failed refresh of one stored token.
type RefreshError struct {
	OwnerID  int64
	Provider string
	Err      error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s: %s token of user %d: %v", ErrRefreshFailed, e.Provider, e.OwnerID, e.Err)
}

func (e *RefreshError) Unwrap() []error {
	return []error{ErrRefreshFailed, e.Err}
}

// IsRefreshFailed returns true if err is or wraps a refresh failure.
func IsRefreshFailed(err error) bool {
	return errors.Is(err, ErrRefreshFailed)
}

// Store persists refreshed tokens. *store.Store and *store.Tx satisfy it.
type Store interface {
	PutToken(ctx context.Context, tok ir.OAuthToken) error
}

// Clock supplies the instant expiry is measured against.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Manager refreshes expiring OAuth tokens.
//
// Thread-safety: a Manager is immutable after construction and safe for
// concurrent use. Concurrent refreshes of the same token are not coalesced;
// the last write wins.
type Manager struct {
	store     Store
	providers map[string]*oauth2.Config
	margin    time.Duration
	clock     Clock
	client    *http.Client
	metrics   *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithProvider registers the OAuth client used to refresh tokens of a
// provider. Only Endpoint.TokenURL, ClientID, ClientSecret and AuthStyle are
// used.
func WithProvider(provider string, cfg *oauth2.Config) Option {
	return func(m *Manager) {
		m.providers[provider] = cfg
	}
}

// WithMargin sets how long before expiry a token is considered stale.
func WithMargin(d time.Duration) Option {
	return func(m *Manager) {
		m.margin = d
	}
}

// WithClock sets the clock expiry is measured against.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithHTTPClient sets the HTTP client used for token exchanges.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.client = c
	}
}

// WithMetrics enables refresh counters.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager persisting refreshed tokens to s.
func NewManager(s Store, opts ...Option) *Manager {
	m := &Manager{
		store:     s,
		providers: make(map[string]*oauth2.Config),
		margin:    DefaultMargin,
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// With returns a copy of m that persists to s instead. Used to refresh
// inside the transaction of a running pipeline.
func (m *Manager) With(s Store) *Manager {
	cp := *m
	cp.store = s
	return &cp
}

// Stale reports whether tok must be refreshed before use at now.
func (m *Manager) Stale(tok ir.OAuthToken, now time.Time) bool {
	if tok.Provider == ir.ProviderGitHub || !tok.Expires() {
		return false
	}
	return !now.Add(m.margin).Before(tok.ExpiresAt)
}

// EnsureFresh returns tok unchanged when it is still valid, and otherwise
// exchanges its refresh token and persists the result. A refresh keeps the
// previous refresh token, scope and token type when the provider omits them.
func (m *Manager) EnsureFresh(ctx context.Context, tok ir.OAuthToken) (ir.OAuthToken, error) {
	now := m.clock.Now()
	if !m.Stale(tok, now) {
		return tok, nil
	}

	refreshed, err := m.refresh(ctx, tok, now)
	m.metrics.ObserveRefresh(tok.Provider, err)
	if err != nil {
		slog.Warn("oauth token refresh failed",
			"owner_id", tok.OwnerID,
			"provider", tok.Provider,
			"error", err,
		)
		return tok, &RefreshError{OwnerID: tok.OwnerID, Provider: tok.Provider, Err: err}
	}

	slog.Info("oauth token refreshed",
		"owner_id", tok.OwnerID,
		"provider", tok.Provider,
		"expires_at", refreshed.ExpiresAt,
	)
	return refreshed, nil
}

func (m *Manager) refresh(ctx context.Context, tok ir.OAuthToken, now time.Time) (ir.OAuthToken, error) {
	if tok.RefreshToken == "" {
		return tok, errors.New("no refresh token stored")
	}
	cfg, ok := m.providers[tok.Provider]
	if !ok {
		return tok, fmt.Errorf("no oauth client configured for provider %q", tok.Provider)
	}

	if m.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	}

	// An empty access token forces the source to hit the token endpoint.
	next, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		return tok, err
	}

	out := tok
	out.AccessToken = next.AccessToken
	if next.RefreshToken != "" {
		out.RefreshToken = next.RefreshToken
	}
	if next.TokenType != "" {
		out.TokenType = next.TokenType
	}
	if scope, _ := next.Extra("scope").(string); scope != "" {
		out.Scope = scope
	}
	out.ExpiresAt = now.Add(lifetime(next))

	if err := m.store.PutToken(ctx, out); err != nil {
		return tok, fmt.Errorf("persist refreshed token: %w", err)
	}
	return out, nil
}

// lifetime recovers expires_in from the absolute expiry the oauth2 package
// computed against the system clock.
func lifetime(t *oauth2.Token) time.Duration {
	if t.Expiry.IsZero() {
		return DefaultLifetime
	}
	d := time.Until(t.Expiry).Round(time.Second)
	if d <= 0 {
		return DefaultLifetime
	}
	return d
}
