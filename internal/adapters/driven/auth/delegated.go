package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft"
	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driven"
	"github.com/custodia-labs/graphrelay/internal/logger"
	"github.com/custodia-labs/graphrelay/internal/metrics"
)

// Ensure Delegated implements the interface.
var _ driven.DelegatedTokenProvider = (*Delegated)(nil)

// DelegatedConfig configures the device flow and refresh grant.
type DelegatedConfig struct {
	Endpoint oauth2.Endpoint
	TenantID string
	ClientID string
	Scopes   []string
	// GraphBaseURL is used to look up the signed-in user when the provider
	// returns no id_token.
	GraphBaseURL string
	// Timeout bounds each exchange with the identity provider. Device
	// polling is bounded by the challenge expiry instead.
	Timeout time.Duration
	// Leeway treats a token as expired this long before its expiry.
	Leeway time.Duration
}

// Delegated manages the signed-in user session. Session state is loaded from
// the store once and written back after every change. A single mutex guards
// the state; the device flow polls outside of it so token reads are not
// blocked by a pending login.
type Delegated struct {
	oauth    *oauth2.Config
	refresh  *microsoft.RefreshGrant
	store    driven.SessionStore
	tenantID string
	graphURL string
	scopes   []string
	client   *http.Client
	timeout  time.Duration
	leeway   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	state *domain.SessionState

	loginMu   sync.Mutex
	loggingIn bool
	pending   *domain.DeviceChallenge
}

// NewDelegated creates a delegated authenticator and loads the persisted
// session. A store that cannot be read is fatal.
func NewDelegated(ctx context.Context, cfg DelegatedConfig, store driven.SessionStore, opts ...Option) (*Delegated, error) {
	if cfg.Endpoint.TokenURL == "" || cfg.Endpoint.DeviceAuthURL == "" || cfg.ClientID == "" {
		return nil, errors.New("delegated auth requires token and device endpoints and a client id")
	}
	if store == nil {
		return nil, errors.New("delegated auth requires a session store")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	scopes := microsoft.DelegatedScopes(cfg.Scopes)

	o := applyOptions(opts)

	state, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	d := &Delegated{
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: cfg.Endpoint,
			Scopes:   scopes,
		},
		refresh: &microsoft.RefreshGrant{
			TokenURL:   cfg.Endpoint.TokenURL,
			ClientID:   cfg.ClientID,
			Scopes:     scopes,
			HTTPClient: o.client,
			Now:        o.now,
		},
		store:    store,
		tenantID: cfg.TenantID,
		graphURL: cfg.GraphBaseURL,
		scopes:   scopes,
		client:   o.client,
		timeout:  cfg.Timeout,
		leeway:   cfg.Leeway,
		now:      o.now,
		state:    state,
	}

	if acct, ok := state.Canonical(); ok {
		logger.Debug("auth: loaded delegated session for %s from %s", acct.Username, store.Path())
	}
	return d, nil
}

// StartDeviceLogin runs the device authorization flow. notify is called with
// the challenge as soon as the provider issues it; the call then blocks
// polling until the user completes sign-in, the challenge expires or ctx is
// cancelled. Only one login may run at a time.
func (d *Delegated) StartDeviceLogin(ctx context.Context, notify func(domain.DeviceChallenge)) (*domain.Account, error) {
	if err := d.beginLogin(); err != nil {
		return nil, err
	}
	defer d.endLogin()

	acct, err := d.deviceLogin(ctx, notify)
	switch {
	case err == nil:
		metrics.DeviceLogins.WithLabelValues("success").Inc()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.DeviceLogins.WithLabelValues("abandoned").Inc()
	default:
		metrics.DeviceLogins.WithLabelValues("failure").Inc()
	}
	return acct, err
}

func (d *Delegated) beginLogin() error {
	d.loginMu.Lock()
	defer d.loginMu.Unlock()

	if d.loggingIn {
		return domain.ErrDeviceLoginInProgress
	}
	d.loggingIn = true
	return nil
}

func (d *Delegated) endLogin() {
	d.loginMu.Lock()
	defer d.loginMu.Unlock()

	d.loggingIn = false
	d.pending = nil
}

func (d *Delegated) deviceLogin(ctx context.Context, notify func(domain.DeviceChallenge)) (*domain.Account, error) {
	authCtx, cancel := context.WithTimeout(context.WithValue(ctx, oauth2.HTTPClient, d.client), d.timeout)
	resp, err := d.oauth.DeviceAuth(authCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("device login: %w", ctx.Err())
		}
		return nil, toAuthError("device_authorization", err)
	}

	challenge := domain.DeviceChallenge{
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		Message: fmt.Sprintf("To sign in, open %s and enter the code %s to authenticate.",
			resp.VerificationURI, resp.UserCode),
		ExpiresAt: resp.Expiry,
		Interval:  time.Duration(resp.Interval) * time.Second,
		StartedAt: d.now(),
	}

	d.loginMu.Lock()
	d.pending = &challenge
	d.loginMu.Unlock()

	logger.Info("auth: device login started, code %s expires %s", challenge.UserCode,
		challenge.ExpiresAt.Format(time.RFC3339))
	if notify != nil {
		notify(challenge)
	}

	// Polling is bounded by the challenge expiry inside DeviceAccessToken.
	tok, err := d.oauth.DeviceAccessToken(context.WithValue(ctx, oauth2.HTTPClient, d.client), resp)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("device login: %w", ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.AuthError{Op: "device_token", Code: "expired_token",
				Description: "device code expired before sign-in completed", Err: err}
		}
		return nil, toAuthError("device_token", err)
	}

	if err := checkIssued("device_token", tok); err != nil {
		return nil, err
	}

	token := domain.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scopes:       d.scopes,
	}
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		token.Scopes = microsoft.MergeScopes(strings.Fields(granted), d.scopes)
	}

	idToken, _ := tok.Extra("id_token").(string)
	pctx, cancel := providerContext(ctx, d.client, d.timeout)
	defer cancel()

	who, err := resolveIdentity(pctx, d.client, d.graphURL, d.tenantID, token.AccessToken, idToken)
	if err != nil {
		return nil, err
	}

	acct := domain.Account{
		HomeAccountID: who.HomeAccountID,
		Username:      who.Username,
		Tokens:        []domain.Token{token},
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.commit(pctx, func(s *domain.SessionState) { s.PutAccount(acct) }); err != nil {
		return nil, err
	}

	logger.Info("auth: signed in as %s", acct.Username)
	out := acct.Clone()
	return &out, nil
}

// PendingChallenge returns the challenge of the login currently polling.
func (d *Delegated) PendingChallenge() (domain.DeviceChallenge, bool) {
	d.loginMu.Lock()
	defer d.loginMu.Unlock()

	if d.pending == nil {
		return domain.DeviceChallenge{}, false
	}
	return *d.pending, true
}

// CurrentToken returns a valid access token for the canonical account,
// refreshing and persisting it when the cached one has expired.
func (d *Delegated) CurrentToken(ctx context.Context) (domain.Token, error) {
	tok, source, err := d.currentToken(ctx)
	if err != nil {
		metrics.TokenFailures.WithLabelValues(string(domain.AuthModeDelegated), failureKind(err)).Inc()
		return domain.Token{}, err
	}
	metrics.TokenAcquisitions.WithLabelValues(string(domain.AuthModeDelegated), source).Inc()
	return tok, nil
}

func (d *Delegated) currentToken(ctx context.Context) (domain.Token, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	acct, ok := d.state.Canonical()
	if !ok {
		return domain.Token{}, "", &domain.SessionError{Err: domain.ErrNoDelegatedSession}
	}

	idx, tok, ok := acct.TokenFor(d.scopes)
	if !ok {
		if len(acct.Tokens) == 0 {
			return domain.Token{}, "", &domain.SessionError{Err: domain.ErrSessionExpired}
		}
		idx, tok = 0, acct.Tokens[0]
	}

	if !tok.ExpiredAt(d.now().Add(d.leeway)) {
		return tok.BearerToken(), "cache", nil
	}
	if !tok.CanRefresh() {
		return domain.Token{}, "", &domain.SessionError{Err: domain.ErrSessionExpired}
	}

	pctx, cancel := providerContext(ctx, d.client, d.timeout)
	defer cancel()

	refreshed, err := d.refresh.Refresh(pctx, tok.RefreshToken)
	if err != nil {
		logger.Warn("auth: refresh for %s failed: %v", acct.Username, err)
		return domain.Token{}, "", err
	}

	if err := checkUsable("refresh", refreshed, d.now()); err != nil {
		return domain.Token{}, "", err
	}
	if err := d.commit(pctx, func(s *domain.SessionState) { s.UpdateToken(idx, refreshed) }); err != nil {
		return domain.Token{}, "", err
	}

	logger.Debug("auth: refreshed token for %s, expires %s", acct.Username,
		refreshed.ExpiresAt.Format(time.RFC3339))
	return refreshed.BearerToken(), "refresh", nil
}

// Account returns a copy of the canonical account.
func (d *Delegated) Account() (domain.Account, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	acct, ok := d.state.Canonical()
	if !ok {
		return domain.Account{}, false
	}
	return acct.Clone(), true
}

// Logout removes every account from the store. Signing out with no session
// succeeds without writing. If the store cannot be written the session is
// kept.
func (d *Delegated) Logout(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var n int
	if err := d.commit(context.WithoutCancel(ctx), func(s *domain.SessionState) { n = s.RemoveAccounts() }); err != nil {
		return err
	}
	if n > 0 {
		logger.Info("auth: signed out, removed %d account(s)", n)
	}
	return nil
}

// Reload replaces the in-memory session with the persisted one. It is called
// when another process changes the backing store. Unsaved local changes are
// never discarded: a dirty session is kept. On failure the current session is
// kept and the error returned.
func (d *Delegated) Reload(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Changed() {
		logger.Debug("auth: session has unsaved changes, skipping reload")
		return nil
	}

	state, err := d.store.Load(ctx)
	if err != nil {
		return err
	}
	d.state = state
	return nil
}

// commit applies mutate to a copy of the session and swaps the copy in only
// once it is persisted, so memory and store never disagree. Callers hold d.mu.
func (d *Delegated) commit(ctx context.Context, mutate func(*domain.SessionState)) error {
	next := d.state.Clone()
	mutate(next)
	if err := d.store.Save(ctx, next); err != nil {
		return err
	}
	d.state = next
	return nil
}
