package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driven"
	"github.com/custodia-labs/graphrelay/internal/logger"
	"github.com/custodia-labs/graphrelay/internal/metrics"
)

// Ensure Application implements the interface.
var _ driven.ApplicationTokenProvider = (*Application)(nil)

// ApplicationConfig configures client credentials acquisition.
type ApplicationConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// Timeout bounds each exchange with the identity provider.
	Timeout time.Duration
	// Leeway treats a cached token as expired this long before its expiry.
	Leeway time.Duration
}

// Application acquires service-level tokens with the client credentials
// grant. The last token is cached in memory and reused until it expires; it
// is never persisted.
type Application struct {
	cfg     clientcredentials.Config
	client  *http.Client
	timeout time.Duration
	leeway  time.Duration
	now     func() time.Time

	group  singleflight.Group
	mu     sync.Mutex
	cached *domain.Token
}

// Option customises an authenticator.
type Option func(*options)

type options struct {
	client *http.Client
	now    func() time.Time
}

// WithHTTPClient sets the client used to reach the identity provider.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithClock sets the clock used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func applyOptions(opts []Option) options {
	o := options{client: http.DefaultClient, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewApplication creates an application authenticator.
func NewApplication(cfg ApplicationConfig, opts ...Option) (*Application, error) {
	if cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, errors.New("application auth requires a token url and client id")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("application auth requires a client secret")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	o := applyOptions(opts)
	return &Application{
		cfg: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client:  o.client,
		timeout: cfg.Timeout,
		leeway:  cfg.Leeway,
		now:     o.now,
	}, nil
}

// Acquire returns the cached token if it is still valid, otherwise performs
// a client credentials exchange. Concurrent callers that miss the cache share
// one exchange.
func (a *Application) Acquire(ctx context.Context) (domain.Token, error) {
	if tok, ok := a.fromCache(); ok {
		metrics.TokenAcquisitions.WithLabelValues(string(domain.AuthModeApplication), "cache").Inc()
		return tok, nil
	}

	v, err, _ := a.group.Do("exchange", func() (any, error) {
		return a.exchange(ctx)
	})
	if err != nil {
		metrics.TokenFailures.WithLabelValues(string(domain.AuthModeApplication), failureKind(err)).Inc()
		return domain.Token{}, err
	}

	metrics.TokenAcquisitions.WithLabelValues(string(domain.AuthModeApplication), "exchange").Inc()
	return v.(domain.Token).BearerToken(), nil
}

func (a *Application) fromCache() (domain.Token, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached == nil || a.cached.ExpiredAt(a.now().Add(a.leeway)) {
		return domain.Token{}, false
	}
	return a.cached.BearerToken(), true
}

// exchange runs without a.mu held so cache hits are never blocked by a slow
// identity provider.
func (a *Application) exchange(ctx context.Context) (domain.Token, error) {
	pctx, cancel := providerContext(ctx, a.client, a.timeout)
	defer cancel()

	tok, err := a.cfg.Token(pctx)
	if err != nil {
		authErr := toAuthError("client_credentials", err)
		logger.Warn("auth: client credentials exchange failed: %v", authErr)
		return domain.Token{}, authErr
	}

	if err := checkIssued("client_credentials", tok); err != nil {
		logger.Warn("auth: client credentials exchange failed: %v", err)
		return domain.Token{}, err
	}

	acquired := domain.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   tok.Expiry,
		Scopes:      a.cfg.Scopes,
	}

	a.mu.Lock()
	a.cached = &acquired
	a.mu.Unlock()

	logger.Debug("auth: acquired application token, expires %s", acquired.ExpiresAt.Format(time.RFC3339))
	return acquired, nil
}
