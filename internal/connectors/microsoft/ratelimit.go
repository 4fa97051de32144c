package microsoft

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ServiceType identifies a Microsoft Graph workload for rate limiting purposes.
// Graph throttles each workload independently.
type ServiceType string

const (
	// ServiceMail is the Outlook mail API.
	ServiceMail ServiceType = "mail"
	// ServiceCalendar is the Outlook calendar API.
	ServiceCalendar ServiceType = "calendar"
	// ServiceTeams is the Teams chat API.
	ServiceTeams ServiceType = "teams"
	// ServiceDirectory covers users, /me and everything else.
	ServiceDirectory ServiceType = "directory"
)

// RateLimitConfig holds rate limiting configuration for a service.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultRateLimit is used when no configuration is supplied.
// Microsoft Graph allows ~10,000 requests per 10 minutes (~16.67/sec).
var DefaultRateLimit = RateLimitConfig{RequestsPerSecond: 10.0, BurstSize: 15}

// ServiceForPath classifies a Graph resource path.
func ServiceForPath(path string) ServiceType {
	p := strings.ToLower(path)
	switch {
	case strings.Contains(p, "/chats"), strings.Contains(p, "/teams"):
		return ServiceTeams
	case strings.Contains(p, "/messages"), strings.Contains(p, "/sendmail"), strings.Contains(p, "/mailfolders"):
		return ServiceMail
	case strings.Contains(p, "/events"), strings.Contains(p, "/calendar"):
		return ServiceCalendar
	default:
		return ServiceDirectory
	}
}

// RateLimiter provides rate limiting for Microsoft Graph API requests.
// It uses a token bucket algorithm with optional backoff for 429 responses.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	service ServiceType
}

// NewRateLimiter creates a rate limiter for the specified service.
func NewRateLimiter(service ServiceType, cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 {
		cfg = DefaultRateLimit
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		service: service,
	}
}

// Service returns the service this limiter paces.
func (r *RateLimiter) Service() ServiceType {
	return r.service
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff period set by RecordRateLimitError.
func (r *RateLimiter) Wait(ctx context.Context) error {
	// First, check for backoff from previous rate limit errors
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(retryAt)):
		}
	}

	// Then wait for the token bucket
	return r.limiter.Wait(ctx)
}

// RecordRateLimitError records a rate limit error and sets a backoff period.
// Call this when receiving a 429 response from Microsoft Graph APIs.
// The retryAfterSeconds parameter should come from the Retry-After header.
func (r *RateLimiter) RecordRateLimitError(retryAfterSeconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if retryAfterSeconds <= 0 {
		// Default backoff: 60 seconds
		retryAfterSeconds = 60
	}

	r.retryAt = time.Now().Add(time.Duration(retryAfterSeconds) * time.Second)
}

// Allow checks if a request can be made immediately without blocking.
// Returns true if the request is allowed, false if it would exceed the rate limit.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}

	return r.limiter.Allow()
}

// limiterSet lazily creates one limiter per service.
type limiterSet struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	limiters map[ServiceType]*RateLimiter
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{cfg: cfg, limiters: make(map[ServiceType]*RateLimiter)}
}

func (s *limiterSet) get(service ServiceType) *RateLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	rl, ok := s.limiters[service]
	if !ok {
		rl = NewRateLimiter(service, s.cfg)
		s.limiters[service] = rl
	}
	return rl
}
