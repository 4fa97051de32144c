package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/logger"
	"github.com/custodia-labs/graphrelay/internal/metrics"
)

// maxResponseBody bounds how much of a Graph response is buffered.
const maxResponseBody = 32 << 20

// Relay forwards authenticated requests to Microsoft Graph.
// It never retries: a 429 only records the Retry-After backoff so that the
// next call through the same service limiter waits it out.
type Relay struct {
	baseURL  *url.URL
	client   *http.Client
	limiters *limiterSet
}

// NewRelay creates a relay for the Graph API at baseURL.
// An empty baseURL means DefaultGraphBaseURL.
func NewRelay(baseURL string, timeout time.Duration, cfg RateLimitConfig) (*Relay, error) {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse graph base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("graph base url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Relay{
		baseURL:  u,
		client:   &http.Client{Timeout: timeout},
		limiters: newLimiterSet(cfg),
	}, nil
}

// BaseURL returns the Graph base URL without a trailing slash.
func (r *Relay) BaseURL() string {
	return r.baseURL.String()
}

// Resolve turns a relative resource path into an absolute Graph URL.
// Absolute URLs are accepted only under the base URL.
func (r *Relay) Resolve(target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("%w: empty target", domain.ErrInvalidRelayURL)
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidRelayURL, err)
	}

	base := r.baseURL.String()
	if u.IsAbs() {
		if u.Scheme != r.baseURL.Scheme || u.Host != r.baseURL.Host ||
			(u.Path != r.baseURL.Path && !strings.HasPrefix(u.Path, r.baseURL.Path+"/")) {
			return "", fmt.Errorf("%w: %s", domain.ErrInvalidRelayURL, target)
		}
		return target, nil
	}
	if u.Host != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidRelayURL, target)
	}

	return base + "/" + strings.TrimLeft(target, "/"), nil
}

// Call sends method to target with body as JSON, authorised by token.
// target is a path relative to the base URL or an absolute URL under it.
// body may be nil, raw JSON ([]byte, json.RawMessage) or any value that
// marshals to JSON.
//
// An error status yields *domain.RemoteAPIError carrying the response body
// verbatim. A 2xx response without content yields an Accepted result.
func (r *Relay) Call(ctx context.Context, method, target string, body any, token domain.Token) (*domain.RelayResult, error) {
	fullURL, err := r.Resolve(target)
	if err != nil {
		return nil, err
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request body: %v", domain.ErrInvalidInput, err)
	}

	limiter := r.limiters.get(ServiceForPath(fullURL))
	if !limiter.Allow() {
		logger.Debug("microsoft-graph: pacing %s request to %s", limiter.Service(), fullURL)
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	tokenType := token.TokenType
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = "Bearer"
	}
	req.Header.Set("Authorization", tokenType+" "+token.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("client-request-id", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	metrics.RelayLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RelayRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, fullURL, err)
	}
	defer resp.Body.Close()

	metrics.RelayRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case IsRateLimited(resp.StatusCode):
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		limiter.RecordRateLimitError(retryAfter)
		logger.Warn("microsoft-graph: throttled on %s, retry after %ds", limiter.Service(), retryAfter)
	case IsUnauthorised(resp.StatusCode):
		logger.Warn("microsoft-graph: %s %s rejected the access token", method, fullURL)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		logger.Debug("microsoft-graph: %s %s returned %d", method, fullURL, resp.StatusCode)
		return nil, &domain.RemoteAPIError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Cause:      WrapError(resp.StatusCode),
		}
	}

	result := &domain.RelayResult{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(respBody)) == 0 {
		result.Accepted = true
		return result, nil
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("decode response from %s: body is not JSON", fullURL)
	}
	result.Body = json.RawMessage(respBody)
	return result, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(b) == 0 {
			return nil, nil
		}
		if !json.Valid(b) {
			return nil, fmt.Errorf("body is not valid JSON")
		}
		return b, nil
	case []byte:
		if len(b) == 0 {
			return nil, nil
		}
		if !json.Valid(b) {
			return nil, fmt.Errorf("body is not valid JSON")
		}
		return b, nil
	default:
		return json.Marshal(body)
	}
}
