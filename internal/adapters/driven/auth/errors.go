// Package auth acquires bearer tokens from the Microsoft identity platform
// in application (client credentials) and delegated (device flow) mode.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// toAuthError converts an x/oauth2 failure into a *domain.AuthError.
// The device authorization endpoint does not parse the error body into
// the RetrieveError fields, so the body is decoded here when they are empty.
func toAuthError(op string, err error) error {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return err
	}

	out := &domain.AuthError{Op: op, Err: err}

	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		out.Code = rErr.ErrorCode
		out.Description = rErr.ErrorDescription
		if out.Code == "" && len(rErr.Body) > 0 {
			var body struct {
				Error            string `json:"error"`
				ErrorDescription string `json:"error_description"`
			}
			if json.Unmarshal(rErr.Body, &body) == nil {
				out.Code = body.Error
				out.Description = body.ErrorDescription
			}
		}
	}
	return out
}

// failureKind labels a token failure for metrics.
func failureKind(err error) string {
	var authErr *domain.AuthError
	var storeErr *domain.StoreError
	switch {
	case domain.IsSessionError(err):
		return "session"
	case errors.As(err, &authErr):
		if authErr.Code != "" {
			return authErr.Code
		}
		return "provider"
	case errors.As(err, &storeErr):
		return "store"
	default:
		return "other"
	}
}

// providerContext detaches ctx from its caller's cancellation and bounds it
// by timeout, so that a token exchange in flight completes and is cached even
// when the request that triggered it goes away. client is installed as the
// HTTP client x/oauth2 uses.
func providerContext(ctx context.Context, client *http.Client, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	return context.WithValue(ctx, oauth2.HTTPClient, client), cancel
}

// checkUsable rejects a freshly issued token that is already expired at now,
// which happens when the provider omits expires_in.
func checkUsable(op string, tok domain.Token, now time.Time) error {
	if tok.AccessToken == "" {
		return &domain.AuthError{Op: op, Description: "token response carried no access token"}
	}
	if tok.ExpiredAt(now) {
		return &domain.AuthError{Op: op, Description: "token response carried no usable expiry"}
	}
	return nil
}

// checkIssued rejects an x/oauth2 token without a future expiry. x/oauth2
// leaves Expiry zero when expires_in is missing and stamps it with the wall
// clock, so the wall clock is used here.
func checkIssued(op string, tok *oauth2.Token) error {
	if tok.AccessToken == "" {
		return &domain.AuthError{Op: op, Description: "token response carried no access token"}
	}
	if tok.Expiry.IsZero() || !time.Now().Before(tok.Expiry) {
		return &domain.AuthError{Op: op, Description: "token response carried no usable expiry"}
	}
	return nil
}
