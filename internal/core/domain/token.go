package domain

import (
	"slices"
	"strings"
	"time"
)

// Token is a bearer credential together with the metadata needed to decide
// whether it may still be sent.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Scopes      []string  `json:"scopes,omitempty"`
	// RefreshToken is only set for delegated sessions.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ExpiredAt reports whether the token must not be sent at instant now.
// A token whose expiry equals now is already expired.
func (t Token) ExpiredAt(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(t.ExpiresAt)
}

// CanRefresh reports whether a refresh credential is present.
func (t Token) CanRefresh() bool {
	return t.RefreshToken != ""
}

// Covers reports whether the token was issued for every scope in scopes.
// Scope names are compared case-insensitively.
func (t Token) Covers(scopes []string) bool {
	for _, want := range scopes {
		if !slices.ContainsFunc(t.Scopes, func(have string) bool {
			return strings.EqualFold(have, want)
		}) {
			return false
		}
	}
	return true
}

// BearerToken returns a copy of the token safe to hand to callers,
// without the refresh credential.
func (t Token) BearerToken() Token {
	t.RefreshToken = ""
	t.Scopes = slices.Clone(t.Scopes)
	return t
}
