package domain

import "time"

// DeviceChallenge is the short-lived state of an in-progress device login.
// It is never persisted.
type DeviceChallenge struct {
	UserCode                string        `json:"user_code"`
	VerificationURI         string        `json:"verification_uri"`
	VerificationURIComplete string        `json:"verification_uri_complete,omitempty"`
	Message                 string        `json:"message,omitempty"`
	ExpiresAt               time.Time     `json:"expires_at"`
	Interval                time.Duration `json:"interval"`
	StartedAt               time.Time     `json:"started_at"`
}

// ExpiredAt reports whether the challenge can no longer be completed.
func (c DeviceChallenge) ExpiredAt(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
