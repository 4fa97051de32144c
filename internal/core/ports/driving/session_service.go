package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// SessionStatus summarises the delegated session without token material.
type SessionStatus struct {
	SignedIn       bool                    `json:"signed_in"`
	Username       string                  `json:"username,omitempty"`
	HomeAccountID  string                  `json:"home_account_id,omitempty"`
	TokenExpiresAt *time.Time              `json:"token_expires_at,omitempty"`
	Refreshable    bool                    `json:"refreshable"`
	PendingLogin   *domain.DeviceChallenge `json:"pending_login,omitempty"`
	StatePath      string                  `json:"state_path,omitempty"`
}

// SessionService manages the delegated user session.
type SessionService interface {
	// StartLogin begins a device login in the background and returns its
	// challenge once the provider issued it. The login keeps polling after
	// StartLogin returns.
	StartLogin(ctx context.Context) (domain.DeviceChallenge, error)

	// Login runs a device login in the foreground until it completes.
	Login(ctx context.Context, notify func(domain.DeviceChallenge)) (*domain.Account, error)

	// PendingLogin returns the challenge of the login in progress.
	PendingLogin() (domain.DeviceChallenge, bool)

	// Status reports the current session.
	Status() SessionStatus

	// Logout removes the session.
	Logout(ctx context.Context) error
}
