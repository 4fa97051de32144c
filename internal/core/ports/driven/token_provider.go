package driven

import (
	"context"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// ApplicationTokenProvider acquires service-level tokens without user interaction.
// Implementations never persist the tokens they acquire.
type ApplicationTokenProvider interface {
	// Acquire returns a token valid for the administrative scope.
	Acquire(ctx context.Context) (domain.Token, error)
}

// DelegatedTokenProvider manages the signed-in user session.
//
// CurrentToken refreshes transparently when the cached token has expired and a
// refresh credential exists.
type DelegatedTokenProvider interface {
	// StartDeviceLogin runs a device authorization flow to completion.
	// notify receives the challenge as soon as the provider issues it.
	StartDeviceLogin(ctx context.Context, notify func(domain.DeviceChallenge)) (*domain.Account, error)

	// PendingChallenge returns the challenge of the login currently polling, if any.
	PendingChallenge() (domain.DeviceChallenge, bool)

	// CurrentToken returns a valid access token for the canonical account.
	// Returns a *domain.SessionError when no session exists.
	CurrentToken(ctx context.Context) (domain.Token, error)

	// Account returns a copy of the canonical account.
	Account() (domain.Account, bool)

	// Logout removes every account. Succeeds when already signed out.
	Logout(ctx context.Context) error
}
