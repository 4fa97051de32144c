// Package services implements the driving ports on top of the driven adapters.
package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driven"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
	"github.com/custodia-labs/graphrelay/internal/logger"
)

// Ensure Dispatcher implements the interface.
var _ driving.CredentialDispatcher = (*Dispatcher)(nil)

// Dispatcher routes token requests to the authenticator of the declared mode.
// Modes never fall back to each other.
type Dispatcher struct {
	application driven.ApplicationTokenProvider
	delegated   driven.DelegatedTokenProvider
}

// NewDispatcher creates a dispatcher. application may be nil when no client
// secret is configured; application mode then fails with an auth error.
func NewDispatcher(application driven.ApplicationTokenProvider, delegated driven.DelegatedTokenProvider) *Dispatcher {
	return &Dispatcher{application: application, delegated: delegated}
}

// Resolve returns a bearer token for mode.
func (d *Dispatcher) Resolve(ctx context.Context, mode domain.AuthMode) (domain.Token, error) {
	switch mode {
	case domain.AuthModeApplication:
		if d.application == nil {
			return domain.Token{}, &domain.AuthError{
				Op:          "client_credentials",
				Description: "application mode is not configured, set a client secret",
			}
		}
		return d.application.Acquire(ctx)

	case domain.AuthModeDelegated:
		if d.delegated == nil {
			return domain.Token{}, &domain.SessionError{Err: domain.ErrNoDelegatedSession}
		}
		return d.delegated.CurrentToken(ctx)

	default:
		logger.Debug("dispatcher: rejected auth mode %q", string(mode))
		return domain.Token{}, fmt.Errorf("%w: %q", domain.ErrUnknownAuthMode, string(mode))
	}
}
