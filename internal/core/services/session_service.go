package services

import (
	"context"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driven"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
	"github.com/custodia-labs/graphrelay/internal/logger"
)

// Ensure SessionService implements the interface.
var _ driving.SessionService = (*SessionService)(nil)

// SessionService manages the delegated session on behalf of the CLI and the
// HTTP API.
type SessionService struct {
	// ctx bounds background logins. It is the process lifetime, not a request.
	ctx       context.Context
	provider  driven.DelegatedTokenProvider
	statePath string
}

// NewSessionService creates a session service. Logins started with
// StartLogin keep running until ctx is done.
func NewSessionService(ctx context.Context, provider driven.DelegatedTokenProvider, statePath string) *SessionService {
	return &SessionService{ctx: ctx, provider: provider, statePath: statePath}
}

// StartLogin starts a device login in the background and returns the
// challenge as soon as it is issued.
func (s *SessionService) StartLogin(ctx context.Context) (domain.DeviceChallenge, error) {
	challenges := make(chan domain.DeviceChallenge, 1)
	failed := make(chan error, 1)

	go func() {
		acct, err := s.provider.StartDeviceLogin(s.ctx, func(c domain.DeviceChallenge) {
			challenges <- c
		})
		if err != nil {
			logger.Warn("session: device login failed: %v", err)
			failed <- err
			return
		}
		logger.Info("session: device login completed for %s", acct.Username)
	}()

	select {
	case c := <-challenges:
		return c, nil
	case err := <-failed:
		return domain.DeviceChallenge{}, err
	case <-ctx.Done():
		return domain.DeviceChallenge{}, ctx.Err()
	}
}

// Login runs a device login in the foreground.
func (s *SessionService) Login(ctx context.Context, notify func(domain.DeviceChallenge)) (*domain.Account, error) {
	return s.provider.StartDeviceLogin(ctx, notify)
}

// PendingLogin returns the challenge of the login in progress.
func (s *SessionService) PendingLogin() (domain.DeviceChallenge, bool) {
	return s.provider.PendingChallenge()
}

// Status reports the current session without token material.
func (s *SessionService) Status() driving.SessionStatus {
	status := driving.SessionStatus{StatePath: s.statePath}

	if c, ok := s.provider.PendingChallenge(); ok {
		status.PendingLogin = &c
	}

	acct, ok := s.provider.Account()
	if !ok {
		return status
	}

	status.SignedIn = true
	status.Username = acct.Username
	status.HomeAccountID = acct.HomeAccountID
	if len(acct.Tokens) > 0 {
		tok := acct.Tokens[0]
		expires := tok.ExpiresAt
		status.TokenExpiresAt = &expires
		status.Refreshable = tok.CanRefresh()
	}
	return status
}

// Logout removes the session.
func (s *SessionService) Logout(ctx context.Context) error {
	return s.provider.Logout(ctx)
}
