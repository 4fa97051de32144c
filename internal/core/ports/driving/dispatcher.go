package driving

import (
	"context"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// CredentialDispatcher resolves the bearer token for a declared auth mode.
// Every outbound call passes through it.
type CredentialDispatcher interface {
	Resolve(ctx context.Context, mode domain.AuthMode) (domain.Token, error)
}
