package driven

import (
	"context"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// RemoteAPI sends authenticated calls to the collaboration API.
type RemoteAPI interface {
	// Call sends method to target, a path relative to the API base URL or an
	// absolute URL under it. An error status yields *domain.RemoteAPIError
	// with the response body unmodified.
	Call(ctx context.Context, method, target string, body any, token domain.Token) (*domain.RelayResult, error)
}
