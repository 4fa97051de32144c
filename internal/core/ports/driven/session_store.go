package driven

import (
	"context"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// SessionStore persists delegated session state outside the process.
type SessionStore interface {
	// Load reads the persisted state. A missing backing file yields an empty
	// state; an unreadable or corrupt one yields a *domain.StoreError.
	Load(ctx context.Context) (*domain.SessionState, error)

	// Save writes state if it changed since it was loaded or last saved,
	// then marks it clean. Saving a clean state performs no write.
	Save(ctx context.Context, state *domain.SessionState) error

	// Path returns the location of the backing file.
	Path() string
}
