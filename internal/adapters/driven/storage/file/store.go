// Package file persists delegated session state as a JSON file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driven"
	"github.com/custodia-labs/graphrelay/internal/logger"
	"github.com/custodia-labs/graphrelay/internal/metrics"
)

// Ensure Store implements the interface.
var _ driven.SessionStore = (*Store)(nil)

// lockTimeout is the maximum time to wait for the state file lock.
const lockTimeout = 2 * time.Second

// Store keeps session state in a single JSON file. Reads and writes hold an
// exclusive lock on a sibling ".lock" file so that several graphrelay
// processes sharing one state file never observe a torn write.
type Store struct {
	path string
}

// NewStore creates a store backed by path. The parent directory is created
// with 0700 permissions if missing.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("state file path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{path: filepath.Clean(path)}, nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing file yields an empty state.
func (s *Store) Load(ctx context.Context) (*domain.SessionState, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("session: no state file at %s, starting empty", s.path)
		return domain.NewSessionState(), nil
	}
	if err != nil {
		return nil, &domain.StoreError{Operation: "load", Path: s.path, Err: err}
	}

	state, err := decode(data)
	if err != nil {
		return nil, &domain.StoreError{Operation: "load", Path: s.path, Err: err}
	}
	return state, nil
}

// Save writes state if it changed, then marks it clean.
func (s *Store) Save(ctx context.Context, state *domain.SessionState) error {
	if state == nil || !state.Changed() {
		return nil
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return &domain.StoreError{Operation: "save", Path: s.path, Err: err}
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := writeAtomic(s.path, data); err != nil {
		return &domain.StoreError{Operation: "save", Path: s.path, Err: err}
	}

	state.MarkClean()
	metrics.SessionWrites.WithLabelValues("file").Inc()
	logger.Debug("session: wrote %d account(s) to %s", len(state.Accounts), s.path)
	return nil
}

func (s *Store) lock(ctx context.Context) (func(), error) {
	fileLock := flock.New(s.path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return nil, &domain.StoreError{Operation: "lock", Path: s.path, Err: err}
	}
	if !locked {
		return nil, &domain.StoreError{
			Operation: "lock", Path: s.path,
			Err: fmt.Errorf("timeout after %v", lockTimeout),
		}
	}
	return func() { _ = fileLock.Unlock() }, nil
}

// decode parses a state file. Empty input is corrupt, not empty state:
// only a missing file means "no session".
func decode(data []byte) (*domain.SessionState, error) {
	if len(data) == 0 {
		return nil, errors.New("state file is empty")
	}

	var state domain.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if state.Version > domain.SessionStateVersion {
		return nil, fmt.Errorf("unsupported state version %d", state.Version)
	}
	if state.Accounts == nil {
		state.Accounts = []domain.Account{}
	}
	state.Version = domain.SessionStateVersion
	return &state, nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
