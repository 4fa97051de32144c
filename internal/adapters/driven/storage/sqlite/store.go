// Package sqlite persists delegated session state in a single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driven"
	"github.com/custodia-labs/graphrelay/internal/logger"
	"github.com/custodia-labs/graphrelay/internal/metrics"
)

// Ensure Store implements the interface.
var _ driven.SessionStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS session_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	version    INTEGER NOT NULL,
	data       TEXT    NOT NULL,
	updated_at TEXT    NOT NULL
)`

// Store keeps the serialized session state as the single row of a table.
// The database is opened lazily so that a missing file is reported as an
// empty session rather than silently created on Load.
type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewStore creates a store backed by the database file at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{path: filepath.Clean(path)}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Load reads the stored state. A missing database file or an empty table
// yields an empty state.
func (s *Store) Load(ctx context.Context) (*domain.SessionState, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("session: no database at %s, starting empty", s.path)
		return domain.NewSessionState(), nil
	} else if err != nil {
		return nil, &domain.StoreError{Operation: "load", Path: s.path, Err: err}
	}

	db, err := s.open(ctx)
	if err != nil {
		return nil, &domain.StoreError{Operation: "load", Path: s.path, Err: err}
	}

	var data string
	err = db.QueryRowContext(ctx, `SELECT data FROM session_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewSessionState(), nil
	}
	if err != nil {
		return nil, &domain.StoreError{Operation: "load", Path: s.path, Err: err}
	}

	var state domain.SessionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, &domain.StoreError{Operation: "load", Path: s.path, Err: fmt.Errorf("decode: %w", err)}
	}
	if state.Version > domain.SessionStateVersion {
		return nil, &domain.StoreError{
			Operation: "load", Path: s.path,
			Err: fmt.Errorf("unsupported state version %d", state.Version),
		}
	}
	if state.Accounts == nil {
		state.Accounts = []domain.Account{}
	}
	state.Version = domain.SessionStateVersion
	return &state, nil
}

// Save upserts state if it changed, then marks it clean.
func (s *Store) Save(ctx context.Context, state *domain.SessionState) error {
	if state == nil || !state.Changed() {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return &domain.StoreError{Operation: "save", Path: s.path, Err: err}
	}

	db, err := s.open(ctx)
	if err != nil {
		return &domain.StoreError{Operation: "save", Path: s.path, Err: err}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO session_state (id, version, data, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, data = excluded.data,
			updated_at = excluded.updated_at`,
		state.Version, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &domain.StoreError{Operation: "save", Path: s.path, Err: err}
	}

	state.MarkClean()
	metrics.SessionWrites.WithLabelValues("sqlite").Inc()
	logger.Debug("session: wrote %d account(s) to %s", len(state.Accounts), s.path)
	return nil
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("restrict database permissions: %w", err)
	}

	s.db = db
	return db, nil
}
