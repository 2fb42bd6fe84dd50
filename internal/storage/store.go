// Package storage is the indexed schedule repository. One imported feed is a
// generation; ReplaceAll swaps generations atomically and readers never see a
// partially written one.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"goride/internal/localtime"
)

// ErrNoData is returned by every query until a first generation has been
// imported. Callers distinguish it from an empty query result: the former is
// "system unavailable", the latter is "no service in this window".
var ErrNoData = errors.New("no schedule generation imported")

// Store wraps the SQLite schedule database.
type Store struct {
	db     *sql.DB
	clock  localtime.Clock
	logger *slog.Logger

	// importMu makes ReplaceAll mutually exclusive with itself. Readers are
	// not blocked: WAL mode keeps the previous generation visible until the
	// import transaction commits.
	importMu sync.Mutex
}

// Open creates or opens the schedule database at path and applies migrations.
// Use ":memory:" for an ephemeral store.
func Open(path string, clock localtime.Clock, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, clock: clock, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("schedule store opened", "path", path)
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// HasData reports whether any generation has been imported.
func (s *Store) HasData(ctx context.Context) bool {
	_, err := s.generation(ctx)
	return err == nil
}

// generation returns the current generation id, or ErrNoData.
func (s *Store) generation(ctx context.Context) (string, error) {
	var gen string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM feed_metadata WHERE key = 'generation'`).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoData
	}
	if err != nil {
		return "", fmt.Errorf("read generation: %w", err)
	}
	return gen, nil
}
