/*
Package sqlite provides the SQLite-backed implementation of the durable
store: one *sql.DB, a single migrate() schema block, and a WithTx helper
that hands callers a transaction-scoped Store. No ORM - every query is
hand-written and every row hand-scanned.

CONCURRENCY:
  A shared *sync.RWMutex guards the top-level *sql.DB. WithTx takes the
  write lock for the lifetime of the unit of work; methods called on the
  transaction-scoped Store it hands to the callback run against the open
  *sql.Tx directly and do not re-acquire the mutex (re-locking a held
  non-reentrant RWMutex from the same goroutine would deadlock).

WAL MODE:
  Opened with _journal_mode=WAL for concurrent readers and a single
  writer.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store implements the durable store over SQLite. The zero value is not
// usable; construct with Open.
type Store struct {
	db *sql.DB
	mu *sync.RWMutex
	tx execer // non-nil only on the Store handed to a WithTx callback
}

// Open creates (or attaches to) a SQLite database at path and migrates
// its schema. Use ":memory:" for an ephemeral store, mainly in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, mu: &sync.RWMutex{}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// q returns whichever executor is in scope: the open transaction inside
// a WithTx callback, or the top-level *sql.DB otherwise.
func (s *Store) q() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// inTx reports whether this Store is scoped to an open transaction.
func (s *Store) inTx() bool {
	return s.tx != nil
}

// rlock acquires a read lock unless already inside a WithTx unit of
// work (which holds the write lock for its whole duration). The
// returned func releases whatever was acquired, or is a no-op.
func (s *Store) rlock() func() {
	if s.inTx() {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// WithTx runs fn inside a single SQLite transaction. All calls made
// through the Store passed to fn share that transaction; fn's error
// (or a failed commit) rolls the whole unit of work back.
func (s *Store) WithTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	scoped := Store{db: s.db, mu: s.mu, tx: sqlTx}
	if err := fn(scoped); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && containsSubstr(err.Error(), "UNIQUE constraint failed")
}

func containsSubstr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
