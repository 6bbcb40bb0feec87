// Package metadatastore implements the internal backup metadata database
// (spec section 4.7): normalized foreign-key caches, the files workflow
// table and its state machine, the backups ledger, the file_history
// audit table, and every transactional operation that drives them.
package metadatastore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/uplo-tech/demotemutex"
	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/mblog"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

// Store holds the single open session to the metadata database that one
// operator process uses, per spec section 5.
type Store struct {
	dsn string
	db  *sql.DB
	log *mblog.Logger

	// mu is not locked by any Store method; access to db and the FK
	// caches is not synchronized.
	mu demotemutex.DemoteMutex
}

// DefaultBatchSize bounds process_files claims and is exported so callers (the
// pipeline, CLIs) can size their own batching to match.
const DefaultBatchSize = 100

// Open connects to the metadata database at dsn.
func Open(ctx context.Context, dsn string, log *mblog.Logger) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Extend(err, mberrors.ErrDBConnect)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Extend(err, mberrors.ErrDBConnect)
	}
	return &Store{dsn: dsn, db: db, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// reconnect replaces s.db with a fresh connection, used by the
// query-retry wrapper below.
func (s *Store) reconnect(ctx context.Context) error {
	newDB, err := sql.Open("mysql", s.dsn)
	if err != nil {
		return errors.Extend(err, mberrors.ErrDBConnect)
	}
	if err := newDB.PingContext(ctx); err != nil {
		newDB.Close()
		return errors.Extend(err, mberrors.ErrDBConnect)
	}
	old := s.db
	s.db = newDB
	old.Close()
	return nil
}

// withRetry runs fn against s.db; on a recoverable driver error it
// reconnects exactly once and retries fn, matching every other
// component's query-retry wrapper (spec section 4.7).
func (s *Store) withRetry(ctx context.Context, fn func(*sql.DB) error) error {
	err := fn(s.db)
	if err == nil {
		return nil
	}
	if !isRecoverable(err) {
		return errors.Extend(err, mberrors.ErrDBQuery)
	}
	if s.log != nil {
		s.log.Printf("WARN: recoverable metadata DB error, reconnecting: %v", err)
	}
	if rerr := s.reconnect(ctx); rerr != nil {
		return rerr
	}
	if err := fn(s.db); err != nil {
		return errors.Extend(err, mberrors.ErrDBQuery)
	}
	return nil
}

func isRecoverable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"bad connection", "invalid connection", "broken pipe",
		"connection reset", "server has gone away", "lost connection", "i/o timeout"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
