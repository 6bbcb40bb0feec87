package metadatastore

import (
	"context"
	"database/sql"

	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

// MarkAsDeleted finalizes files RecoveryFlow's DeletionFlow has already
// removed from the backup store: it drops each file's backups ledger
// row and flips its files.status to hard-deleted. In dry-run mode both
// statements are replaced by SELECT 1 existence probes and no row is
// touched. Per spec section 9 open question (b), a probe or statement
// that touches zero rows is counted and logged as a warning rather than
// treated as fatal — each file contributes at most 2 to the returned
// count.
func (s *Store) MarkAsDeleted(ctx context.Context, caches *FKCaches, files []*filerecord.FileRecord, dryRun bool) (warnings int, err error) {
	statusID, ok := caches.FileStatus.id(string(filerecord.StatusHardDeleted))
	if !ok {
		return 0, errors.AddContext(mberrors.ErrDictionaryLoad, "file_status missing hard-deleted")
	}

	for _, f := range files {
		wikiID, ok := caches.Wikis.id(f.Wiki)
		if !ok {
			return warnings, errConfigUnknownWiki(f.Wiki)
		}

		n, err := s.touchOrProbe(ctx, dryRun,
			"DELETE FROM backups WHERE wiki = ? AND sha256 = ?",
			"SELECT 1 FROM backups WHERE wiki = ? AND sha256 = ? LIMIT 1",
			wikiID, f.SHA256)
		if err != nil {
			return warnings, err
		}
		if n == 0 {
			warnings++
			if s.log != nil {
				s.log.Printf("WARN: mark_as_deleted found no backups row for wiki=%s sha256=%s", f.Wiki, f.SHA256)
			}
		}

		n, err = s.touchOrProbe(ctx, dryRun,
			"UPDATE files SET status = ? WHERE id = ?",
			"SELECT 1 FROM files WHERE status != ? AND id = ? LIMIT 1",
			statusID, f.ID)
		if err != nil {
			return warnings, err
		}
		if n == 0 {
			warnings++
			if s.log != nil {
				s.log.Printf("WARN: mark_as_deleted found no files row for id=%d wiki=%s", f.ID, f.Wiki)
			}
		}
	}
	return warnings, nil
}

// touchOrProbe runs writeQuery (and reports its RowsAffected) unless
// dryRun, in which case it runs probeQuery instead and reports 1 if a
// row exists, 0 otherwise. probeQuery must select a single dummy column
// and take the same arguments as writeQuery, in the same order.
func (s *Store) touchOrProbe(ctx context.Context, dryRun bool, writeQuery, probeQuery string, args ...interface{}) (int64, error) {
	if !dryRun {
		var n int64
		err := s.withRetry(ctx, func(db *sql.DB) error {
			res, err := db.ExecContext(ctx, writeQuery, args...)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			n = affected
			return nil
		})
		return n, err
	}

	var exists bool
	err := s.withRetry(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, probeQuery, args...)
		scanErr := row.Scan(new(int))
		if scanErr == sql.ErrNoRows {
			exists = false
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		exists = true
		return nil
	})
	if err != nil {
		return 0, err
	}
	if exists {
		return 1, nil
	}
	return 0, nil
}
