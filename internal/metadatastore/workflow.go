package metadatastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

// ProcessFilesIterator is a pull iterator yielding batches of claimed
// (formerly pending, now processing) files. It terminates the first
// time a pass sees zero pending rows.
type ProcessFilesIterator struct {
	store     *Store
	caches    *FKCaches
	batchSize int
	done      bool
}

// ProcessFiles returns an iterator of up to batchSize pending files,
// claimed (flipped to processing) one batch at a time.
func (s *Store) ProcessFiles(caches *FKCaches, batchSize int) *ProcessFilesIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ProcessFilesIterator{store: s, caches: caches, batchSize: batchSize}
}

// Next claims and returns the next batch as id -> FileRecord, or
// ok=false once no pending rows remain.
func (it *ProcessFilesIterator) Next(ctx context.Context) (batch map[int64]*filerecord.FileRecord, ok bool, err error) {
	if it.done {
		return nil, false, nil
	}
	s := it.store

	var ids []int64
	err = s.withRetry(ctx, func(db *sql.DB) error {
		tx, terr := db.BeginTx(ctx, nil)
		if terr != nil {
			return terr
		}
		defer tx.Rollback()

		pendingID, ok := it.caches.BackupStatus.id(string(filerecord.BackupPending))
		if !ok {
			return errors.AddContext(mberrors.ErrDictionaryLoad, "backup_status missing pending")
		}
		rows, qerr := tx.QueryContext(ctx,
			"SELECT id FROM files WHERE backup_status = ? ORDER BY id LIMIT ? FOR UPDATE", pendingID, it.batchSize)
		if qerr != nil {
			return qerr
		}
		for rows.Next() {
			var id int64
			if serr := rows.Scan(&id); serr != nil {
				rows.Close()
				return serr
			}
			ids = append(ids, id)
		}
		if rerr := rows.Err(); rerr != nil {
			rows.Close()
			return rerr
		}
		rows.Close()

		if len(ids) == 0 {
			return tx.Commit()
		}

		processingID, ok := it.caches.BackupStatus.id(string(filerecord.BackupProcessing))
		if !ok {
			return errors.AddContext(mberrors.ErrDictionaryLoad, "backup_status missing processing")
		}
		placeholders, args := idsPlaceholders(ids)
		args = append([]interface{}{processingID}, args...)
		res, uerr := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE files SET backup_status = ? WHERE id IN (%s)", placeholders), args...)
		if uerr != nil {
			return uerr
		}
		n, raerr := res.RowsAffected()
		if raerr != nil {
			return raerr
		}
		if n != int64(len(ids)) {
			return errors.AddContext(mberrors.ErrSchemaMismatch,
				fmt.Sprintf("process_files: claimed %d rows, updated %d", len(ids), n))
		}
		// Committing here releases the row locks, per spec section 5.
		return tx.Commit()
	})
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 {
		it.done = true
		return nil, false, nil
	}

	batch, err = s.loadFilesByID(ctx, it.caches, ids)
	if err != nil {
		return nil, false, err
	}
	return batch, true, nil
}

func (s *Store) loadFilesByID(ctx context.Context, caches *FKCaches, ids []int64) (map[int64]*filerecord.FileRecord, error) {
	result := make(map[int64]*filerecord.FileRecord, len(ids))
	placeholders, args := idsPlaceholders(ids)

	var rows *sql.Rows
	err := s.withRetry(ctx, func(db *sql.DB) error {
		wikiNamesQuery := fmt.Sprintf(`SELECT f.id, f.upload_name, f.file_type, f.status, f.size, f.sha1,
			f.sha256, f.md5, f.storage_container, f.storage_path, f.upload_timestamp, f.archived_timestamp,
			f.deleted_timestamp, f.backup_status, w.wiki_name
			FROM files f JOIN wikis w ON w.id = f.wiki WHERE f.id IN (%s)`, placeholders)
		r, qerr := db.QueryContext(ctx, wikiNamesQuery, args...)
		if qerr != nil {
			return qerr
		}
		rows = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		fr, wiki, err := scanFileWithWiki(rows, caches)
		if err != nil {
			return nil, err
		}
		fr.Wiki = wiki
		result[fr.ID] = fr
	}
	return result, rows.Err()
}

func scanFileWithWiki(rows *sql.Rows, caches *FKCaches) (*filerecord.FileRecord, string, error) {
	var (
		id                                                 int64
		uploadName, sha1, sha256, md5, storagePath, wiki   sql.NullString
		fileTypeID, statusID, containerID, backupStatusID  sql.NullInt64
		size                                                sql.NullInt64
		uploadTS, archivedTS, deletedTS                     sql.NullTime
	)
	if err := rows.Scan(&id, &uploadName, &fileTypeID, &statusID, &size, &sha1, &sha256, &md5,
		&containerID, &storagePath, &uploadTS, &archivedTS, &deletedTS, &backupStatusID, &wiki); err != nil {
		return nil, "", errors.AddContext(err, "metadatastore: scanning file")
	}
	fr := &filerecord.FileRecord{
		ID:               id,
		UploadName:       uploadName.String,
		FileType:         lookupName(caches.FileTypes, fileTypeID, "ERROR"),
		Status:           filerecord.Status(lookupName(caches.FileStatus, statusID, string(filerecord.StatusDeleted))),
		SHA1:             sha1.String,
		SHA256:           sha256.String,
		MD5:              md5.String,
		StorageContainer: lookupName(caches.StorageContainers, containerID, ""),
		StoragePath:      storagePath.String,
		BackupStatus:     filerecord.BackupStatus(lookupName(caches.BackupStatus, backupStatusID, string(filerecord.BackupPending))),
	}
	if size.Valid {
		v := size.Int64
		fr.Size = &v
	}
	if uploadTS.Valid {
		v := uploadTS.Time.UTC()
		fr.UploadTimestamp = &v
	}
	if archivedTS.Valid {
		v := archivedTS.Time.UTC()
		fr.ArchivedTimestamp = &v
	}
	if deletedTS.Valid {
		v := deletedTS.Time.UTC()
		fr.DeletedTimestamp = &v
	}
	return fr, wiki.String, nil
}

func idsPlaceholders(ids []int64) (string, []interface{}) {
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	return string(placeholders), args
}

// StatusUpdate is one outcome to commit via UpdateStatus.
type StatusUpdate struct {
	ID       int64
	File     *filerecord.FileRecord
	Status   filerecord.BackupStatus
	Location int // 1-based backup_location, only meaningful when Status == BackedUp
}

// UpdateStatus applies every entry's backup_status, inserting a backups
// ledger row for each BackedUp outcome. Exactly one files row must be
// affected per entry. A unique-key collision on the backups insert is
// logged and swallowed (idempotent); any other insert error downgrades
// that entry's files.backup_status to "error" in the same transaction,
// so a row is never left marked backedup without a matching backups row.
func (s *Store) UpdateStatus(ctx context.Context, caches *FKCaches, entries []StatusUpdate) error {
	return s.withRetry(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, e := range entries {
			statusID, ok := caches.BackupStatus.id(string(e.Status))
			if !ok {
				return errors.AddContext(mberrors.ErrDictionaryLoad, "backup_status missing "+string(e.Status))
			}
			res, uerr := tx.ExecContext(ctx, "UPDATE files SET backup_status = ? WHERE id = ?", statusID, e.ID)
			if uerr != nil {
				return uerr
			}
			n, raerr := res.RowsAffected()
			if raerr != nil {
				return raerr
			}
			if n != 1 {
				return errors.AddContext(mberrors.ErrSchemaMismatch,
					fmt.Sprintf("update_status: id %d affected %d rows", e.ID, n))
			}

			if e.Status == filerecord.BackupBackedUp {
				wikiID, ok := caches.Wikis.id(e.File.Wiki)
				if !ok {
					return errConfigUnknownWiki(e.File.Wiki)
				}
				_, ierr := tx.ExecContext(ctx,
					"INSERT INTO backups (location, wiki, sha1, sha256, backup_time) VALUES (?, ?, ?, ?, NOW())",
					e.Location, wikiID, e.File.SHA1, e.File.SHA256)
				if ierr != nil {
					if isUniqueViolation(ierr) {
						if s.log != nil {
							s.log.Printf("WARN: duplicate backups row for wiki=%s sha256=%s, ignoring", e.File.Wiki, e.File.SHA256)
						}
					} else {
						if s.log != nil {
							s.log.Printf("ERROR: inserting backups row for wiki=%s sha256=%s: %v, marking files.id=%d as error", e.File.Wiki, e.File.SHA256, ierr, e.ID)
						}
						errorStatusID, ok := caches.BackupStatus.id(string(filerecord.BackupError))
						if !ok {
							return errors.AddContext(mberrors.ErrDictionaryLoad, "backup_status missing "+string(filerecord.BackupError))
						}
						if _, derr := tx.ExecContext(ctx, "UPDATE files SET backup_status = ? WHERE id = ?", errorStatusID, e.ID); derr != nil {
							return derr
						}
					}
				}
			}
		}
		return tx.Commit()
	})
}

// isUniqueViolation reports whether err looks like a MySQL duplicate-key
// error (errno 1062).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "1062") || strings.Contains(msg, "Duplicate entry")
}
