package metadatastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

// Add inserts new rows for files in a single multi-row INSERT. The
// insert must affect exactly len(files) rows.
func (s *Store) Add(ctx context.Context, caches *FKCaches, files []*filerecord.FileRecord) error {
	if len(files) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO files (wiki, upload_name, file_type, status, size, sha1, sha256, md5, " +
		"storage_container, storage_path, upload_timestamp, archived_timestamp, deleted_timestamp, backup_status) VALUES ")
	args := make([]interface{}, 0, len(files)*14)
	for i, f := range files {
		wikiID, fileTypeID, statusID, containerID, err := fileRecordForeignKeys(caches, f)
		if err != nil {
			return err
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		backupStatus := f.BackupStatus
		if backupStatus == "" {
			backupStatus = filerecord.BackupPending
		}
		args = append(args, wikiID, f.UploadName, fileTypeID, statusID, nullableInt64(f.Size),
			nullableString(f.SHA1), nullableString(f.SHA256), nullableString(f.MD5),
			nullableContainerID(containerID, f.StorageContainer), nullableString(f.StoragePath),
			nullableTime(f.UploadTimestamp), nullableTime(f.ArchivedTimestamp), nullableTime(f.DeletedTimestamp),
			string(backupStatus))
	}

	return s.withRetry(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != int64(len(files)) {
			return errors.AddContext(mberrors.ErrSchemaMismatch,
				fmt.Sprintf("add: inserted %d rows, expected %d", n, len(files)))
		}
		return nil
	})
}

// Update applies id_to_file, history-copying each row before the
// in-place update. If a row's storage address changed while its
// backup_status was error, the update also re-arms backup_status to
// pending (spec section 4.7, design note on the conjunctive re-arm
// rule). Returns the count of successful updates.
func (s *Store) Update(ctx context.Context, caches *FKCaches, idToFile map[int64]*filerecord.FileRecord) (int, error) {
	updated := 0
	for id, f := range idToFile {
		ok, err := s.updateOne(ctx, caches, id, f)
		if err != nil {
			return updated, err
		}
		if ok {
			updated++
		}
	}
	return updated, nil
}

func (s *Store) updateOne(ctx context.Context, caches *FKCaches, id int64, f *filerecord.FileRecord) (bool, error) {
	var applied bool
	err := s.withRetry(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		current, addrChanged, err := copyToHistoryAndDiff(ctx, tx, caches, id, f)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}

		wikiID, fileTypeID, statusID, containerID, err := fileRecordForeignKeys(caches, f)
		if err != nil {
			return err
		}
		newStatus := current.BackupStatus
		if addrChanged && current.BackupStatus == filerecord.BackupError {
			newStatus = filerecord.BackupPending
		}

		_, err = tx.ExecContext(ctx, `UPDATE files SET wiki=?, upload_name=?, file_type=?, status=?, size=?,
			sha1=?, sha256=?, md5=?, storage_container=?, storage_path=?, upload_timestamp=?,
			archived_timestamp=?, deleted_timestamp=?, backup_status=? WHERE id=?`,
			wikiID, f.UploadName, fileTypeID, statusID, nullableInt64(f.Size),
			nullableString(f.SHA1), nullableString(f.SHA256), nullableString(f.MD5),
			nullableContainerID(containerID, f.StorageContainer), nullableString(f.StoragePath),
			nullableTime(f.UploadTimestamp), nullableTime(f.ArchivedTimestamp), nullableTime(f.DeletedTimestamp),
			string(newStatus), id)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// copyToHistoryAndDiff loads the live row for id, appends it verbatim to
// file_history within tx, and reports whether (storage_container,
// storage_path) differs from f. Per spec section 9 open question (a),
// the history insert and the subsequent update are wrapped in one
// transaction here even though that guarantee is not explicit in every
// branch of the original design.
func copyToHistoryAndDiff(ctx context.Context, tx *sql.Tx, caches *FKCaches, id int64, f *filerecord.FileRecord) (current *filerecord.FileRecord, addrChanged bool, err error) {
	row := tx.QueryRowContext(ctx, `SELECT id, upload_name, file_type, status, size, sha1, sha256, md5,
		storage_container, storage_path, upload_timestamp, archived_timestamp, deleted_timestamp, backup_status
		FROM files WHERE id=? FOR UPDATE`, id)

	var (
		rowID                                                int64
		uploadName, sha1, sha256, md5, storagePath            sql.NullString
		fileTypeID, statusID, containerID, backupStatusID     sql.NullInt64
		size                                                  sql.NullInt64
		uploadTS, archivedTS, deletedTS                       sql.NullTime
	)
	if err := row.Scan(&rowID, &uploadName, &fileTypeID, &statusID, &size, &sha1, &sha256, &md5,
		&containerID, &storagePath, &uploadTS, &archivedTS, &deletedTS, &backupStatusID); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	current = &filerecord.FileRecord{
		ID:               rowID,
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
		current.Size = &v
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO file_history (file_id, upload_name, file_type, status, size,
		sha1, sha256, md5, storage_container, storage_path, upload_timestamp, archived_timestamp, deleted_timestamp,
		backup_status) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rowID, uploadName, fileTypeID, statusID, size, sha1, sha256, md5, containerID, storagePath,
		uploadTS, archivedTS, deletedTS, backupStatusID); err != nil {
		return nil, false, err
	}

	addrChanged = current.StorageContainer != f.StorageContainer || current.StoragePath != f.StoragePath
	return current, addrChanged, nil
}

func lookupName(m nameIDMap, id sql.NullInt64, def string) string {
	if !id.Valid {
		return def
	}
	if name, ok := m.name(id.Int64); ok {
		return name
	}
	return def
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableContainerID(id int64, raw string) interface{} {
	if raw == "" {
		return nil
	}
	return id
}
