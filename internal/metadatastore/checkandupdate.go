package metadatastore

import (
	"context"
	"database/sql"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

func errConfigUnknownWiki(wiki string) error {
	return errors.AddContext(mberrors.ErrConfig, "unknown wiki "+wiki)
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// CheckAndUpdate reconciles a batch of newly-discovered FileRecords for
// wiki against the live files table (spec section 4.7). It selects
// every live row in wiki whose sha1 is in the batch, groups matches by
// sha1, and for each incoming file either inserts, updates in place
// (history-copied first), or leaves it untouched. Returns the number of
// files inserted plus updated.
func (s *Store) CheckAndUpdate(ctx context.Context, caches *FKCaches, wiki string, files []*filerecord.FileRecord) (int, error) {
	sha1s := make([]string, 0, len(files))
	seen := make(map[string]bool)
	for _, f := range files {
		if f.SHA1 == "" || seen[f.SHA1] {
			continue
		}
		seen[f.SHA1] = true
		sha1s = append(sha1s, f.SHA1)
	}

	candidatesBySHA1, err := s.loadLiveRowsBySHA1(ctx, caches, wiki, sha1s)
	if err != nil {
		return 0, err
	}

	var toInsert []*filerecord.FileRecord
	toUpdate := make(map[int64]*filerecord.FileRecord)
	for _, f := range files {
		if f.SHA1 == "" {
			toInsert = append(toInsert, f)
			continue
		}
		group := candidatesBySHA1[f.SHA1]
		if len(group) == 0 {
			if s.log != nil {
				s.log.Printf("WARN: no existing row matched sha1 %s for %s, inserting", f.SHA1, f.UploadName)
			}
			toInsert = append(toInsert, f)
			continue
		}

		filtered := filterByIdentity(group, f)
		switch {
		case len(filtered) == 0:
			if s.log != nil {
				s.log.Printf("WARN: sha1 %s matched but (size, upload_timestamp) differed, inserting", f.SHA1)
			}
			toInsert = append(toInsert, f)
		case len(filtered) > 1:
			if s.log != nil {
				s.log.Printf("ERROR: sha1 %s ambiguous, %d candidates, skipping", f.SHA1, len(filtered))
			}
		default:
			existing := filtered[0]
			if recordsMatch(existing, f) {
				continue
			}
			toUpdate[existing.ID] = f
		}
	}

	if len(toInsert) > 0 {
		if err := s.Add(ctx, caches, toInsert); err != nil {
			return 0, err
		}
	}
	updated, err := s.Update(ctx, caches, toUpdate)
	if err != nil {
		return len(toInsert), err
	}
	return len(toInsert) + updated, nil
}

// filterByIdentity narrows group to rows whose (sha1, size,
// upload_timestamp) exactly matches f.
func filterByIdentity(group []*filerecord.FileRecord, f *filerecord.FileRecord) []*filerecord.FileRecord {
	want := f.Identity()
	var out []*filerecord.FileRecord
	for _, c := range group {
		if c.Identity() == want {
			out = append(out, c)
		}
	}
	return out
}

// recordsMatch reports whether the remaining comparable attributes
// (status, upload_name, file_type, archived_timestamp,
// deleted_timestamp, storage_container, storage_path) are identical,
// meaning the incoming file is an unchanged no-op.
func recordsMatch(existing, incoming *filerecord.FileRecord) bool {
	return existing.Status == incoming.Status &&
		existing.UploadName == incoming.UploadName &&
		existing.FileType == incoming.FileType &&
		equalTimePtr(existing.ArchivedTimestamp, incoming.ArchivedTimestamp) &&
		equalTimePtr(existing.DeletedTimestamp, incoming.DeletedTimestamp) &&
		existing.StorageContainer == incoming.StorageContainer &&
		existing.StoragePath == incoming.StoragePath
}

func (s *Store) loadLiveRowsBySHA1(ctx context.Context, caches *FKCaches, wiki string, sha1s []string) (map[string][]*filerecord.FileRecord, error) {
	result := make(map[string][]*filerecord.FileRecord)
	if len(sha1s) == 0 {
		return result, nil
	}
	wikiID, ok := caches.Wikis.id(wiki)
	if !ok {
		return nil, errConfigUnknownWiki(wiki)
	}

	placeholders := make([]byte, 0, len(sha1s)*2)
	args := make([]interface{}, 0, len(sha1s)+1)
	args = append(args, wikiID)
	for i, sha1 := range sha1s {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, sha1)
	}
	query := `SELECT id, upload_name, file_type, status, size, sha1, sha256, md5, storage_container,
		storage_path, upload_timestamp, archived_timestamp, deleted_timestamp, backup_status
		FROM files WHERE wiki = ? AND sha1 IN (` + string(placeholders) + `)
		AND status NOT IN (SELECT id FROM file_status WHERE status_name = 'hard-deleted')`

	var rows *sql.Rows
	err := s.withRetry(ctx, func(db *sql.DB) error {
		r, qerr := db.QueryContext(ctx, query, args...)
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

	maps := filerecord.NameMaps{
		FileTypeByID:         caches.FileTypes.idToName,
		StorageContainerByID: caches.StorageContainers.idToName,
		FileStatusByID:       caches.FileStatus.idToName,
		BackupStatusByID:     caches.BackupStatus.idToName,
	}
	for rows.Next() {
		fr, err := filerecord.FromRow(rows, wiki, maps)
		if err != nil {
			return nil, err
		}
		result[fr.SHA1] = append(result[fr.SHA1], fr)
	}
	return result, rows.Err()
}
