package metadatastore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
)

// BackupRecord is one row of a query_backups_by_* result, augmented with
// the derived fields spec section 4.7 specifies.
type BackupRecord struct {
	filerecord.FileRecord
	Location        int
	BackupTime      string
	BackupPath      string
	BackupContainer string
	ProductionURL   string
}

// BackupContainerName is the constant bucket name every BackupRecord
// reports as its backup_container.
const BackupContainerName = "mediabackups"

// QueryAttribute names the supported query_backups_by_* filters.
type QueryAttribute string

// The query attributes RecoveryFlow and the query-media-file CLI can
// search by.
const (
	ByTitle            QueryAttribute = "title"
	BySHA1Hex          QueryAttribute = "sha1_hex"
	BySHA1Base36       QueryAttribute = "sha1_base36"
	BySHA256           QueryAttribute = "sha256"
	BySwiftPath        QueryAttribute = "swift_path"
	ByUploadDate       QueryAttribute = "upload_date"
	ByArchiveDate      QueryAttribute = "archive_date"
	ByDeleteDate       QueryAttribute = "delete_date"
)

// QueryBackupsBy runs the appropriate parameterized query for attr,
// joining backups/wikis/files/storage_containers/file_status/
// backup_status/file_types, filtering to backedup/duplicate rows, and
// sorting by upload_name, status, upload_timestamp, archived_timestamp,
// deleted_timestamp.
func (s *Store) QueryBackupsBy(ctx context.Context, caches *FKCaches, attr QueryAttribute, value string, endpointForLocation func(int) (string, bool), nonPublicWikiTypes map[string]bool) ([]*BackupRecord, error) {
	var where string
	switch attr {
	case ByTitle:
		where = "f.upload_name = ?"
	case BySHA1Hex:
		where = "b.sha1 = ?"
	case BySHA1Base36:
		where = "b.sha1 = ?" // caller base36-decodes before calling
	case BySHA256:
		where = "b.sha256 = ?"
	case BySwiftPath:
		where = "f.storage_path = ?"
	case ByUploadDate:
		where = "DATE(f.upload_timestamp) = ?"
	case ByArchiveDate:
		where = "DATE(f.archived_timestamp) = ?"
	case ByDeleteDate:
		where = "DATE(f.deleted_timestamp) = ?"
	default:
		return nil, fmt.Errorf("metadatastore: unsupported query attribute %q", attr)
	}

	query := fmt.Sprintf(`SELECT b.location, b.backup_time, f.id, f.upload_name, ft.type_name, fs.status_name,
		f.size, f.sha1, b.sha256, f.md5, sc.storage_container_name, f.storage_path, f.upload_timestamp,
		f.archived_timestamp, f.deleted_timestamp, bs.backup_status_name, w.wiki_name, w.type
		FROM backups b
		JOIN wikis w ON w.id = b.wiki
		JOIN files f ON f.wiki = b.wiki AND f.sha256 = b.sha256
		JOIN storage_containers sc ON sc.id = f.storage_container
		JOIN file_status fs ON fs.id = f.status
		JOIN backup_status bs ON bs.id = f.backup_status
		JOIN file_types ft ON ft.id = f.file_type
		WHERE bs.backup_status_name IN ('backedup','duplicate') AND %s
		ORDER BY f.upload_name, fs.status_name, f.upload_timestamp, f.archived_timestamp, f.deleted_timestamp`, where)

	rows, err := s.query(ctx, query, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*BackupRecord
	for rows.Next() {
		rec, err := scanBackupRecord(rows, endpointForLocation, nonPublicWikiTypes)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, func(db *sql.DB) error {
		r, qerr := db.QueryContext(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		rows = r
		return nil
	})
	return rows, err
}

func scanBackupRecord(rows *sql.Rows, endpointForLocation func(int) (string, bool), nonPublicWikiTypes map[string]bool) (*BackupRecord, error) {
	var (
		location                                       int
		backupTime                                     string
		id                                              int64
		uploadName, fileType, status                    string
		size                                             sql.NullInt64
		sha1, sha256, md5, container, storagePath       string
		uploadTS, archivedTS, deletedTS                  sql.NullTime
		backupStatus, wiki, wikiType                     string
	)
	if err := rows.Scan(&location, &backupTime, &id, &uploadName, &fileType, &status, &size, &sha1, &sha256,
		&md5, &container, &storagePath, &uploadTS, &archivedTS, &deletedTS, &backupStatus, &wiki, &wikiType); err != nil {
		return nil, err
	}

	rec := &BackupRecord{
		FileRecord: filerecord.FileRecord{
			ID: id, Wiki: wiki, UploadName: uploadName, Status: filerecord.Status(status),
			FileType: fileType, SHA1: sha1, SHA256: sha256, MD5: md5,
			StorageContainer: container, StoragePath: storagePath,
			BackupStatus: filerecord.BackupStatus(backupStatus),
		},
		Location:        location,
		BackupTime:      backupTime,
		BackupContainer: BackupContainerName,
	}
	if size.Valid {
		v := size.Int64
		rec.Size = &v
	}
	if uploadTS.Valid {
		v := uploadTS.Time.UTC()
		rec.UploadTimestamp = &v
	}
	if archivedTS.Valid {
		v := archivedTS.Time.UTC()
		rec.ArchivedTimestamp = &v
	}
	if deletedTS.Valid {
		v := deletedTS.Time.UTC()
		rec.DeletedTimestamp = &v
	}

	rec.BackupPath = BackupPath(wiki, sha256, nonPublicWikiTypes[wikiType])
	rec.ProductionURL = SwiftToURL(rec.Status, container, storagePath)
	_ = endpointForLocation
	return rec, nil
}

// BackupPath computes {wiki}/{sha256[:3]}/{sha256}, appended with .age
// iff nonPublic.
func BackupPath(wiki, sha256 string, nonPublic bool) string {
	prefix := sha256
	if len(sha256) >= 3 {
		prefix = sha256[:3]
	}
	path := fmt.Sprintf("%s/%s/%s", wiki, prefix, sha256)
	if nonPublic {
		path += ".age"
	}
	return path
}

// SwiftToURL returns the production URL for (status, container, path).
// It returns "" (the Go stand-in for null) when status is deleted or
// the container lacks a hyphen, percent-encoding each path segment to
// avoid the double-encoding subtlety with "!" in archived filenames
// (spec section 9 design note).
func SwiftToURL(status filerecord.Status, container, path string) string {
	if status == filerecord.StatusDeleted {
		return ""
	}
	parts := strings.SplitN(container, "-", 3)
	if len(parts) < 2 {
		return ""
	}
	project, subproject := parts[0], parts[1]

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("https://upload.wikimedia.org/%s/%s/%s",
		url.PathEscape(project), url.PathEscape(subproject), strings.Join(segments, "/"))
}

// GetNonPublicWikis lists wikis whose type is not "public".
func (s *Store) GetNonPublicWikis(ctx context.Context) (map[string]bool, error) {
	rows, err := s.query(ctx, "SELECT wiki_name FROM wikis WHERE type != 'public'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result[name] = true
	}
	return result, rows.Err()
}

// IsValidWiki reports whether name exists in the wikis table.
func (s *Store) IsValidWiki(ctx context.Context, name string) (bool, error) {
	rows, err := s.query(ctx, "SELECT 1 FROM wikis WHERE wiki_name = ? LIMIT 1", name)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// GetLatestUploadTime returns the max upload_timestamp over public rows
// in wiki, used as IncrementalUpdater's watermark.
func (s *Store) GetLatestUploadTime(ctx context.Context, wiki string) (sql.NullTime, error) {
	rows, err := s.query(ctx,
		"SELECT MAX(f.upload_timestamp) FROM files f JOIN wikis w ON w.id = f.wiki JOIN file_status fs ON fs.id = f.status WHERE w.wiki_name = ? AND fs.status_name = 'public'", wiki)
	if err != nil {
		return sql.NullTime{}, err
	}
	defer rows.Close()
	var t sql.NullTime
	if rows.Next() {
		if err := rows.Scan(&t); err != nil {
			return sql.NullTime{}, err
		}
	}
	return t, rows.Err()
}
