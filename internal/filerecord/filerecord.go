// Package filerecord defines the in-memory model of one file revision
// (spec section 4.2) shared by ProductionCatalog, MetadataStore, and
// BackupPipeline.
package filerecord

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/uplo-tech/errors"
)

// Status is a FileRecord's production lifecycle state.
type Status string

// The four production statuses a FileRecord can carry.
const (
	StatusPublic      Status = "public"
	StatusArchived    Status = "archived"
	StatusDeleted     Status = "deleted"
	StatusHardDeleted Status = "hard-deleted"
)

// BackupStatus is a files-table row's workflow state (spec section 4.7).
type BackupStatus string

// The backup-status state machine's five values.
const (
	BackupPending    BackupStatus = "pending"
	BackupProcessing BackupStatus = "processing"
	BackupBackedUp   BackupStatus = "backedup"
	BackupDuplicate  BackupStatus = "duplicate"
	BackupError      BackupStatus = "error"
)

// unknownFileType is substituted for a file_type the caller could not
// classify, per spec section 3.
const unknownFileType = "ERROR"

// FileRecord represents one revision of one media file, production or
// backup side.
type FileRecord struct {
	ID     int64
	Wiki   string
	// UploadName is the title, underscored, without a "File:" prefix. It
	// may be empty for some deleted rows.
	UploadName string
	Status     Status
	// FileType defaults to unknownFileType when the source value is not
	// recognized.
	FileType string
	// Size is non-negative when known; nil means absent.
	Size *int64

	UploadTimestamp   *time.Time
	ArchivedTimestamp *time.Time
	DeletedTimestamp  *time.Time

	// SHA1 is 40-hex lowercase, zero-padded; may be empty.
	SHA1 string
	// SHA256 is 64-hex lowercase, zero-padded; filled by the pipeline
	// after download.
	SHA256 string
	MD5    string

	StorageContainer string
	StoragePath      string

	BackupStatus BackupStatus
}

// New constructs a FileRecord with its three required fields, defaulting
// FileType to the ERROR sentinel that NormalizeFileType gives
// unrecognized categories.
func New(wiki, uploadName string, status Status) (*FileRecord, error) {
	if wiki == "" {
		return nil, errors.New("filerecord: wiki must not be empty")
	}
	return &FileRecord{
		Wiki:       wiki,
		UploadName: uploadName,
		Status:     status,
		FileType:   unknownFileType,
	}, nil
}

// NormalizeFileType replaces an unrecognized file type with the ERROR
// sentinel, matching the "defaults to ERROR if unknown" rule.
func NormalizeFileType(known map[string]bool, fileType string) string {
	if fileType == "" || !known[fileType] {
		return unknownFileType
	}
	return fileType
}

// Properties is the canonical persistence projection: a stable,
// order-independent key set used by Equal to compare two records.
type Properties struct {
	Wiki              string
	UploadName        string
	Status            Status
	FileType          string
	Size              *int64
	UploadTimestamp   *time.Time
	ArchivedTimestamp *time.Time
	DeletedTimestamp  *time.Time
	SHA1              string
	SHA256            string
	MD5               string
	StorageContainer  string
	StoragePath       string
	BackupStatus      BackupStatus
}

// Properties returns f's canonical persistence projection.
func (f *FileRecord) Properties() Properties {
	return Properties{
		Wiki:              f.Wiki,
		UploadName:        f.UploadName,
		Status:            f.Status,
		FileType:          f.FileType,
		Size:              f.Size,
		UploadTimestamp:   f.UploadTimestamp,
		ArchivedTimestamp: f.ArchivedTimestamp,
		DeletedTimestamp:  f.DeletedTimestamp,
		SHA1:              f.SHA1,
		SHA256:            f.SHA256,
		MD5:               f.MD5,
		StorageContainer:  f.StorageContainer,
		StoragePath:       f.StoragePath,
		BackupStatus:      f.BackupStatus,
	}
}

// Equal reports structural equality of f's persistence projection against
// other. ID and the in-process-only fields are ignored, matching the
// reference implementation's equality over "everything that would be
// written to the database".
func (f *FileRecord) Equal(other *FileRecord) bool {
	if other == nil {
		return false
	}
	a, b := f.Properties(), other.Properties()
	return a.Wiki == b.Wiki &&
		a.UploadName == b.UploadName &&
		a.Status == b.Status &&
		a.FileType == b.FileType &&
		equalInt64Ptr(a.Size, b.Size) &&
		equalTimePtr(a.UploadTimestamp, b.UploadTimestamp) &&
		equalTimePtr(a.ArchivedTimestamp, b.ArchivedTimestamp) &&
		equalTimePtr(a.DeletedTimestamp, b.DeletedTimestamp) &&
		a.SHA1 == b.SHA1 &&
		a.SHA256 == b.SHA256 &&
		a.MD5 == b.MD5 &&
		a.StorageContainer == b.StorageContainer &&
		a.StoragePath == b.StoragePath &&
		a.BackupStatus == b.BackupStatus
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// DedupeKey returns the key used for de-duplication within a batch: the
// FileRecord's sha1. Two records with the same sha1 are interchangeable
// for de-duplication purposes, matching the spec's hash-derived-from-sha1
// contract.
func (f *FileRecord) DedupeKey() string {
	return f.SHA1
}

// IdentityKey returns the (wiki, sha1, size, upload_timestamp) tuple that
// identifies a revision across discovery passes.
type IdentityKey struct {
	Wiki            string
	SHA1            string
	Size            int64
	UploadTimestamp int64 // unix seconds, 0 if absent
}

// Identity computes f's IdentityKey.
func (f *FileRecord) Identity() IdentityKey {
	var size int64
	if f.Size != nil {
		size = *f.Size
	}
	var ts int64
	if f.UploadTimestamp != nil {
		ts = f.UploadTimestamp.Unix()
	}
	return IdentityKey{Wiki: f.Wiki, SHA1: f.SHA1, Size: size, UploadTimestamp: ts}
}

// NameMaps bundles the foreign-key name<->id caches FromRow needs to
// decode normalized columns back into strings.
type NameMaps struct {
	FileTypeByID         map[int64]string
	StorageContainerByID map[int64]string
	FileStatusByID       map[int64]string
	BackupStatusByID     map[int64]string
}

// FromRow decodes one files-table row (already narrowed to the columns
// below, in order) into a FileRecord, resolving normalized foreign keys
// through maps and explicitly handling SQL NULLs.
func FromRow(row *sql.Rows, wiki string, maps NameMaps) (*FileRecord, error) {
	var (
		id                  int64
		uploadName          sql.NullString
		fileTypeID          sql.NullInt64
		statusID            sql.NullInt64
		size                sql.NullInt64
		sha1                sql.NullString
		sha256              sql.NullString
		md5                 sql.NullString
		storageContainerID  sql.NullInt64
		storagePath         sql.NullString
		uploadTimestamp     sql.NullTime
		archivedTimestamp   sql.NullTime
		deletedTimestamp    sql.NullTime
		backupStatusID      sql.NullInt64
	)
	if err := row.Scan(&id, &uploadName, &fileTypeID, &statusID, &size, &sha1, &sha256, &md5,
		&storageContainerID, &storagePath, &uploadTimestamp, &archivedTimestamp, &deletedTimestamp,
		&backupStatusID); err != nil {
		return nil, errors.AddContext(err, "filerecord: unable to scan row")
	}

	fr := &FileRecord{
		ID:         id,
		Wiki:       wiki,
		UploadName: nullableString(uploadName),
		FileType:   lookupOrDefault(maps.FileTypeByID, fileTypeID, unknownFileType),
		Status:     Status(lookupOrDefault(maps.FileStatusByID, statusID, string(StatusDeleted))),
		SHA1:       nullableString(sha1),
		SHA256:     nullableString(sha256),
		MD5:        nullableString(md5),
		StorageContainer: lookupOrDefault(maps.StorageContainerByID, storageContainerID, ""),
		StoragePath:      nullableString(storagePath),
		BackupStatus:     BackupStatus(lookupOrDefault(maps.BackupStatusByID, backupStatusID, string(BackupPending))),
	}
	if size.Valid {
		v := size.Int64
		fr.Size = &v
	}
	if uploadTimestamp.Valid {
		v := uploadTimestamp.Time.UTC()
		fr.UploadTimestamp = &v
	}
	if archivedTimestamp.Valid {
		v := archivedTimestamp.Time.UTC()
		fr.ArchivedTimestamp = &v
	}
	if deletedTimestamp.Valid {
		v := deletedTimestamp.Time.UTC()
		fr.DeletedTimestamp = &v
	}
	return fr, nil
}

func nullableString(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func lookupOrDefault(m map[int64]string, id sql.NullInt64, def string) string {
	if !id.Valid {
		return def
	}
	if name, ok := m[id.Int64]; ok {
		return name
	}
	return def
}

// String implements fmt.Stringer for log lines.
func (f *FileRecord) String() string {
	return fmt.Sprintf("FileRecord{wiki=%s upload_name=%s status=%s sha1=%s backup_status=%s}",
		f.Wiki, f.UploadName, f.Status, f.SHA1, f.BackupStatus)
}
