// Package mberrors defines the error-kind sentinels from spec section 7.
// Kinds are sentinel values composed with github.com/uplo-tech/errors
// (AddContext / Compose), the same pattern the teacher uses throughout
// modules/renter, not distinct Go error types.
package mberrors

import "github.com/uplo-tech/errors"

var (
	// ErrConfig covers bad/unreadable config, unknown wiki, bad dblist
	// expression.
	ErrConfig = errors.New("configuration error")

	// ErrDBConnect covers a failed connection attempt to a production or
	// metadata database.
	ErrDBConnect = errors.New("database connection error")

	// ErrDBQuery is raised when a query fails with a non-recoverable
	// error, or fails, is retried once via a reconnect, and fails again.
	ErrDBQuery = errors.New("database query error")

	// ErrDictionaryLoad means a normalized lookup table (wikis, file_types,
	// storage_containers, file_status, backup_status) came back empty.
	ErrDictionaryLoad = errors.New("normalized dictionary table is empty")

	// ErrDownload covers a failed production object download.
	ErrDownload = errors.New("download error")

	// ErrEncryption covers an age subprocess failure.
	ErrEncryption = errors.New("encryption error")

	// ErrDuplicateFound is a sentinel, not a failure: it signals the
	// pipeline should record a "duplicate" outcome, not "error".
	ErrDuplicateFound = errors.New("duplicate backup content")

	// ErrUpload covers a failed BackupStore put.
	ErrUpload = errors.New("upload error")

	// ErrProductionStillPublic is the pre-deletion gate: the production
	// URL did not return 404.
	ErrProductionStillPublic = errors.New("file is still publicly reachable in production")

	// ErrTimeout covers the 30s HTTP pre-delete probe timing out.
	ErrTimeout = errors.New("operation timed out")

	// ErrSchemaMismatch covers a row/update count that did not match
	// what the caller expected, e.g. an INSERT affecting fewer rows
	// than requested.
	ErrSchemaMismatch = errors.New("row count did not match expectation")
)
