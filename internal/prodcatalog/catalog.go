// Package prodcatalog enumerates all revisions of every file for a given
// wiki from its production relational database (spec section 4.3).
package prodcatalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
	"github.com/wikimedia/operations-software-mediabackups/internal/hashcodec"
	"github.com/wikimedia/operations-software-mediabackups/internal/mblog"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
	"github.com/wikimedia/operations-software-mediabackups/internal/swiftaddr"
)

// SourceTable identifies one of the three production tables a wiki's
// files live in.
type SourceTable int

// The three source tables, in the order ProductionCatalog scans them.
const (
	TableImage SourceTable = iota
	TableOldImage
	TableFileArchive
)

func (t SourceTable) String() string {
	switch t {
	case TableImage:
		return "image"
	case TableOldImage:
		return "oldimage"
	case TableFileArchive:
		return "filearchive"
	default:
		return "unknown"
	}
}

// Catalog is a connection to one wiki's production database.
type Catalog struct {
	wiki      string
	dsn       string
	db        *sql.DB
	batchSize int
	bigWiki   bool
	log       *mblog.Logger
}

// Open connects to wiki's production database. batchSize bounds how many
// FileRecords a single Next() call returns; bigWiki selects range-paged
// discovery over a single unbounded query.
func Open(ctx context.Context, wiki, dsn string, batchSize int, bigWiki bool, log *mblog.Logger) (*Catalog, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Extend(err, mberrors.ErrDBConnect)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Extend(err, mberrors.ErrDBConnect)
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Catalog{wiki: wiki, dsn: dsn, db: db, batchSize: batchSize, bigWiki: bigWiki, log: log}, nil
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// isRecoverable reports whether err looks like a lost or broken
// connection worth a single reconnect-and-retry. Only the connection
// messages listed below match; syntax errors and other server-side
// errors are not treated as recoverable.
func isRecoverable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"driver: bad connection", "invalid connection", "broken pipe",
		"connection reset", "server has gone away", "lost connection", "i/o timeout"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// reconnect replaces c.db with a fresh connection to the same DSN.
func (c *Catalog) reconnect(ctx context.Context) error {
	newDB, err := sql.Open("mysql", c.dsn)
	if err != nil {
		return errors.Extend(err, mberrors.ErrDBConnect)
	}
	if err := newDB.PingContext(ctx); err != nil {
		newDB.Close()
		return errors.Extend(err, mberrors.ErrDBConnect)
	}
	old := c.db
	c.db = newDB
	old.Close()
	return nil
}

// queryWithRetry runs query once; on a recoverable error it reconnects
// exactly once and retries. A second failure raises ErrDBQuery.
func (c *Catalog) queryWithRetry(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err == nil {
		return rows, nil
	}
	if !isRecoverable(err) {
		return nil, errors.Extend(err, mberrors.ErrDBQuery)
	}
	if c.log != nil {
		c.log.Printf("WARN: recoverable error querying %s for %s, reconnecting: %v", c.wiki, query, err)
	}
	if rerr := c.reconnect(ctx); rerr != nil {
		return nil, rerr
	}
	rows, err = c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Extend(err, mberrors.ErrDBQuery)
	}
	return rows, nil
}

// BatchIterator is a lazy, non-restartable pull iterator over one source
// table's FileRecord batches, scoped to Close().
type BatchIterator struct {
	catalog *Catalog
	table   SourceTable
	slices  []Slice
	sliceAt int
	rows    *sql.Rows
	done    bool
}

// Scan returns a BatchIterator over table, range-paged if the wiki is
// big, else a single unbounded query.
func (c *Catalog) Scan(table SourceTable) *BatchIterator {
	return &BatchIterator{
		catalog: c,
		table:   table,
		slices:  Slices(c.bigWiki),
	}
}

// Close releases the iterator's open cursor, if any.
func (it *BatchIterator) Close() error {
	if it.rows != nil {
		return it.rows.Close()
	}
	return nil
}

// Next returns up to the catalog's batch size of FileRecords, or a nil
// slice with ok=false once every slice has been exhausted. The underlying cursor advances across Next calls and is
// not restartable.
func (it *BatchIterator) Next(ctx context.Context) (batch []*filerecord.FileRecord, ok bool, err error) {
	if it.done {
		return nil, false, nil
	}
	for {
		if it.rows == nil {
			if it.sliceAt >= len(it.slices) {
				it.done = true
				return nil, false, nil
			}
			sl := it.slices[it.sliceAt]
			it.sliceAt++
			query, args := buildQuery(it.table, it.catalog.wiki, sl)
			rows, qerr := it.catalog.queryWithRetry(ctx, query, args...)
			if qerr != nil {
				return nil, false, qerr
			}
			it.rows = rows
		}

		batch, more, decodeErr := decodeBatch(it.rows, it.table, it.catalog.wiki, it.catalog.bigWiki, it.catalog.batchSize, it.catalog.log)
		if decodeErr != nil {
			it.rows.Close()
			it.rows = nil
			return nil, false, decodeErr
		}
		if len(batch) > 0 {
			if !more {
				it.rows.Close()
				it.rows = nil
			}
			return batch, true, nil
		}
		// Slice produced nothing; close and move to the next one.
		it.rows.Close()
		it.rows = nil
	}
}

// LookupByTitle re-reads the current image-table row for title, used by
// IncrementalUpdater to resolve one logevents entry into a fresh
// FileRecord (spec section 4.10). Returns ok=false if no row (or more
// than one) matches.
func (c *Catalog) LookupByTitle(ctx context.Context, title string) (*filerecord.FileRecord, bool, error) {
	rows, err := c.queryWithRetry(ctx,
		"SELECT img_name, img_size, img_media_type, img_timestamp, img_sha1 FROM image WHERE img_name = ?", title)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var found *filerecord.FileRecord
	for rows.Next() {
		fr, err := decodeImageRow(rows, c.wiki, c.bigWiki, c.log)
		if err != nil {
			return nil, false, err
		}
		if found != nil {
			return nil, false, nil
		}
		found = fr
	}
	if err := rows.Err(); err != nil {
		return nil, false, errors.Extend(err, mberrors.ErrDBQuery)
	}
	return found, found != nil, nil
}

// buildQuery constructs the WHERE 1=1 AND <range> ORDER BY query for
// table, matching spec section 6's query shapes.
func buildQuery(table SourceTable, wiki string, sl Slice) (string, []interface{}) {
	var cols, from, order string
	switch table {
	case TableImage:
		cols = "img_name, img_size, img_media_type, img_timestamp, img_sha1"
		from = "image"
		order = "img_name"
	case TableOldImage:
		cols = "oi_name, oi_archive_name, oi_size, oi_media_type, oi_timestamp, oi_sha1, oi_deleted"
		from = "oldimage"
		order = "oi_name, oi_archive_name"
	case TableFileArchive:
		cols = "fa_name, fa_archive_name, fa_storage_key, fa_size, fa_media_type, fa_timestamp, fa_deleted_timestamp, fa_sha1"
		from = "filearchive"
		order = "fa_name, fa_storage_key"
	}
	nameCol := order
	if idx := strings.Index(order, ","); idx >= 0 {
		nameCol = order[:idx]
	}

	where := "WHERE 1=1"
	var args []interface{}
	if sl.Lower != nil {
		where += fmt.Sprintf(" AND %s >= ?", nameCol)
		args = append(args, *sl.Lower)
	}
	if sl.Upper != nil {
		where += fmt.Sprintf(" AND %s < ?", nameCol)
		args = append(args, *sl.Upper)
	}
	return fmt.Sprintf("SELECT %s FROM %s %s ORDER BY %s", cols, from, where, order), args
}

// decodeBatch reads up to batchSize rows from rows and decodes them into
// FileRecords. more is true when the batch filled up before rows ran
// out (the caller keeps the cursor open, though rows may hold no
// further row) and false once rows is exhausted.
func decodeBatch(rows *sql.Rows, table SourceTable, wiki string, bigWiki bool, batchSize int, log *mblog.Logger) (batch []*filerecord.FileRecord, more bool, err error) {
	for len(batch) < batchSize {
		if !rows.Next() {
			return batch, false, rows.Err()
		}
		fr, decodeErr := decodeRow(rows, table, wiki, bigWiki, log)
		if decodeErr != nil {
			return nil, false, decodeErr
		}
		batch = append(batch, fr)
	}
	return batch, true, nil
}

func decodeRow(rows *sql.Rows, table SourceTable, wiki string, bigWiki bool, log *mblog.Logger) (*filerecord.FileRecord, error) {
	switch table {
	case TableImage:
		return decodeImageRow(rows, wiki, bigWiki, log)
	case TableOldImage:
		return decodeOldImageRow(rows, wiki, bigWiki, log)
	case TableFileArchive:
		return decodeFileArchiveRow(rows, wiki, bigWiki, log)
	default:
		return nil, errors.New("prodcatalog: unknown source table")
	}
}

func decodeImageRow(rows *sql.Rows, wiki string, bigWiki bool, log *mblog.Logger) (*filerecord.FileRecord, error) {
	var (
		name      string
		size      sql.NullInt64
		mediaType sql.NullString
		timestamp sql.NullString
		sha1b36   sql.NullString
	)
	if err := rows.Scan(&name, &size, &mediaType, &timestamp, &sha1b36); err != nil {
		return nil, errors.AddContext(err, "prodcatalog: scanning image row")
	}
	fr, err := filerecord.New(wiki, name, filerecord.StatusPublic)
	if err != nil {
		return nil, err
	}
	fr.FileType = filerecord.NormalizeFileType(knownFileTypes, mediaType.String)
	if size.Valid {
		v := size.Int64
		fr.Size = &v
	}
	if timestamp.Valid && timestamp.String != "" {
		t := hashcodec.MWDateToInstant(timestamp.String)
		fr.UploadTimestamp = &t
	}
	if err := fillSHA1(fr, sha1b36); err != nil {
		return nil, err
	}
	fillAddresses(fr, name, bigWiki, log)
	return fr, nil
}

func decodeOldImageRow(rows *sql.Rows, wiki string, bigWiki bool, log *mblog.Logger) (*filerecord.FileRecord, error) {
	var (
		name        string
		archiveName sql.NullString
		size        sql.NullInt64
		mediaType   sql.NullString
		timestamp   sql.NullString
		sha1b36     sql.NullString
		deletedFlag sql.NullInt64
	)
	if err := rows.Scan(&name, &archiveName, &size, &mediaType, &timestamp, &sha1b36, &deletedFlag); err != nil {
		return nil, errors.AddContext(err, "prodcatalog: scanning oldimage row")
	}
	status := filerecord.StatusArchived
	if deletedFlag.Valid && deletedFlag.Int64 != 0 {
		status = filerecord.StatusDeleted
	}
	fr, err := filerecord.New(wiki, name, status)
	if err != nil {
		return nil, err
	}
	fr.FileType = filerecord.NormalizeFileType(knownFileTypes, mediaType.String)
	if size.Valid {
		v := size.Int64
		fr.Size = &v
	}
	if timestamp.Valid && timestamp.String != "" {
		t := hashcodec.MWDateToInstant(timestamp.String)
		fr.UploadTimestamp = &t
	}
	if err := fillSHA1(fr, sha1b36); err != nil {
		return nil, err
	}
	fr.ArchivedTimestamp = archivedTimestampFrom(archiveName, name)
	fillAddresses(fr, archiveName.String, bigWiki, log)
	return fr, nil
}

func decodeFileArchiveRow(rows *sql.Rows, wiki string, bigWiki bool, log *mblog.Logger) (*filerecord.FileRecord, error) {
	var (
		name             string
		archiveName      sql.NullString
		storageKey       sql.NullString
		size             sql.NullInt64
		mediaType        sql.NullString
		timestamp        sql.NullString
		deletedTimestamp sql.NullString
		sha1b36          sql.NullString
	)
	if err := rows.Scan(&name, &archiveName, &storageKey, &size, &mediaType, &timestamp, &deletedTimestamp, &sha1b36); err != nil {
		return nil, errors.AddContext(err, "prodcatalog: scanning filearchive row")
	}
	fr, err := filerecord.New(wiki, name, filerecord.StatusDeleted)
	if err != nil {
		return nil, err
	}
	fr.FileType = filerecord.NormalizeFileType(knownFileTypes, mediaType.String)
	if size.Valid {
		v := size.Int64
		fr.Size = &v
	}
	if timestamp.Valid && timestamp.String != "" {
		t := hashcodec.MWDateToInstant(timestamp.String)
		fr.UploadTimestamp = &t
	}
	if deletedTimestamp.Valid && deletedTimestamp.String != "" {
		t := hashcodec.MWDateToInstant(deletedTimestamp.String)
		fr.DeletedTimestamp = &t
	}
	if err := fillSHA1(fr, sha1b36); err != nil {
		return nil, err
	}
	storedName := storageKey.String
	if storedName == "" {
		storedName = fr.SHA1
	}
	fr.ArchivedTimestamp = archivedTimestampFrom(archiveName, storedName)
	fillAddresses(fr, storedName, bigWiki, log)
	return fr, nil
}

// fillSHA1 base36-decodes a stored SHA-1 into lowercase hex, leaving the
// field empty when absent.
func fillSHA1(fr *filerecord.FileRecord, sha1b36 sql.NullString) error {
	if !sha1b36.Valid || sha1b36.String == "" {
		return nil
	}
	hex, err := hashcodec.Base36ToBase16(sha1b36.String)
	if err != nil {
		return errors.AddContext(err, "prodcatalog: decoding sha1")
	}
	fr.SHA1 = hex
	return nil
}

// archivedTimestampFrom parses the leading "YYYYMMDDHHMMSS!" segment of
// archiveName, falling back to the same segment of storedName. Returns
// nil if neither is available or parses.
func archivedTimestampFrom(archiveName sql.NullString, storedName string) *time.Time {
	candidates := []string{}
	if archiveName.Valid {
		candidates = append(candidates, archiveName.String)
	}
	candidates = append(candidates, storedName)
	for _, c := range candidates {
		idx := strings.Index(c, "!")
		if idx <= 0 {
			continue
		}
		prefix := c[:idx]
		if len(prefix) != 14 {
			continue
		}
		t, err := time.Parse("20060102150405", prefix)
		if err != nil {
			continue
		}
		t = t.UTC()
		return &t
	}
	return nil
}

// fillAddresses computes storage_container/storage_path via swiftaddr
// and cross-checks them against storedName, logging (not failing) on a
// mismatch.
func fillAddresses(fr *filerecord.FileRecord, storedName string, bigWiki bool, log *mblog.Logger) {
	container, path := swiftaddr.Addresses(fr.Wiki, fr.Status, fr.UploadName, storedName, fr.SHA1, bigWiki)
	fr.StorageContainer = container
	fr.StoragePath = path
	if storedName != "" && path != "" && !strings.HasSuffix(path, storedName) {
		if log != nil {
			log.Printf("WARN: computed storage path %q does not end with stored name %q for %s", path, storedName, fr)
		}
	}
}

// knownFileTypes is the set of media-category strings treated as
// recognized; anything else defaults to FileType "ERROR".
var knownFileTypes = map[string]bool{
	"BITMAP": true, "DRAWING": true, "AUDIO": true, "VIDEO": true,
	"MULTIMEDIA": true, "OFFICE": true, "TEXT": true, "EXECUTABLE": true,
	"ARCHIVE": true, "3D": true, "UNKNOWN": true,
}
