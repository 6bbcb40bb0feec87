// Package recovery implements RecoveryFlow (spec section 4.9): resolve
// a query against MetadataStore, print rows for operator confirmation,
// then either recover a file from the backup store or delete it from
// both the backup store and production metadata.
package recovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/backupstore"
	"github.com/wikimedia/operations-software-mediabackups/internal/encryptor"
	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
	"github.com/wikimedia/operations-software-mediabackups/internal/hashcodec"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
	"github.com/wikimedia/operations-software-mediabackups/internal/mblog"
	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
)

// Flow bundles the components RecoveryFlow drives.
type Flow struct {
	Meta      *metadatastore.Store
	Caches    *metadatastore.FKCaches
	Store     *backupstore.Store
	Encryptor *encryptor.Encryptor
	Log       *mblog.Logger

	NonPublicWikiTypesByWiki map[string]bool // wiki type -> non-public
	HTTPProbeUserAgent       string
}

// probeTimeout bounds the pre-deletion HTTP HEAD probe.
const probeTimeout = 30 * time.Second

// Resolve runs attr/value through MetadataStore.QueryBackupsBy,
// converting a BySHA1Base36 value to hex first.
func (f *Flow) Resolve(ctx context.Context, attr metadatastore.QueryAttribute, value string) ([]*metadatastore.BackupRecord, error) {
	if attr == metadatastore.BySHA1Base36 {
		hex, err := hashcodec.Base36ToBase16(value)
		if err != nil {
			return nil, err
		}
		value = hex
	}
	return f.Meta.QueryBackupsBy(ctx, f.Caches, attr, value, f.Store.Endpoint, f.NonPublicWikiTypesByWiki)
}

// RecoverResult is the outcome of recovering one row.
type RecoverResult struct {
	Record     *metadatastore.BackupRecord
	OutputPath string
	Err        error
}

// Recover downloads each row's backup object to destDir, decrypting
// .age keys, and writes it under the basename of the row's production
// path with a trailing "~" if that name already exists. Per-file errors
// are collected rather than aborting the loop (spec section 4.9).
func (f *Flow) Recover(ctx context.Context, destDir string, records []*metadatastore.BackupRecord) []RecoverResult {
	results := make([]RecoverResult, 0, len(records))
	for _, rec := range records {
		out, err := f.recoverOne(ctx, destDir, rec)
		results = append(results, RecoverResult{Record: rec, OutputPath: out, Err: err})
		if err != nil && f.Log != nil {
			f.Log.Printf("ERROR: recovery of %s failed: %v", rec.UploadName, err)
		}
	}
	return results
}

func (f *Flow) recoverOne(ctx context.Context, destDir string, rec *metadatastore.BackupRecord) (string, error) {
	endpoint, ok := f.Store.Endpoint(rec.Location)
	if !ok {
		return "", errors.AddContext(mberrors.ErrConfig, fmt.Sprintf("unknown backup_location %d", rec.Location))
	}

	encrypted := len(rec.BackupPath) > 4 && rec.BackupPath[len(rec.BackupPath)-4:] == ".age"
	plainPath := destDir + "/.recover-download"
	getPath := plainPath
	if encrypted {
		getPath = plainPath + ".age"
	}

	if code := f.Store.Get(ctx, endpoint, rec.BackupPath, getPath); code != 0 {
		return "", mberrors.ErrDownload
	}

	localPath := getPath
	if encrypted {
		code, err := f.Encryptor.Decrypt(ctx, plainPath)
		os.Remove(getPath)
		if err != nil {
			return "", errors.Extend(err, mberrors.ErrEncryption)
		}
		if code != 0 {
			return "", errors.AddContext(mberrors.ErrEncryption, fmt.Sprintf("decrypt exit code %d", code))
		}
		localPath = plainPath
	}

	base := rec.UploadName
	if rec.StoragePath != "" {
		base = path.Base(rec.StoragePath)
	}
	if base == "" {
		base = rec.SHA256
	}
	outPath := destDir + "/" + base
	for fileExists(outPath) {
		outPath += "~"
	}
	if err := os.Rename(localPath, outPath); err != nil {
		return "", errors.AddContext(err, "recovery: unable to place recovered file")
	}
	return outPath, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DeletionResult is the outcome of deleting one row.
type DeletionResult struct {
	Record *metadatastore.BackupRecord
	Err    error
}

// Delete checks every record's production_url returns HTTP 404 (the
// pre-deletion gate), then deletes each backup object and finally
// updates MetadataStore. Any record failing the gate aborts the whole
// operation before any BackupStore.Delete call.
func (f *Flow) Delete(ctx context.Context, records []*metadatastore.BackupRecord, dryRun bool) ([]DeletionResult, int, error) {
	client := &http.Client{Timeout: probeTimeout}
	for _, rec := range records {
		if rec.ProductionURL == "" {
			continue
		}
		if err := probe404(ctx, client, rec.ProductionURL, f.HTTPProbeUserAgent); err != nil {
			return nil, 0, err
		}
	}

	seen := make(map[string]bool)
	results := make([]DeletionResult, 0, len(records))
	var toMark []*metadatastore.BackupRecord

	for _, rec := range records {
		endpoint, ok := f.Store.Endpoint(rec.Location)
		if !ok {
			results = append(results, DeletionResult{Record: rec, Err: errors.AddContext(mberrors.ErrConfig, "unknown backup_location")})
			continue
		}
		dedupeKey := rec.Wiki + "/" + rec.SHA256
		if !dryRun {
			code := f.Store.Delete(ctx, endpoint, rec.BackupPath)
			if code != 0 && !seen[dedupeKey] {
				results = append(results, DeletionResult{Record: rec, Err: mberrors.ErrDownload})
				continue
			}
		}
		seen[dedupeKey] = true
		toMark = append(toMark, rec)
		results = append(results, DeletionResult{Record: rec})
	}

	files := make([]*filerecord.FileRecord, len(toMark))
	for i, rec := range toMark {
		files[i] = &rec.FileRecord
	}
	warnings, err := f.Meta.MarkAsDeleted(ctx, f.Caches, files, dryRun)
	if err != nil {
		return results, warnings, err
	}
	return results, warnings, nil
}

// probe404 issues a HEAD request and returns nil only if the response
// is 404; any other status is ErrProductionStillPublic, and a failed
// request (a timeout or any other transport error) is ErrTimeout.
func probe404(ctx context.Context, client *http.Client, url, userAgent string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return errors.AddContext(mberrors.ErrConfig, "recovery: invalid production_url")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return mberrors.ErrTimeout
		}
		return errors.Extend(err, mberrors.ErrTimeout)
	}
	defer io.Copy(io.Discard, resp.Body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		return errors.AddContext(mberrors.ErrProductionStillPublic, fmt.Sprintf("%s returned %d", url, resp.StatusCode))
	}
	return nil
}
