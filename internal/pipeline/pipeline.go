// Package pipeline implements BackupPipeline (spec section 4.8): the
// claim-download-hash-dedupe-encrypt-upload-commit loop that drains the
// MetadataStore's pending queue.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/threadgroup"

	"github.com/wikimedia/operations-software-mediabackups/internal/backupstore"
	"github.com/wikimedia/operations-software-mediabackups/internal/encryptor"
	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
	"github.com/wikimedia/operations-software-mediabackups/internal/hashcodec"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
	"github.com/wikimedia/operations-software-mediabackups/internal/mblog"
	"github.com/wikimedia/operations-software-mediabackups/internal/mbswift"
	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
)

// Pipeline wires every component BackupPipeline's loop drives.
type Pipeline struct {
	Meta       *metadatastore.Store
	Caches     *metadatastore.FKCaches
	Store      *backupstore.Store
	Downloader *mbswift.Downloader
	Encryptor  *encryptor.Encryptor
	Log        *mblog.Logger

	TempDirRoot   string
	BatchSize     int
	NonPublicWikis map[string]bool // from MetadataStore.GetNonPublicWikis

	tg threadgroup.ThreadGroup
}

// Summary aggregates the counters and size/duration statistics
// backup-wiki prints at the end of a run.
type Summary struct {
	BackedUp, Duplicate, Errored int
	sizes                        []float64
	durations                    []float64
}

func (s *Summary) record(kind OutcomeKind, size int64, d time.Duration) {
	switch kind {
	case OutcomeBackedUp:
		s.BackedUp++
		s.sizes = append(s.sizes, float64(size))
		s.durations = append(s.durations, d.Seconds())
	case OutcomeDuplicate:
		s.Duplicate++
	case OutcomeError:
		s.Errored++
	}
}

// String renders the summary line, including mean/median size and
// duration over successfully backed up files.
func (s *Summary) String() string {
	meanSize, _ := stats.Mean(stats.Float64Data(s.sizes))
	medianSize, _ := stats.Median(stats.Float64Data(s.sizes))
	meanDur, _ := stats.Mean(stats.Float64Data(s.durations))
	medianDur, _ := stats.Median(stats.Float64Data(s.durations))
	return fmt.Sprintf("backed_up=%d duplicate=%d error=%d mean_size=%.0f median_size=%.0f mean_duration=%.2fs median_duration=%.2fs",
		s.BackedUp, s.Duplicate, s.Errored, meanSize, medianSize, meanDur, medianDur)
}

// Stop signals the loop to finish its in-flight batch and exit, the
// same contract threadgroup gives the teacher's renter/host loops.
func (p *Pipeline) Stop() error {
	return p.tg.Stop()
}

// Run drains MetadataStore's pending queue until empty or the thread
// group is stopped. It manages the per-process temp directory itself.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	tempDir, err := CreateTempDir(p.TempDirRoot)
	if err != nil {
		return nil, err
	}
	defer RemoveTempDir(tempDir, p.Log.Printf)

	summary := &Summary{}
	it := p.Meta.ProcessFiles(p.Caches, p.BatchSize)

	for {
		select {
		case <-p.tg.StopChan():
			return summary, nil
		default:
		}

		batch, ok, err := it.Next(ctx)
		if err != nil {
			return summary, err
		}
		if !ok {
			break
		}

		if err := p.tg.Add(); err != nil {
			return summary, nil
		}
		entries := p.processBatch(ctx, tempDir, batch, summary)
		p.tg.Done()

		if len(entries) > 0 {
			if err := p.Meta.UpdateStatus(ctx, p.Caches, entries); err != nil {
				return summary, errors.AddContext(err, "pipeline: update_status failed")
			}
		}
	}
	return summary, nil
}

func (p *Pipeline) processBatch(ctx context.Context, tempDir string, batch map[int64]*filerecord.FileRecord, summary *Summary) []metadatastore.StatusUpdate {
	entries := make([]metadatastore.StatusUpdate, 0, len(batch))
	for id, f := range batch {
		start := time.Now()
		outcome, size := p.processOne(ctx, tempDir, f)
		summary.record(outcome.Kind, size, time.Since(start))

		status := filerecord.BackupError
		switch outcome.Kind {
		case OutcomeBackedUp:
			status = filerecord.BackupBackedUp
		case OutcomeDuplicate:
			status = filerecord.BackupDuplicate
		}
		if outcome.Err != nil && p.Log != nil {
			p.Log.Printf("ERROR: backup of %s failed: %v", f.String(), outcome.Err)
		}
		entries = append(entries, metadatastore.StatusUpdate{ID: id, File: f, Status: status, Location: outcome.Location})
	}
	return entries
}

// processOne runs steps a-g of spec section 4.8 for one file, returning
// its outcome and the size backed up (0 if not backed up).
func (p *Pipeline) processOne(ctx context.Context, tempDir string, f *filerecord.FileRecord) (Outcome, int64) {
	localPath := filepath.Join(tempDir, fmt.Sprintf("%d", f.ID))
	defer os.Remove(localPath)
	defer os.Remove(localPath + ".age")

	if err := p.Downloader.Download(ctx, f.StorageContainer, f.StoragePath, localPath); err != nil {
		return Outcome{Kind: OutcomeError, Err: err}, 0
	}

	fh, err := os.Open(localPath)
	if err != nil {
		return Outcome{Kind: OutcomeError, Err: err}, 0
	}
	sha1, err := hashcodec.SHA1Stream(fh)
	fh.Close()
	if err != nil {
		return Outcome{Kind: OutcomeError, Err: err}, 0
	}
	if f.SHA1 != "" && sha1 != f.SHA1 {
		if p.Log != nil {
			p.Log.Printf("WARN: sha1 mismatch for %s: metadata=%s computed=%s, trusting computed value", f.UploadName, f.SHA1, sha1)
		}
	}
	f.SHA1 = sha1

	fh, err = os.Open(localPath)
	if err != nil {
		return Outcome{Kind: OutcomeError, Err: err}, 0
	}
	sha256, err := hashcodec.SHA256Stream(fh)
	fh.Close()
	if err != nil {
		return Outcome{Kind: OutcomeError, Err: err}, 0
	}
	f.SHA256 = sha256

	info, err := os.Stat(localPath)
	if err != nil {
		return Outcome{Kind: OutcomeError, Err: err}, 0
	}
	size := info.Size()

	nonPublic := p.NonPublicWikis[f.Wiki]
	key := metadatastore.BackupPath(f.Wiki, sha256, nonPublic)

	exists, err := p.Store.Exists(ctx, key, "")
	if err != nil {
		return Outcome{Kind: OutcomeError, Err: err}, 0
	}
	if exists {
		return Outcome{Kind: OutcomeDuplicate}, 0
	}

	uploadPath := localPath
	if nonPublic {
		code, err := p.Encryptor.Encrypt(ctx, localPath)
		if err != nil {
			return Outcome{Kind: OutcomeError, Err: errors.Extend(err, mberrors.ErrEncryption)}, 0
		}
		if code != 0 {
			return Outcome{Kind: OutcomeError, Err: errors.AddContext(mberrors.ErrEncryption, fmt.Sprintf("exit code %d", code))}, 0
		}
		uploadPath = localPath + ".age"
	}

	location := p.Store.Put(ctx, uploadPath, key)
	if location < 0 {
		return Outcome{Kind: OutcomeError, Err: mberrors.ErrUpload}, 0
	}
	return Outcome{Kind: OutcomeBackedUp, Location: location}, size
}
