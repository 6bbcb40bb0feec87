// Command delete-media-file resolves a backed-up file (or a batch of
// them parsed from an eraseArchivedFile.php log) and deletes it from
// both the backup store and the metadata store (spec section 4.9, 6).
// Without --execute it only prints the rows that would be deleted.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	uploerrors "github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/backupstore"
	"github.com/wikimedia/operations-software-mediabackups/internal/hashcodec"
	"github.com/wikimedia/operations-software-mediabackups/internal/mbcli"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
	"github.com/wikimedia/operations-software-mediabackups/internal/mbeslog"
	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
	"github.com/wikimedia/operations-software-mediabackups/internal/recovery"
)

var (
	configPath string
	method     string
	value      string
	execute    bool
)

var rootCmd = &cobra.Command{
	Use:   "delete-media-file [log-file]",
	Short: "Delete a backed-up file, or every file named in an eraseArchivedFile.php log",
	Args:  cobra.MaximumNArgs(1),
	Run:   wrap(deletecmd),
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/mediabackups/config.yaml", "path to the mediabackups YAML config file")
	rootCmd.Flags().StringVar(&method, "method", "", "search method (ignored when a log file is given)")
	rootCmd.Flags().StringVar(&value, "value", "", "value to search for (ignored when a log file is given)")
	rootCmd.Flags().BoolVar(&execute, "execute", false, "perform the deletion instead of a dry run")
}

func wrap(fn func([]string)) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, args []string) { fn(args) }
}

func promptIfEmpty() {
	scanner := bufio.NewScanner(os.Stdin)
	if method == "" {
		fmt.Print("search method: ")
		if scanner.Scan() {
			method = strings.TrimSpace(scanner.Text())
		}
	}
	if value == "" {
		fmt.Print("search value: ")
		if scanner.Scan() {
			value = strings.TrimSpace(scanner.Text())
		}
	}
}

func deletecmd(args []string) {
	cfg, log := mbcli.Bootstrap("delete-media-file", configPath)
	ctx := context.Background()

	meta, err := metadatastore.Open(ctx, cfg.MetadataDSN, log)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "unable to open metadata store:", err)
	}
	defer meta.Close()

	caches, err := meta.LoadFKs(ctx)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "unable to load foreign-key caches:", err)
	}

	store, err := backupstore.New(ctx, backupstore.Options{
		Bucket:      cfg.BackupBucket,
		Endpoints:   cfg.BackupEndpoints,
		AccessKeyID: cfg.BackupAccessKeyID,
		SecretKey:   cfg.BackupSecretKey,
	})
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "unable to open backup store:", err)
	}
	defer store.Close()

	nonPublicWikiTypes := make(map[string]bool, len(cfg.NonPublicWikiTypes))
	for _, t := range cfg.NonPublicWikiTypes {
		nonPublicWikiTypes[t] = true
	}

	flow := &recovery.Flow{
		Meta: meta, Caches: caches, Store: store, Log: log,
		NonPublicWikiTypesByWiki: nonPublicWikiTypes,
		HTTPProbeUserAgent:       cfg.HTTPProbeUserAgent,
	}

	var records []*metadatastore.BackupRecord
	if len(args) == 1 {
		records, err = resolveFromLog(ctx, flow, args[0])
	} else {
		promptIfEmpty()
		var attr metadatastore.QueryAttribute
		attr, err = mbcli.ParseQueryAttribute(method)
		if err != nil {
			mbcli.Die(mbcli.ExitInvalidSearchMethod, "error:", err)
		}
		records, err = flow.Resolve(ctx, attr, value)
	}
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "query error:", err)
	}
	if len(records) == 0 {
		fmt.Println("no match")
		os.Exit(mbcli.ExitNoMatch)
	}
	mbcli.PrintBackupRecords(records)

	if !execute {
		fmt.Println("dry run: pass --execute to delete the above files")
		os.Exit(mbcli.ExitSuccess)
	}
	if !mbcli.Confirm(fmt.Sprintf("permanently delete %d file(s)? [y/N] ", len(records))) {
		fmt.Println("aborted")
		os.Exit(mbcli.ExitAborted)
	}

	results, warnings, err := flow.Delete(ctx, records, false)
	if err != nil {
		switch {
		case uploerrors.Contains(err, mberrors.ErrProductionStillPublic):
			mbcli.Die(mbcli.ExitStillPublic, "error:", err)
		case uploerrors.Contains(err, mberrors.ErrTimeout):
			mbcli.Die(mbcli.ExitProbeTimeout, "error:", err)
		default:
			mbcli.Die(mbcli.ExitFatalMisconfig, "deletion error:", err)
		}
	}

	var failures int
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Printf("FAILED %s: %v\n", r.Record.UploadName, r.Err)
			continue
		}
		fmt.Printf("deleted %s\n", r.Record.UploadName)
	}
	if warnings > 0 {
		fmt.Printf("%d mark_as_deleted warning(s), see log\n", warnings)
	}
	if failures > 0 {
		os.Exit(mbcli.ExitFatalMisconfig)
	}
	os.Exit(mbcli.ExitSuccess)
}

// resolveFromLog parses an eraseArchivedFile.php log into (wiki, sha1,
// title) tuples and resolves each one by its base-36 sha1.
func resolveFromLog(ctx context.Context, flow *recovery.Flow, path string) ([]*metadatastore.BackupRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := mbeslog.Parse(f)
	if err != nil {
		return nil, err
	}

	var records []*metadatastore.BackupRecord
	for _, e := range entries {
		sha1Hex, err := hashcodec.Base36ToBase16(e.SHA1Base36)
		if err != nil {
			return nil, err
		}
		rows, err := flow.Resolve(ctx, metadatastore.BySHA1Hex, sha1Hex)
		if err != nil {
			return nil, err
		}
		records = append(records, rows...)
	}
	return records, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(mbcli.ExitFatalMisconfig)
	}
}
