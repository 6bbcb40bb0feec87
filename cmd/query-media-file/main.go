// Command query-media-file resolves a backed-up file by one of
// MetadataStore's supported search attributes and prints the matching
// rows (spec section 4.9, 6).
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wikimedia/operations-software-mediabackups/internal/backupstore"
	"github.com/wikimedia/operations-software-mediabackups/internal/mbcli"
	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
	"github.com/wikimedia/operations-software-mediabackups/internal/recovery"
)

var (
	configPath string
	method     string
	value      string
)

var rootCmd = &cobra.Command{
	Use:   "query-media-file",
	Short: "Search the metadata store for a backed-up file",
	Run:   wrap(querycmd),
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/mediabackups/config.yaml", "path to the mediabackups YAML config file")
	rootCmd.Flags().StringVar(&method, "method", "", "search method: title, sha1_hex, sha1_base36, sha256, swift_path, upload_date, archive_date, delete_date")
	rootCmd.Flags().StringVar(&value, "value", "", "value to search for")
}

func wrap(fn func()) func(*cobra.Command, []string) {
	return func(*cobra.Command, []string) { fn() }
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

func querycmd() {
	promptIfEmpty()
	attr, err := mbcli.ParseQueryAttribute(method)
	if err != nil {
		mbcli.Die(mbcli.ExitInvalidSearchMethod, "error:", err)
	}

	cfg, log := mbcli.Bootstrap("query-media-file", configPath)
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

	nonPublicWikiTypes, err := nonPublicWikiTypeSet(cfg.NonPublicWikiTypes)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "config error:", err)
	}

	flow := &recovery.Flow{Meta: meta, Caches: caches, Store: store, Log: log, NonPublicWikiTypesByWiki: nonPublicWikiTypes}
	records, err := flow.Resolve(ctx, attr, value)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "query error:", err)
	}
	if len(records) == 0 {
		fmt.Println("no match")
		os.Exit(mbcli.ExitNoMatch)
	}

	mbcli.PrintBackupRecords(records)
	os.Exit(mbcli.ExitSuccess)
}

// nonPublicWikiTypeSet turns the configured list of non-public wiki
// *types* into a set. RecoveryFlow's map is keyed the same way
// MetadataStore.QueryBackupsBy expects (by wiki.type, not wiki name).
func nonPublicWikiTypeSet(types []string) (map[string]bool, error) {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(mbcli.ExitFatalMisconfig)
	}
}
