// Command restore-media-file resolves a backed-up file and recovers it
// to a destination directory (spec section 4.9, 6). Without --execute
// it only prints the rows that would be recovered.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"

	"github.com/wikimedia/operations-software-mediabackups/internal/backupstore"
	"github.com/wikimedia/operations-software-mediabackups/internal/encryptor"
	"github.com/wikimedia/operations-software-mediabackups/internal/mbcli"
	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
	"github.com/wikimedia/operations-software-mediabackups/internal/recovery"
)

var (
	configPath string
	method     string
	value      string
	destDir    string
	execute    bool
)

var rootCmd = &cobra.Command{
	Use:   "restore-media-file",
	Short: "Recover a backed-up file to a local directory",
	Run:   wrap(restorecmd),
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/mediabackups/config.yaml", "path to the mediabackups YAML config file")
	rootCmd.Flags().StringVar(&method, "method", "", "search method")
	rootCmd.Flags().StringVar(&value, "value", "", "value to search for")
	rootCmd.Flags().StringVar(&destDir, "dest", ".", "directory to recover files into")
	rootCmd.Flags().BoolVar(&execute, "execute", false, "perform the recovery instead of a dry run")
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

func restorecmd() {
	promptIfEmpty()
	attr, err := mbcli.ParseQueryAttribute(method)
	if err != nil {
		mbcli.Die(mbcli.ExitInvalidSearchMethod, "error:", err)
	}

	cfg, log := mbcli.Bootstrap("restore-media-file", configPath)
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
		Encryptor:                encryptor.New("age", cfg.AgeIdentityFile),
		NonPublicWikiTypesByWiki: nonPublicWikiTypes,
	}

	records, err := flow.Resolve(ctx, attr, value)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "query error:", err)
	}
	if len(records) == 0 {
		fmt.Println("no match")
		os.Exit(mbcli.ExitNoMatch)
	}
	mbcli.PrintBackupRecords(records)

	if !execute {
		fmt.Println("dry run: pass --execute to recover the above files")
		os.Exit(mbcli.ExitSuccess)
	}
	if !mbcli.Confirm(fmt.Sprintf("recover %d file(s) into %s? [y/N] ", len(records), destDir)) {
		fmt.Println("aborted")
		os.Exit(mbcli.ExitAborted)
	}

	pbs := mpb.New(mpb.WithWidth(40))
	bar := pbs.AddBar(int64(len(records)),
		mpb.PrependDecorators(decor.Name("restore-media-file ", decor.WC{W: 20})),
		mpb.AppendDecorators(decor.Counters(0, "%d / %d")),
	)

	results := flow.Recover(ctx, destDir, records)
	bar.SetCurrent(int64(len(results)))
	pbs.Wait()

	var failures int
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Printf("FAILED %s: %v\n", r.Record.UploadName, r.Err)
			continue
		}
		fmt.Printf("recovered %s -> %s\n", r.Record.UploadName, r.OutputPath)
	}
	if failures > 0 {
		os.Exit(mbcli.ExitFatalMisconfig)
	}
	os.Exit(mbcli.ExitSuccess)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(mbcli.ExitFatalMisconfig)
	}
}
