// Command backup-wiki drains MetadataStore's pending queue through
// BackupPipeline (spec section 4.8) until it is empty.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"

	"github.com/wikimedia/operations-software-mediabackups/internal/backupstore"
	"github.com/wikimedia/operations-software-mediabackups/internal/encryptor"
	"github.com/wikimedia/operations-software-mediabackups/internal/mbcli"
	"github.com/wikimedia/operations-software-mediabackups/internal/mbswift"
	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
	"github.com/wikimedia/operations-software-mediabackups/internal/pipeline"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "backup-wiki",
	Short: "Drain the pending backup queue",
	Run:   wrap(backupcmd),
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/mediabackups/config.yaml", "path to the mediabackups YAML config file")
}

func wrap(fn func()) func(*cobra.Command, []string) {
	return func(*cobra.Command, []string) { fn() }
}

func backupcmd() {
	cfg, log := mbcli.Bootstrap("backup-wiki", configPath)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meta, err := metadatastore.Open(ctx, cfg.MetadataDSN, log)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "unable to open metadata store:", err)
	}
	defer meta.Close()

	caches, err := meta.LoadFKs(ctx)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "unable to load foreign-key caches:", err)
	}

	nonPublicWikis, err := meta.GetNonPublicWikis(ctx)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "unable to load non-public wikis:", err)
	}

	store, err := backupstore.New(ctx, backupstore.Options{
		Bucket:                    cfg.BackupBucket,
		Endpoints:                 cfg.BackupEndpoints,
		AccessKeyID:               cfg.BackupAccessKeyID,
		SecretKey:                 cfg.BackupSecretKey,
		MaxDownloadBytesPerSecond: cfg.MaxDownloadBytesPerSecond,
		MaxUploadBytesPerSecond:   cfg.MaxUploadBytesPerSecond,
	})
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "unable to open backup store:", err)
	}
	defer store.Close()

	downloader, err := mbswift.New(ctx, cfg.SwiftAuthURL, cfg.SwiftUser, cfg.SwiftKey, cfg.MaxDownloadBytesPerSecond)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "unable to authenticate with swift:", err)
	}
	defer downloader.Close()

	pbs := mpb.New(mpb.WithWidth(40))
	bar := pbs.AddSpinner(-1,
		mpb.SpinnerOnLeft,
		mpb.SpinnerStyle([]string{"∙∙∙", "●∙∙", "∙●∙", "∙∙●", "∙∙∙"}),
		mpb.BarFillerClearOnComplete(),
		mpb.PrependDecorators(decor.Name("backup-wiki ", decor.WC{W: 20})),
	)

	p := &pipeline.Pipeline{
		Meta:           meta,
		Caches:         caches,
		Store:          store,
		Downloader:     downloader,
		Encryptor:      encryptor.New("age", cfg.AgeIdentityFile),
		Log:            log,
		TempDirRoot:    cfg.TempDirRoot,
		BatchSize:      cfg.BatchSize,
		NonPublicWikis: nonPublicWikis,
	}

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	summary, err := p.Run(ctx)
	bar.Abort(true)
	pbs.Wait()
	if err != nil {
		if exitCode := mbcli.TempDirExitCode(err); exitCode != mbcli.ExitFatalMisconfig {
			mbcli.Die(exitCode, "temp directory error:", err)
		}
		mbcli.Die(mbcli.ExitFatalMisconfig, "pipeline error:", err)
	}

	fmt.Println(summary.String())
	os.Exit(mbcli.ExitSuccess)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(mbcli.ExitFatalMisconfig)
	}
}
