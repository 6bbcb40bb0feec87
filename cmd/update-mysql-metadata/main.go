// Command update-mysql-metadata runs IncrementalUpdater (spec section
// 4.10) against every wiki named in the configured dblists, polling
// each wiki's upload log forever until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wikimedia/operations-software-mediabackups/internal/incremental"
	"github.com/wikimedia/operations-software-mediabackups/internal/mbcli"
	"github.com/wikimedia/operations-software-mediabackups/internal/mbconfig"
	"github.com/wikimedia/operations-software-mediabackups/internal/mblog"
	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
	"github.com/wikimedia/operations-software-mediabackups/internal/prodcatalog"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "update-mysql-metadata",
	Short: "Incrementally reconcile every configured wiki's upload log into the metadata store",
	Run:   wrap(updatecmd),
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/mediabackups/config.yaml", "path to the mediabackups YAML config file")
}

func wrap(fn func()) func(*cobra.Command, []string) {
	return func(*cobra.Command, []string) { fn() }
}

func updatecmd() {
	cfg, log := mbcli.Bootstrap("update-mysql-metadata", configPath)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wikis, err := mbconfig.LoadDblists(cfg.DblistPaths)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "dblist error:", err)
	}

	updaters := make([]*incremental.Updater, len(wikis))
	for i, wiki := range wikis {
		updaters[i] = newUpdater(cfg, log, wiki)
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println("update-mysql-metadata: shutting down")
			os.Exit(mbcli.ExitSuccess)
		default:
		}
		for _, u := range updaters {
			n, err := u.RunOnce(ctx)
			if err != nil {
				log.Printf("ERROR: incremental update failed for %s: %v", u.Wiki, err)
				continue
			}
			if n > 0 {
				log.Printf("reconciled %d rows for %s", n, u.Wiki)
			}
		}
		select {
		case <-ctx.Done():
			fmt.Println("update-mysql-metadata: shutting down")
			os.Exit(mbcli.ExitSuccess)
		case <-time.After(cfg.BatchWaitTime):
		}
	}
}

func newUpdater(cfg *mbconfig.Config, log *mblog.Logger, wiki string) *incremental.Updater {
	return &incremental.Updater{
		Wiki:          wiki,
		APIBase:       strings.ReplaceAll(cfg.LogEventAPIBase, "{wiki}", wiki),
		HTTPClient:    http.DefaultClient,
		Log:           log,
		APIWaitTime:   cfg.APIWaitTime,
		BatchWaitTime: cfg.BatchWaitTime,
		OpenProduction: func(ctx context.Context) (*prodcatalog.Catalog, error) {
			dsn := fmt.Sprintf(cfg.ProductionDSN, wiki)
			return prodcatalog.Open(ctx, wiki, dsn, cfg.BatchSize, cfg.IsBigWiki(wiki), log)
		},
		OpenMetadata: func(ctx context.Context) (*metadatastore.Store, *metadatastore.FKCaches, error) {
			meta, err := metadatastore.Open(ctx, cfg.MetadataDSN, log)
			if err != nil {
				return nil, nil, err
			}
			caches, err := meta.LoadFKs(ctx)
			if err != nil {
				meta.Close()
				return nil, nil, err
			}
			return meta, caches, nil
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(mbcli.ExitFatalMisconfig)
	}
}
