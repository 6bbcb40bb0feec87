// Command gather-mysql-metadata runs a one-shot full discovery pass
// over every wiki named in the configured dblists, populating
// MetadataStore from each wiki's production database (spec section
// 4.3, 4.7).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wikimedia/operations-software-mediabackups/internal/mbcli"
	"github.com/wikimedia/operations-software-mediabackups/internal/mbconfig"
	"github.com/wikimedia/operations-software-mediabackups/internal/mblog"
	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
	"github.com/wikimedia/operations-software-mediabackups/internal/prodcatalog"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gather-mysql-metadata",
	Short: "Discover every file revision for every configured wiki and load it into the metadata store",
	Run:   wrap(gathercmd),
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/mediabackups/config.yaml", "path to the mediabackups YAML config file")
}

// wrap adapts a no-argument handler to cobra's Run signature, the same
// role the teacher's cmd/uploc wrap() plays.
func wrap(fn func()) func(*cobra.Command, []string) {
	return func(*cobra.Command, []string) { fn() }
}

func gathercmd() {
	cfg, log := mbcli.Bootstrap("gather-mysql-metadata", configPath)
	ctx := context.Background()

	wikis, err := mbconfig.LoadDblists(cfg.DblistPaths)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "dblist error:", err)
	}

	meta, err := metadatastore.Open(ctx, cfg.MetadataDSN, log)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "unable to open metadata store:", err)
	}
	defer meta.Close()

	caches, err := meta.LoadFKs(ctx)
	if err != nil {
		mbcli.Die(mbcli.ExitFatalMisconfig, "unable to load foreign-key caches:", err)
	}

	var total int
	for _, wiki := range wikis {
		n, err := gatherWiki(ctx, cfg, log, meta, caches, wiki)
		if err != nil {
			log.Printf("ERROR: discovery failed for %s: %v", wiki, err)
			continue
		}
		log.Printf("discovered %d rows for %s", n, wiki)
		total += n
	}
	fmt.Printf("gather-mysql-metadata: %d rows discovered across %d wikis\n", total, len(wikis))
	os.Exit(mbcli.ExitSuccess)
}

func gatherWiki(ctx context.Context, cfg *mbconfig.Config, log *mblog.Logger, meta *metadatastore.Store, caches *metadatastore.FKCaches, wiki string) (int, error) {
	dsn := fmt.Sprintf(cfg.ProductionDSN, wiki)
	cat, err := prodcatalog.Open(ctx, wiki, dsn, cfg.BatchSize, cfg.IsBigWiki(wiki), log)
	if err != nil {
		return 0, err
	}
	defer cat.Close()

	var count int
	for _, table := range []prodcatalog.SourceTable{prodcatalog.TableImage, prodcatalog.TableOldImage, prodcatalog.TableFileArchive} {
		it := cat.Scan(table)
		for {
			batch, ok, err := it.Next(ctx)
			if err != nil {
				it.Close()
				return count, err
			}
			if !ok {
				break
			}
			if err := meta.Add(ctx, caches, batch); err != nil {
				it.Close()
				return count, err
			}
			count += len(batch)
		}
	}
	return count, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(mbcli.ExitFatalMisconfig)
	}
}
