// Package mbconfig loads the YAML configuration file shared by all
// mediabackups CLIs. Argument parsing, logging setup, and interactive
// prompting are out of scope (spec section 1); this package only carries
// the parsed shape other components consume.
package mbconfig

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

// Config is the root of the mediabackups YAML configuration file.
type Config struct {
	// ProductionDSN is the DSN template used to reach each wiki's
	// production database; "%s" is replaced with the wiki name.
	ProductionDSN string `yaml:"production_dsn"`

	// MetadataDSN is the DSN of the internal backup metadata database.
	MetadataDSN string `yaml:"metadata_dsn"`

	// DblistPaths lists the dblist files (one wiki name per line) that
	// together define the federation's membership.
	DblistPaths []string `yaml:"dblists"`

	// BigWikis names wikis that require range-paged discovery and
	// sharded Swift containers.
	BigWikis []string `yaml:"big_wikis"`

	// NonPublicWikiTypes names wiki "type" values (as stored in
	// wikis.type) whose backups must be encrypted.
	NonPublicWikiTypes []string `yaml:"non_public_wiki_types"`

	// SwiftAuthURL, SwiftUser, SwiftKey configure the production Swift
	// client (github.com/ncw/swift/v2).
	SwiftAuthURL string `yaml:"swift_auth_url"`
	SwiftUser    string `yaml:"swift_user"`
	SwiftKey     string `yaml:"swift_key"`

	// BackupBucket is the S3-compatible bucket name shared by all
	// endpoints, default "mediabackups".
	BackupBucket string `yaml:"backup_bucket"`

	// BackupAccessKeyID and BackupSecretKey authenticate against every
	// configured S3-compatible backup endpoint.
	BackupAccessKeyID string `yaml:"backup_access_key_id"`
	BackupSecretKey   string `yaml:"backup_secret_key"`

	// BackupEndpoints is the ordered list of S3-compatible endpoint
	// URLs; its length and order determine shard assignment.
	BackupEndpoints []string `yaml:"backup_endpoints"`

	// AgeIdentityFile is the identity file path passed to the age
	// subprocess for encrypt/decrypt.
	AgeIdentityFile string `yaml:"age_identity_file"`

	// TempDirRoot is the parent directory BackupPipeline creates its
	// per-process temp directory under.
	TempDirRoot string `yaml:"temp_dir_root"`

	// BatchSize bounds both ProductionCatalog batches and
	// MetadataStore.process_files claims; default 100.
	BatchSize int `yaml:"batch_size"`

	// MaxDownloadBytesPerSecond and MaxUploadBytesPerSecond configure
	// github.com/uplo-tech/ratelimit; 0 means unlimited.
	MaxDownloadBytesPerSecond int64 `yaml:"max_download_bytes_per_second"`
	MaxUploadBytesPerSecond   int64 `yaml:"max_upload_bytes_per_second"`

	// APIWaitTime and BatchWaitTime configure IncrementalUpdater's
	// pauses between API pages and between outer cycles.
	APIWaitTime   time.Duration `yaml:"api_wait_time"`
	BatchWaitTime time.Duration `yaml:"batch_wait_time"`

	// LogEventAPIBase is the base URL for the upstream media-change
	// log HTTP API (e.g. "https://{wiki}.org/w/api.php").
	LogEventAPIBase string `yaml:"log_event_api_base"`

	// HTTPProbeUserAgent is sent on the pre-deletion HEAD probe.
	HTTPProbeUserAgent string `yaml:"http_probe_user_agent"`
}

// Load reads and parses the YAML configuration file at path, applying the
// same defaults the Python reference implementation's config loader does.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Extend(err, mberrors.ErrConfig)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Extend(err, mberrors.ErrConfig)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BackupBucket == "" {
		c.BackupBucket = "mediabackups"
	}
	if c.HTTPProbeUserAgent == "" {
		c.HTTPProbeUserAgent = "mediabackups/1.0"
	}
	if c.APIWaitTime <= 0 {
		c.APIWaitTime = time.Second
	}
	if c.BatchWaitTime <= 0 {
		c.BatchWaitTime = time.Minute
	}
}

func (c *Config) validate() error {
	if c.MetadataDSN == "" {
		return errors.AddContext(mberrors.ErrConfig, "metadata_dsn is required")
	}
	if len(c.BackupEndpoints) == 0 {
		return errors.AddContext(mberrors.ErrConfig, "backup_endpoints must not be empty")
	}
	return nil
}

// IsBigWiki reports whether wiki requires range-paged discovery.
func (c *Config) IsBigWiki(wiki string) bool {
	for _, w := range c.BigWikis {
		if w == wiki {
			return true
		}
	}
	return false
}
