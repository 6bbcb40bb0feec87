package mbconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	uploerrors "github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "metadata_dsn: \"user:pass@tcp(db)/meta\"\nbackup_endpoints:\n  - \"https://backup1.example\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.BatchSize)
	require.Equal(t, "mediabackups", cfg.BackupBucket)
	require.Equal(t, "mediabackups/1.0", cfg.HTTPProbeUserAgent)
	require.Equal(t, time.Second, cfg.APIWaitTime)
	require.Equal(t, time.Minute, cfg.BatchWaitTime)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, "batch_size: 50\n")

	_, err := Load(path)
	require.Error(t, err)
	require.True(t, uploerrors.Contains(err, mberrors.ErrConfig))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	require.True(t, uploerrors.Contains(err, mberrors.ErrConfig))
}

func TestIsBigWiki(t *testing.T) {
	cfg := &Config{BigWikis: []string{"commonswiki", "enwiki"}}
	require.True(t, cfg.IsBigWiki("enwiki"))
	require.False(t, cfg.IsBigWiki("dewiki"))
}
