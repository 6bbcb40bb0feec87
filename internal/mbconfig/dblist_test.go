package mbconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDblist(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDblistsDedupesAndSkipsComments(t *testing.T) {
	dir := t.TempDir()
	a := writeDblist(t, dir, "a.dblist", "enwiki\n# comment\ncommonswiki\n\n")
	b := writeDblist(t, dir, "b.dblist", "commonswiki\ndewiki\n")

	wikis, err := LoadDblists([]string{a, b})
	require.NoError(t, err)
	require.Equal(t, []string{"enwiki", "commonswiki", "dewiki"}, wikis)
}

func TestLoadDblistsMissingFile(t *testing.T) {
	_, err := LoadDblists([]string{"/nonexistent/path.dblist"})
	require.Error(t, err)
}
