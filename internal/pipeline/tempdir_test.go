package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateTempDirMissingParent(t *testing.T) {
	_, err := CreateTempDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	var tdErr *TempDirError
	require.ErrorAs(t, err, &tdErr)
	require.Equal(t, TempDirMissingParent, tdErr.Kind)
}

func TestCreateTempDirConflict(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, fmt.Sprintf("mediabackups-%d", os.Getpid()))
	require.NoError(t, os.Mkdir(dir, 0o700))

	_, err := CreateTempDir(root)
	require.Error(t, err)
	var tdErr *TempDirError
	require.ErrorAs(t, err, &tdErr)
	require.Equal(t, TempDirConflict, tdErr.Kind)
}

func TestCreateAndRemoveTempDir(t *testing.T) {
	root := t.TempDir()
	dir, err := CreateTempDir(root)
	require.NoError(t, err)
	require.DirExists(t, dir)

	var warnings []string
	RemoveTempDir(dir, func(format string, args ...interface{}) {
		warnings = append(warnings, format)
	})
	require.NoDirExists(t, dir)
	require.Empty(t, warnings)
}
