package mbcli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
	"github.com/wikimedia/operations-software-mediabackups/internal/pipeline"
)

func TestParseQueryAttribute(t *testing.T) {
	attr, err := ParseQueryAttribute("sha256")
	require.NoError(t, err)
	require.Equal(t, metadatastore.BySHA256, attr)

	_, err = ParseQueryAttribute("not_a_method")
	require.Error(t, err)
}

func TestTempDirExitCode(t *testing.T) {
	require.Equal(t, ExitTempDirMissingParent, TempDirExitCode(&pipeline.TempDirError{Kind: pipeline.TempDirMissingParent}))
	require.Equal(t, ExitTempDirConflict, TempDirExitCode(&pipeline.TempDirError{Kind: pipeline.TempDirConflict}))
	require.Equal(t, ExitTempDirPermission, TempDirExitCode(&pipeline.TempDirError{Kind: pipeline.TempDirPermission}))
	require.Equal(t, ExitFatalMisconfig, TempDirExitCode(nil))
}
