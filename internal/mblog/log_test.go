package mblog

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesToWriter(t *testing.T) {
	logger, err := New("backup-wiki", io.Discard)
	require.NoError(t, err)
	require.NotNil(t, logger)
}
