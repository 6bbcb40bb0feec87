package build

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uplo-tech/log"
)

func TestReleaseType(t *testing.T) {
	old := Release
	defer func() { Release = old }()

	Release = "dev"
	require.Equal(t, log.Dev, ReleaseType())

	Release = "testing"
	require.Equal(t, log.Testing, ReleaseType())

	Release = "standard"
	require.Equal(t, log.Release, ReleaseType())
}
