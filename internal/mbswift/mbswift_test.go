package mbswift

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewFailsAuthenticationAgainstUnreachableHost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := New(ctx, "http://127.0.0.1:1/auth/v1.0", "user", "key", 0)
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	d := &Downloader{stop: make(chan struct{})}
	require.NotPanics(t, d.Close)
	require.NotPanics(t, d.Close)
}
