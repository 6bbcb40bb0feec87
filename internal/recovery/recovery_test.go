package recovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	uploerrors "github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

func TestProbe404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		require.Equal(t, "mediabackups-test", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := probe404(context.Background(), srv.Client(), srv.URL, "mediabackups-test")
	require.NoError(t, err)
}

func TestProbe404StillPublic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := probe404(context.Background(), srv.Client(), srv.URL, "mediabackups-test")
	require.True(t, uploerrors.Contains(err, mberrors.ErrProductionStillPublic))
}

func TestProbe404Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	err := probe404(ctx, srv.Client(), srv.URL, "mediabackups-test")
	require.True(t, uploerrors.Contains(err, mberrors.ErrTimeout))
}

func TestFileExists(t *testing.T) {
	require.False(t, fileExists("/nonexistent/path/for/mediabackups/test"))
}
