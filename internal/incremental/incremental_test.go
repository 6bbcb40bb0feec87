package incremental

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "query", q.Get("action"))
		require.Equal(t, "logevents", q.Get("list"))
		require.Equal(t, "upload", q.Get("letype"))
		require.Equal(t, "newer", q.Get("ledir"))
		require.Equal(t, "max", q.Get("lelimit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"query": {"logevents": [{"title": "File:A.jpg", "timestamp": "2024-01-01T00:00:00Z"}]},
			"continue": {"lecontinue": "20240101000000|123", "continue": "-||"}
		}`))
	}))
	defer srv.Close()

	u := &Updater{APIBase: srv.URL, HTTPClient: srv.Client()}
	titles, next, err := u.fetchPage(context.Background(), time.Unix(1, 0), "")
	require.NoError(t, err)
	require.Equal(t, []string{"File:A.jpg"}, titles)
	require.Equal(t, "20240101000000|123", next)
}

func TestFetchPageLastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "abc", r.URL.Query().Get("lecontinue"))
		w.Write([]byte(`{"query": {"logevents": []}, "continue": {}}`))
	}))
	defer srv.Close()

	u := &Updater{APIBase: srv.URL, HTTPClient: srv.Client()}
	titles, next, err := u.fetchPage(context.Background(), time.Unix(1, 0), "abc")
	require.NoError(t, err)
	require.Empty(t, titles)
	require.Empty(t, next)
}
