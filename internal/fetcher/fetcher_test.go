package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFetcher(cfg Config) *Fetcher {
	return New(cfg, zap.NewNop())
}

func TestFetch_HTMLPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><title>hi</title></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(Config{})
	headers := http.Header{}
	headers.Set("User-Agent", "test-agent")

	res, err := f.Fetch(context.Background(), srv.URL, headers)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(res.Body), "<title>hi</title>")
	require.Equal(t, srv.URL, res.FinalURL)
}

func TestFetch_NonHTMLSkipped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := newTestFetcher(Config{})
	res, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkip, res.Outcome)
	require.Empty(t, res.Body)
}

func TestFetch_NotFoundIsGone(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(Config{})
	res, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeGone, res.Outcome)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(Config{MaxAttempts: 3, RetryDelay: 10 * time.Millisecond})
	res, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.EqualValues(t, 3, calls.Load())
}

func TestFetch_RateLimitedAfterAllAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher(Config{MaxAttempts: 3, RetryDelay: 10 * time.Millisecond})
	res, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeRateLimited, res.Outcome)
	require.EqualValues(t, 3, calls.Load())
}

func TestFetch_ServerErrorSkipped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFetcher(Config{})
	res, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkip, res.Outcome)
	require.Equal(t, http.StatusBadGateway, res.StatusCode)
	require.Empty(t, res.Body)
}

func TestFetch_ContextCanceledDuringRetryDelay(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher(Config{MaxAttempts: 3, RetryDelay: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, srv.URL, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_FollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(Config{})
	res, err := f.Fetch(context.Background(), srv.URL+"/old", nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Equal(t, srv.URL+"/new", res.FinalURL)
}
