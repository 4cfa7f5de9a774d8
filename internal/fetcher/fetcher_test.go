package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheet-news-scraper/internal/config"
	"sheet-news-scraper/internal/observability"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RateLimit.RPM = 6000
	cfg.HTTP.MaxRetries = 2
	return cfg
}

func newTestFetcher(cfg *config.Config) *Fetcher {
	f := NewFetcher(cfg, observability.NewNop())
	f.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return f
}

func TestBackoffCalculation(t *testing.T) {
	cfg := testConfig()
	cfg.Backoff = config.BackoffConfig{MinMS: 250, MaxMS: 2000, JitterPct: 20}
	f := newTestFetcher(cfg)

	for attempt := 1; attempt <= 8; attempt++ {
		backoff := f.calculateBackoff(attempt)
		assert.GreaterOrEqual(t, backoff, cfg.GetBackoffMin(), "attempt %d", attempt)
		assert.LessOrEqual(t, backoff, cfg.GetBackoffMax()*12/10, "attempt %d", attempt)
	}
}

func TestLoad_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<html><body><h2 class=\"t\">Caf\xe9 opens</h2></body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(testConfig())
	doc, err := f.Load(context.Background(), &config.SiteConfig{BaseURL: srv.URL + "/news"})
	require.NoError(t, err)
	assert.Equal(t, "Café opens", doc.Find("h2.t").Text())
	assert.Equal(t, srv.URL+"/news", doc.Url.String())
}

func TestFetch_Gzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte("<p>compressed</p>"))
		_ = gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.HTTP.RespectRobots = false
	resp, err := newTestFetcher(cfg).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>compressed</p>", string(resp.Body))
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := newTestFetcher(testConfig()).Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestLoad_FailsAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.HTTP.RespectRobots = false
	_, err := newTestFetcher(cfg).Load(context.Background(), &config.SiteConfig{BaseURL: srv.URL})
	assert.Error(t, err)
}

func TestFetch_RobotsDisallow(t *testing.T) {
	var pageHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		atomic.AddInt32(&pageHits, 1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(testConfig())

	_, err := f.Fetch(context.Background(), srv.URL+"/private/list")
	assert.ErrorIs(t, err, ErrDisallowed)

	_, err = f.Fetch(context.Background(), srv.URL+"/public")
	assert.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&pageHits))
}

func TestRateLimiter_SpacesRequests(t *testing.T) {
	rl := NewRateLimiter(1, 600)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		release, err := rl.Acquire(ctx, "example.com")
		require.NoError(t, err)
		release()
	}
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestRateLimiter_HostsIndependent(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	ctx := context.Background()

	r1, err := rl.Acquire(ctx, "a.test")
	require.NoError(t, err)
	r2, err := rl.Acquire(ctx, "b.test")
	require.NoError(t, err)
	r1()
	r2()
}

func TestRateLimiter_ContextCancelled(t *testing.T) {
	rl := NewRateLimiter(1, 6000)
	release, err := rl.Acquire(context.Background(), "example.com")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rl.Acquire(ctx, "example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
