package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"sheet-news-scraper/internal/config"
	"sheet-news-scraper/internal/observability"
)

// Fetcher loads listing pages over plain HTTP.
type Fetcher struct {
	client      *http.Client
	cfg         *config.Config
	logger      *observability.Logger
	robotsCache *RobotsCache
	rateLimiter *RateLimiter

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

type FetchResponse struct {
	StatusCode int
	Body       []byte
	URL        string
	Headers    http.Header
}

func NewFetcher(cfg *config.Config, logger *observability.Logger) *Fetcher {
	client := &http.Client{
		Timeout: cfg.GetTotalTimeout(),
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.GetConnectTimeout(),
			}).DialContext,
			MaxIdleConns:        cfg.HTTP.MaxIdleConnections,
			MaxIdleConnsPerHost: cfg.RateLimit.MaxConcurrentPerHost,
			IdleConnTimeout:     cfg.GetIdleConnectionTimeout(),
		},
	}

	return &Fetcher{
		client:      client,
		cfg:         cfg,
		logger:      logger,
		robotsCache: NewRobotsCache(cfg.GetRobotsCacheTTL(), cfg.HTTP.UserAgent, logger),
		rateLimiter: NewRateLimiter(cfg.RateLimit.MaxConcurrentPerHost, cfg.RateLimit.RPM),
		sleep:       sleepContext,
	}
}

// Load fetches the site's base URL and parses it.
func (f *Fetcher) Load(ctx context.Context, site *config.SiteConfig) (*goquery.Document, error) {
	resp, err := f.Fetch(ctx, site.BaseURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, resp.URL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if u, err := url.Parse(resp.URL); err == nil {
		doc.Url = u
	}
	return doc, nil
}

func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*FetchResponse, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if f.cfg.HTTP.RespectRobots && !f.robotsCache.IsAllowed(ctx, parsedURL, f.client) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowed, urlStr)
	}

	release, err := f.rateLimiter.Acquire(ctx, parsedURL.Host)
	if err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= f.cfg.HTTP.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.calculateBackoff(attempt)
			f.logger.Debug("Retrying fetch",
				"url", urlStr,
				"attempt", attempt,
				"backoff", backoff.String(),
				"error", lastErr,
			)
			if err := f.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		resp, err := f.fetchOnce(ctx, urlStr)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			if attempt < f.cfg.HTTP.MaxRetries {
				continue
			}
		}

		return resp, nil
	}

	return nil, fmt.Errorf("fetch failed after %d retries: %w", f.cfg.HTTP.MaxRetries, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, urlStr string) (*FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", f.cfg.HTTP.UserAgent)
	if f.cfg.HTTP.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", f.cfg.HTTP.AcceptLanguage)
	}
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Warn("Failed to close response body", "error", err.Error())
		}
	}()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gzipReader.Close() }()
		reader = gzipReader
	}

	utf8Reader, err := charset.NewReader(reader, resp.Header.Get("Content-Type"))
	if err != nil {
		f.logger.Debug("Charset detection failed, reading raw body", "url", urlStr, "error", err.Error())
		utf8Reader = reader
	}

	body, err := io.ReadAll(utf8Reader)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Fetched page",
		"url", urlStr,
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"content_encoding", resp.Header.Get("Content-Encoding"),
		"bytes", len(body),
	)

	return &FetchResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
		URL:        resp.Request.URL.String(),
		Headers:    resp.Header,
	}, nil
}

func (f *Fetcher) calculateBackoff(attempt int) time.Duration {
	minMS := f.cfg.Backoff.MinMS
	maxMS := f.cfg.Backoff.MaxMS
	jitterPct := f.cfg.Backoff.JitterPct

	// min * 2^(attempt-1), capped at max
	exponential := minMS * (1 << uint(attempt-1))
	if exponential > maxMS || exponential <= 0 {
		exponential = maxMS
	}

	jitterRange := float64(exponential) * float64(jitterPct) / 100
	jitter := (rand.Float64() - 0.5) * 2 * jitterRange
	finalMS := float64(exponential) + jitter

	if finalMS < float64(minMS) {
		finalMS = float64(minMS)
	}

	return time.Duration(math.Max(finalMS, 0)) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
