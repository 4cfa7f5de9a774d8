package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"sheet-news-scraper/internal/observability"
)

// ErrDisallowed is returned for URLs that robots.txt excludes.
var ErrDisallowed = errors.New("URL disallowed by robots.txt")

// RobotsCache keeps parsed robots.txt files per origin.
type RobotsCache struct {
	cache     map[string]*robotsEntry
	ttl       time.Duration
	userAgent string
	mu        sync.RWMutex
	logger    *observability.Logger
}

type robotsEntry struct {
	group     *robotstxt.Group
	expiresAt time.Time
}

func NewRobotsCache(ttl time.Duration, userAgent string, logger *observability.Logger) *RobotsCache {
	return &RobotsCache{
		cache:     make(map[string]*robotsEntry),
		ttl:       ttl,
		userAgent: userAgent,
		logger:    logger,
	}
}

// IsAllowed reports whether u may be fetched. A robots.txt that cannot be
// loaded allows everything.
func (rc *RobotsCache) IsAllowed(ctx context.Context, u *url.URL, client *http.Client) bool {
	origin := u.Scheme + "://" + u.Host

	rc.mu.RLock()
	cached, exists := rc.cache[origin]
	rc.mu.RUnlock()

	if !exists || time.Now().After(cached.expiresAt) {
		cached = &robotsEntry{
			group:     rc.load(ctx, origin, client),
			expiresAt: time.Now().Add(rc.ttl),
		}
		rc.mu.Lock()
		rc.cache[origin] = cached
		rc.mu.Unlock()
	}

	if cached.group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return cached.group.Test(path)
}

func (rc *RobotsCache) load(ctx context.Context, origin string, client *http.Client) *robotstxt.Group {
	robotsURL := fmt.Sprintf("%s/robots.txt", origin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		rc.logger.Warn("Failed to load robots.txt, allowing all", "url", robotsURL, "error", err.Error())
		return nil
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			rc.logger.Warn("Failed to close response body", "error", err.Error())
		}
	}()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		rc.logger.Warn("Failed to parse robots.txt, allowing all", "url", robotsURL, "error", err.Error())
		return nil
	}
	return data.FindGroup(rc.userAgent)
}
