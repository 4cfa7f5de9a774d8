// Package render loads listing pages in a headless Chromium so that
// script-built containers are present before extraction.
package render

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"sheet-news-scraper/internal/config"
	"sheet-news-scraper/internal/observability"
)

// Renderer owns one browser for the whole run. The browser starts on the
// first Load and stops on Close.
type Renderer struct {
	cfg    config.RodConfig
	ua     string
	logger *observability.Logger

	pageTimeout time.Duration
	waitTimeout time.Duration
	settleDelay time.Duration

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func NewRenderer(cfg *config.Config, logger *observability.Logger) *Renderer {
	return &Renderer{
		cfg:         cfg.Rod,
		ua:          cfg.HTTP.UserAgent,
		logger:      logger,
		pageTimeout: cfg.GetRodPageTimeout(),
		waitTimeout: cfg.GetRodWaitSelectorTimeout(),
		settleDelay: cfg.GetRodSettleDelay(),
	}
}

// Load opens the site's base URL in a fresh tab, waits for the container
// selector (a timeout there is not an error), lets the page settle and
// parses the resulting DOM.
func (r *Renderer) Load(ctx context.Context, site *config.SiteConfig) (*goquery.Document, error) {
	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.logger.Warn("Failed to close tab", "site", site.Site, "error", err.Error())
		}
	}()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  r.cfg.ViewportWidth,
		Height: r.cfg.ViewportHeight,
	}); err != nil {
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}
	if r.ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.ua}); err != nil {
			return nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	p := page.Context(ctx).Timeout(r.pageTimeout)

	r.logger.Info("Visiting", "site", site.Site, "url", site.BaseURL)
	if err := p.Navigate(site.BaseURL); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		r.logger.Debug("Load event not seen", "site", site.Site, "error", err.Error())
	}

	if _, err := p.Timeout(r.waitTimeout).Element(site.Article.Container); err != nil {
		r.logger.Warn("Container selector not found before timeout",
			"site", site.Site,
			"selector", site.Article.Container,
			"timeout", r.waitTimeout.String(),
		)
	}

	select {
	case <-time.After(r.settleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read page HTML: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func (r *Renderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-dev-shm-usage")
	if r.cfg.ChromePath != "" {
		l = l.Bin(r.cfg.ChromePath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	r.logger.Debug("Browser started", "control_url", controlURL)
	r.launcher = l
	r.browser = browser
	return browser, nil
}

// Started reports whether the browser has been launched.
func (r *Renderer) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.browser != nil
}

// Close stops the browser if it was started.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.launcher.Kill()
	r.launcher.Cleanup()
	r.browser = nil
	r.launcher = nil
	return err
}
