package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	RenderStatic  = "static"
	RenderBrowser = "browser"
)

// Selectors maps article fields to CSS selectors. An empty selector leaves
// the field empty for every article of the site.
type Selectors struct {
	Container string `json:"container"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Date      string `json:"date"`
	Author    string `json:"author"`
	Snippet   string `json:"snippet"`
	Image     string `json:"image"`
}

type SiteConfig struct {
	Site       string    `json:"site"`
	SourceName string    `json:"source_name"`
	BaseURL    string    `json:"base_url"`
	Limit      int       `json:"limit"`
	Render     string    `json:"render"`
	Article    Selectors `json:"article"`

	// Path is the file the site was loaded from.
	Path string `json:"-"`
}

// SiteLoadError describes a site file that could not be used.
type SiteLoadError struct {
	Path string
	Err  error
}

func (e *SiteLoadError) Error() string {
	return fmt.Sprintf("site config %s: %v", e.Path, e.Err)
}

func (e *SiteLoadError) Unwrap() error {
	return e.Err
}

// LoadSite reads a single site JSON file and fills defaults from c.
func (c *Config) LoadSite(filePath string) (*SiteConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read site config: %w", err)
	}

	var site SiteConfig
	if err := json.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("failed to parse site config: %w", err)
	}
	site.Path = filePath

	if site.Site == "" {
		site.Site = site.SourceName
	}
	if site.Site == "" {
		site.Site = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	if site.Limit <= 0 {
		site.Limit = c.Scrape.DefaultLimit
	}
	if site.Render == "" {
		site.Render = c.Scrape.DefaultRender
	}

	if err := validateSite(&site); err != nil {
		return nil, err
	}

	return &site, nil
}

// LoadSites reads every *.json file in SitesDir in file-name order. Files
// that fail to load are returned as SiteLoadError values next to the good ones.
func (c *Config) LoadSites() ([]*SiteConfig, []error, error) {
	if _, err := os.Stat(c.SitesDir); err != nil {
		return nil, nil, fmt.Errorf("sites dir not found: %s: %w", c.SitesDir, err)
	}

	paths, err := filepath.Glob(filepath.Join(c.SitesDir, "*.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list site configs: %w", err)
	}
	sort.Strings(paths)

	var sites []*SiteConfig
	var problems []error
	for _, p := range paths {
		site, err := c.LoadSite(p)
		if err != nil {
			problems = append(problems, &SiteLoadError{Path: p, Err: err})
			continue
		}
		sites = append(sites, site)
	}

	return sites, problems, nil
}

func validateSite(s *SiteConfig) error {
	if s.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasPrefix(s.BaseURL, "http") {
		return fmt.Errorf("base_url must be an http(s) URL: %s", s.BaseURL)
	}
	if s.Article.Container == "" {
		return fmt.Errorf("article.container is required")
	}
	if !validRender(s.Render) {
		return fmt.Errorf("render must be 'static' or 'browser', got %q", s.Render)
	}
	return nil
}

func validRender(r string) bool {
	return r == RenderStatic || r == RenderBrowser
}
