package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfig_DefaultsSurviveDecode(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
store:
  driver: sqlite3
  dsn: "file::memory:"
scrape:
  freshness_cutoff_hours: 12
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, 12*time.Hour, cfg.GetFreshnessCutoff())
	assert.Equal(t, 48*time.Hour, cfg.GetRecencyWindow())
	assert.Equal(t, 20, cfg.Scrape.DefaultLimit)
	assert.Equal(t, 3*24*time.Hour, cfg.GetRetentionAge())
	assert.Equal(t, 30*time.Second, cfg.GetRateLimitDelay())
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
}

func TestLoadConfig_UnknownField(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "storage:\n  driver: sqlite3\n")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"gsheets needs spreadsheet", func(c *Config) { c.Store.SpreadsheetID = "" }, "store.spreadsheet_id"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"zero attempts", func(c *Config) { c.Store.MaxAttempts = 0 }, "store.max_attempts"},
		{"bad render", func(c *Config) { c.Scrape.DefaultRender = "wasm" }, "scrape.default_render"},
		{"backoff order", func(c *Config) { c.Backoff.MinMS = 5000 }, "backoff.min_ms"},
		{"archive without sheet", func(c *Config) {
			c.Retention.Archive = true
			c.Store.ArchiveSheetName = ""
		}, "store.archive_sheet_name"},
		{"archive on sql", func(c *Config) {
			c.Store.Driver = "sqlite3"
			c.Store.DSN = "file::memory:"
			c.Store.ArchiveSheetName = ""
			c.Retention.Archive = true
		}, ""},
		{"ok", func(c *Config) {}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store.SpreadsheetID = "sheet-id"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadSites(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_news.json", `{
		"site": "B News",
		"base_url": "https://b.example.com/latest",
		"limit": 5,
		"render": "static",
		"article": {"container": "div.card", "title": "h2", "link": "a.more"}
	}`)
	writeFile(t, dir, "a_daily.json", `{
		"source_name": "A Daily",
		"base_url": "https://a.example.com/",
		"article": {"container": "article"}
	}`)
	writeFile(t, dir, "broken.json", `{"site": "x", "base_url": "https://x.example.com"}`)
	writeFile(t, dir, "notes.txt", "ignored")

	cfg := Default()
	cfg.SitesDir = dir

	sites, problems, err := cfg.LoadSites()
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Len(t, problems, 1)

	assert.Equal(t, "A Daily", sites[0].Site)
	assert.Equal(t, 20, sites[0].Limit)
	assert.Equal(t, RenderBrowser, sites[0].Render)

	assert.Equal(t, "B News", sites[1].Site)
	assert.Equal(t, 5, sites[1].Limit)
	assert.Equal(t, RenderStatic, sites[1].Render)
	assert.Equal(t, "a.more", sites[1].Article.Link)

	var loadErr *SiteLoadError
	require.ErrorAs(t, problems[0], &loadErr)
	assert.Contains(t, loadErr.Path, "broken.json")
	assert.Contains(t, loadErr.Error(), "article.container")
}

func TestLoadSite_NameFromFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "thenewspost.json", `{"base_url": "https://n.example.com", "article": {"container": "li"}}`)

	site, err := Default().LoadSite(p)
	require.NoError(t, err)
	assert.Equal(t, "thenewspost", site.Site)
}

func TestLoadSites_MissingDir(t *testing.T) {
	cfg := Default()
	cfg.SitesDir = filepath.Join(t.TempDir(), "nope")

	_, _, err := cfg.LoadSites()
	assert.Error(t, err)
}
