package config

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

type Config struct {
	Timezone            string              `yaml:"timezone"`
	SitesDir            string              `yaml:"sites_dir"`
	Store               StoreConfig         `yaml:"store"`
	Scrape              ScrapeConfig        `yaml:"scrape"`
	Retention           RetentionConfig     `yaml:"retention"`
	Rod                 RodConfig           `yaml:"rod"`
	Backoff             BackoffConfig       `yaml:"backoff"`
	RobotsCacheTTLHours int                 `yaml:"robots_cache_ttl_hours"`
	HTTP                HttpConfig          `yaml:"http"`
	RateLimit           RateLimitConfig     `yaml:"rate_limit"`
	Dates               DatesConfig         `yaml:"dates"`
	Normalize           NormalizeConfig     `yaml:"normalize"`
	Observability       ObservabilityConfig `yaml:"observability"`
}

type StoreConfig struct {
	// Driver is one of gsheets, sqlserver, sqlite3.
	Driver           string `yaml:"driver"`
	SpreadsheetID    string `yaml:"spreadsheet_id"`
	SheetName        string `yaml:"sheet_name"`
	ArchiveSheetName string `yaml:"archive_sheet_name"`
	CredentialsEnv   string `yaml:"credentials_env"`
	DSN              string `yaml:"dsn"`
	TableName        string `yaml:"table_name"`
	CommandTimeoutMS int    `yaml:"command_timeout_ms"`
	RateLimitDelayS  int    `yaml:"rate_limit_delay_s"`
	MaxAttempts      int    `yaml:"max_attempts"`
}

type ScrapeConfig struct {
	FreshnessCutoffHours int    `yaml:"freshness_cutoff_hours"`
	RecencyWindowHours   int    `yaml:"recency_window_hours"`
	DefaultLimit         int    `yaml:"default_limit"`
	DefaultRender        string `yaml:"default_render"`
	MinTitleLength       int    `yaml:"min_title_length"`
	RefreshLedgerPerSite bool   `yaml:"refresh_ledger_per_site"`
}

type RetentionConfig struct {
	MaxAgeDays int  `yaml:"max_age_days"`
	DateColumn int  `yaml:"date_column"`
	Archive    bool `yaml:"archive"`
}

type RodConfig struct {
	ChromePath           string `yaml:"chrome_path"`
	PageTimeoutS         int    `yaml:"page_timeout_s"`
	WaitSelectorTimeoutS int    `yaml:"wait_selector_timeout_s"`
	SettleDelayMS        int    `yaml:"settle_delay_ms"`
	ViewportWidth        int    `yaml:"viewport_width"`
	ViewportHeight       int    `yaml:"viewport_height"`
}

type BackoffConfig struct {
	MinMS     int `yaml:"min_ms"`
	MaxMS     int `yaml:"max_ms"`
	JitterPct int `yaml:"jitter_pct"`
}

type HttpConfig struct {
	UserAgent              string `yaml:"user_agent"`
	AcceptLanguage         string `yaml:"accept_language"`
	ConnectTimeoutMS       int    `yaml:"connect_timeout_ms"`
	TotalTimeoutMS         int    `yaml:"total_timeout_ms"`
	MaxRetries             int    `yaml:"max_retries"`
	MaxIdleConnections     int    `yaml:"max_idle_connections"`
	IdleConnectionTimeoutS int    `yaml:"idle_connection_timeout_s"`
	RespectRobots          bool   `yaml:"respect_robots"`
}

type RateLimitConfig struct {
	MaxConcurrentPerHost int `yaml:"max_concurrent_per_host"`
	RPM                  int `yaml:"rpm"`
}

type DatesConfig struct {
	// DayFirst reads 03/04/2025 as 3 April.
	DayFirst bool `yaml:"day_first"`
}

type NormalizeConfig struct {
	TrimNBSP        bool `yaml:"trim_nbsp"`
	CollapseSpaces  bool `yaml:"collapse_spaces"`
	MaxPreviewChars int  `yaml:"max_preview_chars"`
}

type ObservabilityConfig struct {
	LogPath       string `yaml:"log_path"`
	LogLevel      string `yaml:"log_level"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
}

// Default returns the settings the scripts ran with before they had a config file.
func Default() *Config {
	return &Config{
		Timezone: "Asia/Kolkata",
		SitesDir: "config",
		Store: StoreConfig{
			Driver:           "gsheets",
			SheetName:        "Sheet1",
			ArchiveSheetName: "archive",
			CredentialsEnv:   "GSHEET_CREDS",
			TableName:        "articles",
			CommandTimeoutMS: 10000,
			RateLimitDelayS:  30,
			MaxAttempts:      5,
		},
		Scrape: ScrapeConfig{
			FreshnessCutoffHours: 25,
			RecencyWindowHours:   48,
			DefaultLimit:         20,
			DefaultRender:        RenderBrowser,
			MinTitleLength:       6,
			RefreshLedgerPerSite: true,
		},
		Retention: RetentionConfig{
			MaxAgeDays: 3,
			DateColumn: 2,
		},
		Rod: RodConfig{
			PageTimeoutS:         45,
			WaitSelectorTimeoutS: 15,
			SettleDelayMS:        1000,
			ViewportWidth:        1280,
			ViewportHeight:       800,
		},
		Backoff: BackoffConfig{
			MinMS:     250,
			MaxMS:     4000,
			JitterPct: 20,
		},
		RobotsCacheTTLHours: 12,
		HTTP: HttpConfig{
			UserAgent:              "Mozilla/5.0 (compatible; sheet-news/1.0)",
			AcceptLanguage:         "en-IN,en;q=0.9,hi;q=0.8",
			ConnectTimeoutMS:       10000,
			TotalTimeoutMS:         15000,
			MaxRetries:             2,
			MaxIdleConnections:     20,
			IdleConnectionTimeoutS: 90,
			RespectRobots:          true,
		},
		RateLimit: RateLimitConfig{
			MaxConcurrentPerHost: 1,
			RPM:                  30,
		},
		Normalize: NormalizeConfig{
			TrimNBSP:       true,
			CollapseSpaces: true,
		},
		Observability: ObservabilityConfig{
			LogPath:       "logs/sheet-news.log",
			LogLevel:      "info",
			LogMaxSizeMB:  10,
			LogMaxBackups: 5,
			LogMaxAgeDays: 30,
		},
	}
}

// Validation
func (c *Config) Validate() error {
	if c.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.SitesDir == "" {
		return fmt.Errorf("sites_dir is required")
	}
	switch c.Store.Driver {
	case "gsheets":
		if c.Store.SpreadsheetID == "" {
			return fmt.Errorf("store.spreadsheet_id is required for gsheets")
		}
		if c.Store.CredentialsEnv == "" {
			return fmt.Errorf("store.credentials_env is required for gsheets")
		}
	case "sqlserver", "sqlite3":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for %s", c.Store.Driver)
		}
		if c.Store.TableName == "" {
			return fmt.Errorf("store.table_name is required for %s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be 'gsheets', 'sqlserver' or 'sqlite3'")
	}
	if c.Store.CommandTimeoutMS <= 0 {
		return fmt.Errorf("store.command_timeout_ms must be > 0")
	}
	if c.Store.RateLimitDelayS < 0 {
		return fmt.Errorf("store.rate_limit_delay_s must be >= 0")
	}
	if c.Store.MaxAttempts < 1 {
		return fmt.Errorf("store.max_attempts must be >= 1")
	}
	if c.Scrape.FreshnessCutoffHours <= 0 {
		return fmt.Errorf("scrape.freshness_cutoff_hours must be > 0")
	}
	if c.Scrape.RecencyWindowHours <= 0 {
		return fmt.Errorf("scrape.recency_window_hours must be > 0")
	}
	if c.Scrape.DefaultLimit <= 0 {
		return fmt.Errorf("scrape.default_limit must be > 0")
	}
	if !validRender(c.Scrape.DefaultRender) {
		return fmt.Errorf("scrape.default_render must be 'static' or 'browser'")
	}
	if c.Scrape.MinTitleLength < 0 {
		return fmt.Errorf("scrape.min_title_length must be >= 0")
	}
	if c.Retention.MaxAgeDays <= 0 {
		return fmt.Errorf("retention.max_age_days must be > 0")
	}
	if c.Retention.DateColumn < 0 {
		return fmt.Errorf("retention.date_column must be >= 0")
	}
	if c.Retention.Archive && c.Store.Driver == "gsheets" && c.Store.ArchiveSheetName == "" {
		return fmt.Errorf("store.archive_sheet_name is required when retention.archive is set")
	}
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent is required")
	}
	if c.HTTP.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("http.connect_timeout_ms must be > 0")
	}
	if c.HTTP.TotalTimeoutMS <= 0 {
		return fmt.Errorf("http.total_timeout_ms must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.RateLimit.MaxConcurrentPerHost <= 0 {
		return fmt.Errorf("rate_limit.max_concurrent_per_host must be > 0")
	}
	if c.RateLimit.RPM <= 0 {
		return fmt.Errorf("rate_limit.rpm must be > 0")
	}
	if c.RobotsCacheTTLHours <= 0 {
		return fmt.Errorf("robots_cache_ttl_hours must be > 0")
	}
	if c.Backoff.MinMS <= 0 {
		return fmt.Errorf("backoff.min_ms must be > 0")
	}
	if c.Backoff.MaxMS <= 0 {
		return fmt.Errorf("backoff.max_ms must be > 0")
	}
	if c.Backoff.MinMS > c.Backoff.MaxMS {
		return fmt.Errorf("backoff.min_ms must be <= backoff.max_ms")
	}
	if c.Backoff.JitterPct < 0 || c.Backoff.JitterPct > 100 {
		return fmt.Errorf("backoff.jitter_pct must be between 0 and 100")
	}
	if c.Rod.PageTimeoutS <= 0 {
		return fmt.Errorf("rod.page_timeout_s must be > 0")
	}
	if c.Rod.WaitSelectorTimeoutS <= 0 {
		return fmt.Errorf("rod.wait_selector_timeout_s must be > 0")
	}
	if c.Rod.SettleDelayMS < 0 {
		return fmt.Errorf("rod.settle_delay_ms must be >= 0")
	}
	if c.Normalize.MaxPreviewChars < 0 {
		return fmt.Errorf("normalize.max_preview_chars must be >= 0")
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("observability.log_level is required")
	}
	return nil
}

// Getters
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.HTTP.ConnectTimeoutMS) * time.Millisecond
}

func (c *Config) GetTotalTimeout() time.Duration {
	return time.Duration(c.HTTP.TotalTimeoutMS) * time.Millisecond
}

func (c *Config) GetIdleConnectionTimeout() time.Duration {
	return time.Duration(c.HTTP.IdleConnectionTimeoutS) * time.Second
}

func (c *Config) GetBackoffMin() time.Duration {
	return time.Duration(c.Backoff.MinMS) * time.Millisecond
}

func (c *Config) GetBackoffMax() time.Duration {
	return time.Duration(c.Backoff.MaxMS) * time.Millisecond
}

func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Store.CommandTimeoutMS) * time.Millisecond
}

func (c *Config) GetRateLimitDelay() time.Duration {
	return time.Duration(c.Store.RateLimitDelayS) * time.Second
}

func (c *Config) GetRobotsCacheTTL() time.Duration {
	return time.Duration(c.RobotsCacheTTLHours) * time.Hour
}

func (c *Config) GetFreshnessCutoff() time.Duration {
	return time.Duration(c.Scrape.FreshnessCutoffHours) * time.Hour
}

func (c *Config) GetRecencyWindow() time.Duration {
	return time.Duration(c.Scrape.RecencyWindowHours) * time.Hour
}

func (c *Config) GetRetentionAge() time.Duration {
	return time.Duration(c.Retention.MaxAgeDays) * 24 * time.Hour
}

func (c *Config) GetRodPageTimeout() time.Duration {
	return time.Duration(c.Rod.PageTimeoutS) * time.Second
}

func (c *Config) GetRodWaitSelectorTimeout() time.Duration {
	return time.Duration(c.Rod.WaitSelectorTimeoutS) * time.Second
}

func (c *Config) GetRodSettleDelay() time.Duration {
	return time.Duration(c.Rod.SettleDelayMS) * time.Millisecond
}
