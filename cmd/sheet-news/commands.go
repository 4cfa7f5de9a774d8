package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"sheet-news-scraper/internal/app"
	"sheet-news-scraper/internal/config"
	"sheet-news-scraper/internal/dates"
	"sheet-news-scraper/internal/fetcher"
	"sheet-news-scraper/internal/normalize"
	"sheet-news-scraper/internal/render"
	"sheet-news-scraper/internal/retention"
	"sheet-news-scraper/internal/scraper"
	"sheet-news-scraper/internal/storage"
	"sheet-news-scraper/internal/storage/gsheets"
	"sheet-news-scraper/internal/storage/sqlstore"
)

type store struct {
	table   storage.Table
	archive storage.Archive
	close   func() error
}

// openStore connects to the configured backend. A missing credential is
// fatal.
func openStore(ctx context.Context) (*store, error) {
	switch cfg.Store.Driver {
	case "gsheets":
		creds := os.Getenv(cfg.Store.CredentialsEnv)
		if creds == "" {
			return nil, fmt.Errorf("environment variable %s is not set", cfg.Store.CredentialsEnv)
		}

		client, err := gsheets.NewClient(ctx, cfg.Store.SpreadsheetID, []byte(creds), logger)
		if err != nil {
			return nil, err
		}
		sheet := client.Sheet(cfg.Store.SheetName)
		if err := sheet.EnsureHeader(ctx); err != nil {
			return nil, err
		}

		st := &store{table: sheet, close: func() error { return nil }}
		if cfg.Store.ArchiveSheetName != "" {
			st.archive = client.Sheet(cfg.Store.ArchiveSheetName)
		}
		return st, nil

	default:
		repo, err := sqlstore.NewRepository(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Store.TableName, cfg.GetCommandTimeout(), logger)
		if err != nil {
			return nil, err
		}
		return &store{table: repo, archive: repo.Archive(), close: repo.Close}, nil
	}
}

func newParser() *dates.Parser {
	return dates.NewParser(cfg.Location(), cfg.Dates.DayFirst)
}

func newRetry() *storage.Retry {
	return storage.NewRetry(cfg.Store.MaxAttempts, cfg.GetRateLimitDelay(), logger)
}

func runScrape(ctx context.Context) error {
	ctx, cancel := app.WithShutdown(ctx, logger)
	defer cancel()

	sites, problems, err := cfg.LoadSites()
	if err != nil {
		return err
	}
	for _, p := range problems {
		logger.Error("Skipping site config", "error", p.Error())
	}
	if len(sites) == 0 {
		return fmt.Errorf("no usable site configs in %s", cfg.SitesDir)
	}

	parser := newParser()

	st, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Warn("Failed to close store", "error", err.Error())
		}
	}()

	table := st.table
	if dryRun {
		snap, err := table.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to read table: %w", err)
		}
		table = storage.MemoryTableFromSnapshot(snap)
		logger.Info("Dry run: rows go to an in-memory copy", "rows", len(snap.Records))
	}

	renderer := render.NewRenderer(cfg, logger)
	defer func() {
		if err := renderer.Close(); err != nil {
			logger.Warn("Failed to close browser", "error", err.Error())
		}
	}()
	sources := map[string]scraper.PageSource{
		config.RenderStatic:  fetcher.NewFetcher(cfg, logger),
		config.RenderBrowser: renderer,
	}

	s := scraper.NewScraper(
		scraper.NewExtractor(parser, normalize.NewCleaner(cfg.Normalize)),
		cfg.Scrape.MinTitleLength,
		logger,
	)

	orch := app.NewOrchestrator(cfg, logger, table, sources, s, parser, newRetry())
	stats, err := orch.Run(ctx, sites)
	if stats != nil {
		fmt.Printf("Done. Found %d articles, saved %d new rows, %d sites failed.\n", stats.Found, stats.Saved, stats.Failed)
	}
	return err
}

func runSweep(ctx context.Context) error {
	ctx, cancel := app.WithShutdown(ctx, logger)
	defer cancel()

	parser := newParser()

	st, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Warn("Failed to close store", "error", err.Error())
		}
	}()

	sweeper := retention.NewSweeper(st.table, st.archive, parser, newRetry(), retention.Options{
		MaxAge:     cfg.GetRetentionAge(),
		DateColumn: cfg.Retention.DateColumn,
		Archive:    cfg.Retention.Archive,
		DryRun:     dryRun,
	}, logger)

	stats, err := sweeper.Run(ctx, time.Now())
	if stats != nil {
		fmt.Printf("Done. %d rows, %d expired, %d archived, %d deleted.\n", stats.Rows, stats.Expired, stats.Archived, stats.Deleted)
	}
	return err
}

func runPreview(ctx context.Context, sitePath string, out io.Writer) error {
	site, err := cfg.LoadSite(sitePath)
	if err != nil {
		return err
	}
	if renderMode != "" {
		site.Render = renderMode
	}

	parser := newParser()

	var source scraper.PageSource
	switch site.Render {
	case config.RenderStatic:
		source = fetcher.NewFetcher(cfg, logger)
	case config.RenderBrowser:
		renderer := render.NewRenderer(cfg, logger)
		defer func() { _ = renderer.Close() }()
		source = renderer
	default:
		return fmt.Errorf("render must be %q or %q", config.RenderStatic, config.RenderBrowser)
	}

	doc, err := source.Load(ctx, site)
	if err != nil {
		return err
	}

	extractor := scraper.NewExtractor(parser, normalize.NewCleaner(cfg.Normalize))
	return scraper.Preview(out, doc, site, extractor, cfg.Scrape.MinTitleLength, time.Now())
}
