package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-runewidth"

	"sheet-news-scraper/internal/config"
	"sheet-news-scraper/internal/dates"
	"sheet-news-scraper/internal/ledger"
	"sheet-news-scraper/internal/observability"
	"sheet-news-scraper/internal/scraper"
	"sheet-news-scraper/internal/storage"
)

// titleWidth is how many terminal cells of a title progress lines show.
const titleWidth = 70

type Orchestrator struct {
	cfg     *config.Config
	logger  *observability.Logger
	table   storage.Table
	sources map[string]scraper.PageSource
	scraper *scraper.Scraper
	parser  *dates.Parser
	retry   *storage.Retry

	now func() time.Time
}

// NewOrchestrator wires a run. sources is keyed by render mode.
func NewOrchestrator(
	cfg *config.Config,
	logger *observability.Logger,
	table storage.Table,
	sources map[string]scraper.PageSource,
	s *scraper.Scraper,
	parser *dates.Parser,
	retry *storage.Retry,
) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		table:   table,
		sources: sources,
		scraper: s,
		parser:  parser,
		retry:   retry,
		now:     time.Now,
	}
}

type SiteStats struct {
	Site       string
	Candidates int
	Found      int
	Saved      int
	Err        error
}

type RunStats struct {
	Sites  []SiteStats
	Found  int
	Saved  int
	Failed int
}

// Run scrapes each site in turn and appends the accepted articles. A site
// that fails to load is logged and skipped. The run stops early only when
// the store cannot be read, when a write gives up after repeated rate
// limiting, or when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, sites []*config.SiteConfig) (*RunStats, error) {
	stats := &RunStats{}
	now := o.now().In(o.parser.Location())
	cutoff := now.Add(-o.cfg.GetFreshnessCutoff())

	links, err := o.loadLinks(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("failed to load existing links: %w", err)
	}

	o.logger.Info("Starting scrape",
		"sites", len(sites),
		"known_links", links.Len(),
		"cutoff", o.parser.Format(cutoff),
	)

	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		siteStats, err := o.runSite(ctx, site, cutoff, links, now)
		stats.Sites = append(stats.Sites, siteStats)
		stats.Found += siteStats.Found
		stats.Saved += siteStats.Saved
		if siteStats.Err != nil {
			stats.Failed++
		}

		o.logger.Info("Site done",
			"site", site.Site,
			"found", siteStats.Found,
			"saved", siteStats.Saved,
		)
		if err != nil {
			return stats, err
		}
	}

	o.logger.Info("Scrape completed",
		"found", stats.Found,
		"saved", stats.Saved,
		"failed_sites", stats.Failed,
	)
	return stats, nil
}

// runSite returns a non-nil error only when the whole run must stop.
func (o *Orchestrator) runSite(ctx context.Context, site *config.SiteConfig, cutoff time.Time, links *ledger.LinkSet, now time.Time) (SiteStats, error) {
	st := SiteStats{Site: site.Site}

	source, ok := o.sources[site.Render]
	if !ok {
		st.Err = fmt.Errorf("no page source for render mode %q", site.Render)
		o.logger.Error("Scrape error", "site", site.Site, "error", st.Err.Error())
		return st, nil
	}

	doc, err := source.Load(ctx, site)
	if err != nil {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Err = err
		o.logger.Error("Scrape error", "site", site.Site, "url", site.BaseURL, "error", err.Error())
		return st, nil
	}

	result := o.scraper.ScrapeSite(doc, site, cutoff, links, now)
	st.Candidates = result.Candidates
	st.Found = len(result.Accepted)
	o.logger.Info("Found candidate elements",
		"site", site.Site,
		"candidates", result.Candidates,
		"accepted", st.Found,
		"rejected", result.Rejected,
	)

	if st.Found == 0 {
		return st, nil
	}

	if o.cfg.Scrape.RefreshLedgerPerSite {
		refreshed, err := o.loadLinks(ctx, now)
		if err != nil {
			o.logger.Warn("Failed to refresh existing links, using previous set",
				"site", site.Site,
				"error", err.Error(),
			)
		} else {
			links.Merge(refreshed)
		}
	}

	for _, rec := range result.Accepted {
		saved, err := o.save(ctx, rec, links)
		if err != nil {
			return st, err
		}
		if saved {
			st.Saved++
		}
	}
	return st, nil
}

// save appends one record unless its link is already known. Only errors
// that must stop the run are returned.
func (o *Orchestrator) save(ctx context.Context, rec *scraper.ArticleRecord, links *ledger.LinkSet) (bool, error) {
	if ledger.IsDuplicate(rec.Link, links) {
		o.logger.Debug("Skipping duplicate", "link", rec.Link)
		return false, nil
	}

	row := rec.Row(o.parser)
	err := o.retry.Do(ctx, "append row", func(ctx context.Context) error {
		return o.table.Append(ctx, row)
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrRetriesExhausted), ctx.Err() != nil:
		return false, err
	default:
		o.logger.Error("Error saving row", "link", rec.Link, "error", err.Error())
		return false, nil
	}

	links.Add(rec.Link)
	o.logger.Info("Saved", "title", runewidth.Truncate(rec.Title, titleWidth, "…"))
	return true, nil
}

func (o *Orchestrator) loadLinks(ctx context.Context, now time.Time) (*ledger.LinkSet, error) {
	var snap *storage.Snapshot
	err := o.retry.Do(ctx, "read table", func(ctx context.Context) error {
		var err error
		snap, err = o.table.Snapshot(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ledger.BuildRecentLinkSet(snap.Records, now, o.cfg.GetRecencyWindow(), o.parser), nil
}
