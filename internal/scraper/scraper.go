package scraper

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"sheet-news-scraper/internal/config"
	"sheet-news-scraper/internal/ledger"
	"sheet-news-scraper/internal/observability"
)

// Rejection reasons reported by Validate and ScrapeSite.
const (
	ReasonNoTitle    = "missing title"
	ReasonShortTitle = "title too short"
	ReasonNoLink     = "missing link"
	ReasonBadLink    = "link is not absolute http(s)"
	ReasonDuplicate  = "duplicate link"
	ReasonStale      = "older than freshness cutoff"
)

// Validate returns "" for a usable record, otherwise the reason it is not.
func Validate(rec *ArticleRecord, minTitleLen int) string {
	switch {
	case rec.Title == "":
		return ReasonNoTitle
	case utf8.RuneCountInString(rec.Title) < minTitleLen:
		return ReasonShortTitle
	case rec.Link == "":
		return ReasonNoLink
	}
	lower := strings.ToLower(rec.Link)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return ReasonBadLink
	}
	return ""
}

// SiteResult is what one listing page produced.
type SiteResult struct {
	Candidates int
	Accepted   []*ArticleRecord
	Rejected   map[string]int
}

type Scraper struct {
	extractor   *Extractor
	minTitleLen int
	logger      *observability.Logger
}

func NewScraper(extractor *Extractor, minTitleLen int, logger *observability.Logger) *Scraper {
	return &Scraper{
		extractor:   extractor,
		minTitleLen: minTitleLen,
		logger:      logger,
	}
}

// ScrapeSite extracts up to site.Limit containers in document order and
// keeps the valid ones that are neither known links nor older than cutoff.
// links is only read here; the caller adds links as rows are saved. A link
// repeated within the listing is accepted once.
func (s *Scraper) ScrapeSite(doc *goquery.Document, site *config.SiteConfig, cutoff time.Time, links *ledger.LinkSet, now time.Time) *SiteResult {
	result := &SiteResult{Rejected: make(map[string]int)}

	containers := doc.Find(site.Article.Container)
	if site.Limit > 0 && containers.Length() > site.Limit {
		containers = containers.Slice(0, site.Limit)
	}
	result.Candidates = containers.Length()
	seen := ledger.NewLinkSet()

	containers.Each(func(i int, sel *goquery.Selection) {
		rec := s.extractor.Extract(sel, site, now)

		reason := Validate(rec, s.minTitleLen)
		if reason == "" && (ledger.IsDuplicate(rec.Link, links) || seen.Contains(rec.Link)) {
			reason = ReasonDuplicate
		}
		if reason == "" && rec.PublishedDate != nil && rec.PublishedDate.Before(cutoff) {
			reason = ReasonStale
		}

		if reason != "" {
			result.Rejected[reason]++
			s.logger.Debug("Skipping container",
				"site", site.Site,
				"index", i,
				"reason", reason,
				"link", rec.Link,
			)
			return
		}
		seen.Add(rec.Link)
		result.Accepted = append(result.Accepted, rec)
	})

	return result
}
