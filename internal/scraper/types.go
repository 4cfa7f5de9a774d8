package scraper

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sheet-news-scraper/internal/config"
	"sheet-news-scraper/internal/dates"
	"sheet-news-scraper/internal/storage"
)

// ArticleRecord is one article read from a listing container.
type ArticleRecord struct {
	Source string
	Title  string
	Link   string
	// DateText is PublishedDate in the stored layout, or "".
	DateText string
	// RawDate is the date text as it appeared on the page.
	RawDate       string
	Author        string
	Snippet       string
	Image         string
	PublishedDate *time.Time
	ScrapedAt     time.Time
}

// Row lays the record out in store column order.
func (a *ArticleRecord) Row(p *dates.Parser) storage.Row {
	return storage.Row{
		a.Source,
		a.Title,
		a.DateText,
		storage.NormalizeLink(a.Link),
		a.Author,
		a.Snippet,
		a.Image,
		p.Format(a.ScrapedAt),
	}
}

// PageSource loads a site's listing page.
type PageSource interface {
	Load(ctx context.Context, site *config.SiteConfig) (*goquery.Document, error)
}
