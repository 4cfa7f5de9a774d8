package scraper

import (
	"fmt"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sheet-news-scraper/internal/config"
)

// Preview writes every field the extractor finds for each container, so a
// site's selectors can be checked by eye.
func Preview(w io.Writer, doc *goquery.Document, site *config.SiteConfig, e *Extractor, minTitleLen int, now time.Time) error {
	containers := doc.Find(site.Article.Container)
	if _, err := fmt.Fprintf(w, "%s: %d containers match %q (limit %d)\n", site.Site, containers.Length(), site.Article.Container, site.Limit); err != nil {
		return err
	}

	var err error
	containers.EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if site.Limit > 0 && i >= site.Limit {
			return false
		}
		rec := e.Extract(sel, site, now)
		status := "ok"
		if reason := Validate(rec, minTitleLen); reason != "" {
			status = "invalid: " + reason
		}

		_, err = fmt.Fprintf(w, "\n[%d] %s\n  title:   %s\n  link:    %s\n  date:    %q -> %s\n  author:  %s\n  snippet: %s\n  image:   %s\n",
			i+1, status, rec.Title, rec.Link, rec.RawDate, orNone(rec.DateText), rec.Author, rec.Snippet, rec.Image)
		return err == nil
	})
	return err
}

func orNone(s string) string {
	if s == "" {
		return "(unparsed)"
	}
	return s
}
