package scraper

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sheet-news-scraper/internal/config"
	"sheet-news-scraper/internal/dates"
	"sheet-news-scraper/internal/normalize"
	"sheet-news-scraper/internal/storage"
)

var (
	linkAttrs  = []string{"href", "data-href"}
	imageAttrs = []string{"src", "data-src", "data-lazy-src", "data-lazy", "data-original"}
)

// Extractor maps one container element to an ArticleRecord using a site's
// selectors. Missing selectors and missing matches yield empty fields.
type Extractor struct {
	parser  *dates.Parser
	cleaner *normalize.Cleaner
}

func NewExtractor(parser *dates.Parser, cleaner *normalize.Cleaner) *Extractor {
	return &Extractor{parser: parser, cleaner: cleaner}
}

func (e *Extractor) Extract(sel *goquery.Selection, site *config.SiteConfig, now time.Time) *ArticleRecord {
	s := site.Article
	rec := &ArticleRecord{
		Source:    site.Site,
		ScrapedAt: now.In(e.parser.Location()),
	}

	titleEl := first(sel, s.Title)
	linkEl := first(sel, s.Link)

	rec.Title = e.cleaner.SelectionText(titleEl)
	if rec.Title == "" {
		rec.Title = e.cleaner.SelectionText(linkEl)
	}

	rec.Link = storage.NormalizeLink(normalize.ResolveURL(site.BaseURL, findLink(linkEl, titleEl)))
	rec.Author = e.cleaner.SelectionText(first(sel, s.Author))
	rec.Snippet = e.cleaner.TruncatePreview(e.cleaner.SelectionText(first(sel, s.Snippet)))
	rec.Image = normalize.ResolveURL(site.BaseURL, findImage(first(sel, s.Image)))

	if dateEl := first(sel, s.Date); dateEl != nil {
		rec.RawDate = e.cleaner.SelectionText(dateEl)
		if rec.RawDate == "" {
			rec.RawDate = strings.TrimSpace(dateEl.AttrOr("datetime", ""))
		}
	}
	if rec.RawDate != "" {
		if t, err := e.parser.Normalize(rec.RawDate, now); err == nil {
			rec.PublishedDate = &t
			rec.DateText = e.parser.Format(t)
		}
	}

	return rec
}

// first returns the first match of selector inside sel, or nil when the
// selector is empty or nothing matches.
func first(sel *goquery.Selection, selector string) *goquery.Selection {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	found := sel.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	return found
}

// findLink prefers the link element, then the title element, then an anchor
// nested in the title element.
func findLink(linkEl, titleEl *goquery.Selection) string {
	candidates := []*goquery.Selection{linkEl, titleEl}
	if titleEl != nil {
		candidates = append(candidates, titleEl.Find("a[href]").First())
	}
	for _, el := range candidates {
		if el == nil || el.Length() == 0 {
			continue
		}
		for _, attr := range linkAttrs {
			if v := strings.TrimSpace(el.AttrOr(attr, "")); v != "" {
				return v
			}
		}
	}
	return ""
}

// findImage walks the lazy-load attributes in order and then srcset. If the
// matched element carries none of them, a nested img is tried.
func findImage(el *goquery.Selection) string {
	if el == nil {
		return ""
	}
	if v := imageFrom(el); v != "" {
		return v
	}
	if nested := el.Find("img").First(); nested.Length() > 0 {
		return imageFrom(nested)
	}
	return ""
}

func imageFrom(el *goquery.Selection) string {
	for _, attr := range imageAttrs {
		if v := strings.TrimSpace(el.AttrOr(attr, "")); usableImage(v) {
			return v
		}
	}
	if v := firstSrcset(el.AttrOr("srcset", "")); usableImage(v) {
		return v
	}
	if v := firstSrcset(el.AttrOr("data-srcset", "")); usableImage(v) {
		return v
	}
	return ""
}

func usableImage(v string) bool {
	return v != "" && !strings.HasPrefix(strings.ToLower(v), "data:")
}

// firstSrcset returns the URL of the first srcset candidate.
func firstSrcset(srcset string) string {
	part, _, _ := strings.Cut(strings.TrimSpace(srcset), ",")
	fields := strings.Fields(part)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
