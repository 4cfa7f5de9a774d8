package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"sheet-news-scraper/internal/config"
)

var spaceRe = regexp.MustCompile(`\s+`)

// Cleaner tidies text pulled out of listing markup.
type Cleaner struct {
	cfg config.NormalizeConfig
}

func NewCleaner(cfg config.NormalizeConfig) *Cleaner {
	return &Cleaner{cfg: cfg}
}

// CleanText replaces NBSP and collapses whitespace according to config.
func (c *Cleaner) CleanText(text string) string {
	if c.cfg.TrimNBSP {
		text = strings.ReplaceAll(text, "\u00a0", " ")
	}
	if c.cfg.CollapseSpaces {
		text = spaceRe.ReplaceAllString(text, " ")
	}
	return strings.TrimSpace(text)
}

// SelectionText is the cleaned text of sel with script and style removed.
func (c *Cleaner) SelectionText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	clone := sel.Clone()
	clone.Find("script, style, noscript").Remove()
	return c.CleanText(clone.Text())
}

// TruncatePreview cuts text to MaxPreviewChars runes at the last space
// before the limit and appends an ellipsis. A zero limit disables it.
func (c *Cleaner) TruncatePreview(text string) string {
	limit := c.cfg.MaxPreviewChars
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	truncated := string(runes[:limit-1])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}
	return strings.TrimRight(truncated, " ,.;:") + "…"
}

// ResolveURL makes ref absolute against base and drops the fragment. Empty
// and unparsable refs resolve to "".
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(strings.ToLower(ref), "javascript:") {
		return ""
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != "" {
		if baseURL, err := url.Parse(base); err == nil {
			refURL = baseURL.ResolveReference(refURL)
		}
	}
	refURL.Fragment = ""
	return refURL.String()
}
