// Package ledger tracks which article links are already in the store.
package ledger

import (
	"time"

	"sheet-news-scraper/internal/dates"
	"sheet-news-scraper/internal/storage"
)

// LinkSet is a set of normalized links. The zero value is not usable; use
// NewLinkSet.
type LinkSet struct {
	links map[string]struct{}
}

func NewLinkSet() *LinkSet {
	return &LinkSet{links: make(map[string]struct{})}
}

// Add inserts the normalized link and reports whether it was new. Empty
// links are ignored.
func (s *LinkSet) Add(link string) bool {
	key := storage.NormalizeLink(link)
	if key == "" {
		return false
	}
	if _, ok := s.links[key]; ok {
		return false
	}
	s.links[key] = struct{}{}
	return true
}

func (s *LinkSet) Contains(link string) bool {
	key := storage.NormalizeLink(link)
	if key == "" {
		return false
	}
	_, ok := s.links[key]
	return ok
}

func (s *LinkSet) Len() int {
	return len(s.links)
}

// BuildRecentLinkSet collects the links of records published within window
// of now. Rows whose date cannot be read are kept in the set so they still
// block duplicates.
func BuildRecentLinkSet(records []storage.Record, now time.Time, window time.Duration, parser *dates.Parser) *LinkSet {
	set := NewLinkSet()
	cutoff := now.Add(-window)

	for _, rec := range records {
		link := rec.Cells.Link()
		if link == "" {
			continue
		}

		published, err := parser.ParseStored(rec.Cells.Cell(storage.ColDate))
		if err == nil && published.Before(cutoff) {
			continue
		}
		set.Add(link)
	}
	return set
}

// IsDuplicate reports whether link is already known.
func IsDuplicate(link string, set *LinkSet) bool {
	return set.Contains(link)
}

// Merge adds every link of other to s.
func (s *LinkSet) Merge(other *LinkSet) {
	for k := range other.links {
		s.links[k] = struct{}{}
	}
}
