// Package retention removes stored rows that have aged past the retention
// threshold.
package retention

import (
	"sort"
	"time"

	"sheet-news-scraper/internal/dates"
	"sheet-news-scraper/internal/storage"
)

// Plan lists the rows a sweep will remove.
type Plan struct {
	// Positions are full-table positions in ascending order.
	Positions []int
	// IDs holds the stable identity of every expired row, or is nil when
	// any of them lacks one.
	IDs []string
	// Archive holds verbatim copies of the expired rows when archiving is on.
	Archive    []storage.Row
	Kept       int
	Unparsable int
}

func (p *Plan) Empty() bool {
	return len(p.Positions) == 0
}

// ComputeDeletions marks every record whose date column is strictly older
// than cutoff. Records with a missing or unreadable date are kept.
func ComputeDeletions(records []storage.Record, cutoff time.Time, dateColumn int, archive bool, parser *dates.Parser) *Plan {
	plan := &Plan{}
	keyed := true

	for _, rec := range records {
		published, err := parser.ParseStored(rec.Cells.Cell(dateColumn))
		if err != nil {
			plan.Unparsable++
			plan.Kept++
			continue
		}
		if !published.Before(cutoff) {
			plan.Kept++
			continue
		}

		plan.Positions = append(plan.Positions, rec.Pos)
		if rec.ID == "" {
			keyed = false
		} else {
			plan.IDs = append(plan.IDs, rec.ID)
		}
		if archive {
			plan.Archive = append(plan.Archive, append(storage.Row(nil), rec.Cells...))
		}
	}

	sort.Ints(plan.Positions)
	if !keyed || len(plan.IDs) == 0 {
		plan.IDs = nil
	}
	return plan
}

// MergeContiguous coalesces positions into half-open ranges, for example
// [2 3 4 7 8] becomes [2,5) and [7,9). Duplicates are ignored.
func MergeContiguous(positions []int) []storage.RowRange {
	if len(positions) == 0 {
		return []storage.RowRange{}
	}

	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)

	ranges := []storage.RowRange{{Start: sorted[0], End: sorted[0] + 1}}
	for _, p := range sorted[1:] {
		last := &ranges[len(ranges)-1]
		switch {
		case p < last.End:
		case p == last.End:
			last.End++
		default:
			ranges = append(ranges, storage.RowRange{Start: p, End: p + 1})
		}
	}
	return ranges
}

// Descending returns the ranges ordered by start, highest first. Deleting in
// this order keeps the positions of ranges not yet applied valid.
func Descending(ranges []storage.RowRange) []storage.RowRange {
	out := append([]storage.RowRange(nil), ranges...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start > out[j].Start
	})
	return out
}
