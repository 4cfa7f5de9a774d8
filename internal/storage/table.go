package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Column positions of a stored row.
const (
	ColSource = iota
	ColTitle
	ColDate
	ColLink
	ColAuthor
	ColSnippet
	ColImage
	ColScrapedAt

	NumColumns
)

// Header is written as row 0 of a fresh table.
var Header = Row{"source", "title", "date", "link", "author", "snippet", "image", "scraped_at"}

var (
	// ErrRateLimited is wrapped by backends when the store asks the caller to slow down.
	ErrRateLimited = errors.New("store rate limited")
	// ErrRetriesExhausted is returned once a rate-limited write has used up its attempts.
	ErrRetriesExhausted = errors.New("gave up after repeated rate limiting")
	// ErrNoDeleter is returned when a table supports neither keyed nor positional deletes.
	ErrNoDeleter = errors.New("table cannot delete rows")
)

// Row is a stored article in column order: source, title, date, link,
// author, snippet, image, scraped_at.
type Row []string

// Cell returns column i, or "" when the row is shorter.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[i])
}

func (r Row) Link() string {
	return NormalizeLink(r.Cell(ColLink))
}

// NormalizeLink is the deduplication key: trimmed, without trailing slashes.
func NormalizeLink(link string) string {
	return strings.TrimRight(strings.TrimSpace(link), "/")
}

// Record is one data row of a snapshot.
type Record struct {
	// Pos is the row's position in the full table; the header is position 0.
	Pos int
	// ID is a stable identity when the backend has one.
	ID    string
	Cells Row
}

// Snapshot is a full read of a table.
type Snapshot struct {
	Header  Row
	Records []Record
}

// SnapshotFromValues builds a snapshot from raw table values where
// values[0] is the header.
func SnapshotFromValues(values [][]string) *Snapshot {
	snap := &Snapshot{}
	for i, v := range values {
		if i == 0 {
			snap.Header = Row(v)
			continue
		}
		snap.Records = append(snap.Records, Record{Pos: i, Cells: Row(v)})
	}
	return snap
}

// RowRange is a half-open range of table positions, header included.
type RowRange struct {
	Start int
	End   int
}

func (r RowRange) Len() int {
	return r.End - r.Start
}

func (r RowRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Table is the article store.
type Table interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	Append(ctx context.Context, row Row) error
}

// RangeDeleter removes rows by position. Callers pass ranges in descending
// start order because each delete shifts every later position.
type RangeDeleter interface {
	DeleteRanges(ctx context.Context, ranges []RowRange) error
}

// KeyDeleter removes rows by stable identity.
type KeyDeleter interface {
	DeleteKeys(ctx context.Context, ids []string) error
}

// Archive receives rows before they are deleted from the primary table.
type Archive interface {
	AppendRows(ctx context.Context, rows []Row) error
}
