package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheet-news-scraper/internal/dates"
	"sheet-news-scraper/internal/observability"
	"sheet-news-scraper/internal/storage"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func parser() *dates.Parser {
	return dates.NewParser(ist, true)
}

func row(date, link string) []string {
	return []string{"src", "Some title", date, link, "", "", "", ""}
}

func TestMergeContiguous(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		want []storage.RowRange
	}{
		{"runs", []int{2, 3, 4, 7, 8}, []storage.RowRange{{Start: 2, End: 5}, {Start: 7, End: 9}}},
		{"empty", []int{}, []storage.RowRange{}},
		{"nil", nil, []storage.RowRange{}},
		{"single", []int{5}, []storage.RowRange{{Start: 5, End: 6}}},
		{"unsorted with duplicates", []int{8, 2, 3, 3, 7}, []storage.RowRange{{Start: 2, End: 4}, {Start: 7, End: 9}}},
		{"all separate", []int{1, 3, 5}, []storage.RowRange{{Start: 1, End: 2}, {Start: 3, End: 4}, {Start: 5, End: 6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeContiguous(tt.in))
		})
	}
}

func TestDescending(t *testing.T) {
	in := []storage.RowRange{{Start: 2, End: 5}, {Start: 9, End: 10}, {Start: 7, End: 9}}
	got := Descending(in)
	assert.Equal(t, []storage.RowRange{{Start: 9, End: 10}, {Start: 7, End: 9}, {Start: 2, End: 5}}, got)
	assert.Equal(t, 2, in[0].Start, "input must not be reordered")
}

func TestComputeDeletions_StrictCutoff(t *testing.T) {
	cutoff := time.Date(2025, 6, 12, 12, 0, 0, 0, ist)
	snap := storage.SnapshotFromValues([][]string{
		storage.Header,
		row("2025-06-12 12:00:00", "https://a.test/at-cutoff"),
		row("2025-06-12 11:59:59", "https://a.test/one-second-older"),
		row("", "https://a.test/missing"),
		row("unknown", "https://a.test/garbage"),
		row("2025-06-14 08:00:00", "https://a.test/new"),
	})

	plan := ComputeDeletions(snap.Records, cutoff, storage.ColDate, true, parser())

	assert.Equal(t, []int{2}, plan.Positions)
	assert.Nil(t, plan.IDs)
	require.Len(t, plan.Archive, 1)
	assert.Equal(t, "https://a.test/one-second-older", plan.Archive[0].Link())
	assert.Equal(t, 4, plan.Kept)
	assert.Equal(t, 2, plan.Unparsable)
}

func TestComputeDeletions_NoArchive(t *testing.T) {
	cutoff := time.Date(2025, 6, 12, 12, 0, 0, 0, ist)
	records := []storage.Record{
		{Pos: 1, ID: "10", Cells: row("2025-06-01 12:00:00", "https://a.test/1")},
		{Pos: 2, ID: "11", Cells: row("2025-06-02 12:00:00", "https://a.test/2")},
	}

	plan := ComputeDeletions(records, cutoff, storage.ColDate, false, parser())
	assert.Equal(t, []int{1, 2}, plan.Positions)
	assert.Equal(t, []string{"10", "11"}, plan.IDs)
	assert.Empty(t, plan.Archive)
}

func newSweeper(table storage.Table, archive storage.Archive, opts Options) *Sweeper {
	return NewSweeper(table, archive, parser(), storage.NewRetry(3, 0, observability.NewNop()), opts, observability.NewNop())
}

func TestSweeper_EndToEnd(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, ist)
	p := parser()

	table := storage.NewMemoryTable([][]string{
		storage.Header,
		row(p.Format(now.Add(-4*24*time.Hour)), "https://a.test/4d"),
		row(p.Format(now.Add(-2*24*time.Hour)), "https://a.test/2d"),
		row(p.Format(now.Add(-time.Hour)), "https://a.test/1h"),
	})
	archive := storage.NewMemoryTable(nil)

	s := newSweeper(table, archive, Options{MaxAge: 3 * 24 * time.Hour, DateColumn: storage.ColDate, Archive: true})
	stats, err := s.Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, []storage.RowRange{{Start: 1, End: 2}}, stats.Ranges)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 1, stats.Archived)
	assert.False(t, stats.Keyed)

	values := table.Values()
	require.Len(t, values, 3)
	assert.Equal(t, "https://a.test/2d", values[1][storage.ColLink])
	assert.Equal(t, "https://a.test/1h", values[2][storage.ColLink])

	archived := archive.Values()
	require.Len(t, archived, 2)
	assert.Equal(t, "https://a.test/4d", archived[1][storage.ColLink])
}

// recordingTable wraps a MemoryTable and records the ranges it is given.
type recordingTable struct {
	*storage.MemoryTable
	got [][]storage.RowRange
}

func (r *recordingTable) DeleteRanges(ctx context.Context, ranges []storage.RowRange) error {
	r.got = append(r.got, append([]storage.RowRange(nil), ranges...))
	return r.MemoryTable.DeleteRanges(ctx, ranges)
}

func TestSweeper_DeletesHighestRangeFirst(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, ist)
	old, fresh := "2025-06-01 12:00:00", "2025-06-15 10:00:00"

	table := &recordingTable{MemoryTable: storage.NewMemoryTable([][]string{
		storage.Header,
		row(fresh, "https://a.test/keep-1"),
		row(old, "https://a.test/old-2"),
		row(old, "https://a.test/old-3"),
		row(fresh, "https://a.test/keep-4"),
		row(old, "https://a.test/old-5"),
		row(old, "https://a.test/old-6"),
		row(fresh, "https://a.test/keep-7"),
	})}

	s := newSweeper(table, nil, Options{MaxAge: 3 * 24 * time.Hour, DateColumn: storage.ColDate})
	stats, err := s.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Deleted)

	require.Len(t, table.got, 1)
	assert.Equal(t, []storage.RowRange{{Start: 5, End: 7}, {Start: 2, End: 4}}, table.got[0])

	var links []string
	for _, v := range table.Values()[1:] {
		links = append(links, v[storage.ColLink])
	}
	assert.Equal(t, []string{"https://a.test/keep-1", "https://a.test/keep-4", "https://a.test/keep-7"}, links)
}

// keyedTable is a store with stable row identities.
type keyedTable struct {
	records []storage.Record
	deleted []string
	failN   int
}

func (k *keyedTable) Snapshot(ctx context.Context) (*storage.Snapshot, error) {
	return &storage.Snapshot{Header: storage.Header, Records: k.records}, nil
}

func (k *keyedTable) Append(ctx context.Context, row storage.Row) error {
	return nil
}

func (k *keyedTable) DeleteKeys(ctx context.Context, ids []string) error {
	if k.failN > 0 {
		k.failN--
		return storage.ErrRateLimited
	}
	k.deleted = append(k.deleted, ids...)
	return nil
}

func TestSweeper_PrefersKeyedDelete(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, ist)
	table := &keyedTable{
		records: []storage.Record{
			{Pos: 1, ID: "a", Cells: row("2025-06-01 12:00:00", "https://a.test/1")},
			{Pos: 2, ID: "b", Cells: row("2025-06-15 11:00:00", "https://a.test/2")},
			{Pos: 3, ID: "c", Cells: row("2025-06-02 12:00:00", "https://a.test/3")},
		},
		failN: 1,
	}

	s := newSweeper(table, nil, Options{MaxAge: 3 * 24 * time.Hour, DateColumn: storage.ColDate})
	stats, err := s.Run(context.Background(), now)
	require.NoError(t, err)

	assert.True(t, stats.Keyed)
	assert.Equal(t, []string{"a", "c"}, table.deleted)
	assert.Equal(t, 2, stats.Deleted)
}

func TestSweeper_NoDeleter(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, ist)
	table := &appendOnly{records: []storage.Record{
		{Pos: 1, Cells: row("2025-06-01 12:00:00", "https://a.test/1")},
	}}

	s := newSweeper(table, nil, Options{MaxAge: 3 * 24 * time.Hour, DateColumn: storage.ColDate})
	_, err := s.Run(context.Background(), now)
	assert.ErrorIs(t, err, storage.ErrNoDeleter)
}

func TestSweeper_ArchiveWithoutTableDeletesNothing(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, ist)
	table := storage.NewMemoryTable([][]string{
		storage.Header,
		row("2025-06-01 12:00:00", "https://a.test/old"),
	})

	s := newSweeper(table, nil, Options{MaxAge: 3 * 24 * time.Hour, DateColumn: storage.ColDate, Archive: true})
	stats, err := s.Run(context.Background(), now)
	assert.ErrorIs(t, err, ErrNoArchive)
	assert.Equal(t, 0, stats.Deleted)
	assert.Equal(t, 1, table.Len())
}

type appendOnly struct {
	records []storage.Record
}

func (a *appendOnly) Snapshot(ctx context.Context) (*storage.Snapshot, error) {
	return &storage.Snapshot{Header: storage.Header, Records: a.records}, nil
}

func (a *appendOnly) Append(ctx context.Context, row storage.Row) error {
	return nil
}

type failingArchive struct{}

func (failingArchive) AppendRows(ctx context.Context, rows []storage.Row) error {
	return errors.New("archive unavailable")
}

func TestSweeper_ArchiveFailureKeepsRows(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, ist)
	table := storage.NewMemoryTable([][]string{
		storage.Header,
		row("2025-06-01 12:00:00", "https://a.test/old"),
	})

	s := newSweeper(table, failingArchive{}, Options{MaxAge: 3 * 24 * time.Hour, DateColumn: storage.ColDate, Archive: true})
	stats, err := s.Run(context.Background(), now)
	assert.Error(t, err)
	assert.Equal(t, 0, stats.Deleted)
	assert.Equal(t, 1, table.Len())
}

func TestSweeper_DryRun(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, ist)
	table := storage.NewMemoryTable([][]string{
		storage.Header,
		row("2025-06-01 12:00:00", "https://a.test/old"),
		row("2025-06-15 11:00:00", "https://a.test/new"),
	})
	archive := storage.NewMemoryTable(nil)

	s := newSweeper(table, archive, Options{MaxAge: 3 * 24 * time.Hour, DateColumn: storage.ColDate, Archive: true, DryRun: true})
	stats, err := s.Run(context.Background(), now)
	require.NoError(t, err)

	assert.True(t, stats.DryRun)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, []storage.RowRange{{Start: 1, End: 2}}, stats.Ranges)
	assert.Equal(t, 0, stats.Deleted)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 0, archive.Len())
}

func TestSweeper_NothingExpired(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, ist)
	table := storage.NewMemoryTable([][]string{storage.Header, row("2025-06-15 11:00:00", "https://a.test/new")})

	s := newSweeper(table, nil, Options{MaxAge: 3 * 24 * time.Hour, DateColumn: storage.ColDate})
	stats, err := s.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Expired)
	assert.Empty(t, stats.Ranges)
}
