package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryTable is a positional in-memory table. It backs tests and dry runs.
type MemoryTable struct {
	mu     sync.Mutex
	values [][]string
}

// NewMemoryTable copies values; values[0] is the header. An empty table
// gets the default header.
func NewMemoryTable(values [][]string) *MemoryTable {
	t := &MemoryTable{}
	if len(values) == 0 {
		t.values = [][]string{append([]string(nil), Header...)}
		return t
	}
	for _, v := range values {
		t.values = append(t.values, append([]string(nil), v...))
	}
	return t
}

// MemoryTableFromSnapshot copies a snapshot taken from another table.
func MemoryTableFromSnapshot(snap *Snapshot) *MemoryTable {
	values := [][]string{snap.Header}
	if len(snap.Header) == 0 {
		values[0] = Header
	}
	for _, rec := range snap.Records {
		values = append(values, rec.Cells)
	}
	return NewMemoryTable(values)
}

func (t *MemoryTable) Snapshot(ctx context.Context) (*Snapshot, error) {
	return SnapshotFromValues(t.Values()), nil
}

func (t *MemoryTable) Append(ctx context.Context, row Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values = append(t.values, append([]string(nil), row...))
	return nil
}

func (t *MemoryTable) AppendRows(ctx context.Context, rows []Row) error {
	for _, r := range rows {
		if err := t.Append(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRanges applies ranges in the order given, like a positional
// spreadsheet batch update.
func (t *MemoryTable) DeleteRanges(ctx context.Context, ranges []RowRange) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range ranges {
		if r.Start < 1 || r.End > len(t.values) || r.Start >= r.End {
			return fmt.Errorf("range %s out of bounds for %d rows", r, len(t.values))
		}
		t.values = append(t.values[:r.Start], t.values[r.End:]...)
	}
	return nil
}

// Values returns a copy of the table including the header.
func (t *MemoryTable) Values() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]string, len(t.values))
	for i, v := range t.values {
		out[i] = append([]string(nil), v...)
	}
	return out
}

// Len is the number of data rows.
func (t *MemoryTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.values) - 1
}
