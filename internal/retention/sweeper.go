package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sheet-news-scraper/internal/dates"
	"sheet-news-scraper/internal/observability"
	"sheet-news-scraper/internal/storage"
)

// ErrNoArchive is returned when archiving is requested without an archive
// table. Nothing is deleted.
var ErrNoArchive = errors.New("archiving requested but no archive table configured")

type SweepStats struct {
	Rows       int
	Expired    int
	Archived   int
	Deleted    int
	Unparsable int
	Keyed      bool
	Ranges     []storage.RowRange
	DryRun     bool
}

type Options struct {
	MaxAge     time.Duration
	DateColumn int
	// Archive copies expired rows to the archive table before deleting.
	Archive bool
	DryRun  bool
}

// Sweeper deletes expired rows from a table, optionally archiving them
// first.
type Sweeper struct {
	table   storage.Table
	archive storage.Archive
	parser  *dates.Parser
	retry   *storage.Retry
	opts    Options
	logger  *observability.Logger
}

func NewSweeper(table storage.Table, archive storage.Archive, parser *dates.Parser, retry *storage.Retry, opts Options, logger *observability.Logger) *Sweeper {
	return &Sweeper{
		table:   table,
		archive: archive,
		parser:  parser,
		retry:   retry,
		opts:    opts,
		logger:  logger,
	}
}

func (s *Sweeper) Run(ctx context.Context, now time.Time) (*SweepStats, error) {
	cutoff := now.In(s.parser.Location()).Add(-s.opts.MaxAge)
	stats := &SweepStats{DryRun: s.opts.DryRun}

	var snap *storage.Snapshot
	err := s.retry.Do(ctx, "read table", func(ctx context.Context) error {
		var err error
		snap, err = s.table.Snapshot(ctx)
		return err
	})
	if err != nil {
		return stats, fmt.Errorf("failed to read table: %w", err)
	}

	archive := s.opts.Archive
	if archive && s.archive == nil {
		return stats, ErrNoArchive
	}

	plan := ComputeDeletions(snap.Records, cutoff, s.opts.DateColumn, archive, s.parser)
	stats.Rows = len(snap.Records)
	stats.Expired = len(plan.Positions)
	stats.Unparsable = plan.Unparsable
	stats.Ranges = MergeContiguous(plan.Positions)

	s.logger.Info("Sweep plan",
		"rows", stats.Rows,
		"expired", stats.Expired,
		"unparsable_kept", stats.Unparsable,
		"ranges", len(stats.Ranges),
		"cutoff", s.parser.Format(cutoff),
	)

	if plan.Empty() {
		s.logger.Info("No old rows to delete")
		return stats, nil
	}
	if s.opts.DryRun {
		for _, r := range Descending(stats.Ranges) {
			s.logger.Info("Would delete rows", "range", r.String(), "count", r.Len())
		}
		return stats, nil
	}

	if archive {
		err := s.retry.Do(ctx, "archive rows", func(ctx context.Context) error {
			return s.archive.AppendRows(ctx, plan.Archive)
		})
		if err != nil {
			return stats, fmt.Errorf("archive failed, nothing deleted: %w", err)
		}
		stats.Archived = len(plan.Archive)
		s.logger.Info("Archived rows", "count", stats.Archived)
	}

	if err := s.delete(ctx, plan, stats); err != nil {
		return stats, err
	}
	stats.Deleted = stats.Expired

	s.logger.Info("Sweep completed",
		"deleted", stats.Deleted,
		"archived", stats.Archived,
		"keyed", stats.Keyed,
	)
	return stats, nil
}

// delete removes rows by key when the table supports it and every expired
// row has an ID, otherwise by position in descending order.
func (s *Sweeper) delete(ctx context.Context, plan *Plan, stats *SweepStats) error {
	if kd, ok := s.table.(storage.KeyDeleter); ok && plan.IDs != nil {
		stats.Keyed = true
		err := s.retry.Do(ctx, "delete rows", func(ctx context.Context) error {
			return kd.DeleteKeys(ctx, plan.IDs)
		})
		if err != nil {
			return fmt.Errorf("failed to delete rows: %w", err)
		}
		return nil
	}

	rd, ok := s.table.(storage.RangeDeleter)
	if !ok {
		return storage.ErrNoDeleter
	}

	ranges := Descending(stats.Ranges)
	for _, r := range ranges {
		s.logger.Debug("Deleting rows", "range", r.String(), "count", r.Len())
	}
	err := s.retry.Do(ctx, "delete rows", func(ctx context.Context) error {
		return rd.DeleteRanges(ctx, ranges)
	})
	if err != nil {
		return fmt.Errorf("failed to delete rows: %w", err)
	}
	return nil
}
