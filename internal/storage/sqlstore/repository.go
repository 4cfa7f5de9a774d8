package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"

	"sheet-news-scraper/internal/observability"
	"sheet-news-scraper/internal/storage"
)

const (
	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite3"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// columns in storage row order.
var columns = []string{"source", "title", "published", "link", "author", "snippet", "image", "scraped_at"}

// Repository stores articles in a SQL table with an identity column, so rows
// are deleted by key rather than by position.
type Repository struct {
	db             *sql.DB
	driver         string
	table          string
	commandTimeout time.Duration
	logger         *observability.Logger
}

func NewRepository(ctx context.Context, driver, dsn, table string, commandTimeout time.Duration, logger *observability.Logger) (*Repository, error) {
	if driver != DriverSQLServer && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// every :memory: connection is its own database
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &Repository{
		db:             db,
		driver:         driver,
		table:          table,
		commandTimeout: commandTimeout,
		logger:         logger,
	}

	for _, name := range []string{table, r.archiveName()} {
		if err := r.ensureTable(ctx, name); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Repository) archiveName() string {
	return r.table + "_archive"
}

func (r *Repository) ensureTable(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	var ddl string
	switch r.driver {
	case DriverSQLServer:
		ddl = fmt.Sprintf(`
			IF OBJECT_ID(N'%[1]s', N'U') IS NULL
			CREATE TABLE %[1]s (
				[id] BIGINT IDENTITY(1,1) PRIMARY KEY,
				[source] NVARCHAR(255) NOT NULL DEFAULT '',
				[title] NVARCHAR(1000) NOT NULL DEFAULT '',
				[published] NVARCHAR(32) NOT NULL DEFAULT '',
				[link] NVARCHAR(2048) NOT NULL DEFAULT '',
				[author] NVARCHAR(255) NOT NULL DEFAULT '',
				[snippet] NVARCHAR(MAX) NOT NULL DEFAULT '',
				[image] NVARCHAR(2048) NOT NULL DEFAULT '',
				[scraped_at] NVARCHAR(32) NOT NULL DEFAULT ''
			)`, name)
	default:
		ddl = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source TEXT NOT NULL DEFAULT '',
				title TEXT NOT NULL DEFAULT '',
				published TEXT NOT NULL DEFAULT '',
				link TEXT NOT NULL DEFAULT '',
				author TEXT NOT NULL DEFAULT '',
				snippet TEXT NOT NULL DEFAULT '',
				image TEXT NOT NULL DEFAULT '',
				scraped_at TEXT NOT NULL DEFAULT ''
			)`, name)
	}

	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return nil
}

// Snapshot reads every row ordered by id. Positions follow that order with
// the header at position 0.
func (r *Repository) Snapshot(ctx context.Context) (*storage.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT id, %s FROM %s ORDER BY id`, strings.Join(columns, ", "), r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query database: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error("Failed to close rows", "error", err.Error())
		}
	}()

	snap := &storage.Snapshot{Header: append(storage.Row(nil), storage.Header...)}
	pos := 1
	for rows.Next() {
		var id int64
		cells := make([]string, len(columns))
		dest := []interface{}{&id}
		for i := range cells {
			dest = append(dest, &cells[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		snap.Records = append(snap.Records, storage.Record{
			Pos:   pos,
			ID:    strconv.FormatInt(id, 10),
			Cells: storage.Row(cells),
		})
		pos++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return snap, nil
}

func (r *Repository) Append(ctx context.Context, row storage.Row) error {
	return r.insert(ctx, r.table, row)
}

func (r *Repository) insert(ctx context.Context, table string, row storage.Row) error {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (@Source, @Title, @Published, @Link, @Author, @Snippet, @Image, @ScrapedAt)`,
		table, strings.Join(columns, ", "))

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("Failed to close statement", "error", err.Error())
		}
	}()

	_, err = stmt.ExecContext(ctx,
		sql.Named("Source", row.Cell(storage.ColSource)),
		sql.Named("Title", row.Cell(storage.ColTitle)),
		sql.Named("Published", row.Cell(storage.ColDate)),
		sql.Named("Link", row.Cell(storage.ColLink)),
		sql.Named("Author", row.Cell(storage.ColAuthor)),
		sql.Named("Snippet", row.Cell(storage.ColSnippet)),
		sql.Named("Image", row.Cell(storage.ColImage)),
		sql.Named("ScrapedAt", row.Cell(storage.ColScrapedAt)),
	)
	if err != nil {
		return fmt.Errorf("failed to execute insert: %w", err)
	}
	return nil
}

// DeleteKeys removes the rows with the given ids in one transaction.
func (r *Repository) DeleteKeys(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = @ID`, r.table))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("Failed to close statement", "error", err.Error())
		}
	}()

	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid row id %q: %w", raw, err)
		}
		if _, err := stmt.ExecContext(ctx, sql.Named("ID", id)); err != nil {
			return fmt.Errorf("failed to delete row %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// DeleteRanges resolves positions against the current id order and deletes
// by key, so the order of ranges does not matter here.
func (r *Repository) DeleteRanges(ctx context.Context, ranges []storage.RowRange) error {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}

	byPos := make(map[int]string, len(snap.Records))
	for _, rec := range snap.Records {
		byPos[rec.Pos] = rec.ID
	}

	var ids []string
	for _, rg := range ranges {
		for p := rg.Start; p < rg.End; p++ {
			id, ok := byPos[p]
			if !ok {
				return fmt.Errorf("range %s out of bounds for %d rows", rg, len(snap.Records)+1)
			}
			ids = append(ids, id)
		}
	}
	return r.DeleteKeys(ctx, ids)
}

// Archive returns the companion table that receives swept rows.
func (r *Repository) Archive() storage.Archive {
	return archive{r}
}

type archive struct {
	r *Repository
}

func (a archive) AppendRows(ctx context.Context, rows []storage.Row) error {
	for _, row := range rows {
		if err := a.r.insert(ctx, a.r.archiveName(), row); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of rows in the primary or archive table.
func (r *Repository) Count(ctx context.Context, archived bool) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	table := r.table
	if archived {
		table = r.archiveName()
	}

	var count int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to query database: %w", err)
	}
	return count, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
