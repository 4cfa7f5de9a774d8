package gsheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"sheet-news-scraper/internal/observability"
	"sheet-news-scraper/internal/storage"
)

// Client talks to one spreadsheet.
type Client struct {
	srv           *sheets.Service
	spreadsheetID string
	logger        *observability.Logger
}

// NewClient authenticates with a service-account JSON document.
func NewClient(ctx context.Context, spreadsheetID string, credentialsJSON []byte, logger *observability.Logger, opts ...option.ClientOption) (*Client, error) {
	if len(credentialsJSON) > 0 {
		opts = append([]option.ClientOption{
			option.WithCredentialsJSON(credentialsJSON),
			option.WithScopes(sheets.SpreadsheetsScope),
		}, opts...)
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{srv: srv, spreadsheetID: spreadsheetID, logger: logger}, nil
}

// Sheet returns a handle on one tab of the spreadsheet.
func (c *Client) Sheet(name string) *Sheet {
	return &Sheet{client: c, name: name}
}

// Sheet is a tab used as a positional table. Rows are deleted by position,
// so callers must pass ranges in descending order.
type Sheet struct {
	client *Client
	name   string

	mu      sync.Mutex
	sheetID *int64
}

func (s *Sheet) Name() string {
	return s.name
}

func (s *Sheet) Snapshot(ctx context.Context) (*storage.Snapshot, error) {
	resp, err := s.client.srv.Spreadsheets.Values.Get(s.client.spreadsheetID, s.a1()).Context(ctx).Do()
	if err != nil {
		return nil, wrap("read values", err)
	}

	values := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, v := range raw {
			row[i] = fmt.Sprint(v)
		}
		values = append(values, row)
	}
	return storage.SnapshotFromValues(values), nil
}

func (s *Sheet) Append(ctx context.Context, row storage.Row) error {
	return s.AppendRows(ctx, []storage.Row{row})
}

func (s *Sheet) AppendRows(ctx context.Context, rows []storage.Row) error {
	if len(rows) == 0 {
		return nil
	}

	vr := &sheets.ValueRange{}
	for _, r := range rows {
		cells := make([]interface{}, len(r))
		for i, v := range r {
			cells[i] = v
		}
		vr.Values = append(vr.Values, cells)
	}

	_, err := s.client.srv.Spreadsheets.Values.Append(s.client.spreadsheetID, s.a1(), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return wrap("append rows", err)
	}
	return nil
}

// EnsureHeader writes the header row into an empty tab.
func (s *Sheet) EnsureHeader(ctx context.Context) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	if len(snap.Header) > 0 {
		return nil
	}
	s.client.logger.Info("Writing header to empty sheet", "sheet", s.name)
	return s.Append(ctx, storage.Header)
}

// DeleteRanges sends one batch update with a DeleteDimension request per
// range. The API applies the requests in order.
func (s *Sheet) DeleteRanges(ctx context.Context, ranges []storage.RowRange) error {
	if len(ranges) == 0 {
		return nil
	}

	sheetID, err := s.id(ctx)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{}
	for _, r := range ranges {
		req.Requests = append(req.Requests, &sheets.Request{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(r.Start),
					EndIndex:        int64(r.End),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		})
	}

	if _, err := s.client.srv.Spreadsheets.BatchUpdate(s.client.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return wrap("delete rows", err)
	}
	return nil
}

func (s *Sheet) id(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheetID != nil {
		return *s.sheetID, nil
	}

	ss, err := s.client.srv.Spreadsheets.Get(s.client.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return 0, wrap("read spreadsheet", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.name {
			id := sh.Properties.SheetId
			s.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", s.name)
}

// a1 is the range covering the whole tab.
func (s *Sheet) a1() string {
	if strings.IndexFunc(s.name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_')
	}) >= 0 {
		return "'" + strings.ReplaceAll(s.name, "'", "''") + "'"
	}
	return s.name
}

func wrap(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %v", op, storage.ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
