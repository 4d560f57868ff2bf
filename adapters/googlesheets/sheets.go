package googlesheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	sheetstore "github.com/opsledger/go-sheetstore"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Client implements sheetstore.Transport over the Google Sheets API. Every
// failure is classified as retryable or fatal before it leaves this package.
type Client struct {
	service       *sheets.Service
	spreadsheetID string

	mu       sync.Mutex
	sheetIDs map[string]int64 // sheet name -> sheetId, for structural calls
}

// NewClient creates a transport bound to one spreadsheet. Credentials are
// passed as client options; see auth.go for the usual constructors.
func NewClient(ctx context.Context, config Config, opts ...option.ClientOption) (*Client, error) {
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		service:       service,
		spreadsheetID: config.SpreadsheetID,
		sheetIDs:      make(map[string]int64),
	}, nil
}

// GetRange returns every row of the sheet as string cells, header included.
func (c *Client) GetRange(ctx context.Context, sheet string) ([][]string, error) {
	readRange := fmt.Sprintf("%s!A:ZZ", sheet)
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, classify("get range", sheet, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			if cell == nil {
				continue
			}
			if s, ok := cell.(string); ok {
				cells[j] = s
			} else {
				cells[j] = fmt.Sprintf("%v", cell)
			}
		}
		rows[i] = cells
	}
	return rows, nil
}

// AppendRows appends all rows after the last non-empty row in one call.
func (c *Client) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	vr := &sheets.ValueRange{Values: toCellValues(rows)}
	appendRange := fmt.Sprintf("%s!A:ZZ", sheet)
	_, err := c.service.Spreadsheets.Values.Append(c.spreadsheetID, appendRange, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return classify("append", sheet, err)
	}
	return nil
}

// UpdateRow overwrites one physical row starting at column A.
func (c *Client) UpdateRow(ctx context.Context, sheet string, rowNum int, row []string) error {
	vr := &sheets.ValueRange{Values: toCellValues([][]string{row})}
	writeRange := fmt.Sprintf("%s!A%d", sheet, rowNum)
	_, err := c.service.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return classify("update row", sheet, err)
	}
	return nil
}

// DeleteRow removes one physical row via a structural batch update. The
// DeleteDimension range is zero-based and half-open.
func (c *Client) DeleteRow(ctx context.Context, sheet string, rowNum int) error {
	sheetID, err := c.sheetID(ctx, sheet)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(rowNum - 1),
					EndIndex:   int64(rowNum),
				},
			},
		}},
	}
	_, err = c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return classify("delete row", sheet, err)
	}
	return nil
}

// EnsureSheet creates the sheet with its header row if missing, and writes
// the header if the sheet exists but is empty. Idempotent.
func (c *Client) EnsureSheet(ctx context.Context, sheet string, header []string) error {
	_, err := c.sheetID(ctx, sheet)
	if err != nil {
		var re *sheetstore.RemoteError
		if !errors.As(err, &re) || re.Retryable {
			return err
		}
		// Sheet not found: add it.
		req := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: sheet},
				},
			}},
		}
		resp, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
		if err != nil {
			return classify("add sheet", sheet, err)
		}
		c.mu.Lock()
		for _, r := range resp.Replies {
			if r.AddSheet != nil && r.AddSheet.Properties != nil {
				c.sheetIDs[sheet] = r.AddSheet.Properties.SheetId
			}
		}
		c.mu.Unlock()
	}

	// Write the header if the first row is empty.
	headerRange := fmt.Sprintf("%s!1:1", sheet)
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return classify("read header", sheet, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	vr := &sheets.ValueRange{Values: toCellValues([][]string{header})}
	_, err = c.service.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A1", sheet), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return classify("write header", sheet, err)
	}
	return nil
}

// sheetID resolves the numeric sheetId needed by structural requests,
// caching the spreadsheet metadata after the first lookup.
func (c *Client) sheetID(ctx context.Context, sheet string) (int64, error) {
	c.mu.Lock()
	if id, ok := c.sheetIDs[sheet]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	resp, err := c.service.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return 0, classify("get metadata", sheet, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	id, ok := c.sheetIDs[sheet]
	if !ok {
		return 0, &sheetstore.RemoteError{
			Op: "get metadata", Sheet: sheet, Retryable: false,
			Err: fmt.Errorf("sheet %q not found in spreadsheet", sheet),
		}
	}
	return id, nil
}

func toCellValues(rows [][]string) [][]interface{} {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}
	return values
}

// classify wraps an API failure as a RemoteError. Rate limiting and server
// errors are transient; auth and request errors are not. Anything that is
// not a googleapi error (connection reset, timeout) is treated as transient
// unless the context itself ended.
func classify(op, sheet string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &sheetstore.RemoteError{Op: op, Sheet: sheet, Retryable: false, Err: err}
	}

	retryable := true
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		retryable = apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return &sheetstore.RemoteError{Op: op, Sheet: sheet, Retryable: retryable, Err: err}
}
