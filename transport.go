package sheetstore

import "context"

// HeaderRow is the physical row holding the column names. Data rows start
// immediately after it.
const HeaderRow = 1

// Transport is the thin contract against the backing spreadsheet service.
// Row numbers are 1-based physical positions including the header row.
// Implementations classify every failure by wrapping it in a *RemoteError
// with Retryable set; the store's retry policy acts on that flag.
type Transport interface {
	// GetRange returns every row of the sheet, header included, as string
	// cells.
	GetRange(ctx context.Context, sheet string) ([][]string, error)

	// AppendRows appends rows after the last non-empty row in one call.
	AppendRows(ctx context.Context, sheet string, rows [][]string) error

	// UpdateRow overwrites the cells of one physical row.
	UpdateRow(ctx context.Context, sheet string, rowNum int, row []string) error

	// DeleteRow structurally removes one physical row; every following row
	// shifts up by one.
	DeleteRow(ctx context.Context, sheet string, rowNum int) error

	// EnsureSheet creates the sheet with the given header row if it does not
	// exist, and writes the header if the sheet is empty. Idempotent.
	EnsureSheet(ctx context.Context, sheet string, header []string) error
}
