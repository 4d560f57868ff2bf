package excel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sheetstore "github.com/opsledger/go-sheetstore"
	"github.com/xuri/excelize/v2"
)

// Adapter implements sheetstore.Transport over a local xlsx workbook. It is
// meant for offline copies of the business tables and for hermetic tests;
// access is serialized in-process with a mutex since excelize rewrites the
// whole file on save. Local I/O failures are never classified as retryable.
type Adapter struct {
	config Config
	mu     sync.Mutex
}

// New creates an Adapter for the given workbook.
func New(config *Config) (*Adapter, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{config: *config}, nil
}

// GetRange returns every row of the worksheet. A missing file or missing
// sheet reads as empty rather than failing, matching a blank spreadsheet.
func (a *Adapter) GetRange(ctx context.Context, sheet string) ([][]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fatal("get range", sheet, err)
	}

	f, err := excelize.OpenFile(a.config.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return [][]string{}, nil
		}
		return nil, fatal("get range", sheet, err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, fatal("get range", sheet, err)
	}
	if idx == -1 {
		return [][]string{}, nil
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fatal("get range", sheet, err)
	}
	return rows, nil
}

// AppendRows writes rows after the last existing row of the worksheet.
func (a *Adapter) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	return a.mutate(ctx, "append", sheet, func(f *excelize.File) error {
		existing, err := f.GetRows(sheet)
		if err != nil {
			return err
		}
		start := len(existing) + 1
		for i, row := range rows {
			if err := setRow(f, sheet, start+i, row); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateRow overwrites one physical row starting at column A.
func (a *Adapter) UpdateRow(ctx context.Context, sheet string, rowNum int, row []string) error {
	return a.mutate(ctx, "update row", sheet, func(f *excelize.File) error {
		return setRow(f, sheet, rowNum, row)
	})
}

// DeleteRow structurally removes one row; following rows shift up.
func (a *Adapter) DeleteRow(ctx context.Context, sheet string, rowNum int) error {
	return a.mutate(ctx, "delete row", sheet, func(f *excelize.File) error {
		return f.RemoveRow(sheet, rowNum)
	})
}

// EnsureSheet creates the worksheet with its header row if missing, writing
// the header when the first row is empty. Idempotent.
func (a *Adapter) EnsureSheet(ctx context.Context, sheet string, header []string) error {
	return a.mutate(ctx, "ensure sheet", sheet, func(f *excelize.File) error {
		idx, err := f.GetSheetIndex(sheet)
		if err != nil {
			return err
		}
		if idx == -1 {
			if _, err := f.NewSheet(sheet); err != nil {
				return err
			}
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return err
		}
		if len(rows) > 0 && len(rows[0]) > 0 {
			return nil
		}
		return setRow(f, sheet, 1, header)
	})
}

// mutate opens (or creates) the workbook, applies fn to the named sheet, and
// saves. The sheet is created on demand so mutations never hit a missing
// worksheet.
func (a *Adapter) mutate(ctx context.Context, op, sheet string, fn func(*excelize.File) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fatal(op, sheet, err)
	}

	f, created, err := a.open()
	if err != nil {
		return fatal(op, sheet, err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fatal(op, sheet, err)
	}
	if idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fatal(op, sheet, err)
		}
		// A freshly created workbook carries excelize's default sheet.
		if created {
			if def := f.GetSheetName(0); def != sheet {
				_ = f.DeleteSheet(def)
			}
		}
	}

	if err := fn(f); err != nil {
		return fatal(op, sheet, err)
	}

	if err := os.MkdirAll(filepath.Dir(a.config.FilePath), 0o755); err != nil {
		return fatal(op, sheet, err)
	}
	if err := f.SaveAs(a.config.FilePath); err != nil {
		return fatal(op, sheet, err)
	}
	return nil
}

func (a *Adapter) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(a.config.FilePath); err == nil {
		f, err := excelize.OpenFile(a.config.FilePath)
		return f, false, err
	}
	return excelize.NewFile(), true, nil
}

func setRow(f *excelize.File, sheet string, rowNum int, row []string) error {
	cells := make([]interface{}, len(row))
	for i, cell := range row {
		cells[i] = cell
	}
	return f.SetSheetRow(sheet, fmt.Sprintf("A%d", rowNum), &cells)
}

func fatal(op, sheet string, err error) error {
	return &sheetstore.RemoteError{Op: op, Sheet: sheet, Retryable: false, Err: err}
}
