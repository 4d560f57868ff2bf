package sheetstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the record store over a spreadsheet transport. It owns schema
// resolution, validation, row codec work, and the retry policy, and it
// serializes mutating operations per table so that concurrent updates or
// deletes cannot act on stale row positions.
type Store struct {
	registry  *Registry
	validator *Validator
	transport Transport
	cfg       Config
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now   func() time.Time
	newID func() string
}

// New creates a store over the given transport and registry. A nil config
// uses the defaults; a nil registry uses DefaultRegistry.
func New(transport Transport, registry *Registry, cfg *Config) *Store {
	if registry == nil {
		registry = DefaultRegistry()
	}
	var config Config
	if cfg != nil {
		config = *cfg
	}
	config.applyDefaults()

	return &Store{
		registry:  registry,
		validator: NewValidator(registry),
		transport: transport,
		cfg:       config,
		logger:    config.Logger,
		locks:     make(map[string]*sync.Mutex),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// tableLock returns the mutex serializing mutations on one table.
func (s *Store) tableLock(table string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[table]
	if !ok {
		l = &sync.Mutex{}
		s.locks[table] = l
	}
	return l
}

// loadTable fetches and decodes every data row. rowNums[i] is the 1-based
// physical row backing records[i]; empty rows are skipped but keep the
// physical numbering intact.
func (s *Store) loadTable(ctx context.Context, schema Schema) ([]Record, []int, error) {
	var rows [][]string
	err := withRetry(ctx, s.cfg, s.logger, "read "+schema.Name, func() error {
		var err error
		rows, err = s.transport.GetRange(ctx, schema.Name)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	var records []Record
	var rowNums []int
	for i := HeaderRow; i < len(rows); i++ {
		if emptyRow(rows[i]) {
			continue
		}
		records = append(records, DecodeRow(rows[i], schema.Columns))
		rowNums = append(rowNums, i+1)
	}
	return records, rowNums, nil
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// locate returns the index of the record with the given id, or -1.
func locate(records []Record, id string) int {
	for i, rec := range records {
		if rec.GetAsString("id", "") == id {
			return i
		}
	}
	return -1
}

// stripGenerated removes the store-managed fields from caller data.
func stripGenerated(data Record) Record {
	out := data.Clone()
	delete(out, "id")
	delete(out, "created_at")
	delete(out, "updated_at")
	return out
}

// stamp fills id and timestamps for a new record, honoring the schema: a
// table without created_at/updated_at columns gets no timestamps.
func (s *Store) stamp(schema Schema, rec Record, id string, t time.Time) {
	rec["id"] = id
	if schema.ColumnIndex("created_at") >= 0 {
		rec["created_at"] = t
	}
	if schema.ColumnIndex("updated_at") >= 0 {
		rec["updated_at"] = t
	}
}

// Create validates data, assigns an id and timestamps, and appends one row.
// Returns the new record's id.
func (s *Store) Create(ctx context.Context, table string, data Record) (string, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return "", err
	}

	rec := stripGenerated(data)
	if err := s.validator.Validate(table, rec); err != nil {
		return "", err
	}

	id := s.newID()
	s.stamp(schema, rec, id, s.now())
	row := EncodeRow(rec, schema.Columns)

	err = withRetry(ctx, s.cfg, s.logger, "append "+table, func() error {
		return s.transport.AppendRows(ctx, schema.Name, [][]string{row})
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("record created", "table", table, "id", id)
	return id, nil
}

// Read returns all records of the table, or, when an id is given, the single
// matching record. A missing id yields an empty slice, not an error.
func (s *Store) Read(ctx context.Context, table string, id ...string) ([]Record, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return nil, err
	}

	records, _, err := s.loadTable(ctx, schema)
	if err != nil {
		return nil, err
	}
	if len(id) == 0 {
		if records == nil {
			records = []Record{}
		}
		return records, nil
	}

	if i := locate(records, id[0]); i >= 0 {
		return []Record{records[i]}, nil
	}
	return []Record{}, nil
}

// Update merges patch over the stored record, validates the merged result,
// and rewrites the row in place. Returns false when the id does not exist.
// The target row is re-resolved under the table lock immediately before
// writing; a row index from an earlier read is never reused.
func (s *Store) Update(ctx context.Context, table, id string, patch Record) (bool, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return false, err
	}

	lock := s.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	records, rowNums, err := s.loadTable(ctx, schema)
	if err != nil {
		return false, err
	}
	i := locate(records, id)
	if i < 0 {
		return false, nil
	}

	merged := records[i].Merge(stripGenerated(patch))
	if err := s.validator.Validate(table, merged); err != nil {
		return false, err
	}
	merged["id"] = id
	if schema.ColumnIndex("updated_at") >= 0 {
		merged["updated_at"] = s.now()
	}

	row := EncodeRow(merged, schema.Columns)
	err = withRetry(ctx, s.cfg, s.logger, "update "+table, func() error {
		return s.transport.UpdateRow(ctx, schema.Name, rowNums[i], row)
	})
	if err != nil {
		return false, err
	}

	s.logger.Debug("record updated", "table", table, "id", id, "row", rowNums[i])
	return true, nil
}

// Delete structurally removes the record's row; every following row shifts
// up by one. Returns false when the id does not exist.
func (s *Store) Delete(ctx context.Context, table, id string) (bool, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return false, err
	}

	lock := s.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	records, rowNums, err := s.loadTable(ctx, schema)
	if err != nil {
		return false, err
	}
	i := locate(records, id)
	if i < 0 {
		return false, nil
	}

	err = withRetry(ctx, s.cfg, s.logger, "delete "+table, func() error {
		return s.transport.DeleteRow(ctx, schema.Name, rowNums[i])
	})
	if err != nil {
		return false, err
	}

	s.logger.Debug("record deleted", "table", table, "id", id, "row", rowNums[i])
	return true, nil
}

// BatchCreate validates and encodes every item, then appends all rows in a
// single transport call: one remote round trip, and either every row lands
// or none does.
func (s *Store) BatchCreate(ctx context.Context, table string, items []Record) ([]string, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(items))
	rows := make([][]string, len(items))
	t := s.now()
	for i, item := range items {
		rec := stripGenerated(item)
		if err := s.validator.Validate(table, rec); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		ids[i] = s.newID()
		s.stamp(schema, rec, ids[i], t)
		rows[i] = EncodeRow(rec, schema.Columns)
	}
	if len(rows) == 0 {
		return []string{}, nil
	}

	err = withRetry(ctx, s.cfg, s.logger, "batch append "+table, func() error {
		return s.transport.AppendRows(ctx, schema.Name, rows)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("batch created", "table", table, "count", len(ids))
	return ids, nil
}

// BatchOp is one item of a batch mutation.
type BatchOp struct {
	Op    string // "create" or "update"
	Table string
	ID    string // update only
	Data  Record
}

// BatchResult reports the outcome of one batch item. ID is set for creates.
type BatchResult struct {
	ID  string
	Err error
}

// BatchUpdate applies each operation independently, in order. A failing item
// does not roll back the items before it; the joined error covers every
// failure.
func (s *Store) BatchUpdate(ctx context.Context, ops []BatchOp) ([]BatchResult, error) {
	results := make([]BatchResult, len(ops))
	var errs []error

	for i, op := range ops {
		switch op.Op {
		case "create":
			id, err := s.Create(ctx, op.Table, op.Data)
			results[i] = BatchResult{ID: id, Err: err}
		case "update":
			found, err := s.Update(ctx, op.Table, op.ID, op.Data)
			if err == nil && !found {
				err = fmt.Errorf("record %q not found in table %q", op.ID, op.Table)
			}
			results[i] = BatchResult{Err: err}
		default:
			results[i] = BatchResult{Err: fmt.Errorf("unsupported batch operation %q", op.Op)}
		}
		if results[i].Err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, results[i].Err))
		}
	}

	return results, errors.Join(errs...)
}

// Query filters, sorts, and pages over one table. The whole table is read
// and evaluated in memory; sheet-sized tables make that acceptable.
func (s *Store) Query(ctx context.Context, table string, q Query) ([]Record, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return nil, err
	}
	if err := ValidateQuery(q); err != nil {
		return nil, fmt.Errorf("invalid query on %q: %w", table, err)
	}

	records, _, err := s.loadTable(ctx, schema)
	if err != nil {
		return nil, err
	}
	return ApplyQuery(records, q), nil
}

// InitializeTables creates any registered table that is missing, writing its
// header row. Existing tables are left untouched.
func (s *Store) InitializeTables(ctx context.Context) error {
	for _, name := range s.registry.Tables() {
		schema, err := s.registry.Get(name)
		if err != nil {
			return err
		}
		err = withRetry(ctx, s.cfg, s.logger, "ensure "+name, func() error {
			return s.transport.EnsureSheet(ctx, schema.Name, schema.Columns)
		})
		if err != nil {
			return err
		}
		s.logger.Debug("table ensured", "table", name)
	}
	return nil
}

// StructureReport diffs a table's expected header against the sheet.
// Missing columns break the codec's positional contract; extra trailing
// columns are only warnings.
type StructureReport struct {
	Table   string
	Missing []string
	Extra   []string
}

// OK reports whether the sheet can safely back the table.
func (r StructureReport) OK() bool { return len(r.Missing) == 0 }

// ValidateTableStructure compares the registered column list with the actual
// header row of the sheet.
func (s *Store) ValidateTableStructure(ctx context.Context, table string) (StructureReport, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return StructureReport{}, err
	}

	var rows [][]string
	err = withRetry(ctx, s.cfg, s.logger, "read header "+table, func() error {
		var err error
		rows, err = s.transport.GetRange(ctx, schema.Name)
		return err
	})
	if err != nil {
		return StructureReport{}, err
	}

	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	actual := make(map[string]bool, len(header))
	for _, col := range header {
		if col != "" {
			actual[col] = true
		}
	}
	expected := make(map[string]bool, len(schema.Columns))
	for _, col := range schema.Columns {
		expected[col] = true
	}

	report := StructureReport{Table: table}
	for _, col := range schema.Columns {
		if !actual[col] {
			report.Missing = append(report.Missing, col)
		}
	}
	for _, col := range header {
		if col != "" && !expected[col] {
			report.Extra = append(report.Extra, col)
		}
	}

	if len(report.Extra) > 0 {
		s.logger.Warn("table has unregistered columns", "table", table, "extra", report.Extra)
	}
	return report, nil
}
