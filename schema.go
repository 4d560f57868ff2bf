package sheetstore

// Schema describes one table: its sheet name and the ordered column list.
// Column order is the wire contract; position i in every data row holds the
// value for Columns[i].
type Schema struct {
	Name    string
	Columns []string
}

// ColumnIndex returns the zero-based position of col, or -1 if absent.
func (s Schema) ColumnIndex(col string) int {
	for i, c := range s.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Registry maps logical table names to their schemas. It is populated once
// before the store is constructed and never mutated afterwards, so lookups
// need no locking.
type Registry struct {
	schemas map[string]Schema
	order   []string
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]Schema)}
}

// Register adds a table schema. Re-registering a name replaces the previous
// entry; the first column must be "id".
func (r *Registry) Register(name string, columns []string) {
	if _, exists := r.schemas[name]; !exists {
		r.order = append(r.order, name)
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	r.schemas[name] = Schema{Name: name, Columns: cols}
}

// Get resolves a table name to its schema.
func (r *Registry) Get(name string) (Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return Schema{}, &UnknownTableError{Table: name}
	}
	return s, nil
}

// Tables returns all registered table names in registration order.
func (r *Registry) Tables() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Business table names.
const (
	TableProjects    = "Projects"
	TableTasks       = "Tasks"
	TableClients     = "Clients"
	TableInvoices    = "Invoices"
	TableTimeEntries = "Time_Entries"
	TableExpenses    = "Expenses"
)

// DefaultRegistry returns a registry pre-loaded with the business tables.
// Reordering any column list is a data migration, not a code change.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TableProjects, []string{
		"id", "name", "client_id", "description", "status", "budget",
		"start_date", "end_date", "tags", "created_at", "updated_at",
	})
	r.Register(TableTasks, []string{
		"id", "project_id", "name", "description", "status", "priority",
		"estimated_hours", "actual_hours", "due_date", "dependencies",
		"created_at", "updated_at",
	})
	r.Register(TableClients, []string{
		"id", "name", "email", "phone", "company", "gstin", "address",
		"website", "currency", "is_active", "created_at", "updated_at",
	})
	r.Register(TableInvoices, []string{
		"id", "client_id", "project_id", "invoice_number", "status",
		"issue_date", "due_date", "subtotal", "tax_amount", "total_amount",
		"currency", "notes", "created_at", "updated_at",
	})
	r.Register(TableTimeEntries, []string{
		"id", "project_id", "task_id", "description", "entry_date", "hours",
		"rate", "is_billable", "created_at", "updated_at",
	})
	r.Register(TableExpenses, []string{
		"id", "project_id", "category", "description", "amount", "currency",
		"expense_date", "is_reimbursable", "receipt_url", "created_at",
		"updated_at",
	})
	return r
}
