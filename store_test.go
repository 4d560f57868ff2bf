package sheetstore_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	sheetstore "github.com/opsledger/go-sheetstore"
)

// fakeTransport is an in-memory Transport with the same physical semantics
// as a spreadsheet: 1-based rows, header in row 1, delete shifts rows up.
// Failures can be injected per primitive to exercise the retry policy.
type fakeTransport struct {
	mu     sync.Mutex
	sheets map[string][][]string

	transientFails map[string]int  // op -> remaining transient failures
	fatalOps       map[string]bool // op -> always fail fatally
	calls          map[string]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sheets:         make(map[string][][]string),
		transientFails: make(map[string]int),
		fatalOps:       make(map[string]bool),
		calls:          make(map[string]int),
	}
}

func (f *fakeTransport) fail(op, sheet string) error {
	f.calls[op]++
	if f.fatalOps[op] {
		return &sheetstore.RemoteError{Op: op, Sheet: sheet, Retryable: false, Err: errors.New("permission denied")}
	}
	if f.transientFails[op] > 0 {
		f.transientFails[op]--
		return &sheetstore.RemoteError{Op: op, Sheet: sheet, Retryable: true, Err: errors.New("rate limited")}
	}
	return nil
}

func (f *fakeTransport) GetRange(ctx context.Context, sheet string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("get", sheet); err != nil {
		return nil, err
	}
	rows := f.sheets[sheet]
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out, nil
}

func (f *fakeTransport) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("append", sheet); err != nil {
		return err
	}
	for _, row := range rows {
		f.sheets[sheet] = append(f.sheets[sheet], append([]string(nil), row...))
	}
	return nil
}

func (f *fakeTransport) UpdateRow(ctx context.Context, sheet string, rowNum int, row []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("update", sheet); err != nil {
		return err
	}
	rows := f.sheets[sheet]
	if rowNum < 1 || rowNum > len(rows) {
		return &sheetstore.RemoteError{Op: "update", Sheet: sheet, Retryable: false,
			Err: fmt.Errorf("row %d out of range", rowNum)}
	}
	rows[rowNum-1] = append([]string(nil), row...)
	return nil
}

func (f *fakeTransport) DeleteRow(ctx context.Context, sheet string, rowNum int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("delete", sheet); err != nil {
		return err
	}
	rows := f.sheets[sheet]
	if rowNum < 1 || rowNum > len(rows) {
		return &sheetstore.RemoteError{Op: "delete", Sheet: sheet, Retryable: false,
			Err: fmt.Errorf("row %d out of range", rowNum)}
	}
	f.sheets[sheet] = append(rows[:rowNum-1], rows[rowNum:]...)
	return nil
}

func (f *fakeTransport) EnsureSheet(ctx context.Context, sheet string, header []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ensure", sheet); err != nil {
		return err
	}
	if _, ok := f.sheets[sheet]; !ok {
		f.sheets[sheet] = [][]string{append([]string(nil), header...)}
	}
	return nil
}

func (f *fakeTransport) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func newTestStore(t *testing.T) (*sheetstore.Store, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	store := sheetstore.New(ft, sheetstore.DefaultRegistry(), &sheetstore.Config{
		MaxRetries:       3,
		RetryInterval:    time.Millisecond,
		MaxRetryInterval: 5 * time.Millisecond,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, store.InitializeTables(context.Background()))
	return store, ft
}

func TestStore_CreateThenRead(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
		"name":      "Relaunch",
		"client_id": "c1",
		"status":    "active",
		"budget":    1000.0,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Read(ctx, sheetstore.TableProjects, id)
	require.NoError(t, err)
	require.Len(t, got, 1)

	rec := got[0]
	require.Equal(t, id, rec.GetAsString("id", ""))
	require.Equal(t, "Relaunch", rec.GetAsString("name", ""))
	require.Equal(t, "c1", rec.GetAsString("client_id", ""))
	require.Equal(t, "active", rec.GetAsString("status", ""))
	require.Equal(t, 1000.0, rec.GetAsFloat64("budget", 0))
	require.False(t, rec.GetAsTime("created_at", time.Time{}).IsZero())
	require.False(t, rec.GetAsTime("updated_at", time.Time{}).IsZero())
}

func TestStore_CreateIgnoresCallerID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
		"id":        "my-own-id",
		"name":      "Relaunch",
		"client_id": "c1",
		"status":    "active",
	})
	require.NoError(t, err)
	require.NotEqual(t, "my-own-id", id)
}

func TestStore_CreateValidationError(t *testing.T) {
	store, ft := newTestStore(t)

	_, err := store.Create(context.Background(), sheetstore.TableProjects, sheetstore.Record{
		"name": "No client or status",
	})
	var ve *sheetstore.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, 0, ft.callCount("append"))
}

func TestStore_ReadMissingID(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Read(context.Background(), sheetstore.TableProjects, "nope")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStore_UpdateMerge(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
		"name":      "Relaunch",
		"client_id": "c1",
		"status":    "active",
		"budget":    1000.0,
	})
	require.NoError(t, err)

	before, err := store.Read(ctx, sheetstore.TableProjects, id)
	require.NoError(t, err)
	createdAt := before[0].GetAsTime("created_at", time.Time{})

	time.Sleep(5 * time.Millisecond)

	found, err := store.Update(ctx, sheetstore.TableProjects, id, sheetstore.Record{
		"status": "completed",
	})
	require.NoError(t, err)
	require.True(t, found)

	after, err := store.Read(ctx, sheetstore.TableProjects, id)
	require.NoError(t, err)
	require.Len(t, after, 1)

	rec := after[0]
	require.Equal(t, "completed", rec.GetAsString("status", ""))
	// Untouched fields keep their values.
	require.Equal(t, "Relaunch", rec.GetAsString("name", ""))
	require.Equal(t, 1000.0, rec.GetAsFloat64("budget", 0))
	require.True(t, rec.GetAsTime("created_at", time.Time{}).Equal(createdAt))
	require.True(t, rec.GetAsTime("updated_at", time.Time{}).After(createdAt))
}

func TestStore_UpdateMissing(t *testing.T) {
	store, _ := newTestStore(t)

	found, err := store.Update(context.Background(), sheetstore.TableProjects, "nope", sheetstore.Record{
		"status": "completed",
	})
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_UpdateValidatesMergedRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
		"name":      "Relaunch",
		"client_id": "c1",
		"status":    "active",
	})
	require.NoError(t, err)

	_, err = store.Update(ctx, sheetstore.TableProjects, id, sheetstore.Record{
		"status": "bogus",
	})
	var ve *sheetstore.ValidationError
	require.ErrorAs(t, err, &ve)

	// The stored record is unchanged.
	got, err := store.Read(ctx, sheetstore.TableProjects, id)
	require.NoError(t, err)
	require.Equal(t, "active", got[0].GetAsString("status", ""))
}

func TestStore_DeleteAndRowShift(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
		"name": "First", "client_id": "c1", "status": "active",
	})
	require.NoError(t, err)
	second, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
		"name": "Second", "client_id": "c1", "status": "active",
	})
	require.NoError(t, err)

	// Delete the first record; the second shifts up one physical row.
	found, err := store.Delete(ctx, sheetstore.TableProjects, first)
	require.NoError(t, err)
	require.True(t, found)

	// Deleting again reports absence.
	found, err = store.Delete(ctx, sheetstore.TableProjects, first)
	require.NoError(t, err)
	require.False(t, found)

	got, err := store.Read(ctx, sheetstore.TableProjects, first)
	require.NoError(t, err)
	require.Empty(t, got)

	// The shifted record is still addressable and mutable.
	found, err = store.Update(ctx, sheetstore.TableProjects, second, sheetstore.Record{
		"status": "completed",
	})
	require.NoError(t, err)
	require.True(t, found)

	got, err = store.Read(ctx, sheetstore.TableProjects, second)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Second", got[0].GetAsString("name", ""))
	require.Equal(t, "completed", got[0].GetAsString("status", ""))
}

func TestStore_BatchCreate(t *testing.T) {
	store, ft := newTestStore(t)
	ctx := context.Background()

	ids, err := store.BatchCreate(ctx, sheetstore.TableProjects, []sheetstore.Record{
		{"name": "A", "client_id": "c1", "status": "active"},
		{"name": "B", "client_id": "c1", "status": "planning"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.NotEqual(t, ids[0], ids[1])
	// One remote round trip for the whole batch.
	require.Equal(t, 1, ft.callCount("append"))

	for _, id := range ids {
		got, err := store.Read(ctx, sheetstore.TableProjects, id)
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
}

func TestStore_BatchCreateRemoteFailureWritesNothing(t *testing.T) {
	store, ft := newTestStore(t)
	ctx := context.Background()

	ft.fatalOps["append"] = true
	_, err := store.BatchCreate(ctx, sheetstore.TableProjects, []sheetstore.Record{
		{"name": "A", "client_id": "c1", "status": "active"},
		{"name": "B", "client_id": "c1", "status": "active"},
	})
	require.Error(t, err)

	ft.fatalOps["append"] = false
	got, err := store.Read(ctx, sheetstore.TableProjects)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStore_BatchCreateValidatesBeforeAppending(t *testing.T) {
	store, ft := newTestStore(t)

	_, err := store.BatchCreate(context.Background(), sheetstore.TableProjects, []sheetstore.Record{
		{"name": "A", "client_id": "c1", "status": "active"},
		{"name": "B", "client_id": "c1", "status": "nonsense"},
	})
	var ve *sheetstore.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, 0, ft.callCount("append"))
}

func TestStore_BatchUpdate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
		"name": "Existing", "client_id": "c1", "status": "active",
	})
	require.NoError(t, err)

	results, err := store.BatchUpdate(ctx, []sheetstore.BatchOp{
		{Op: "create", Table: sheetstore.TableProjects, Data: sheetstore.Record{
			"name": "New", "client_id": "c1", "status": "planning",
		}},
		{Op: "update", Table: sheetstore.TableProjects, ID: id, Data: sheetstore.Record{
			"status": "on_hold",
		}},
		{Op: "update", Table: sheetstore.TableProjects, ID: "ghost", Data: sheetstore.Record{
			"status": "on_hold",
		}},
	})
	// The missing record fails its own item without undoing the others.
	require.Error(t, err)
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.NotEmpty(t, results[0].ID)
	require.NoError(t, results[1].Err)
	require.Error(t, results[2].Err)

	got, err := store.Read(ctx, sheetstore.TableProjects, id)
	require.NoError(t, err)
	require.Equal(t, "on_hold", got[0].GetAsString("status", ""))

	all, err := store.Read(ctx, sheetstore.TableProjects)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestStore_Query(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, p := range []sheetstore.Record{
		{"name": "Alpha", "client_id": "c1", "status": "active", "budget": 300.0},
		{"name": "Beta", "client_id": "c1", "status": "completed", "budget": 100.0},
		{"name": "Gamma", "client_id": "c2", "status": "active", "budget": 200.0},
	} {
		_, err := store.Create(ctx, sheetstore.TableProjects, p)
		require.NoError(t, err)
	}

	got, err := store.Query(ctx, sheetstore.TableProjects, sheetstore.Query{
		Predicates: []sheetstore.Predicate{
			{Column: "status", Operator: "eq", Value: "active"},
		},
		Sort: &sheetstore.Sort{Column: "budget", Descending: true},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Alpha", got[0].GetAsString("name", ""))
	require.Equal(t, "Gamma", got[1].GetAsString("name", ""))

	got, err = store.Query(ctx, sheetstore.TableProjects, sheetstore.Query{
		Sort:   &sheetstore.Sort{Column: "budget"},
		Offset: 1,
		Limit:  1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Gamma", got[0].GetAsString("name", ""))

	_, err = store.Query(ctx, sheetstore.TableProjects, sheetstore.Query{
		Predicates: []sheetstore.Predicate{{Column: "status", Operator: "like", Value: "x"}},
	})
	require.Error(t, err)
}

func TestStore_Aggregate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, budget := range []float64{10, 20, 30} {
		_, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
			"name": "P", "client_id": "c1", "status": "active", "budget": budget,
		})
		require.NoError(t, err)
	}

	tests := []struct {
		op   sheetstore.AggregateOp
		want float64
	}{
		{sheetstore.AggCount, 3},
		{sheetstore.AggSum, 60},
		{sheetstore.AggAvg, 20},
		{sheetstore.AggMin, 10},
		{sheetstore.AggMax, 30},
	}
	for _, tt := range tests {
		got, err := store.Aggregate(ctx, sheetstore.TableProjects, tt.op, "budget")
		require.NoError(t, err, "op %s", tt.op)
		require.Equal(t, tt.want, got, "op %s", tt.op)
	}
}

func TestStore_AggregateEmptyTable(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, op := range []sheetstore.AggregateOp{
		sheetstore.AggCount, sheetstore.AggSum, sheetstore.AggAvg,
		sheetstore.AggMin, sheetstore.AggMax,
	} {
		got, err := store.Aggregate(ctx, sheetstore.TableProjects, op, "budget")
		require.NoError(t, err)
		require.Equal(t, 0.0, got)
	}
}

func TestStore_RetryTransient(t *testing.T) {
	store, ft := newTestStore(t)

	ft.transientFails["append"] = 2
	_, err := store.Create(context.Background(), sheetstore.TableProjects, sheetstore.Record{
		"name": "Retry", "client_id": "c1", "status": "active",
	})
	require.NoError(t, err)
	require.Equal(t, 3, ft.callCount("append"))
}

func TestStore_RetryExhaustion(t *testing.T) {
	store, ft := newTestStore(t)

	ft.transientFails["append"] = 10
	_, err := store.Create(context.Background(), sheetstore.TableProjects, sheetstore.Record{
		"name": "Retry", "client_id": "c1", "status": "active",
	})
	require.Error(t, err)
	require.True(t, sheetstore.IsRetryable(err))
	// Initial attempt plus MaxRetries.
	require.Equal(t, 4, ft.callCount("append"))
}

func TestStore_FatalNotRetried(t *testing.T) {
	store, ft := newTestStore(t)

	ft.fatalOps["append"] = true
	_, err := store.Create(context.Background(), sheetstore.TableProjects, sheetstore.Record{
		"name": "Fatal", "client_id": "c1", "status": "active",
	})
	require.Error(t, err)
	require.False(t, sheetstore.IsRetryable(err))
	require.Equal(t, 1, ft.callCount("append"))
}

func TestStore_UnknownTable(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var ute *sheetstore.UnknownTableError

	_, err := store.Create(ctx, "Ledgers", sheetstore.Record{})
	require.ErrorAs(t, err, &ute)

	_, err = store.Read(ctx, "Ledgers")
	require.ErrorAs(t, err, &ute)

	_, err = store.Query(ctx, "Ledgers", sheetstore.Query{})
	require.ErrorAs(t, err, &ute)

	_, err = store.Aggregate(ctx, "Ledgers", sheetstore.AggCount, "")
	require.ErrorAs(t, err, &ute)
}

func TestStore_ValidateTableStructure(t *testing.T) {
	store, ft := newTestStore(t)
	ctx := context.Background()

	report, err := store.ValidateTableStructure(ctx, sheetstore.TableProjects)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Empty(t, report.Missing)
	require.Empty(t, report.Extra)

	// An extra trailing column is a warning, not an error.
	ft.mu.Lock()
	ft.sheets[sheetstore.TableProjects][0] = append(ft.sheets[sheetstore.TableProjects][0], "legacy_notes")
	ft.mu.Unlock()

	report, err = store.ValidateTableStructure(ctx, sheetstore.TableProjects)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, []string{"legacy_notes"}, report.Extra)

	// A missing column breaks the positional contract.
	ft.mu.Lock()
	ft.sheets[sheetstore.TableProjects][0] = []string{"id", "name"}
	ft.mu.Unlock()

	report, err = store.ValidateTableStructure(ctx, sheetstore.TableProjects)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Contains(t, report.Missing, "status")
}

func TestStore_InitializeTablesIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
		"name": "Keep me", "client_id": "c1", "status": "active",
	})
	require.NoError(t, err)

	// Re-initializing must not touch existing data.
	require.NoError(t, store.InitializeTables(ctx))

	got, err := store.Read(ctx, sheetstore.TableProjects, id)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
			"name": fmt.Sprintf("P%d", i), "client_id": "c1", "status": "active", "budget": 0.0,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, err := store.Update(ctx, sheetstore.TableProjects, id, sheetstore.Record{
				"budget": float64((i + 1) * 100),
			})
			errCh <- err
		}(i, id)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	// Every record got exactly its own budget; no cross-targeting occurred.
	for i, id := range ids {
		got, err := store.Read(ctx, sheetstore.TableProjects, id)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, float64((i+1)*100), got[0].GetAsFloat64("budget", 0))
	}
}

func TestStore_EndToEndScenario(t *testing.T) {
	registry := sheetstore.NewRegistry()
	registry.Register("Projects", []string{
		"id", "name", "client_id", "status", "budget", "created_at", "updated_at",
	})

	ft := newFakeTransport()
	store := sheetstore.New(ft, registry, &sheetstore.Config{
		RetryInterval: time.Millisecond,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx := context.Background()
	require.NoError(t, store.InitializeTables(ctx))

	id, err := store.Create(ctx, "Projects", sheetstore.Record{
		"name": "X", "client_id": "c1", "status": "active", "budget": 1000.0,
	})
	require.NoError(t, err)

	found, err := store.Update(ctx, "Projects", id, sheetstore.Record{"status": "completed"})
	require.NoError(t, err)
	require.True(t, found)

	got, err := store.Read(ctx, "Projects", id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "completed", got[0].GetAsString("status", ""))
	require.Equal(t, 1000.0, got[0].GetAsFloat64("budget", 0))

	found, err = store.Delete(ctx, "Projects", id)
	require.NoError(t, err)
	require.True(t, found)

	got, err = store.Read(ctx, "Projects", id)
	require.NoError(t, err)
	require.Empty(t, got)
}
