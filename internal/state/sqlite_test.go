package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leapstack-labs/traceline/pkg/lineage"
	"github.com/leapstack-labs/traceline/pkg/plan"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleLineage() *lineage.Lineage {
	return &lineage.Lineage{
		Sources: []plan.QualifiedName{plan.Name("sales", "orders"), plan.Name("sales", "refunds")},
		Targets: []plan.QualifiedName{plan.Name("sales", "daily")},
		Columns: []lineage.ColumnLineage{
			{
				Name: "sales.daily.amount",
				Sources: []lineage.SourceColumn{
					{Table: plan.Name("sales", "orders"), Column: "amount"},
					{Table: plan.Name("sales", "refunds"), Column: "amount"},
				},
			},
			{Name: "sales.daily.ds", Sources: []lineage.SourceColumn{}},
			{
				Name:    "sales.daily.n",
				Sources: []lineage.SourceColumn{lineage.CountStar(plan.Name("sales", "orders"))},
			},
		},
	}
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestSQLiteStore_MigrationsCreateTables(t *testing.T) {
	store := setupTestStore(t)

	tables := []string{"statements", "statement_sources", "statement_targets", "statement_columns", "column_lineage"}
	for _, table := range tables {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if err != nil {
			t.Errorf("table %s does not exist: %v", table, err)
			continue
		}
		rows.Close()
	}

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("failed to read migration version: %v", err)
	}
	if version < 1 {
		t.Errorf("expected migration version >= 1, got %d", version)
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec, err := store.SaveLineage(ctx, "daily rollup", sampleLineage())
	if err != nil {
		t.Fatalf("failed to save lineage: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("record ID should not be empty")
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("record CreatedAt should be set")
	}

	got, err := store.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	if got.Name != "daily rollup" {
		t.Errorf("expected name %q, got %q", "daily rollup", got.Name)
	}

	lin := got.Lineage
	if len(lin.Sources) != 2 || lin.Sources[0] != plan.Name("sales", "orders") {
		t.Errorf("unexpected sources: %v", lin.Sources)
	}
	if len(lin.Targets) != 1 || lin.Targets[0] != plan.Name("sales", "daily") {
		t.Errorf("unexpected targets: %v", lin.Targets)
	}
	if len(lin.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(lin.Columns))
	}
	if got, want := len(lin.Columns[0].Sources), 2; got != want {
		t.Errorf("expected %d sources for column 0, got %d", want, got)
	}
	if lin.Columns[0].Sources[1].Column != "amount" {
		t.Errorf("unexpected second source: %v", lin.Columns[0].Sources[1])
	}

	// Constant-derived columns come back with an empty, non-nil set.
	if lin.Columns[1].Sources == nil || len(lin.Columns[1].Sources) != 0 {
		t.Errorf("expected empty source set for constant column, got %v", lin.Columns[1].Sources)
	}

	// The count(*) sentinel survives the round trip untouched.
	if lin.Columns[2].Sources[0].Column != lineage.CountStarColumn {
		t.Errorf("expected %s sentinel, got %q", lineage.CountStarColumn, lin.Columns[2].Sources[0].Column)
	}
}

func TestSQLiteStore_DirectoryTargetRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	lin := &lineage.Lineage{
		Sources: []plan.QualifiedName{plan.Name("t")},
		Targets: []plan.QualifiedName{plan.PathName("/data/out.csv")},
		Columns: []lineage.ColumnLineage{},
	}
	rec, err := store.SaveLineage(ctx, "export", lin)
	if err != nil {
		t.Fatalf("failed to save lineage: %v", err)
	}

	got, err := store.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	// A backticked path must not be split on its dots.
	if got.Lineage.Targets[0] != plan.PathName("/data/out.csv") {
		t.Errorf("directory target mangled: %v", got.Lineage.Targets[0])
	}
}

func TestSQLiteStore_ListRecords(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := store.SaveLineage(ctx, name, sampleLineage()); err != nil {
			t.Fatalf("failed to save %s: %v", name, err)
		}
		time.Sleep(2 * time.Millisecond) // distinct created_at timestamps
	}

	recs, err := store.ListRecords(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Name != "third" || recs[1].Name != "second" {
		t.Errorf("expected newest first, got %q then %q", recs[0].Name, recs[1].Name)
	}
	// Listings carry sources and targets but skip per-column lineage.
	if len(recs[0].Lineage.Sources) != 2 {
		t.Errorf("expected listed record to carry sources, got %v", recs[0].Lineage.Sources)
	}
	if recs[0].Lineage.Columns != nil {
		t.Errorf("expected listed record to skip columns, got %v", recs[0].Lineage.Columns)
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRecord(context.Background(), "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec, err := store.SaveLineage(ctx, "doomed", sampleLineage())
	if err != nil {
		t.Fatalf("failed to save lineage: %v", err)
	}
	if err := store.DeleteRecord(ctx, rec.ID); err != nil {
		t.Fatalf("failed to delete record: %v", err)
	}
	if _, err := store.GetRecord(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Lineage rows cascade with the statement.
	var n int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM column_lineage`).Scan(&n); err != nil {
		t.Fatalf("failed to count lineage rows: %v", err)
	}
	if n != 0 {
		t.Errorf("expected cascade to remove lineage rows, found %d", n)
	}

	if err := store.DeleteRecord(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestSQLiteStore_EmptyRecord(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	empty := &lineage.Lineage{
		Sources: []plan.QualifiedName{},
		Targets: []plan.QualifiedName{},
		Columns: []lineage.ColumnLineage{},
	}
	rec, err := store.SaveLineage(ctx, "bare ddl", empty)
	if err != nil {
		t.Fatalf("failed to save empty lineage: %v", err)
	}

	got, err := store.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	if len(got.Lineage.Sources) != 0 || len(got.Lineage.Targets) != 0 || len(got.Lineage.Columns) != 0 {
		t.Errorf("expected empty record, got %+v", got.Lineage)
	}
}
