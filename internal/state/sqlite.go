package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/traceline/pkg/lineage"
	"github.com/leapstack-labs/traceline/pkg/plan"
)

// SQLiteStore implements Store on a SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the store at path and applies pending
// migrations. Use ":memory:" for an in-memory store.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	if path == ":memory:" {
		dsn = ":memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time; a single connection also keeps
	// :memory: databases coherent across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveLineage implements Store.
func (s *SQLiteStore) SaveLineage(ctx context.Context, name string, lin *lineage.Lineage) (*Record, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if lin == nil {
		return nil, fmt.Errorf("nil lineage")
	}

	rec := &Record{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Lineage:   lin,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO statements (id, name, created_at) VALUES (?, ?, ?)`,
		rec.ID, rec.Name, rec.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to insert statement: %w", err)
	}

	for i, src := range lin.Sources {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO statement_sources (statement_id, position, table_name) VALUES (?, ?, ?)`,
			rec.ID, i, src.String(),
		); err != nil {
			return nil, fmt.Errorf("failed to insert source %s: %w", src, err)
		}
	}
	for i, tgt := range lin.Targets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO statement_targets (statement_id, position, table_name) VALUES (?, ?, ?)`,
			rec.ID, i, tgt.String(),
		); err != nil {
			return nil, fmt.Errorf("failed to insert target %s: %w", tgt, err)
		}
	}
	for i, col := range lin.Columns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO statement_columns (statement_id, column_index, column_name) VALUES (?, ?, ?)`,
			rec.ID, i, col.Name,
		); err != nil {
			return nil, fmt.Errorf("failed to insert column %s: %w", col.Name, err)
		}
		for j, src := range col.Sources {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO column_lineage (statement_id, column_index, source_index, source_table, source_column)
				 VALUES (?, ?, ?, ?, ?)`,
				rec.ID, i, j, src.Table.String(), src.Column,
			); err != nil {
				return nil, fmt.Errorf("failed to insert lineage for column %s: %w", col.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return rec, nil
}

// GetRecord implements Store.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rec := &Record{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM statements WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load statement: %w", err)
	}

	lin := &lineage.Lineage{}
	if lin.Sources, err = s.tableNames(ctx, "statement_sources", id); err != nil {
		return nil, err
	}
	if lin.Targets, err = s.tableNames(ctx, "statement_targets", id); err != nil {
		return nil, err
	}
	if lin.Columns, err = s.columnLineage(ctx, id); err != nil {
		return nil, err
	}
	rec.Lineage = lin
	return rec, nil
}

// ListRecords implements Store.
func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]Record, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM statements ORDER BY created_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}

	for i := range recs {
		lin := &lineage.Lineage{}
		if lin.Sources, err = s.tableNames(ctx, "statement_sources", recs[i].ID); err != nil {
			return nil, err
		}
		if lin.Targets, err = s.tableNames(ctx, "statement_targets", recs[i].ID); err != nil {
			return nil, err
		}
		recs[i].Lineage = lin
	}
	return recs, nil
}

// DeleteRecord implements Store. Lineage rows cascade.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM statements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete statement: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) tableNames(ctx context.Context, table, id string) ([]plan.QualifiedName, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name FROM `+table+` WHERE statement_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	defer rows.Close()

	names := []plan.QualifiedName{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		names = append(names, storedName(name))
	}
	return names, rows.Err()
}

func (s *SQLiteStore) columnLineage(ctx context.Context, id string) ([]lineage.ColumnLineage, error) {
	colRows, err := s.db.QueryContext(ctx,
		`SELECT column_name FROM statement_columns WHERE statement_id = ? ORDER BY column_index`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load columns: %w", err)
	}
	defer colRows.Close()

	cols := []lineage.ColumnLineage{}
	for colRows.Next() {
		var name string
		if err := colRows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, lineage.ColumnLineage{Name: name, Sources: []lineage.SourceColumn{}})
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load columns: %w", err)
	}

	srcRows, err := s.db.QueryContext(ctx,
		`SELECT column_index, source_table, source_column FROM column_lineage
		 WHERE statement_id = ? ORDER BY column_index, source_index`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load column lineage: %w", err)
	}
	defer srcRows.Close()

	for srcRows.Next() {
		var idx int
		var table, column string
		if err := srcRows.Scan(&idx, &table, &column); err != nil {
			return nil, fmt.Errorf("failed to scan column lineage: %w", err)
		}
		if idx < 0 || idx >= len(cols) {
			return nil, fmt.Errorf("column lineage row references column %d of %d", idx, len(cols))
		}
		cols[idx].Sources = append(cols[idx].Sources, lineage.SourceColumn{
			Table:  storedName(table),
			Column: column,
		})
	}
	return cols, srcRows.Err()
}

// storedName reverses QualifiedName.String. Directory targets are kept
// verbatim; they are backticked paths, not dotted identifiers.
func storedName(s string) plan.QualifiedName {
	if strings.HasPrefix(s, "`") {
		return plan.QualifiedName{Table: s}
	}
	return plan.ParseName(s)
}
