// Package state persists extracted lineage records in SQLite. Every
// extraction the host chooses to keep becomes one statement row plus its
// source tables, target tables, and per-column source sets; records are
// immutable once saved.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/leapstack-labs/traceline/pkg/lineage"
)

// ErrNotFound is returned when a statement ID has no record.
var ErrNotFound = errors.New("statement not found")

// Record is one saved extraction.
type Record struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Lineage   *lineage.Lineage
}

// Store is the persistence surface the CLI and server depend on.
type Store interface {
	// SaveLineage stores one extraction under a human-readable name and
	// returns the stored record with its generated ID.
	SaveLineage(ctx context.Context, name string, lin *lineage.Lineage) (*Record, error)

	// GetRecord loads a full record, column lineage included.
	GetRecord(ctx context.Context, id string) (*Record, error)

	// ListRecords returns the most recent records, newest first. The
	// listed records carry sources and targets but not column lineage.
	ListRecords(ctx context.Context, limit int) ([]Record, error)

	// DeleteRecord removes a record and its lineage rows.
	DeleteRecord(ctx context.Context, id string) error

	Close() error
}
