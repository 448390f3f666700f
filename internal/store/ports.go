// Package store defines the ports the ledger service uses to keep the
// household snapshot somewhere durable.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a household has never been saved.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one stored revision of a household's encoded book.
type Snapshot struct {
	Household string
	Revision  int64
	Document  []byte
	UpdatedAt time.Time
}

// Ports for outbound adapters.
type (
	SnapshotReader interface {
		// Load returns the latest snapshot of household or ErrNotFound.
		Load(ctx context.Context, household string) (Snapshot, error)
	}

	SnapshotWriter interface {
		// Save replaces the whole document and returns the new revision.
		Save(ctx context.Context, household string, document []byte) (revision int64, err error)
	}

	Store interface {
		SnapshotReader
		SnapshotWriter
	}
)
