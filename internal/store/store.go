// Package store defines the persistence interface for event records.
// By using an interface, the pipeline and the API stay decoupled from the
// concrete database, which keeps both testable with fakes.
package store

import (
	"context"

	"github.com/mfriedel/whatson/internal/event"
	"github.com/mfriedel/whatson/internal/pagination"
)

// BulkResult summarizes a bulk insert. Duplicates counts records whose
// fingerprint already existed; those are expected under at-least-once
// ingestion and never an error.
type BulkResult struct {
	Inserted   int
	Duplicates int
}

// EventStore is the document-store collaborator: filtered+sorted+limited
// reads and an unordered bulk insert where a duplicate-fingerprint violation
// on one record does not block the others.
type EventStore interface {
	// BulkInsert persists the batch. Duplicate-key violations are absorbed
	// into the result; any other per-record failure is returned as an error.
	BulkInsert(ctx context.Context, records []event.Record) (BulkResult, error)

	// ListEvents returns a page ordered by (start date DESC, id DESC),
	// filtered by the keyset position when one is set.
	ListEvents(ctx context.Context, q pagination.Query) ([]event.Record, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's underlying resources.
	Close()
}
