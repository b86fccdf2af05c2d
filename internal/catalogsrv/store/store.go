// Package store defines the catalog store contract: durable keyed storage
// for view records with secondary filtering by domain, layer and status.
// Implementations live in the sqlite and postgres subpackages; all callers
// take the Store interface as an injected dependency.
package store

import (
	"context"

	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Filter selects records on Scan. Nil fields match everything. Ordering of
// scan results is stable within a single scan (by name) but callers must not
// assume any cross-call ordering.
type Filter struct {
	Domain   *string
	Layer    *int
	StatusIn []string
}

// Store is the catalog store contract. Mutations for a given view name are
// linearizable: Update and UpdateMany serialize read-modify-write cycles per
// key so a status transition can never lose a concurrent usage increment.
type Store interface {
	// Get returns the record with the given name, or ErrNotFound.
	Get(ctx context.Context, name string) (*ViewRecord, apperrors.Error)

	// Put atomically inserts or replaces a record. Inserting a name that
	// already belongs to a different record identity fails with
	// ErrDuplicateName. The DAG and depth invariants are re-validated here
	// as a backstop even though the lifecycle engine checks them first.
	Put(ctx context.Context, rec *ViewRecord) apperrors.Error

	// Update applies fn to the current record under a per-key write lock
	// and persists the result. fn receives a clone; returning an error
	// aborts the update with nothing written. The record name is immutable
	// and the usage count may not decrease.
	Update(ctx context.Context, name string, fn func(*ViewRecord) apperrors.Error) (*ViewRecord, apperrors.Error)

	// UpdateMany applies fn to every named record inside one transaction.
	// Either every record is updated or none are; readers never observe a
	// partially applied batch. Used by staleness cascades.
	UpdateMany(ctx context.Context, names []string, fn func(*ViewRecord) apperrors.Error) apperrors.Error

	// Scan returns records matching the filter.
	Scan(ctx context.Context, f Filter) ([]*ViewRecord, apperrors.Error)

	// Count returns the number of records, optionally excluding ARCHIVED.
	Count(ctx context.Context, excludeArchived bool) (int, apperrors.Error)

	// Close releases the underlying connection.
	Close() error
}

// FilterDomain is a convenience constructor for a domain filter field.
func FilterDomain(d string) *string { return &d }

// FilterLayer is a convenience constructor for a layer filter field.
func FilterLayer(l int) *int { return &l }
