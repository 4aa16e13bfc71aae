// Package tx decouples domain services from the store's transaction handling.
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
//
// The ledger and the allocation tracker wrap every mutating operation in one
// call: movement insert, allocation counters and stock projection either all
// commit or all roll back. Nested calls join the transaction already in ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds snapshot reads for reports.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
