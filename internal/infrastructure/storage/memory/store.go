// Package memory is an in-process implementation of the ledger store.
//
// Transactions are serialized under one mutex and roll back by restoring a
// snapshot, so the store gives the same all-or-nothing behavior as the
// PostgreSQL implementation. It backs tests and `storage.driver=memory`.
package memory

import (
	"context"
	"maps"
	"sync"

	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/tx"
)

var _ tx.ReadOnlyManager = (*Store)(nil)

// Store holds materials, the movement ledger and allocations.
type Store struct {
	mu sync.Mutex

	materials   map[id.ID]entity.Material
	movements   []entity.Movement
	allocations map[id.ID]entity.Allocation
	seq         int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		materials:   make(map[id.ID]entity.Material),
		allocations: make(map[id.ID]entity.Allocation),
	}
}

type txKey struct{ s *Store }

type snapshot struct {
	materials   map[id.ID]entity.Material
	allocations map[id.ID]entity.Allocation
	movements   int
	seq         int64
}

func (s *Store) inTx(ctx context.Context) bool {
	return ctx.Value(txKey{s}) != nil
}

// RunInTransaction runs fn with exclusive access to the store. Any error or
// panic restores the state seen at the start. Nested calls join.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	snap := snapshot{
		materials:   maps.Clone(s.materials),
		allocations: maps.Clone(s.allocations),
		movements:   len(s.movements),
		seq:         s.seq,
	}
	committed := false
	defer func() {
		if !committed {
			s.materials = snap.materials
			s.allocations = snap.allocations
			s.movements = s.movements[:snap.movements]
			s.seq = snap.seq
		}
		s.mu.Unlock()
	}()

	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		return err
	}
	committed = true
	return nil
}

// ReadOnly runs fn like RunInTransaction.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

// do runs fn under the store lock unless ctx already holds it.
func (s *Store) do(ctx context.Context, fn func()) {
	if s.inTx(ctx) {
		fn()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Materials returns the material repository.
func (s *Store) Materials() *MaterialRepo { return &MaterialRepo{s: s} }

// Movements returns the movement repository.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{s: s} }

// Allocations returns the allocation repository.
func (s *Store) Allocations() *AllocationRepo { return &AllocationRepo{s: s} }

// Reports returns the report aggregate repository.
func (s *Store) Reports() *ReportRepo { return &ReportRepo{s: s} }

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
