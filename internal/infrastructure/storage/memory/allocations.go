package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
)

var _ domain.AllocationRepository = (*AllocationRepo)(nil)

// AllocationRepo implements domain.AllocationRepository.
type AllocationRepo struct{ s *Store }

func (r *AllocationRepo) Create(ctx context.Context, a *entity.Allocation) error {
	var err error
	r.s.do(ctx, func() {
		if _, ok := r.s.allocations[a.ID]; ok {
			err = fmt.Errorf("create allocation: %s already exists", a.ID)
			return
		}
		if _, ok := r.s.materials[a.MaterialID]; !ok {
			err = fmt.Errorf("create allocation: material %s does not exist", a.MaterialID)
			return
		}
		r.s.allocations[a.ID] = *a
	})
	return err
}

func (r *AllocationRepo) Get(ctx context.Context, allocationID id.ID) (*entity.Allocation, error) {
	var (
		a  entity.Allocation
		ok bool
	)
	r.s.do(ctx, func() { a, ok = r.s.allocations[allocationID] })
	if !ok {
		return nil, apperror.NewNotFound("allocation", allocationID)
	}
	return &a, nil
}

// GetForUpdate is Get: the transaction already holds the store lock.
func (r *AllocationRepo) GetForUpdate(ctx context.Context, allocationID id.ID) (*entity.Allocation, error) {
	return r.Get(ctx, allocationID)
}

func (r *AllocationRepo) List(ctx context.Context, filter domain.AllocationFilter) ([]entity.Allocation, error) {
	var out []entity.Allocation
	r.s.do(ctx, func() {
		for _, a := range r.s.allocations {
			switch {
			case filter.ProjectID != nil && a.ProjectID != *filter.ProjectID:
				continue
			case filter.MaterialID != nil && a.MaterialID != *filter.MaterialID:
				continue
			case filter.Status != nil && a.Status != *filter.Status:
				continue
			case filter.OnlyPending && !a.Pending().IsPositive():
				continue
			}
			out = append(out, a)
		}
	})
	slices.SortFunc(out, func(a, b entity.Allocation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *AllocationRepo) ListIDs(ctx context.Context) ([]id.ID, error) {
	all, err := r.List(ctx, domain.AllocationFilter{})
	if err != nil {
		return nil, err
	}
	ids := make([]id.ID, len(all))
	for i, a := range all {
		ids[i] = a.ID
	}
	return ids, nil
}

func (r *AllocationRepo) UpdateCounters(ctx context.Context, next *entity.Allocation, expectConsumed, expectReturned types.Quantity) error {
	if err := next.CheckInvariant(); err != nil {
		return err
	}
	var err error
	r.s.do(ctx, func() {
		cur, ok := r.s.allocations[next.ID]
		if !ok {
			err = apperror.NewNotFound("allocation", next.ID)
			return
		}
		if cur.QuantityConsumed != expectConsumed || cur.QuantityReturned != expectReturned {
			err = apperror.NewConcurrentModification("allocation", next.ID)
			return
		}
		cur.QuantityConsumed = next.QuantityConsumed
		cur.QuantityReturned = next.QuantityReturned
		cur.Status = next.Status
		cur.UpdatedAt = next.UpdatedAt
		r.s.allocations[next.ID] = cur
	})
	return err
}
