package memory

import (
	"context"
	"fmt"
	"slices"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
)

var _ domain.MovementRepository = (*MovementRepo)(nil)

// MovementRepo implements domain.MovementRepository.
type MovementRepo struct{ s *Store }

func (r *MovementRepo) Insert(ctx context.Context, m *entity.Movement) error {
	var err error
	r.s.do(ctx, func() {
		if _, ok := r.s.materials[m.MaterialID]; !ok {
			err = fmt.Errorf("insert movement: material %s does not exist", m.MaterialID)
			return
		}
		r.s.seq++
		m.Seq = r.s.seq
		r.s.movements = append(r.s.movements, *m)
	})
	return err
}

func (r *MovementRepo) Get(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	var found *entity.Movement
	r.s.do(ctx, func() {
		for _, m := range r.s.movements {
			if m.ID == movementID {
				found = &m
				return
			}
		}
	})
	if found == nil {
		return nil, apperror.NewNotFound("movement", movementID)
	}
	return found, nil
}

func (r *MovementRepo) List(ctx context.Context, filter domain.MovementFilter) ([]entity.Movement, error) {
	var out []entity.Movement
	r.s.do(ctx, func() {
		for _, m := range r.s.movements {
			if r.s.matches(m, filter) {
				out = append(out, m)
			}
		}
	})
	slices.SortStableFunc(out, ledgerOrder)
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *MovementRepo) SumStockEffect(ctx context.Context, materialID id.ID) (types.Quantity, error) {
	var sum types.Quantity
	r.s.do(ctx, func() {
		for _, m := range r.s.movements {
			if m.MaterialID == materialID {
				sum += m.StockEffect()
			}
		}
	})
	return sum, nil
}

func ledgerOrder(a, b entity.Movement) int {
	if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return 0
}

// matches must be called with the store lock held.
func (s *Store) matches(m entity.Movement, f domain.MovementFilter) bool {
	if f.MaterialID != nil && m.MaterialID != *f.MaterialID {
		return false
	}
	if f.AllocationID != nil && !id.Equal(m.AllocationID, f.AllocationID) {
		return false
	}
	if f.ProjectID != nil && !id.Equal(m.ProjectID, f.ProjectID) {
		return false
	}
	if f.ProjectScope != nil && !s.inProjectScope(m, *f.ProjectScope) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, m.Type) {
		return false
	}
	if f.From != nil && m.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !m.OccurredAt.Before(*f.To) {
		return false
	}
	if f.After != nil {
		c := m.OccurredAt.Compare(f.After.OccurredAt)
		if c < 0 || (c == 0 && m.Seq <= f.After.Seq) {
			return false
		}
	}
	return true
}

func (s *Store) inProjectScope(m entity.Movement, projectID id.ID) bool {
	if m.ProjectID != nil && *m.ProjectID == projectID {
		return true
	}
	if m.Type != entity.MovementTransfer || m.AllocationID == nil {
		return false
	}
	source, ok := s.allocations[*m.AllocationID]
	return ok && source.ProjectID == projectID
}
