package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
)

var _ domain.MaterialRepository = (*MaterialRepo)(nil)

// MaterialRepo implements domain.MaterialRepository.
type MaterialRepo struct{ s *Store }

func (r *MaterialRepo) Create(ctx context.Context, m *entity.Material) error {
	var err error
	r.s.do(ctx, func() {
		for _, existing := range r.s.materials {
			if strings.EqualFold(existing.Code, m.Code) {
				err = apperror.NewDuplicate("material", "code", m.Code)
				return
			}
		}
		r.s.materials[m.ID] = *m
	})
	return err
}

func (r *MaterialRepo) Get(ctx context.Context, materialID id.ID) (*entity.Material, error) {
	var (
		m  entity.Material
		ok bool
	)
	r.s.do(ctx, func() { m, ok = r.s.materials[materialID] })
	if !ok {
		return nil, apperror.NewNotFound("material", materialID)
	}
	return &m, nil
}

// GetForUpdate is Get: the transaction already holds the store lock.
func (r *MaterialRepo) GetForUpdate(ctx context.Context, materialID id.ID) (*entity.Material, error) {
	return r.Get(ctx, materialID)
}

func (r *MaterialRepo) GetByCode(ctx context.Context, code string) (*entity.Material, error) {
	var found *entity.Material
	r.s.do(ctx, func() {
		for _, m := range r.s.materials {
			if strings.EqualFold(m.Code, code) {
				found = &m
				return
			}
		}
	})
	if found == nil {
		return nil, apperror.NewNotFound("material", code)
	}
	return found, nil
}

func (r *MaterialRepo) List(ctx context.Context, filter domain.MaterialFilter) ([]entity.Material, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []entity.Material
	r.s.do(ctx, func() {
		for _, m := range r.s.materials {
			if search != "" &&
				!strings.Contains(strings.ToLower(m.Code), search) &&
				!strings.Contains(strings.ToLower(m.Name), search) {
				continue
			}
			out = append(out, m)
		}
	})
	slices.SortFunc(out, func(a, b entity.Material) int { return cmp.Compare(a.Code, b.Code) })
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *MaterialRepo) ListIDs(ctx context.Context) ([]id.ID, error) {
	materials, err := r.List(ctx, domain.MaterialFilter{})
	if err != nil {
		return nil, err
	}
	ids := make([]id.ID, len(materials))
	for i, m := range materials {
		ids[i] = m.ID
	}
	return ids, nil
}

func (r *MaterialRepo) SetStock(ctx context.Context, materialID id.ID, stock types.Quantity, at time.Time) error {
	var err error
	r.s.do(ctx, func() {
		m, ok := r.s.materials[materialID]
		if !ok {
			err = apperror.NewNotFound("material", materialID)
			return
		}
		m.StockQuantity = stock
		m.UpdatedAt = at.UTC()
		r.s.materials[materialID] = m
	})
	return err
}
