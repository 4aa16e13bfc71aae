package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/domain/reports"
)

var _ reports.Repository = (*ReportRepo)(nil)

// ReportRepo implements reports.Repository.
type ReportRepo struct{ s *Store }

type totalKey struct {
	material id.ID
	bucket   time.Time
	typ      entity.MovementType
}

func (r *ReportRepo) TypeTotals(ctx context.Context, filter reports.SummaryFilter) ([]reports.TypeTotal, error) {
	sums := make(map[totalKey]reports.TypeTotal)
	r.s.do(ctx, func() {
		for _, m := range r.s.movements {
			if m.OccurredAt.Before(filter.From) || !m.OccurredAt.Before(filter.To) {
				continue
			}
			if len(filter.MaterialIDs) > 0 && !slices.Contains(filter.MaterialIDs, m.MaterialID) {
				continue
			}
			if filter.ProjectID != nil && !id.Equal(m.ProjectID, filter.ProjectID) {
				continue
			}

			k := totalKey{typ: m.Type}
			if filter.GroupBy.IsTimeBucket() {
				k.bucket = reports.TruncateBucket(m.OccurredAt, filter.GroupBy)
			} else {
				k.material = m.MaterialID
			}
			t := sums[k]
			t.MaterialID, t.Bucket, t.Type = k.material, k.bucket, k.typ
			t.Quantity += m.Quantity
			sums[k] = t
		}
	})

	out := make([]reports.TypeTotal, 0, len(sums))
	for _, t := range sums {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b reports.TypeTotal) int {
		if c := a.Bucket.Compare(b.Bucket); c != 0 {
			return c
		}
		if c := cmp.Compare(a.MaterialID.String(), b.MaterialID.String()); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
	return out, nil
}

func (r *ReportRepo) FirstEntries(ctx context.Context, materialIDs []id.ID) (map[id.ID]time.Time, error) {
	out := make(map[id.ID]time.Time, len(materialIDs))
	r.s.do(ctx, func() {
		for _, m := range r.s.movements {
			if m.Type != entity.MovementEntry || !slices.Contains(materialIDs, m.MaterialID) {
				continue
			}
			if first, ok := out[m.MaterialID]; !ok || m.OccurredAt.Before(first) {
				out[m.MaterialID] = m.OccurredAt
			}
		}
	})
	return out, nil
}
