package reports

import (
	"context"
	"iter"

	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
)

// TimelineFor streams a material's movements in ledger order.
//
// Without a project every movement is yielded with the running on-hand
// stock. With a project the material's first entry comes first, followed by
// the movements in that project's scope with its running pending quantity.
// Each range over the sequence queries the store again from the start.
func (s *Service) TimelineFor(ctx context.Context, materialID id.ID, projectID *id.ID) iter.Seq2[TimelineEvent, error] {
	return func(yield func(TimelineEvent, error) bool) {
		if _, err := s.materials.Get(ctx, materialID); err != nil {
			yield(TimelineEvent{}, err)
			return
		}

		filter := domain.MovementFilter{MaterialID: &materialID, Limit: s.cfg.TimelinePageSize}
		balance := stockBalance

		if projectID != nil {
			filter.ProjectScope = projectID
			balance = s.projectBalance(*projectID)

			origin, err := s.movements.List(ctx, domain.MovementFilter{
				MaterialID: &materialID,
				Types:      []entity.MovementType{entity.MovementEntry},
				Limit:      1,
			})
			if err != nil {
				yield(TimelineEvent{}, err)
				return
			}
			if len(origin) > 0 && !yield(TimelineEvent{Movement: origin[0], Origin: true}, nil) {
				return
			}
		}

		var running types.Quantity
		for {
			page, err := s.movements.List(ctx, filter)
			if err != nil {
				yield(TimelineEvent{}, err)
				return
			}
			for _, m := range page {
				delta, err := balance(ctx, m)
				if err != nil {
					yield(TimelineEvent{}, err)
					return
				}
				running += delta
				if !yield(TimelineEvent{Movement: m, Balance: running}, nil) {
					return
				}
			}
			if len(page) < filter.Limit {
				return
			}
			last := page[len(page)-1]
			filter.After = &domain.Cursor{OccurredAt: last.OccurredAt, Seq: last.Seq}
		}
	}
}

type balanceFunc func(ctx context.Context, m entity.Movement) (types.Quantity, error)

func stockBalance(_ context.Context, m entity.Movement) (types.Quantity, error) {
	return m.StockEffect(), nil
}

// projectBalance tracks pending quantity held by one project. A transfer
// adds to the destination and takes from the source allocation's project.
func (s *Service) projectBalance(projectID id.ID) balanceFunc {
	sources := make(map[id.ID]id.ID)
	return func(ctx context.Context, m entity.Movement) (types.Quantity, error) {
		switch m.Type {
		case entity.MovementExit:
			return m.Quantity, nil
		case entity.MovementConsumption, entity.MovementReturn:
			return m.Quantity.Neg(), nil
		case entity.MovementTransfer:
			var delta types.Quantity
			if m.ProjectID != nil && *m.ProjectID == projectID {
				delta += m.Quantity
			}
			if m.AllocationID == nil {
				return delta, nil
			}
			source, ok := sources[*m.AllocationID]
			if !ok {
				a, err := s.allocations.Get(ctx, *m.AllocationID)
				if err != nil {
					return 0, err
				}
				source = a.ProjectID
				sources[*m.AllocationID] = source
			}
			if source == projectID {
				delta -= m.Quantity
			}
			return delta, nil
		default:
			return 0, nil
		}
	}
}
