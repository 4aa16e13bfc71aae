package allocation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
	"canteiro/pkg/logger"
)

// Counters is the mutable part of an allocation.
type Counters struct {
	Consumed types.Quantity          `json:"consumed"`
	Returned types.Quantity          `json:"returned"`
	Status   entity.AllocationStatus `json:"status"`
}

// Reconciliation compares stored counters with the ledger.
type Reconciliation struct {
	AllocationID id.ID    `json:"allocationId"`
	Before       Counters `json:"before"`
	After        Counters `json:"after"`
	Drifted      bool     `json:"drifted"`
	Repaired     bool     `json:"repaired"`
}

// Summary aggregates a reconciliation run.
type Summary struct {
	Checked  int `json:"checked"`
	Drifted  int `json:"drifted"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

// replay recomputes counters from the allocation's own movements in ledger
// order. The exit that created the allocation carries its id too and is
// skipped.
func (s *Service) replay(ctx context.Context, a *entity.Allocation) (Counters, error) {
	movements, err := s.movements.List(ctx, domain.MovementFilter{AllocationID: &a.ID})
	if err != nil {
		return Counters{}, fmt.Errorf("list allocation movements: %w", err)
	}

	var (
		c       Counters
		closing entity.MovementType
	)
	for _, m := range movements {
		switch m.Type {
		case entity.MovementConsumption:
			c.Consumed += m.Quantity
		case entity.MovementReturn, entity.MovementTransfer:
			c.Returned += m.Quantity
		default:
			continue
		}
		closing = m.Type
	}
	c.Status = entity.DeriveStatus(a.QuantityAllocated, c.Consumed, c.Returned, closing)
	return c, nil
}

// Reconcile replays one allocation's movements. With repair set, drifted
// counters and status are rewritten from the ledger.
func (s *Service) Reconcile(ctx context.Context, allocationID id.ID, repair bool) (*Reconciliation, error) {
	ctx, span := startSpan(ctx, "allocation.Reconcile", allocationID)
	defer span.End()

	var res Reconciliation
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		cur, err := s.allocations.GetForUpdate(ctx, allocationID)
		if err != nil {
			return err
		}
		after, err := s.replay(ctx, cur)
		if err != nil {
			return err
		}

		res = Reconciliation{
			AllocationID: allocationID,
			Before: Counters{
				Consumed: cur.QuantityConsumed,
				Returned: cur.QuantityReturned,
				Status:   cur.Status,
			},
			After: after,
		}
		res.Drifted = res.Before != res.After
		if !res.Drifted || !repair {
			return nil
		}

		next := *cur
		next.QuantityConsumed = after.Consumed
		next.QuantityReturned = after.Returned
		next.Status = after.Status
		next.UpdatedAt = s.ledger.Now()
		if err := s.allocations.UpdateCounters(ctx, &next, cur.QuantityConsumed, cur.QuantityReturned); err != nil {
			return fmt.Errorf("repair allocation: %w", err)
		}
		res.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Drifted {
		s.recorder.DriftDetected("allocation")
		logger.Warn(ctx, "allocation drift detected",
			"allocation_id", allocationID,
			"stored_consumed", res.Before.Consumed,
			"stored_returned", res.Before.Returned,
			"replayed_consumed", res.After.Consumed,
			"replayed_returned", res.After.Returned,
			"repaired", res.Repaired,
		)
	}
	return &res, nil
}

// ReconcileAll reconciles every allocation with bounded concurrency.
func (s *Service) ReconcileAll(ctx context.Context, repair bool) (*Summary, error) {
	ids, err := s.allocations.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}

	results := make([]*Reconciliation, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, allocationID := range ids {
		g.Go(func() error {
			res, err := s.Reconcile(gctx, allocationID, repair)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Error(gctx, "allocation reconciliation failed", "allocation_id", allocationID, "error", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &Summary{Checked: len(ids)}
	for _, r := range results {
		switch {
		case r == nil:
			sum.Failed++
		case r.Drifted:
			sum.Drifted++
			if r.Repaired {
				sum.Repaired++
			}
		}
	}
	logger.Info(ctx, "allocation reconciliation finished",
		"checked", sum.Checked, "drifted", sum.Drifted, "repaired", sum.Repaired, "failed", sum.Failed)
	return sum, nil
}
