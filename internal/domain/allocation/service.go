// Package allocation tracks how much of each exit a project has consumed or
// returned. Counter updates are compare-and-swap on the (consumed, returned)
// pair, so concurrent consumers of one allocation never oversubscribe it.
package allocation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/tx"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
	"canteiro/pkg/logger"
)

var tracer = otel.Tracer("canteiro/allocation")

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Ledger is the append path the tracker writes movements through.
type Ledger interface {
	Append(ctx context.Context, m *entity.Movement) (types.Quantity, error)
	Committed(ctx context.Context, movements []*entity.Movement, projectIDs ...id.ID)
	Lock(ctx context.Context, materialID id.ID) (*entity.Material, time.Time, error)
	Now() time.Time
}

// Config tunes the tracker.
type Config struct {
	RestockOnReturn RestockPolicy
	// ConflictRetries is how many times a CAS conflict is retried with fresh state.
	ConflictRetries int
	// Concurrency bounds ReconcileAll.
	Concurrency int
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		RestockOnReturn: RestockNever,
		ConflictRetries: 3,
		Concurrency:     4,
	}
}

// Service is the allocation tracker.
type Service struct {
	allocations domain.AllocationRepository
	movements   domain.MovementRepository
	ledger      Ledger
	txManager   tx.Manager
	recorder    domain.Recorder
	cfg         Config
}

// NewService creates the tracker. recorder may be nil.
func NewService(
	allocations domain.AllocationRepository,
	movements domain.MovementRepository,
	ledger Ledger,
	txManager tx.Manager,
	recorder domain.Recorder,
	cfg Config,
) *Service {
	if recorder == nil {
		recorder = domain.NopRecorder{}
	}
	if cfg.RestockOnReturn == "" {
		cfg.RestockOnReturn = RestockNever
	}
	if cfg.ConflictRetries < 0 {
		cfg.ConflictRetries = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Service{
		allocations: allocations,
		movements:   movements,
		ledger:      ledger,
		txManager:   txManager,
		recorder:    recorder,
		cfg:         cfg,
	}
}

// Consume records on-site usage. It fails with ALLOCATION_CLOSED when
// nothing is pending and EXCEEDS_PENDING when q is more than what is left.
func (s *Service) Consume(ctx context.Context, cmd ConsumeCommand) (*Result, error) {
	ctx, span := startSpan(ctx, "allocation.Consume", cmd.AllocationID)
	defer span.End()

	if err := domain.Validate(cmd); err != nil {
		return nil, err
	}

	var res Result
	err := s.retry(ctx, "consume", func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			cur, err := s.allocations.Get(ctx, cmd.AllocationID)
			if err != nil {
				return err
			}
			_, now, err := s.ledger.Lock(ctx, cur.MaterialID)
			if err != nil {
				return err
			}
			next, err := cur.Consume(cmd.Quantity, now)
			if err != nil {
				return err
			}

			m := linkedMovement(entity.MovementConsumption, cur, cmd.Quantity, cmd.Responsible, now)
			m.DocumentRef = cmd.GuideRef
			m.Notes = cmd.Notes
			if _, err := s.ledger.Append(ctx, m); err != nil {
				return err
			}
			if err := s.allocations.UpdateCounters(ctx, &next, cur.QuantityConsumed, cur.QuantityReturned); err != nil {
				return err
			}
			res = Result{Movement: m, Allocation: &next}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.ledger.Committed(ctx, []*entity.Movement{res.Movement}, res.Allocation.ProjectID)
	return &res, nil
}

// Return records material coming back from the project. Depending on the
// restock policy an entry movement puts it back on stock in the same unit.
func (s *Service) Return(ctx context.Context, cmd ReturnCommand) (*Result, error) {
	ctx, span := startSpan(ctx, "allocation.Return", cmd.AllocationID)
	defer span.End()

	if err := domain.Validate(cmd); err != nil {
		return nil, err
	}

	var res Result
	err := s.retry(ctx, "return", func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			cur, err := s.allocations.Get(ctx, cmd.AllocationID)
			if err != nil {
				return err
			}
			_, now, err := s.ledger.Lock(ctx, cur.MaterialID)
			if err != nil {
				return err
			}
			next, err := cur.Return(cmd.Quantity, now)
			if err != nil {
				return err
			}

			m := linkedMovement(entity.MovementReturn, cur, cmd.Quantity, cmd.Responsible, now)
			m.Reason = cmd.Reason
			m.MaterialCondition = cmd.MaterialCondition
			m.Notes = cmd.Notes
			if _, err := s.ledger.Append(ctx, m); err != nil {
				return err
			}
			if err := s.allocations.UpdateCounters(ctx, &next, cur.QuantityConsumed, cur.QuantityReturned); err != nil {
				return err
			}
			res = Result{Movement: m, Allocation: &next}

			if !s.cfg.RestockOnReturn.Restocks(cmd.MaterialCondition) {
				return nil
			}
			restock := entity.NewMovement(entity.MovementEntry, cur.MaterialID, cmd.Quantity, cmd.Responsible, now)
			restock.SourceMovementID = &m.ID
			restock.DocumentRef = "RETURN:" + cur.ID.String()
			if _, err := s.ledger.Append(ctx, restock); err != nil {
				return fmt.Errorf("restock return: %w", err)
			}
			res.Restock = restock
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	written := []*entity.Movement{res.Movement}
	if res.Restock != nil {
		written = append(written, res.Restock)
	}
	s.ledger.Committed(ctx, written, res.Allocation.ProjectID)
	return &res, nil
}

// Transfer moves pending quantity to a new allocation on another project or
// stage. The moved quantity counts as returned on the source.
func (s *Service) Transfer(ctx context.Context, cmd TransferCommand) (*TransferResult, error) {
	ctx, span := startSpan(ctx, "allocation.Transfer", cmd.AllocationID)
	defer span.End()
	span.SetAttributes(attribute.String("project.to", cmd.ToProjectID.String()))

	if err := domain.Validate(cmd); err != nil {
		return nil, err
	}

	var res TransferResult
	err := s.retry(ctx, "transfer", func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			cur, err := s.allocations.Get(ctx, cmd.AllocationID)
			if err != nil {
				return err
			}
			if cur.ProjectID == cmd.ToProjectID && id.Equal(cur.StageID, cmd.ToStageID) {
				return apperror.NewValidation("transfer destination is the source allocation's project and stage").
					WithDetail("allocationId", cur.ID.String()).
					WithDetail("toProjectId", cmd.ToProjectID.String())
			}

			_, now, err := s.ledger.Lock(ctx, cur.MaterialID)
			if err != nil {
				return err
			}
			next, err := cur.TransferOut(cmd.Quantity, now)
			if err != nil {
				return err
			}

			m := entity.NewMovement(entity.MovementTransfer, cur.MaterialID, cmd.Quantity, cmd.Responsible, now)
			m.AllocationID = &cur.ID
			m.SourceMovementID = &cur.SourceMovementID
			m.ProjectID = &cmd.ToProjectID
			m.StageID = cmd.ToStageID
			m.Notes = cmd.Notes
			if _, err := s.ledger.Append(ctx, m); err != nil {
				return err
			}
			if err := s.allocations.UpdateCounters(ctx, &next, cur.QuantityConsumed, cur.QuantityReturned); err != nil {
				return err
			}

			dest := entity.NewAllocation(cur.MaterialID, cmd.ToProjectID, cmd.ToStageID, cmd.Quantity, m.ID, now)
			if err := s.allocations.Create(ctx, dest); err != nil {
				return fmt.Errorf("create destination allocation: %w", err)
			}
			res = TransferResult{Movement: m, Source: &next, Destination: dest}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.ledger.Committed(ctx, []*entity.Movement{res.Movement}, res.Source.ProjectID, res.Destination.ProjectID)
	return &res, nil
}

// Get returns one allocation.
func (s *Service) Get(ctx context.Context, allocationID id.ID) (*entity.Allocation, error) {
	return s.allocations.Get(ctx, allocationID)
}

// List returns allocations ordered by creation.
func (s *Service) List(ctx context.Context, filter domain.AllocationFilter) ([]entity.Allocation, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperror.NewValidation("unknown allocation status").WithDetail("status", string(*filter.Status))
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	items, err := s.allocations.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return items, nil
}

// retry reruns fn with fresh state while it fails on a CAS conflict.
func (s *Service) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= s.cfg.ConflictRetries; attempt++ {
		err = fn(ctx)
		if !apperror.IsConcurrentModification(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.recorder.ConflictRetried(op)
		logger.Warn(ctx, "allocation update conflict",
			"operation", op,
			"attempt", attempt+1,
			"max_retries", s.cfg.ConflictRetries,
		)
	}
	return err
}

// linkedMovement builds a consumption or return tied to allocation a.
func linkedMovement(t entity.MovementType, a *entity.Allocation, q types.Quantity, responsible string, at time.Time) *entity.Movement {
	m := entity.NewMovement(t, a.MaterialID, q, responsible, at)
	m.AllocationID = &a.ID
	m.SourceMovementID = &a.SourceMovementID
	m.ProjectID = &a.ProjectID
	m.StageID = a.StageID
	return m
}

func startSpan(ctx context.Context, name string, allocationID id.ID) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("allocation.id", allocationID.String()),
	))
}
