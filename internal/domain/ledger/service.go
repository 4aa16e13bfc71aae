// Package ledger is the single entry point for stock-affecting facts. Every
// change is appended as immutable movement rows before any aggregate moves.
package ledger

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
	"canteiro/internal/domain/stock"
	"canteiro/pkg/logger"
)

var tracer = otel.Tracer("canteiro/ledger")

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Service records entries, exits and adjustments, and appends movements on
// behalf of the allocation tracker.
type Service struct {
	movements   domain.MovementRepository
	allocations domain.AllocationRepository
	stock       *stock.Projection
	txManager   tx.Manager
	invalidator domain.ReportInvalidator
	recorder    domain.Recorder
	now         func() time.Time
}

// NewService creates the ledger. invalidator and recorder may be nil.
func NewService(
	movements domain.MovementRepository,
	allocations domain.AllocationRepository,
	projection *stock.Projection,
	txManager tx.Manager,
	invalidator domain.ReportInvalidator,
	recorder domain.Recorder,
) *Service {
	if invalidator == nil {
		invalidator = domain.NopInvalidator{}
	}
	if recorder == nil {
		recorder = domain.NopRecorder{}
	}
	return &Service{
		movements:   movements,
		allocations: allocations,
		stock:       projection,
		txManager:   txManager,
		invalidator: invalidator,
		recorder:    recorder,
		now:         time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Now returns the ledger's current time.
func (s *Service) Now() time.Time { return s.now().UTC() }

// Lock takes the material's row lock in the caller's transaction and returns
// the time to stamp movements with. Movements of one material are stamped
// only while its lock is held, so occurred_at follows acceptance order.
func (s *Service) Lock(ctx context.Context, materialID id.ID) (*entity.Material, time.Time, error) {
	m, err := s.stock.Lock(ctx, materialID)
	if err != nil {
		return nil, time.Time{}, err
	}
	return m, s.Now(), nil
}

// Append validates m, inserts it and applies its stock effect. It joins the
// caller's transaction; callers that need more writes in the same unit must
// run it inside RunInTransaction and stamp m after Lock. Returns on-hand
// stock after the movement.
func (s *Service) Append(ctx context.Context, m *entity.Movement) (types.Quantity, error) {
	if err := m.Validate(ctx); err != nil {
		return 0, err
	}

	var after types.Quantity
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.stock.Lock(ctx, m.MaterialID); err != nil {
			return err
		}
		if err := s.movements.Insert(ctx, m); err != nil {
			return fmt.Errorf("insert %s movement: %w", m.Type, err)
		}
		var err error
		after, err = s.stock.Apply(ctx, m.MaterialID, m.StockEffect())
		return err
	})
	if err != nil {
		return 0, err
	}
	return after, nil
}

// RecordEntry writes an entry movement and increments stock.
func (s *Service) RecordEntry(ctx context.Context, cmd EntryCommand) (*StockResult, error) {
	ctx, span := s.startSpan(ctx, "ledger.RecordEntry", cmd.MaterialID)
	defer span.End()

	if err := domain.Validate(cmd); err != nil {
		return nil, err
	}

	var res StockResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		_, now, err := s.Lock(ctx, cmd.MaterialID)
		if err != nil {
			return err
		}
		m := entity.NewMovement(entity.MovementEntry, cmd.MaterialID, cmd.Quantity, cmd.Responsible, now)
		m.DocumentRef = cmd.DocumentRef
		m.UnitCost = cmd.UnitCost
		m.Notes = cmd.Notes

		after, err := s.Append(ctx, m)
		if err != nil {
			return err
		}
		res = StockResult{Movement: m, Stock: after}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, res.Movement)
	return &res, nil
}

// RecordExit sends stock to a project. It fails with INSUFFICIENT_STOCK when
// quantity exceeds current stock, and then writes nothing.
func (s *Service) RecordExit(ctx context.Context, cmd ExitCommand) (*ExitResult, error) {
	ctx, span := s.startSpan(ctx, "ledger.RecordExit", cmd.MaterialID)
	defer span.End()

	if err := domain.Validate(cmd); err != nil {
		return nil, err
	}

	var res ExitResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		material, now, err := s.Lock(ctx, cmd.MaterialID)
		if err != nil {
			return err
		}
		if cmd.Quantity > material.StockQuantity {
			return apperror.NewInsufficientStock(cmd.MaterialID.String(), cmd.Quantity, material.StockQuantity)
		}

		m := entity.NewMovement(entity.MovementExit, cmd.MaterialID, cmd.Quantity, cmd.Responsible, now)
		m.ProjectID = &cmd.ProjectID
		m.StageID = cmd.StageID
		m.Notes = cmd.Notes

		alloc := entity.NewAllocation(cmd.MaterialID, cmd.ProjectID, cmd.StageID, cmd.Quantity, m.ID, now)
		m.AllocationID = &alloc.ID

		after, err := s.Append(ctx, m)
		if err != nil {
			return err
		}
		if err := s.allocations.Create(ctx, alloc); err != nil {
			return fmt.Errorf("create allocation: %w", err)
		}
		res = ExitResult{Movement: m, Allocation: alloc, Stock: after}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, res.Movement, cmd.ProjectID)
	return &res, nil
}

// RecordAdjustment writes a positive or negative correction. A negative one
// that would take stock below zero fails with INSUFFICIENT_STOCK.
func (s *Service) RecordAdjustment(ctx context.Context, cmd AdjustmentCommand) (*StockResult, error) {
	ctx, span := s.startSpan(ctx, "ledger.RecordAdjustment", cmd.MaterialID)
	defer span.End()

	if err := domain.Validate(cmd); err != nil {
		return nil, err
	}

	var res StockResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		material, now, err := s.Lock(ctx, cmd.MaterialID)
		if err != nil {
			return err
		}
		if cmd.Direction == DirectionNegative && cmd.Quantity > material.StockQuantity {
			return apperror.NewInsufficientStock(cmd.MaterialID.String(), cmd.Quantity, material.StockQuantity)
		}

		m := entity.NewMovement(cmd.Direction.movementType(), cmd.MaterialID, cmd.Quantity, cmd.Responsible, now)
		m.Reason = cmd.Reason
		m.Notes = cmd.Notes

		after, err := s.Append(ctx, m)
		if err != nil {
			return err
		}
		res = StockResult{Movement: m, Stock: after}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, res.Movement)
	return &res, nil
}

// Get returns one movement.
func (s *Service) Get(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	return s.movements.Get(ctx, movementID)
}

// List returns movements in ledger order.
func (s *Service) List(ctx context.Context, filter domain.MovementFilter) ([]entity.Movement, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, apperror.NewValidation("from must be before to").
			WithDetail("from", filter.From).
			WithDetail("to", filter.To)
	}
	for _, t := range filter.Types {
		if !t.Valid() {
			return nil, apperror.NewValidation("unknown movement type").WithDetail("type", string(t))
		}
	}

	items, err := s.movements.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return items, nil
}

// Committed runs the post-commit hooks for movements written by another
// service in its own transaction.
func (s *Service) Committed(ctx context.Context, movements []*entity.Movement, projectIDs ...id.ID) {
	for _, m := range movements {
		s.committed(ctx, m, projectIDs...)
	}
}

func (s *Service) committed(ctx context.Context, m *entity.Movement, projectIDs ...id.ID) {
	s.recorder.MovementRecorded(m.Type, m.Quantity)

	if err := s.invalidator.Invalidate(ctx, m.MaterialID, projectIDs...); err != nil {
		logger.Warn(ctx, "report cache invalidation failed",
			"material_id", m.MaterialID,
			"movement_id", m.ID,
			"error", err,
		)
	}

	logger.Info(ctx, "movement recorded",
		"movement_id", m.ID,
		"type", m.Type,
		"material_id", m.MaterialID,
		"quantity", m.Quantity,
		"responsible", m.Responsible,
	)
}

func (s *Service) startSpan(ctx context.Context, name string, materialID id.ID) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("material.id", materialID.String()),
	))
}
