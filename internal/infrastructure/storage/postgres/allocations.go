package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
)

const allocationsTable = "allocations"

var _ domain.AllocationRepository = (*AllocationRepo)(nil)

// AllocationRepo implements domain.AllocationRepository.
type AllocationRepo struct {
	txm  *TxManager
	cols []string
}

// NewAllocationRepo creates an allocation repository.
func NewAllocationRepo(txm *TxManager) *AllocationRepo {
	return &AllocationRepo{txm: txm, cols: dbColumns[entity.Allocation]()}
}

func (r *AllocationRepo) Create(ctx context.Context, a *entity.Allocation) error {
	if err := a.CheckInvariant(); err != nil {
		return err
	}
	sql, args, err := builder().
		Insert(allocationsTable).
		Columns(
			"id", "material_id", "project_id", "stage_id",
			"quantity_allocated", "quantity_consumed", "quantity_returned",
			"status", "source_movement_id", "created_at", "updated_at",
		).
		Values(
			a.ID, a.MaterialID, a.ProjectID, a.StageID,
			int64(a.QuantityAllocated), int64(a.QuantityConsumed), int64(a.QuantityReturned),
			string(a.Status), a.SourceMovementID, a.CreatedAt, a.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

func (r *AllocationRepo) Get(ctx context.Context, allocationID id.ID) (*entity.Allocation, error) {
	return r.getOne(ctx, builder().Select(r.cols...).From(allocationsTable).Where(squirrel.Eq{"id": allocationID}), allocationID)
}

func (r *AllocationRepo) GetForUpdate(ctx context.Context, allocationID id.ID) (*entity.Allocation, error) {
	q := builder().Select(r.cols...).From(allocationsTable).Where(squirrel.Eq{"id": allocationID}).Suffix("FOR UPDATE")
	return r.getOne(ctx, q, allocationID)
}

func (r *AllocationRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, allocationID id.ID) (*entity.Allocation, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var a entity.Allocation
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &a, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("allocation", allocationID)
		}
		return nil, fmt.Errorf("get allocation: %w", err)
	}
	return &a, nil
}

func (r *AllocationRepo) List(ctx context.Context, filter domain.AllocationFilter) ([]entity.Allocation, error) {
	q := builder().Select(r.cols...).From(allocationsTable).OrderBy("created_at", "id")
	if filter.ProjectID != nil {
		q = q.Where(squirrel.Eq{"project_id": *filter.ProjectID})
	}
	if filter.MaterialID != nil {
		q = q.Where(squirrel.Eq{"material_id": *filter.MaterialID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	if filter.OnlyPending {
		q = q.Where("quantity_allocated - quantity_consumed - quantity_returned > 0")
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []entity.Allocation
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return out, nil
}

func (r *AllocationRepo) ListIDs(ctx context.Context) ([]id.ID, error) {
	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, "SELECT id FROM allocations ORDER BY created_at, id"); err != nil {
		return nil, fmt.Errorf("list allocation ids: %w", err)
	}
	return ids, nil
}

// UpdateCounters is a compare-and-set on (quantity_consumed, quantity_returned).
func (r *AllocationRepo) UpdateCounters(ctx context.Context, next *entity.Allocation, expectConsumed, expectReturned types.Quantity) error {
	if err := next.CheckInvariant(); err != nil {
		return err
	}
	sql, args, err := builder().
		Update(allocationsTable).
		Set("quantity_consumed", int64(next.QuantityConsumed)).
		Set("quantity_returned", int64(next.QuantityReturned)).
		Set("status", string(next.Status)).
		Set("updated_at", next.UpdatedAt).
		Where(squirrel.Eq{
			"id":                next.ID,
			"quantity_consumed": int64(expectConsumed),
			"quantity_returned": int64(expectReturned),
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update allocation counters: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := querier.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM allocations WHERE id = $1)", next.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check allocation: %w", err)
	}
	if !exists {
		return apperror.NewNotFound("allocation", next.ID)
	}
	return apperror.NewConcurrentModification("allocation", next.ID)
}
