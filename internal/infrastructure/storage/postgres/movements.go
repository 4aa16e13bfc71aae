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

const movementsTable = "movements"

var _ domain.MovementRepository = (*MovementRepo)(nil)

// MovementRepo implements domain.MovementRepository. The table is append
// only: there is no update or delete statement here.
type MovementRepo struct {
	txm  *TxManager
	cols []string
}

// NewMovementRepo creates a movement repository.
func NewMovementRepo(txm *TxManager) *MovementRepo {
	return &MovementRepo{txm: txm, cols: dbColumns[entity.Movement]()}
}

func (r *MovementRepo) Insert(ctx context.Context, m *entity.Movement) error {
	sql, args, err := builder().
		Insert(movementsTable).
		Columns(
			"id", "material_id", "type", "quantity", "occurred_at", "responsible",
			"project_id", "stage_id", "allocation_id", "source_movement_id",
			"document_ref", "unit_cost", "reason", "material_condition", "notes", "created_at",
		).
		Values(
			m.ID, m.MaterialID, string(m.Type), int64(m.Quantity), m.OccurredAt, m.Responsible,
			m.ProjectID, m.StageID, m.AllocationID, m.SourceMovementID,
			m.DocumentRef, m.UnitCost, m.Reason, string(m.MaterialCondition), m.Notes, m.CreatedAt,
		).
		Suffix("RETURNING seq").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&m.Seq); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func (r *MovementRepo) Get(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	sql, args, err := builder().Select(r.cols...).From(movementsTable).Where(squirrel.Eq{"id": movementID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var m entity.Movement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", movementID)
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &m, nil
}

// applyFilter adds the WHERE clauses shared by List.
func applyFilter(q squirrel.SelectBuilder, f domain.MovementFilter) squirrel.SelectBuilder {
	if f.MaterialID != nil {
		q = q.Where(squirrel.Eq{"material_id": *f.MaterialID})
	}
	if f.AllocationID != nil {
		q = q.Where(squirrel.Eq{"allocation_id": *f.AllocationID})
	}
	if f.ProjectID != nil {
		q = q.Where(squirrel.Eq{"project_id": *f.ProjectID})
	}
	if f.ProjectScope != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"project_id": *f.ProjectScope},
			squirrel.Expr(
				"(type = 'transfer' AND allocation_id IN (SELECT id FROM allocations WHERE project_id = ?))",
				*f.ProjectScope,
			),
		})
	}
	if len(f.Types) > 0 {
		names := make([]string, len(f.Types))
		for i, t := range f.Types {
			names[i] = string(t)
		}
		q = q.Where(squirrel.Eq{"type": names})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"occurred_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.Lt{"occurred_at": *f.To})
	}
	if f.After != nil {
		q = q.Where("(occurred_at, seq) > (?, ?)", f.After.OccurredAt, f.After.Seq)
	}
	return q
}

func (r *MovementRepo) List(ctx context.Context, filter domain.MovementFilter) ([]entity.Movement, error) {
	q := applyFilter(builder().Select(r.cols...).From(movementsTable), filter).OrderBy("occurred_at", "seq")
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
	var out []entity.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return out, nil
}

func (r *MovementRepo) SumStockEffect(ctx context.Context, materialID id.ID) (types.Quantity, error) {
	const sql = `
		SELECT COALESCE(SUM(CASE
			WHEN type IN ('entry', 'adjustment_positive') THEN quantity
			WHEN type IN ('exit', 'adjustment_negative') THEN -quantity
			ELSE 0 END), 0)::bigint
		FROM movements WHERE material_id = $1`
	var sum int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, materialID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum stock effect: %w", err)
	}
	return types.Quantity(sum), nil
}
