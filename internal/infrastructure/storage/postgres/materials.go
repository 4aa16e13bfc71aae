package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
)

const materialsTable = "materials"

var _ domain.MaterialRepository = (*MaterialRepo)(nil)

// MaterialRepo implements domain.MaterialRepository.
type MaterialRepo struct {
	txm  *TxManager
	cols []string
}

// NewMaterialRepo creates a material repository.
func NewMaterialRepo(txm *TxManager) *MaterialRepo {
	return &MaterialRepo{txm: txm, cols: dbColumns[entity.Material]()}
}

func (r *MaterialRepo) Create(ctx context.Context, m *entity.Material) error {
	sql, args, err := builder().
		Insert(materialsTable).
		Columns("id", "code", "name", "unit", "stock_qty", "min_threshold", "created_at", "updated_at").
		Values(m.ID, m.Code, m.Name, m.Unit, int64(m.StockQuantity), int64(m.MinThreshold), m.CreatedAt, m.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if code, _ := pgErrorCode(err); code == uniqueViolation {
			return apperror.NewDuplicate("material", "code", m.Code)
		}
		return fmt.Errorf("insert material: %w", err)
	}
	return nil
}

func (r *MaterialRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key any) (*entity.Material, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var m entity.Material
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("material", key)
		}
		return nil, fmt.Errorf("get material: %w", err)
	}
	return &m, nil
}

func (r *MaterialRepo) Get(ctx context.Context, materialID id.ID) (*entity.Material, error) {
	q := builder().Select(r.cols...).From(materialsTable).Where(squirrel.Eq{"id": materialID})
	return r.getOne(ctx, q, materialID)
}

func (r *MaterialRepo) GetForUpdate(ctx context.Context, materialID id.ID) (*entity.Material, error) {
	q := builder().Select(r.cols...).From(materialsTable).Where(squirrel.Eq{"id": materialID}).Suffix("FOR UPDATE")
	return r.getOne(ctx, q, materialID)
}

func (r *MaterialRepo) GetByCode(ctx context.Context, code string) (*entity.Material, error) {
	q := builder().Select(r.cols...).From(materialsTable).Where(squirrel.Eq{"code": code})
	return r.getOne(ctx, q, code)
}

func (r *MaterialRepo) List(ctx context.Context, filter domain.MaterialFilter) ([]entity.Material, error) {
	q := builder().Select(r.cols...).From(materialsTable).OrderBy("code")
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"code": pattern},
			squirrel.ILike{"name": pattern},
		})
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
	var out []entity.Material
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return out, nil
}

func (r *MaterialRepo) ListIDs(ctx context.Context) ([]id.ID, error) {
	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, "SELECT id FROM materials ORDER BY code"); err != nil {
		return nil, fmt.Errorf("list material ids: %w", err)
	}
	return ids, nil
}

func (r *MaterialRepo) SetStock(ctx context.Context, materialID id.ID, stock types.Quantity, at time.Time) error {
	sql, args, err := builder().
		Update(materialsTable).
		Set("stock_qty", int64(stock)).
		Set("updated_at", at.UTC()).
		Where(squirrel.Eq{"id": materialID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		if code, _ := pgErrorCode(err); code == checkViolation {
			return apperror.NewInsufficientStock(materialID.String(), stock.Neg(), 0)
		}
		return fmt.Errorf("set stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("material", materialID)
	}
	return nil
}
