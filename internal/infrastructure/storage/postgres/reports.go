package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain/reports"
)

var _ reports.Repository = (*ReportRepo)(nil)

// ReportRepo aggregates the ledger for period summaries and guides.
type ReportRepo struct {
	txm *TxManager
}

// NewReportRepo creates a report repository.
func NewReportRepo(txm *TxManager) *ReportRepo {
	return &ReportRepo{txm: txm}
}

type typeTotalRow struct {
	MaterialID *id.ID     `db:"material_id"`
	Bucket     *time.Time `db:"bucket"`
	Type       string     `db:"type"`
	Quantity   int64      `db:"quantity"`
}

func (r *ReportRepo) TypeTotals(ctx context.Context, filter reports.SummaryFilter) ([]reports.TypeTotal, error) {
	var group string
	q := builder().Select()
	if filter.GroupBy.IsTimeBucket() {
		// date_trunc('week') starts weeks on Monday.
		group = fmt.Sprintf("date_trunc('%s', occurred_at, 'UTC')", filter.GroupBy)
		q = q.Columns("NULL::uuid AS material_id", group+" AS bucket")
	} else {
		group = "material_id"
		q = q.Columns("material_id", "NULL::timestamptz AS bucket")
	}
	q = q.Columns("type", "SUM(quantity)::bigint AS quantity").
		From(movementsTable).
		Where(squirrel.GtOrEq{"occurred_at": filter.From}).
		Where(squirrel.Lt{"occurred_at": filter.To}).
		GroupBy(group, "type").
		OrderBy(group, "type")
	if len(filter.MaterialIDs) > 0 {
		q = q.Where(squirrel.Eq{"material_id": filter.MaterialIDs})
	}
	if filter.ProjectID != nil {
		q = q.Where(squirrel.Eq{"project_id": *filter.ProjectID})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []typeTotalRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("aggregate movements: %w", err)
	}

	out := make([]reports.TypeTotal, len(rows))
	for i, row := range rows {
		t := reports.TypeTotal{Type: entity.MovementType(row.Type), Quantity: types.Quantity(row.Quantity)}
		if row.MaterialID != nil {
			t.MaterialID = *row.MaterialID
		}
		if row.Bucket != nil {
			t.Bucket = row.Bucket.UTC()
		}
		out[i] = t
	}
	return out, nil
}

func (r *ReportRepo) FirstEntries(ctx context.Context, materialIDs []id.ID) (map[id.ID]time.Time, error) {
	out := make(map[id.ID]time.Time, len(materialIDs))
	if len(materialIDs) == 0 {
		return out, nil
	}
	sql, args, err := builder().
		Select("material_id", "MIN(occurred_at) AS first_at").
		From(movementsTable).
		Where(squirrel.Eq{"type": string(entity.MovementEntry), "material_id": materialIDs}).
		GroupBy("material_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []struct {
		MaterialID id.ID     `db:"material_id"`
		FirstAt    time.Time `db:"first_at"`
	}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("first entries: %w", err)
	}
	for _, row := range rows {
		out[row.MaterialID] = row.FirstAt.UTC()
	}
	return out, nil
}
