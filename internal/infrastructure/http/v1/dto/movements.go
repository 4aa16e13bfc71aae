package dto

import (
	"strings"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/domain"
)

// MovementListQuery filters GET /movements. type may repeat.
type MovementListQuery struct {
	MaterialID   string   `form:"materialId"`
	ProjectID    string   `form:"projectId"`
	AllocationID string   `form:"allocationId"`
	Types        []string `form:"type"`
	From         string   `form:"from"`
	To           string   `form:"to"`
	PageQuery
}

// ToFilter validates the query and converts it to a ledger filter.
func (q MovementListQuery) ToFilter() (domain.MovementFilter, error) {
	var (
		f   domain.MovementFilter
		err error
	)
	if f.MaterialID, err = parseRef("materialId", q.MaterialID); err != nil {
		return f, err
	}
	if f.ProjectID, err = parseRef("projectId", q.ProjectID); err != nil {
		return f, err
	}
	if f.AllocationID, err = parseRef("allocationId", q.AllocationID); err != nil {
		return f, err
	}
	if f.From, err = parseTime("from", q.From); err != nil {
		return f, err
	}
	if f.To, err = parseTime("to", q.To); err != nil {
		return f, err
	}
	for _, raw := range q.Types {
		for _, s := range strings.Split(raw, ",") {
			t := entity.MovementType(strings.TrimSpace(s))
			if t == "" {
				continue
			}
			if !t.Valid() {
				return f, apperror.NewValidation("unknown movement type").WithDetail("type", string(t))
			}
			f.Types = append(f.Types, t)
		}
	}
	f.Limit, f.Offset = q.Limit, q.Offset
	return f, nil
}
