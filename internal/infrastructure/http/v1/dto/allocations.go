package dto

import (
	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
)

// AllocationListQuery filters GET /allocations.
type AllocationListQuery struct {
	ProjectID   string `form:"projectId"`
	MaterialID  string `form:"materialId"`
	Status      string `form:"status"`
	OnlyPending bool   `form:"onlyPending"`
	PageQuery
}

// ToFilter validates the query and converts it to a repository filter.
func (q AllocationListQuery) ToFilter() (domain.AllocationFilter, error) {
	var (
		f   domain.AllocationFilter
		err error
	)
	if f.ProjectID, err = parseRef("projectId", q.ProjectID); err != nil {
		return f, err
	}
	if f.MaterialID, err = parseRef("materialId", q.MaterialID); err != nil {
		return f, err
	}
	if q.Status != "" {
		s := entity.AllocationStatus(q.Status)
		if !s.Valid() {
			return f, apperror.NewValidation("unknown allocation status").WithDetail("status", q.Status)
		}
		f.Status = &s
	}
	f.OnlyPending = q.OnlyPending
	f.Limit, f.Offset = q.Limit, q.Offset
	return f, nil
}

// AllocationResponse adds the derived pending quantity.
type AllocationResponse struct {
	entity.Allocation
	Pending types.Quantity `json:"pending"`
}

// FromAllocation builds an AllocationResponse.
func FromAllocation(a entity.Allocation) AllocationResponse {
	return AllocationResponse{Allocation: a, Pending: a.Pending()}
}

// FromAllocations converts a list.
func FromAllocations(list []entity.Allocation) []AllocationResponse {
	out := make([]AllocationResponse, len(list))
	for i, a := range list {
		out[i] = FromAllocation(a)
	}
	return out
}
