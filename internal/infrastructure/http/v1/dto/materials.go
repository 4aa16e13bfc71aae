package dto

import (
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
	"canteiro/internal/domain/stock"
)

// MaterialListQuery filters GET /materials.
type MaterialListQuery struct {
	Search string `form:"search"`
	PageQuery
}

// ToFilter converts the query to the repository filter.
func (q MaterialListQuery) ToFilter() domain.MaterialFilter {
	return domain.MaterialFilter{Search: q.Search, Limit: q.Limit, Offset: q.Offset}
}

// StockResponse is the answer of GET /materials/:id/stock.
type StockResponse struct {
	MaterialID id.ID          `json:"materialId"`
	Code       string         `json:"code"`
	Unit       string         `json:"unit"`
	Stock      types.Quantity `json:"stock"`
	Threshold  types.Quantity `json:"threshold"`
	Critical   bool           `json:"critical"`
}

// FromCriticality builds a StockResponse.
func FromCriticality(c stock.Criticality) StockResponse {
	return StockResponse{
		MaterialID: c.Material.ID,
		Code:       c.Material.Code,
		Unit:       c.Material.Unit,
		Stock:      c.Stock,
		Threshold:  c.Threshold,
		Critical:   c.Critical,
	}
}
