// Package entity provides the ledger's core entities: materials, movements and allocations.
package entity

import (
	"context"
	"strings"
	"time"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
)

// Material is a catalog entry whose on-hand quantity is tracked by the ledger.
type Material struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
	Unit string `db:"unit" json:"unit"`

	// StockQuantity is denormalized from the ledger. Only the stock
	// projection writes it.
	StockQuantity types.Quantity `db:"stock_qty" json:"stockQuantity"`

	// MinThreshold is the low-water mark; zero means "use the default".
	MinThreshold types.Quantity `db:"min_threshold" json:"minThreshold"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewMaterial creates a material with zero stock.
func NewMaterial(code, name, unit string, minThreshold types.Quantity) *Material {
	now := time.Now().UTC()
	return &Material{
		ID:           id.New(),
		Code:         strings.TrimSpace(code),
		Name:         strings.TrimSpace(name),
		Unit:         strings.TrimSpace(unit),
		MinThreshold: minThreshold,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks catalog fields.
func (m *Material) Validate(_ context.Context) error {
	switch {
	case m.Code == "":
		return apperror.NewValidation("code is required").WithDetail("field", "code")
	case m.Name == "":
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	case m.Unit == "":
		return apperror.NewValidation("unit is required").WithDetail("field", "unit")
	case m.MinThreshold.IsNegative():
		return apperror.NewValidation("minThreshold cannot be negative").
			WithDetail("field", "minThreshold").
			WithDetail("value", m.MinThreshold.String())
	}
	return nil
}

// Threshold returns the material's own threshold, or fallback when unset.
func (m *Material) Threshold(fallback types.Quantity) types.Quantity {
	if m.MinThreshold.IsPositive() {
		return m.MinThreshold
	}
	return fallback
}
