package ledger

import (
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
)

// EntryCommand records stock arriving at the warehouse.
type EntryCommand struct {
	MaterialID  id.ID          `json:"materialId" validate:"required"`
	Quantity    types.Quantity `json:"quantity" validate:"gt=0"`
	Responsible string         `json:"responsible" validate:"required,max=120"`
	DocumentRef string         `json:"documentRef" validate:"max=120"`
	UnitCost    *types.Money   `json:"unitCost"`
	Notes       string         `json:"notes" validate:"max=2000"`
}

// ExitCommand sends stock to a project and opens an allocation.
type ExitCommand struct {
	MaterialID  id.ID          `json:"materialId" validate:"required"`
	ProjectID   id.ID          `json:"projectId" validate:"required"`
	StageID     *id.ID         `json:"stageId"`
	Quantity    types.Quantity `json:"quantity" validate:"gt=0"`
	Responsible string         `json:"responsible" validate:"required,max=120"`
	Notes       string         `json:"notes" validate:"max=2000"`
}

// Direction of a stock adjustment.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
)

func (d Direction) movementType() entity.MovementType {
	if d == DirectionNegative {
		return entity.MovementAdjustmentNegative
	}
	return entity.MovementAdjustmentPositive
}

// AdjustmentCommand corrects stock after a count or loss.
type AdjustmentCommand struct {
	MaterialID  id.ID          `json:"materialId" validate:"required"`
	Quantity    types.Quantity `json:"quantity" validate:"gt=0"`
	Direction   Direction      `json:"direction" validate:"required,oneof=positive negative"`
	Responsible string         `json:"responsible" validate:"required,max=120"`
	Reason      string         `json:"reason" validate:"max=500"`
	Notes       string         `json:"notes" validate:"max=2000"`
}

// StockResult is returned by operations that change on-hand stock.
type StockResult struct {
	Movement *entity.Movement `json:"movement"`
	Stock    types.Quantity   `json:"stock"`
}

// ExitResult carries the exit movement and the allocation it created.
type ExitResult struct {
	Movement   *entity.Movement   `json:"movement"`
	Allocation *entity.Allocation `json:"allocation"`
	Stock      types.Quantity     `json:"stock"`
}
