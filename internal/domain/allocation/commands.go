package allocation

import (
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
)

// ConsumeCommand records material used on site against an allocation.
type ConsumeCommand struct {
	AllocationID id.ID          `json:"allocationId" validate:"required"`
	Quantity     types.Quantity `json:"quantity" validate:"gt=0"`
	Responsible  string         `json:"responsible" validate:"required,max=120"`
	GuideRef     string         `json:"guideRef" validate:"max=120"`
	Notes        string         `json:"notes" validate:"max=2000"`
}

// ReturnCommand records unused material coming back from a project.
type ReturnCommand struct {
	AllocationID      id.ID                    `json:"allocationId" validate:"required"`
	Quantity          types.Quantity           `json:"quantity" validate:"gt=0"`
	Responsible       string                   `json:"responsible" validate:"required,max=120"`
	Reason            string                   `json:"reason" validate:"max=500"`
	MaterialCondition entity.MaterialCondition `json:"materialCondition" validate:"omitempty,oneof=good damaged scrap"`
	Notes             string                   `json:"notes" validate:"max=2000"`
}

// TransferCommand moves pending material from one allocation to another project.
type TransferCommand struct {
	AllocationID id.ID          `json:"allocationId" validate:"required"`
	ToProjectID  id.ID          `json:"toProjectId" validate:"required"`
	ToStageID    *id.ID         `json:"toStageId"`
	Quantity     types.Quantity `json:"quantity" validate:"gt=0"`
	Responsible  string         `json:"responsible" validate:"required,max=120"`
	Notes        string         `json:"notes" validate:"max=2000"`
}

// Result is the outcome of a consume or return.
type Result struct {
	Movement   *entity.Movement   `json:"movement"`
	Allocation *entity.Allocation `json:"allocation"`
	// Restock is the entry written when the return policy put material back on stock.
	Restock *entity.Movement `json:"restock,omitempty"`
}

// TransferResult is the outcome of a transfer.
type TransferResult struct {
	Movement    *entity.Movement   `json:"movement"`
	Source      *entity.Allocation `json:"source"`
	Destination *entity.Allocation `json:"destination"`
}
