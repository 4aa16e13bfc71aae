package entity

import (
	"context"
	"strings"
	"time"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
)

// MovementType is the kind of stock fact a movement records.
type MovementType string

const (
	MovementEntry              MovementType = "entry"
	MovementExit               MovementType = "exit"
	MovementConsumption        MovementType = "consumption"
	MovementReturn             MovementType = "return"
	MovementAdjustmentPositive MovementType = "adjustment_positive"
	MovementAdjustmentNegative MovementType = "adjustment_negative"
	MovementTransfer           MovementType = "transfer"
)

// MovementTypes lists every type in display order.
var MovementTypes = []MovementType{
	MovementEntry,
	MovementExit,
	MovementConsumption,
	MovementReturn,
	MovementAdjustmentPositive,
	MovementAdjustmentNegative,
	MovementTransfer,
}

// Valid reports whether t is a known type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementEntry, MovementExit, MovementConsumption, MovementReturn,
		MovementAdjustmentPositive, MovementAdjustmentNegative, MovementTransfer:
		return true
	}
	return false
}

// StockEffect returns the change to on-hand stock caused by q units of this type.
// Consumption already left the warehouse through its exit. Returns and
// transfers do not touch stock; a restocked return is a separate entry.
func (t MovementType) StockEffect(q types.Quantity) types.Quantity {
	switch t {
	case MovementEntry, MovementAdjustmentPositive:
		return q
	case MovementExit, MovementAdjustmentNegative:
		return q.Neg()
	default:
		return 0
	}
}

// MaterialCondition describes returned material.
type MaterialCondition string

const (
	ConditionGood    MaterialCondition = "good"
	ConditionDamaged MaterialCondition = "damaged"
	ConditionScrap   MaterialCondition = "scrap"
)

// Valid reports whether c is empty or a known condition.
func (c MaterialCondition) Valid() bool {
	switch c {
	case "", ConditionGood, ConditionDamaged, ConditionScrap:
		return true
	}
	return false
}

// Movement is one immutable ledger fact. Quantity is always a positive
// magnitude; the sign follows from Type.
type Movement struct {
	ID  id.ID `db:"id" json:"id"`
	Seq int64 `db:"seq" json:"seq"`

	MaterialID id.ID          `db:"material_id" json:"materialId"`
	Type       MovementType   `db:"type" json:"type"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	OccurredAt time.Time      `db:"occurred_at" json:"occurredAt"`

	Responsible string `db:"responsible" json:"responsible"`

	ProjectID        *id.ID `db:"project_id" json:"projectId,omitempty"`
	StageID          *id.ID `db:"stage_id" json:"stageId,omitempty"`
	AllocationID     *id.ID `db:"allocation_id" json:"allocationId,omitempty"`
	SourceMovementID *id.ID `db:"source_movement_id" json:"sourceMovementId,omitempty"`

	DocumentRef       string            `db:"document_ref" json:"documentRef,omitempty"`
	UnitCost          *types.Money      `db:"unit_cost" json:"unitCost,omitempty"`
	Reason            string            `db:"reason" json:"reason,omitempty"`
	MaterialCondition MaterialCondition `db:"material_condition" json:"materialCondition,omitempty"`
	Notes             string            `db:"notes" json:"notes,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewMovement creates a movement with a fresh id. Seq is assigned by the store.
func NewMovement(t MovementType, materialID id.ID, q types.Quantity, responsible string, at time.Time) *Movement {
	return &Movement{
		ID:          id.New(),
		MaterialID:  materialID,
		Type:        t,
		Quantity:    q,
		OccurredAt:  at.UTC(),
		Responsible: strings.TrimSpace(responsible),
		CreatedAt:   at.UTC(),
	}
}

// StockEffect is the movement's contribution to on-hand stock.
func (m *Movement) StockEffect() types.Quantity {
	return m.Type.StockEffect(m.Quantity)
}

// SignedQuantity is the quantity seen from the material's flow: positive for
// entry, return and positive adjustment, negative for exit, consumption and
// negative adjustment. Transfers carry zero.
func (m *Movement) SignedQuantity() types.Quantity {
	switch m.Type {
	case MovementEntry, MovementReturn, MovementAdjustmentPositive:
		return m.Quantity
	case MovementExit, MovementConsumption, MovementAdjustmentNegative:
		return m.Quantity.Neg()
	default:
		return 0
	}
}

// Validate checks the movement before it is appended.
func (m *Movement) Validate(_ context.Context) error {
	if !m.Type.Valid() {
		return apperror.NewValidation("unknown movement type").WithDetail("type", string(m.Type))
	}
	if id.IsNil(m.MaterialID) {
		return apperror.NewValidation("materialId is required").WithDetail("field", "materialId")
	}
	if !m.Quantity.IsPositive() {
		return apperror.NewNonPositiveQuantity("quantity", m.Quantity)
	}
	if m.Responsible == "" {
		return apperror.NewValidation("responsible is required").WithDetail("field", "responsible")
	}
	if !m.MaterialCondition.Valid() {
		return apperror.NewValidation("unknown material condition").
			WithDetail("materialCondition", string(m.MaterialCondition))
	}

	switch m.Type {
	case MovementExit:
		if m.ProjectID == nil {
			return apperror.NewValidation("projectId is required for exit").WithDetail("field", "projectId")
		}
	case MovementConsumption, MovementReturn:
		if m.AllocationID == nil || m.SourceMovementID == nil {
			return apperror.NewValidation("allocation reference is required").
				WithDetail("type", string(m.Type))
		}
	case MovementTransfer:
		if m.AllocationID == nil || m.ProjectID == nil {
			return apperror.NewValidation("transfer needs source allocation and destination project").
				WithDetail("type", string(m.Type))
		}
	}
	if m.UnitCost != nil && m.Type != MovementEntry {
		return apperror.NewValidation("unitCost is only allowed on entries").WithDetail("field", "unitCost")
	}
	if m.UnitCost != nil && m.UnitCost.IsNegative() {
		return apperror.NewValidation("unitCost cannot be negative").WithDetail("field", "unitCost")
	}
	return nil
}
