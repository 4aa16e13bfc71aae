package entity

import (
	"fmt"
	"time"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
)

// AllocationStatus is the closed set of allocation states.
type AllocationStatus string

const (
	StatusAllocated         AllocationStatus = "allocated"
	StatusPartiallyConsumed AllocationStatus = "partially_consumed"
	StatusConsumed          AllocationStatus = "consumed"
	StatusReturned          AllocationStatus = "returned"
)

// Valid reports whether s is a known status.
func (s AllocationStatus) Valid() bool {
	switch s {
	case StatusAllocated, StatusPartiallyConsumed, StatusConsumed, StatusReturned:
		return true
	}
	return false
}

// IsTerminal reports whether nothing is pending in this state.
func (s AllocationStatus) IsTerminal() bool {
	return s == StatusConsumed || s == StatusReturned
}

// DeriveStatus is the only place allocation status is computed.
//
// When pending reaches zero, the movement that closed the allocation decides
// the terminal state: a consumption closes as consumed, a return or transfer
// as returned. Without a closing movement, any returned quantity means
// returned.
func DeriveStatus(allocated, consumed, returned types.Quantity, closing MovementType) AllocationStatus {
	pending := allocated - consumed - returned
	switch {
	case pending == 0 && (consumed > 0 || returned > 0):
		switch closing {
		case MovementConsumption:
			return StatusConsumed
		case MovementReturn, MovementTransfer:
			return StatusReturned
		}
		if returned > 0 {
			return StatusReturned
		}
		return StatusConsumed
	case pending > 0 && pending < allocated:
		return StatusPartiallyConsumed
	default:
		return StatusAllocated
	}
}

var transitions = map[AllocationStatus][]AllocationStatus{
	StatusAllocated:         {StatusPartiallyConsumed, StatusConsumed, StatusReturned},
	StatusPartiallyConsumed: {StatusPartiallyConsumed, StatusConsumed, StatusReturned},
}

// CanTransition reports whether a consume or return may move an allocation
// from one status to another. Terminal states have no way out.
func CanTransition(from, to AllocationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Allocation is the part of a material's stock assigned to a project by one exit
// (or transfer) movement.
type Allocation struct {
	ID         id.ID  `db:"id" json:"id"`
	MaterialID id.ID  `db:"material_id" json:"materialId"`
	ProjectID  id.ID  `db:"project_id" json:"projectId"`
	StageID    *id.ID `db:"stage_id" json:"stageId,omitempty"`

	QuantityAllocated types.Quantity `db:"quantity_allocated" json:"quantityAllocated"`
	QuantityConsumed  types.Quantity `db:"quantity_consumed" json:"quantityConsumed"`
	QuantityReturned  types.Quantity `db:"quantity_returned" json:"quantityReturned"`

	Status AllocationStatus `db:"status" json:"status"`

	// SourceMovementID is the exit (or transfer) that created the allocation.
	SourceMovementID id.ID `db:"source_movement_id" json:"sourceMovementId"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewAllocation creates an open allocation for q units.
func NewAllocation(materialID, projectID id.ID, stageID *id.ID, q types.Quantity, source id.ID, at time.Time) *Allocation {
	return &Allocation{
		ID:                id.New(),
		MaterialID:        materialID,
		ProjectID:         projectID,
		StageID:           stageID,
		QuantityAllocated: q,
		Status:            StatusAllocated,
		SourceMovementID:  source,
		CreatedAt:         at.UTC(),
		UpdatedAt:         at.UTC(),
	}
}

// Pending is allocated − consumed − returned.
func (a *Allocation) Pending() types.Quantity {
	return a.QuantityAllocated - a.QuantityConsumed - a.QuantityReturned
}

// CheckInvariant verifies 0 ≤ consumed + returned ≤ allocated.
func (a *Allocation) CheckInvariant() error {
	if a.QuantityConsumed.IsNegative() || a.QuantityReturned.IsNegative() {
		return fmt.Errorf("allocation %s: negative counters (consumed %s, returned %s)",
			a.ID, a.QuantityConsumed, a.QuantityReturned)
	}
	if used := a.QuantityConsumed + a.QuantityReturned; used > a.QuantityAllocated {
		return fmt.Errorf("allocation %s: consumed+returned %s exceeds allocated %s",
			a.ID, used, a.QuantityAllocated)
	}
	return nil
}

// Consume returns the state after consuming q, or a typed error. a is not modified.
func (a Allocation) Consume(q types.Quantity, at time.Time) (Allocation, error) {
	if err := a.admit(q); err != nil {
		return a, err
	}
	a.QuantityConsumed += q
	return a.settle(MovementConsumption, at)
}

// Return returns the state after returning q, or a typed error. a is not modified.
func (a Allocation) Return(q types.Quantity, at time.Time) (Allocation, error) {
	if err := a.admit(q); err != nil {
		return a, err
	}
	a.QuantityReturned += q
	return a.settle(MovementReturn, at)
}

// TransferOut moves q pending units away to another allocation. They count as
// returned here.
func (a Allocation) TransferOut(q types.Quantity, at time.Time) (Allocation, error) {
	if err := a.admit(q); err != nil {
		return a, err
	}
	a.QuantityReturned += q
	return a.settle(MovementTransfer, at)
}

func (a *Allocation) admit(q types.Quantity) error {
	if !q.IsPositive() {
		return apperror.NewNonPositiveQuantity("quantity", q)
	}
	pending := a.Pending()
	if pending <= 0 {
		return apperror.NewAllocationClosed(a.ID.String(), string(a.Status), q)
	}
	if q > pending {
		return apperror.NewExceedsPending(a.ID.String(), q, pending)
	}
	return nil
}

func (a Allocation) settle(closing MovementType, at time.Time) (Allocation, error) {
	next := DeriveStatus(a.QuantityAllocated, a.QuantityConsumed, a.QuantityReturned, closing)
	if !CanTransition(a.Status, next) {
		return a, fmt.Errorf("allocation %s: illegal transition %s -> %s", a.ID, a.Status, next)
	}
	if err := a.CheckInvariant(); err != nil {
		return a, err
	}
	a.Status = next
	a.UpdatedAt = at.UTC()
	return a, nil
}
