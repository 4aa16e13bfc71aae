// Package domain holds the storage contracts shared by the ledger, the allocation
// tracker, the stock projection and reports.
package domain

import (
	"context"
	"time"

	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
)

// MaterialRepository persists the material catalog.
type MaterialRepository interface {
	Create(ctx context.Context, m *entity.Material) error
	Get(ctx context.Context, materialID id.ID) (*entity.Material, error)
	GetByCode(ctx context.Context, code string) (*entity.Material, error)

	// GetForUpdate reads the material and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, materialID id.ID) (*entity.Material, error)

	List(ctx context.Context, filter MaterialFilter) ([]entity.Material, error)
	ListIDs(ctx context.Context) ([]id.ID, error)

	// SetStock overwrites the denormalized stock. Only the stock projection calls it.
	SetStock(ctx context.Context, materialID id.ID, stock types.Quantity, at time.Time) error
}

// MovementRepository appends to and reads the ledger. There is no update or delete.
type MovementRepository interface {
	// Insert appends the movement and assigns Seq.
	Insert(ctx context.Context, m *entity.Movement) error
	Get(ctx context.Context, movementID id.ID) (*entity.Movement, error)

	// List returns movements in ledger order (occurred_at, seq).
	List(ctx context.Context, filter MovementFilter) ([]entity.Movement, error)

	// SumStockEffect replays the ledger for one material.
	SumStockEffect(ctx context.Context, materialID id.ID) (types.Quantity, error)
}

// AllocationRepository persists allocations.
type AllocationRepository interface {
	Create(ctx context.Context, a *entity.Allocation) error
	Get(ctx context.Context, allocationID id.ID) (*entity.Allocation, error)
	// GetForUpdate reads the allocation and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, allocationID id.ID) (*entity.Allocation, error)
	List(ctx context.Context, filter AllocationFilter) ([]entity.Allocation, error)
	ListIDs(ctx context.Context) ([]id.ID, error)

	// UpdateCounters writes next's counters and status only if the stored
	// (consumed, returned) pair still equals the expected one. Otherwise it
	// returns a CONCURRENT_MODIFICATION error.
	UpdateCounters(ctx context.Context, next *entity.Allocation, expectConsumed, expectReturned types.Quantity) error
}

// MaterialFilter narrows material listings.
type MaterialFilter struct {
	Search string
	Limit  int
	Offset int
}

// Cursor is a keyset position in ledger order.
type Cursor struct {
	OccurredAt time.Time
	Seq        int64
}

// MovementFilter narrows ledger reads.
type MovementFilter struct {
	MaterialID   *id.ID
	AllocationID *id.ID

	// ProjectID matches movements recorded against the project.
	ProjectID *id.ID

	// ProjectScope matches movements recorded against the project plus
	// transfers out of the project's allocations.
	ProjectScope *id.ID

	Types []entity.MovementType
	From  *time.Time
	To    *time.Time

	// After resumes listing strictly after the cursor.
	After *Cursor

	Limit  int
	Offset int
}

// AllocationFilter narrows allocation listings.
type AllocationFilter struct {
	ProjectID   *id.ID
	MaterialID  *id.ID
	Status      *entity.AllocationStatus
	OnlyPending bool
	Limit       int
	Offset      int
}
