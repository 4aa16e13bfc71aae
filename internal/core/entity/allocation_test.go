package entity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
)

func q(n int64) types.Quantity { return types.NewQuantity(n) }

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name                          string
		allocated, consumed, returned types.Quantity
		closing                       MovementType
		want                          AllocationStatus
	}{
		{"untouched", q(30), 0, 0, "", StatusAllocated},
		{"partly consumed", q(30), q(10), 0, MovementConsumption, StatusPartiallyConsumed},
		{"partly returned", q(30), 0, q(5), MovementReturn, StatusPartiallyConsumed},
		{"fully consumed", q(30), q(30), 0, MovementConsumption, StatusConsumed},
		{"closed by return after consumption", q(30), q(10), q(20), MovementReturn, StatusReturned},
		{"closed by consumption after return", q(30), q(20), q(10), MovementConsumption, StatusConsumed},
		{"closed by transfer", q(30), 0, q(30), MovementTransfer, StatusReturned},
		{"fully returned", q(30), 0, q(30), MovementReturn, StatusReturned},
		{"no closing event, consumed only", q(30), q(30), 0, "", StatusConsumed},
		{"no closing event, mixed", q(30), q(10), q(20), "", StatusReturned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.allocated, tt.consumed, tt.returned, tt.closing))
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusAllocated, StatusPartiallyConsumed))
	assert.True(t, CanTransition(StatusAllocated, StatusConsumed))
	assert.True(t, CanTransition(StatusAllocated, StatusReturned))
	assert.True(t, CanTransition(StatusPartiallyConsumed, StatusPartiallyConsumed))
	assert.False(t, CanTransition(StatusAllocated, StatusAllocated))
	assert.False(t, CanTransition(StatusConsumed, StatusPartiallyConsumed))
	assert.False(t, CanTransition(StatusReturned, StatusConsumed))
}

func TestAllocation_ConsumeThenReturn(t *testing.T) {
	now := time.Now()
	a := *NewAllocation(id.New(), id.New(), nil, q(30), id.New(), now)

	a, err := a.Consume(q(10), now)
	require.NoError(t, err)
	assert.Equal(t, q(10), a.QuantityConsumed)
	assert.Equal(t, q(20), a.Pending())
	assert.Equal(t, StatusPartiallyConsumed, a.Status)

	a, err = a.Return(q(20), now)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), a.Pending())
	assert.Equal(t, StatusReturned, a.Status)

	_, err = a.Consume(q(1), now)
	assert.True(t, apperror.IsCode(err, apperror.CodeAllocationClosed))
}

func TestAllocation_ReturnOnlyIsReturned(t *testing.T) {
	now := time.Now()
	a := *NewAllocation(id.New(), id.New(), nil, q(30), id.New(), now)

	a, err := a.Return(q(30), now)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, a.Status)

	_, err = a.Return(q(1), now)
	assert.True(t, apperror.IsCode(err, apperror.CodeAllocationClosed))
}

func TestAllocation_ExceedsPendingLeavesStateUntouched(t *testing.T) {
	now := time.Now()
	a := *NewAllocation(id.New(), id.New(), nil, q(10), id.New(), now)
	a.QuantityConsumed = q(2)
	a.Status = StatusPartiallyConsumed

	next, err := a.Consume(q(12), now)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "exceeds pending: requested 12, available 8", appErr.Message)
	assert.Equal(t, q(2), next.QuantityConsumed)
	assert.Equal(t, q(2), a.QuantityConsumed)
}

func TestAllocation_RejectsNonPositive(t *testing.T) {
	a := *NewAllocation(id.New(), id.New(), nil, q(10), id.New(), time.Now())
	_, err := a.Consume(0, time.Now())
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestAllocation_CheckInvariant(t *testing.T) {
	a := NewAllocation(id.New(), id.New(), nil, q(10), id.New(), time.Now())
	a.QuantityConsumed = q(6)
	a.QuantityReturned = q(5)
	assert.Error(t, a.CheckInvariant())

	a.QuantityReturned = q(4)
	assert.NoError(t, a.CheckInvariant())
}

func TestMovement_StockEffect(t *testing.T) {
	tests := []struct {
		typ    MovementType
		effect types.Quantity
		signed types.Quantity
	}{
		{MovementEntry, q(5), q(5)},
		{MovementExit, q(-5), q(-5)},
		{MovementConsumption, 0, q(-5)},
		{MovementReturn, 0, q(5)},
		{MovementAdjustmentPositive, q(5), q(5)},
		{MovementAdjustmentNegative, q(-5), q(-5)},
		{MovementTransfer, 0, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			m := NewMovement(tt.typ, id.New(), q(5), "ana", time.Now())
			assert.Equal(t, tt.effect, m.StockEffect())
			assert.Equal(t, tt.signed, m.SignedQuantity())
		})
	}
}

func TestMovement_Validate(t *testing.T) {
	ctx := context.Background()
	project := id.New()

	exit := NewMovement(MovementExit, id.New(), q(1), "ana", time.Now())
	assert.Error(t, exit.Validate(ctx))
	exit.ProjectID = &project
	assert.NoError(t, exit.Validate(ctx))

	noOne := NewMovement(MovementEntry, id.New(), q(1), "  ", time.Now())
	assert.True(t, apperror.IsCode(noOne.Validate(ctx), apperror.CodeValidation))

	consumption := NewMovement(MovementConsumption, id.New(), q(1), "ana", time.Now())
	assert.Error(t, consumption.Validate(ctx))

	cost := types.MustMoney("3.5")
	adj := NewMovement(MovementAdjustmentPositive, id.New(), q(1), "ana", time.Now())
	adj.UnitCost = &cost
	assert.Error(t, adj.Validate(ctx))
}
