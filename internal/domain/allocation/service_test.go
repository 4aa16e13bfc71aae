package allocation_test

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
	"canteiro/internal/domain/allocation"
	"canteiro/internal/domain/ledger"
	"canteiro/internal/domain/stock"
	"canteiro/internal/infrastructure/storage/memory"
)

func q(n int64) types.Quantity { return types.NewQuantity(n) }

// flakyAllocations loses the CAS race a fixed number of times and counts
// locked reads.
type flakyAllocations struct {
	domain.AllocationRepository
	failures atomic.Int32
	locked   atomic.Int32
}

func (f *flakyAllocations) GetForUpdate(ctx context.Context, allocationID id.ID) (*entity.Allocation, error) {
	f.locked.Add(1)
	return f.AllocationRepository.GetForUpdate(ctx, allocationID)
}

func (f *flakyAllocations) UpdateCounters(ctx context.Context, next *entity.Allocation, consumed, returned types.Quantity) error {
	if f.failures.Add(-1) >= 0 {
		return apperror.NewConcurrentModification("allocation", next.ID)
	}
	return f.AllocationRepository.UpdateCounters(ctx, next, consumed, returned)
}

type countingRecorder struct {
	domain.NopRecorder
	conflicts atomic.Int32
	drifts    atomic.Int32
}

func (r *countingRecorder) ConflictRetried(string) { r.conflicts.Add(1) }
func (r *countingRecorder) DriftDetected(string)   { r.drifts.Add(1) }

type fixture struct {
	ctx         context.Context
	store       *memory.Store
	stock       *stock.Projection
	ledger      *ledger.Service
	tracker     *allocation.Service
	allocations *flakyAllocations
	recorder    *countingRecorder
	material    *entity.Material
}

func newFixture(t *testing.T, cfg allocation.Config) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	recorder := &countingRecorder{}
	allocations := &flakyAllocations{AllocationRepository: store.Allocations()}

	projection := stock.NewProjection(store.Materials(), store.Movements(), store, recorder, stock.DefaultConfig())
	ledgerSvc := ledger.NewService(store.Movements(), allocations, projection, store, nil, recorder)

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	ledgerSvc.SetClock(func() time.Time { return start.Add(time.Duration(tick.Add(1)) * time.Minute) })

	tracker := allocation.NewService(allocations, store.Movements(), ledgerSvc, store, recorder, cfg)

	m := entity.NewMaterial("ARE-M3", "Sand", "m3", 0)
	require.NoError(t, store.Materials().Create(ctx, m))

	return &fixture{
		ctx: ctx, store: store, stock: projection, ledger: ledgerSvc, tracker: tracker,
		allocations: allocations, recorder: recorder, material: m,
	}
}

// exit stocks n units and sends them to a new project.
func (f *fixture) exit(t *testing.T, n int64) *entity.Allocation {
	t.Helper()
	_, err := f.ledger.RecordEntry(f.ctx, ledger.EntryCommand{MaterialID: f.material.ID, Quantity: q(n), Responsible: "x"})
	require.NoError(t, err)
	res, err := f.ledger.RecordExit(f.ctx, ledger.ExitCommand{
		MaterialID: f.material.ID, ProjectID: id.New(), Quantity: q(n), Responsible: "x",
	})
	require.NoError(t, err)
	return res.Allocation
}

func (f *fixture) consume(allocationID id.ID, n int64) (*allocation.Result, error) {
	return f.tracker.Consume(f.ctx, allocation.ConsumeCommand{AllocationID: allocationID, Quantity: q(n), Responsible: "x"})
}

func (f *fixture) giveBack(allocationID id.ID, n int64, c entity.MaterialCondition) (*allocation.Result, error) {
	return f.tracker.Return(f.ctx, allocation.ReturnCommand{
		AllocationID: allocationID, Quantity: q(n), Responsible: "x", MaterialCondition: c,
	})
}

func (f *fixture) stockOf(t *testing.T) types.Quantity {
	t.Helper()
	s, err := f.stock.CurrentStock(f.ctx, f.material.ID)
	require.NoError(t, err)
	return s
}

func (f *fixture) movementsOf(t *testing.T, allocationID id.ID, mt entity.MovementType) []entity.Movement {
	t.Helper()
	items, err := f.store.Movements().List(f.ctx, domain.MovementFilter{
		AllocationID: &allocationID,
		Types:        []entity.MovementType{mt},
	})
	require.NoError(t, err)
	return items
}

func requireCode(t *testing.T, err error, code string) *apperror.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code)
	return appErr
}

func TestConsumeThenReturnClosesAllocation(t *testing.T) {
	f := newFixture(t, allocation.DefaultConfig())
	a := f.exit(t, 30)

	res, err := f.consume(a.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPartiallyConsumed, res.Allocation.Status)
	assert.Equal(t, q(20), res.Allocation.Pending())
	assert.Equal(t, a.SourceMovementID, *res.Movement.SourceMovementID)
	assert.Equal(t, a.ID, *res.Movement.AllocationID)

	res, err = f.giveBack(a.ID, 20, "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReturned, res.Allocation.Status)
	assert.True(t, res.Allocation.Pending().IsZero())
	assert.Nil(t, res.Restock)

	_, err = f.consume(a.ID, 1)
	appErr := requireCode(t, err, apperror.CodeAllocationClosed)
	assert.Contains(t, appErr.Message, "requested 1, available 0")

	stored, err := f.tracker.Get(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, q(10), stored.QuantityConsumed)
	assert.Equal(t, q(20), stored.QuantityReturned)
	assert.Equal(t, entity.StatusReturned, stored.Status)
}

func TestConsume_ExceedsPending(t *testing.T) {
	f := newFixture(t, allocation.DefaultConfig())
	a := f.exit(t, 10)
	_, err := f.consume(a.ID, 2)
	require.NoError(t, err)

	_, err = f.consume(a.ID, 12)
	appErr := requireCode(t, err, apperror.CodeExceedsPending)
	assert.Equal(t, "exceeds pending: requested 12, available 8", appErr.Message)
	assert.Equal(t, q(8).String(), appErr.Details["available"])

	assert.Len(t, f.movementsOf(t, a.ID, entity.MovementConsumption), 1)
}

func TestConsume_FullyConsumed(t *testing.T) {
	f := newFixture(t, allocation.DefaultConfig())
	a := f.exit(t, 10)

	res, err := f.consume(a.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConsumed, res.Allocation.Status)

	_, err = f.giveBack(a.ID, 1, "")
	requireCode(t, err, apperror.CodeAllocationClosed)
}

func TestConsume_Validation(t *testing.T) {
	f := newFixture(t, allocation.DefaultConfig())
	a := f.exit(t, 10)

	_, err := f.consume(a.ID, 0)
	requireCode(t, err, apperror.CodeValidation)

	_, err = f.consume(id.New(), 1)
	requireCode(t, err, apperror.CodeNotFound)

	_, err = f.tracker.Return(f.ctx, allocation.ReturnCommand{
		AllocationID: a.ID, Quantity: q(1), Responsible: "x", MaterialCondition: "melted",
	})
	requireCode(t, err, apperror.CodeValidation)
}

func TestConsume_RetriesConflicts(t *testing.T) {
	f := newFixture(t, allocation.Config{ConflictRetries: 3})
	a := f.exit(t, 10)
	f.allocations.failures.Store(2)

	res, err := f.consume(a.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, q(6), res.Allocation.Pending())
	assert.Equal(t, int32(2), f.recorder.conflicts.Load())

	// Rolled-back attempts leave no movement behind.
	assert.Len(t, f.movementsOf(t, a.ID, entity.MovementConsumption), 1)
}

func TestConsume_ConflictRetriesExhausted(t *testing.T) {
	f := newFixture(t, allocation.Config{ConflictRetries: 1})
	a := f.exit(t, 10)
	f.allocations.failures.Store(5)

	_, err := f.consume(a.ID, 4)
	requireCode(t, err, apperror.CodeConcurrentModification)
	assert.Empty(t, f.movementsOf(t, a.ID, entity.MovementConsumption))

	stored, err := f.tracker.Get(f.ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.QuantityConsumed.IsZero())
	assert.Equal(t, entity.StatusAllocated, stored.Status)
}

func TestConsume_ConcurrentNoOverconsumption(t *testing.T) {
	f := newFixture(t, allocation.DefaultConfig())
	a := f.exit(t, 10)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.consume(a.ID, 8)
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			requireCode(t, err, apperror.CodeExceedsPending)
		}
	}
	assert.Equal(t, 1, failed)

	stored, err := f.tracker.Get(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, q(8), stored.QuantityConsumed)
	assert.Equal(t, q(2), stored.Pending())
}

func TestReturn_RestockPolicy(t *testing.T) {
	tests := []struct {
		policy    allocation.RestockPolicy
		condition entity.MaterialCondition
		restocked bool
	}{
		{allocation.RestockNever, entity.ConditionGood, false},
		{allocation.RestockAlways, entity.ConditionDamaged, true},
		{allocation.RestockUsableOnly, entity.ConditionGood, true},
		{allocation.RestockUsableOnly, entity.ConditionScrap, false},
		{allocation.RestockUsableOnly, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy)+"/"+string(tt.condition), func(t *testing.T) {
			f := newFixture(t, allocation.Config{RestockOnReturn: tt.policy})
			a := f.exit(t, 10)
			require.True(t, f.stockOf(t).IsZero())

			res, err := f.giveBack(a.ID, 4, tt.condition)
			require.NoError(t, err)

			if !tt.restocked {
				assert.Nil(t, res.Restock)
				assert.True(t, f.stockOf(t).IsZero())
				return
			}
			require.NotNil(t, res.Restock)
			assert.Equal(t, entity.MovementEntry, res.Restock.Type)
			assert.Equal(t, res.Movement.ID, *res.Restock.SourceMovementID)
			assert.Equal(t, "RETURN:"+a.ID.String(), res.Restock.DocumentRef)
			assert.Equal(t, q(4), f.stockOf(t))

			replayed, err := f.stock.ReplayStock(f.ctx, f.material.ID)
			require.NoError(t, err)
			assert.Equal(t, q(4), replayed)
		})
	}
}

func TestParseRestockPolicy(t *testing.T) {
	p, err := allocation.ParseRestockPolicy("")
	require.NoError(t, err)
	assert.Equal(t, allocation.RestockNever, p)

	p, err = allocation.ParseRestockPolicy(" Usable_Only ")
	require.NoError(t, err)
	assert.Equal(t, allocation.RestockUsableOnly, p)

	_, err = allocation.ParseRestockPolicy("sometimes")
	assert.Error(t, err)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t, allocation.DefaultConfig())
	a := f.exit(t, 30)
	_, err := f.consume(a.ID, 10)
	require.NoError(t, err)
	stockBefore := f.stockOf(t)
	destination := id.New()

	res, err := f.tracker.Transfer(f.ctx, allocation.TransferCommand{
		AllocationID: a.ID, ToProjectID: destination, Quantity: q(15), Responsible: "x",
	})
	require.NoError(t, err)

	assert.Equal(t, entity.MovementTransfer, res.Movement.Type)
	assert.Equal(t, a.ID, *res.Movement.AllocationID)
	assert.Equal(t, destination, *res.Movement.ProjectID)
	assert.Equal(t, a.SourceMovementID, *res.Movement.SourceMovementID)

	assert.Equal(t, q(15), res.Source.QuantityReturned)
	assert.Equal(t, q(5), res.Source.Pending())
	assert.Equal(t, entity.StatusPartiallyConsumed, res.Source.Status)

	assert.Equal(t, destination, res.Destination.ProjectID)
	assert.Equal(t, q(15), res.Destination.QuantityAllocated)
	assert.Equal(t, res.Movement.ID, res.Destination.SourceMovementID)
	assert.Equal(t, entity.StatusAllocated, res.Destination.Status)

	assert.Equal(t, stockBefore, f.stockOf(t))

	// The destination behaves like any other allocation.
	consumed, err := f.consume(res.Destination.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConsumed, consumed.Allocation.Status)

	_, err = f.tracker.Transfer(f.ctx, allocation.TransferCommand{
		AllocationID: a.ID, ToProjectID: destination, Quantity: q(6), Responsible: "x",
	})
	requireCode(t, err, apperror.CodeExceedsPending)

	_, err = f.tracker.Transfer(f.ctx, allocation.TransferCommand{
		AllocationID: a.ID, ToProjectID: a.ProjectID, Quantity: q(1), Responsible: "x",
	})
	requireCode(t, err, apperror.CodeValidation)

	res, err = f.tracker.Transfer(f.ctx, allocation.TransferCommand{
		AllocationID: a.ID, ToProjectID: destination, Quantity: q(5), Responsible: "x",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReturned, res.Source.Status)
}

func TestList(t *testing.T) {
	f := newFixture(t, allocation.DefaultConfig())
	a := f.exit(t, 5)
	b := f.exit(t, 5)
	_, err := f.consume(b.ID, 5)
	require.NoError(t, err)

	pending, err := f.tracker.List(f.ctx, domain.AllocationFilter{OnlyPending: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	consumed := entity.StatusConsumed
	byStatus, err := f.tracker.List(f.ctx, domain.AllocationFilter{Status: &consumed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, b.ID, byStatus[0].ID)

	byProject, err := f.tracker.List(f.ctx, domain.AllocationFilter{ProjectID: &a.ProjectID})
	require.NoError(t, err)
	assert.Len(t, byProject, 1)

	bogus := entity.AllocationStatus("lost")
	_, err = f.tracker.List(f.ctx, domain.AllocationFilter{Status: &bogus})
	requireCode(t, err, apperror.CodeValidation)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t, allocation.DefaultConfig())
	a := f.exit(t, 20)
	_, err := f.consume(a.ID, 5)
	require.NoError(t, err)
	_, err = f.giveBack(a.ID, 3, entity.ConditionGood)
	require.NoError(t, err)

	clean, err := f.tracker.Reconcile(f.ctx, a.ID, true)
	require.NoError(t, err)
	assert.False(t, clean.Drifted)

	// Simulate a counter write that never reached the ledger.
	cur, err := f.store.Allocations().Get(f.ctx, a.ID)
	require.NoError(t, err)
	tampered := *cur
	tampered.QuantityConsumed = q(12)
	require.NoError(t, f.store.Allocations().UpdateCounters(f.ctx, &tampered, cur.QuantityConsumed, cur.QuantityReturned))

	report, err := f.tracker.Reconcile(f.ctx, a.ID, false)
	require.NoError(t, err)
	assert.True(t, report.Drifted)
	assert.False(t, report.Repaired)
	assert.Equal(t, q(12), report.Before.Consumed)
	assert.Equal(t, q(5), report.After.Consumed)
	assert.Equal(t, q(3), report.After.Returned)
	assert.Equal(t, entity.StatusPartiallyConsumed, report.After.Status)

	summary, err := f.tracker.ReconcileAll(f.ctx, true)
	require.NoError(t, err)
	assert.Equal(t, allocation.Summary{Checked: 1, Drifted: 1, Repaired: 1}, *summary)
	assert.Equal(t, int32(2), f.recorder.drifts.Load())

	repaired, err := f.tracker.Get(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, q(5), repaired.QuantityConsumed)
	assert.Equal(t, q(12), repaired.Pending())
}

func TestReconcile_ConcurrentConsumesNoFalseDrift(t *testing.T) {
	f := newFixture(t, allocation.DefaultConfig())
	a := f.exit(t, 40)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.consume(a.ID, 1)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			res, err := f.tracker.Reconcile(f.ctx, a.ID, true)
			if assert.NoError(t, err) {
				assert.False(t, res.Drifted)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), f.allocations.locked.Load())
	assert.Zero(t, f.recorder.drifts.Load())
	cur, err := f.tracker.Get(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, q(20), cur.QuantityConsumed)
}

func TestReconcile_ClosingMovementDecidesStatus(t *testing.T) {
	f := newFixture(t, allocation.DefaultConfig())
	a := f.exit(t, 30)
	_, err := f.consume(a.ID, 10)
	require.NoError(t, err)
	_, err = f.giveBack(a.ID, 20, "")
	require.NoError(t, err)

	report, err := f.tracker.Reconcile(f.ctx, a.ID, false)
	require.NoError(t, err)
	assert.False(t, report.Drifted)
	assert.Equal(t, entity.StatusReturned, report.After.Status)
}

// TestConservation drives random operations and checks the counters, stock
// and ledger agree after every step.
func TestConservation(t *testing.T) {
	f := newFixture(t, allocation.Config{RestockOnReturn: allocation.RestockUsableOnly, ConflictRetries: 3})
	rng := rand.New(rand.NewPCG(7, 11))
	_, err := f.ledger.RecordEntry(f.ctx, ledger.EntryCommand{MaterialID: f.material.ID, Quantity: q(200), Responsible: "x"})
	require.NoError(t, err)

	var ids []id.ID
	seen := make(map[id.ID]entity.AllocationStatus)
	conditions := []entity.MaterialCondition{entity.ConditionGood, entity.ConditionDamaged, ""}

	for step := 0; step < 300; step++ {
		var err error
		n := types.NewQuantityFromFloat64(float64(rng.IntN(80)+1) / 4)
		switch op := rng.IntN(4); {
		case op == 0 || len(ids) == 0:
			var res *ledger.ExitResult
			res, err = f.ledger.RecordExit(f.ctx, ledger.ExitCommand{
				MaterialID: f.material.ID, ProjectID: id.New(), Quantity: n, Responsible: "x",
			})
			if err != nil {
				requireCode(t, err, apperror.CodeInsufficientStock)
				continue
			}
			ids = append(ids, res.Allocation.ID)
		case op == 1:
			_, err = f.tracker.Consume(f.ctx, allocation.ConsumeCommand{
				AllocationID: ids[rng.IntN(len(ids))], Quantity: n, Responsible: "x",
			})
		case op == 2:
			_, err = f.tracker.Return(f.ctx, allocation.ReturnCommand{
				AllocationID: ids[rng.IntN(len(ids))], Quantity: n, Responsible: "x",
				MaterialCondition: conditions[rng.IntN(len(conditions))],
			})
		default:
			_, err = f.tracker.Transfer(f.ctx, allocation.TransferCommand{
				AllocationID: ids[rng.IntN(len(ids))], ToProjectID: id.New(), Quantity: n, Responsible: "x",
			})
		}
		if err != nil {
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok, "unexpected error %v", err)
			require.Contains(t, []string{apperror.CodeExceedsPending, apperror.CodeAllocationClosed}, appErr.Code)
		}

		all, err := f.store.Allocations().List(f.ctx, domain.AllocationFilter{})
		require.NoError(t, err)
		for _, a := range all {
			require.NoError(t, a.CheckInvariant())
			require.Equal(t, a.QuantityAllocated, a.QuantityConsumed+a.QuantityReturned+a.Pending())
			if prev, ok := seen[a.ID]; ok && prev != a.Status {
				require.True(t, entity.CanTransition(prev, a.Status), "%s -> %s", prev, a.Status)
			}
			seen[a.ID] = a.Status
		}
	}

	stored := f.stockOf(t)
	replayed, err := f.stock.ReplayStock(f.ctx, f.material.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, replayed)
	assert.False(t, stored.IsNegative())

	summary, err := f.tracker.ReconcileAll(f.ctx, false)
	require.NoError(t, err)
	assert.Zero(t, summary.Drifted)
	assert.Zero(t, summary.Failed)
}
