package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain/allocation"
	"canteiro/internal/domain/ledger"
	"canteiro/internal/domain/reports"
	"canteiro/internal/domain/stock"
	"canteiro/internal/infrastructure/storage/memory"
)

func q(n int64) types.Quantity { return types.NewQuantity(n) }

type fixture struct {
	ctx     context.Context
	store   *memory.Store
	ledger  *ledger.Service
	tracker *allocation.Service
	reports *reports.Service
	now     time.Time
}

func newFixture(t *testing.T, pageSize int) *fixture {
	t.Helper()
	store := memory.New()
	projection := stock.NewProjection(store.Materials(), store.Movements(), store, nil, stock.DefaultConfig())
	ledgerSvc := ledger.NewService(store.Movements(), store.Allocations(), projection, store, nil, nil)
	tracker := allocation.NewService(store.Allocations(), store.Movements(), ledgerSvc, store, nil, allocation.DefaultConfig())
	svc := reports.NewService(store.Reports(), store.Materials(), store.Movements(), store.Allocations(), nil,
		reports.Config{TimelinePageSize: pageSize})

	f := &fixture{
		ctx: context.Background(), store: store, ledger: ledgerSvc, tracker: tracker, reports: svc,
		now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	ledgerSvc.SetClock(func() time.Time { return f.now })
	return f
}

// at moves the clock forward by d before the next operation.
func (f *fixture) at(d time.Duration) *fixture {
	f.now = f.now.Add(d)
	return f
}

func (f *fixture) material(t *testing.T, code string) *entity.Material {
	t.Helper()
	m := entity.NewMaterial(code, "Material "+code, "un", 0)
	require.NoError(t, f.store.Materials().Create(f.ctx, m))
	return m
}

func (f *fixture) entry(t *testing.T, m *entity.Material, n int64) {
	t.Helper()
	_, err := f.ledger.RecordEntry(f.ctx, ledger.EntryCommand{MaterialID: m.ID, Quantity: q(n), Responsible: "x"})
	require.NoError(t, err)
}

func (f *fixture) exit(t *testing.T, m *entity.Material, project id.ID, n int64) *entity.Allocation {
	t.Helper()
	res, err := f.ledger.RecordExit(f.ctx, ledger.ExitCommand{MaterialID: m.ID, ProjectID: project, Quantity: q(n), Responsible: "x"})
	require.NoError(t, err)
	return res.Allocation
}

func (f *fixture) consume(t *testing.T, a *entity.Allocation, n int64) {
	t.Helper()
	_, err := f.tracker.Consume(f.ctx, allocation.ConsumeCommand{AllocationID: a.ID, Quantity: q(n), Responsible: "x"})
	require.NoError(t, err)
}

func (f *fixture) giveBack(t *testing.T, a *entity.Allocation, n int64) {
	t.Helper()
	_, err := f.tracker.Return(f.ctx, allocation.ReturnCommand{AllocationID: a.ID, Quantity: q(n), Responsible: "x"})
	require.NoError(t, err)
}

func (f *fixture) adjust(t *testing.T, m *entity.Material, n int64, dir ledger.Direction) {
	t.Helper()
	_, err := f.ledger.RecordAdjustment(f.ctx, ledger.AdjustmentCommand{MaterialID: m.ID, Quantity: q(n), Direction: dir, Responsible: "x"})
	require.NoError(t, err)
}

func collect(t *testing.T, f *fixture, materialID id.ID, projectID *id.ID) []reports.TimelineEvent {
	t.Helper()
	var out []reports.TimelineEvent
	for ev, err := range f.reports.TimelineFor(f.ctx, materialID, projectID) {
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func movementTypes(events []reports.TimelineEvent) []entity.MovementType {
	out := make([]entity.MovementType, len(events))
	for i, ev := range events {
		out[i] = ev.Movement.Type
	}
	return out
}

func balances(events []reports.TimelineEvent) []types.Quantity {
	out := make([]types.Quantity, len(events))
	for i, ev := range events {
		out[i] = ev.Balance
	}
	return out
}

func TestTimelineFor_Material(t *testing.T) {
	f := newFixture(t, 2)
	m := f.material(t, "BLO-14")
	project := id.New()

	f.at(time.Minute).entry(t, m, 100)
	a := f.at(time.Minute).exit(t, m, project, 30)
	f.at(time.Minute).consume(t, a, 10)
	f.at(time.Minute).adjust(t, m, 15, ledger.DirectionPositive)
	f.at(time.Minute).giveBack(t, a, 5)

	events := collect(t, f, m.ID, nil)
	assert.Equal(t, []entity.MovementType{
		entity.MovementEntry, entity.MovementExit, entity.MovementConsumption,
		entity.MovementAdjustmentPositive, entity.MovementReturn,
	}, movementTypes(events))
	assert.Equal(t, []types.Quantity{q(100), q(70), q(70), q(85), q(85)}, balances(events))

	// Each range re-runs the query from the start.
	assert.Equal(t, events, collect(t, f, m.ID, nil))

	// Stopping early is honored.
	n := 0
	for range f.reports.TimelineFor(f.ctx, m.ID, nil) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestTimelineFor_Project(t *testing.T) {
	f := newFixture(t, 50)
	m := f.material(t, "TUB-25")
	p1, p2 := id.New(), id.New()

	f.at(time.Minute).entry(t, m, 100)
	f.at(time.Minute).entry(t, m, 20)
	a := f.at(time.Minute).exit(t, m, p1, 30)
	f.at(time.Minute).exit(t, m, p2, 7)
	f.at(time.Minute).consume(t, a, 10)
	_, err := f.at(time.Minute).tracker.Transfer(f.ctx, allocation.TransferCommand{
		AllocationID: a.ID, ToProjectID: p2, Quantity: q(5), Responsible: "x",
	})
	require.NoError(t, err)

	events := collect(t, f, m.ID, &p1)
	require.Len(t, events, 4)
	assert.True(t, events[0].Origin)
	assert.Equal(t, q(100), events[0].Movement.Quantity)
	assert.Equal(t, []entity.MovementType{
		entity.MovementEntry, entity.MovementExit, entity.MovementConsumption, entity.MovementTransfer,
	}, movementTypes(events))
	assert.Equal(t, []types.Quantity{0, q(30), q(20), q(15)}, balances(events))

	events = collect(t, f, m.ID, &p2)
	assert.Equal(t, []entity.MovementType{
		entity.MovementEntry, entity.MovementExit, entity.MovementTransfer,
	}, movementTypes(events))
	assert.Equal(t, []types.Quantity{0, q(7), q(12)}, balances(events))
}

func TestTimelineFor_UnknownMaterial(t *testing.T) {
	f := newFixture(t, 10)
	for _, err := range f.reports.TimelineFor(f.ctx, id.New(), nil) {
		assert.True(t, apperror.IsNotFound(err))
	}
}

func TestPeriodSummary_ByDay(t *testing.T) {
	f := newFixture(t, 10)
	m := f.material(t, "CIM-50")
	f.entry(t, m, 100)
	a := f.at(time.Hour).exit(t, m, id.New(), 30)
	f.at(24*time.Hour).adjust(t, m, 15, ledger.DirectionPositive)
	f.consume(t, a, 4)

	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	summary, err := f.reports.PeriodSummary(f.ctx, reports.SummaryFilter{
		From: day, To: day.AddDate(0, 0, 1), GroupBy: reports.GroupByDay,
	})
	require.NoError(t, err)
	require.Len(t, summary.Rows, 1)
	assert.Equal(t, "2026-03-03", summary.Rows[0].Key)
	assert.Equal(t, q(15), summary.Rows[0].AdjustmentsPositive)
	assert.Equal(t, q(4), summary.Rows[0].Consumption)
	assert.Equal(t, q(15), summary.Totals.NetStockEffect)

	summary, err = f.reports.PeriodSummary(f.ctx, reports.SummaryFilter{
		From: day.AddDate(0, 0, -1), To: day.AddDate(0, 0, 1), GroupBy: reports.GroupByDay,
	})
	require.NoError(t, err)
	require.Len(t, summary.Rows, 2)
	assert.Equal(t, "2026-03-02", summary.Rows[0].Key)
	assert.Equal(t, q(100), summary.Rows[0].Entries)
	assert.Equal(t, q(30), summary.Rows[0].Exits)
	assert.Equal(t, q(70), summary.Rows[0].NetStockEffect)
	assert.Equal(t, q(85), summary.Totals.NetStockEffect)
}

func TestPeriodSummary_ByMaterialAndBucket(t *testing.T) {
	f := newFixture(t, 10)
	sand := f.material(t, "ARE-M3")
	brick := f.material(t, "BLO-14")
	project := id.New()

	f.entry(t, brick, 500)
	f.entry(t, sand, 12)
	f.at(7*24*time.Hour).exit(t, sand, project, 2)
	f.at(31*24*time.Hour).adjust(t, brick, 20, ledger.DirectionNegative)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	byMaterial, err := f.reports.PeriodSummary(f.ctx, reports.SummaryFilter{From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, reports.GroupByMaterial, byMaterial.GroupBy)
	require.Len(t, byMaterial.Rows, 2)
	assert.Equal(t, "ARE-M3", byMaterial.Rows[0].MaterialCode)
	assert.Equal(t, q(10), byMaterial.Rows[0].NetStockEffect)
	assert.Equal(t, "BLO-14", byMaterial.Rows[1].MaterialCode)
	assert.Equal(t, q(20), byMaterial.Rows[1].AdjustmentsNegative)
	assert.Equal(t, q(512), byMaterial.Totals.Entries)

	byWeek, err := f.reports.PeriodSummary(f.ctx, reports.SummaryFilter{From: from, To: to, GroupBy: reports.GroupByWeek})
	require.NoError(t, err)
	require.Len(t, byWeek.Rows, 3)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), *byWeek.Rows[0].BucketStart)
	assert.Equal(t, "2026-W10", byWeek.Rows[0].Key)

	byMonth, err := f.reports.PeriodSummary(f.ctx, reports.SummaryFilter{From: from, To: to, GroupBy: reports.GroupByMonth})
	require.NoError(t, err)
	require.Len(t, byMonth.Rows, 2)
	assert.Equal(t, "2026-03", byMonth.Rows[0].Key)
	assert.Equal(t, "2026-04", byMonth.Rows[1].Key)

	onlySand, err := f.reports.PeriodSummary(f.ctx, reports.SummaryFilter{
		From: from, To: to, MaterialIDs: []id.ID{sand.ID},
	})
	require.NoError(t, err)
	assert.Len(t, onlySand.Rows, 1)

	byProject, err := f.reports.PeriodSummary(f.ctx, reports.SummaryFilter{From: from, To: to, ProjectID: &project})
	require.NoError(t, err)
	assert.Equal(t, q(2), byProject.Totals.Exits)
	assert.Zero(t, byProject.Totals.Entries)
}

func TestPeriodSummary_Validation(t *testing.T) {
	f := newFixture(t, 10)
	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter reports.SummaryFilter
	}{
		{"missing range", reports.SummaryFilter{}},
		{"inverted range", reports.SummaryFilter{From: day, To: day.Add(-time.Hour)}},
		{"unknown grouping", reports.SummaryFilter{From: day, To: day.Add(time.Hour), GroupBy: "quarter"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reports.PeriodSummary(f.ctx, tt.filter)
			assert.True(t, apperror.IsCode(err, apperror.CodeValidation), "got %v", err)
		})
	}
}

func TestTruncateBucket(t *testing.T) {
	ts := time.Date(2026, 3, 5, 17, 45, 0, 0, time.UTC) // Thursday
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), reports.TruncateBucket(ts, reports.GroupByDay))
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), reports.TruncateBucket(ts, reports.GroupByWeek))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), reports.TruncateBucket(ts, reports.GroupByMonth))

	sunday := time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), reports.TruncateBucket(sunday, reports.GroupByWeek))
}

func TestConsumptionGuide(t *testing.T) {
	f := newFixture(t, 10)
	sand := f.material(t, "ARE-M3")
	rebar := f.material(t, "ACO-10")
	project, other := id.New(), id.New()

	f.entry(t, sand, 100)
	// Rebar reaches stock through a count correction only.
	f.adjust(t, rebar, 40, ledger.DirectionPositive)

	consumed := f.at(time.Minute).exit(t, sand, project, 30)
	returned := f.at(time.Minute).exit(t, sand, project, 10)
	untouched := f.at(time.Minute).exit(t, rebar, project, 12)
	f.exit(t, sand, other, 5)

	f.at(time.Minute).consume(t, consumed, 30)
	f.at(time.Minute).consume(t, returned, 4)
	f.giveBack(t, returned, 6)

	guide, err := f.reports.ConsumptionGuide(f.ctx, project)
	require.NoError(t, err)

	require.Len(t, guide.Materials, 2)
	assert.Equal(t, "ACO-10", guide.Materials[0].Code)
	assert.Equal(t, "ARE-M3", guide.Materials[1].Code)

	rebarLines := guide.Materials[0].Lines
	require.Len(t, rebarLines, 1)
	assert.Equal(t, untouched.ID, rebarLines[0].AllocationID)
	assert.Equal(t, reports.GuideMarkers{IsPending: true}, rebarLines[0].Markers)

	sandLines := guide.Materials[1].Lines
	require.Len(t, sandLines, 2)
	assert.Equal(t, consumed.ID, sandLines[0].AllocationID)
	assert.Equal(t, reports.GuideMarkers{HadEntry: true, HadConsumption: true}, sandLines[0].Markers)
	assert.Equal(t, entity.StatusConsumed, sandLines[0].Status)
	assert.Equal(t, returned.ID, sandLines[1].AllocationID)
	assert.Equal(t, reports.GuideMarkers{HadEntry: true, HadConsumption: true, HadReturn: true}, sandLines[1].Markers)
	assert.Equal(t, entity.StatusReturned, sandLines[1].Status)

	assert.Equal(t, reports.GuideTotals{Allocated: q(40), Consumed: q(34), Returned: q(6)}, guide.Materials[1].Subtotal)
	assert.Equal(t, reports.GuideTotals{Allocated: q(52), Consumed: q(34), Returned: q(6), Pending: q(12)}, guide.Totals)
	assert.Equal(t, 1, guide.PendingAllocations)

	empty, err := f.reports.ConsumptionGuide(f.ctx, id.New())
	require.NoError(t, err)
	assert.Empty(t, empty.Materials)

	_, err = f.reports.ConsumptionGuide(f.ctx, id.ID{})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestConsumptionGuide_TransferClosesSource(t *testing.T) {
	f := newFixture(t, 10)
	pipe := f.material(t, "TUB-PVC-100")
	project, other := id.New(), id.New()

	f.entry(t, pipe, 50)
	a := f.at(time.Minute).exit(t, pipe, project, 10)
	f.at(time.Minute).consume(t, a, 4)
	res, err := f.at(time.Minute).tracker.Transfer(f.ctx, allocation.TransferCommand{
		AllocationID: a.ID, ToProjectID: other, Quantity: q(6), Responsible: "x",
	})
	require.NoError(t, err)

	guide, err := f.reports.ConsumptionGuide(f.ctx, project)
	require.NoError(t, err)
	require.Len(t, guide.Materials, 1)
	lines := guide.Materials[0].Lines
	require.Len(t, lines, 1)
	assert.Equal(t, entity.StatusReturned, lines[0].Status)
	assert.Equal(t, reports.GuideMarkers{HadEntry: true, HadConsumption: true, HadReturn: true}, lines[0].Markers)

	dest, err := f.reports.ConsumptionGuide(f.ctx, other)
	require.NoError(t, err)
	require.Len(t, dest.Materials, 1)
	lines = dest.Materials[0].Lines
	require.Len(t, lines, 1)
	assert.Equal(t, res.Destination.ID, lines[0].AllocationID)
	assert.Equal(t, reports.GuideMarkers{HadEntry: true, IsPending: true}, lines[0].Markers)
}
