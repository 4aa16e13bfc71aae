package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain/allocation"
	"canteiro/internal/domain/ledger"
	"canteiro/internal/domain/reports"
	"canteiro/internal/domain/stock"
	"canteiro/internal/infrastructure/storage/memory"
)

type countingRepo struct {
	reports.Repository
	totals  int
	entries int
}

func (r *countingRepo) TypeTotals(ctx context.Context, f reports.SummaryFilter) ([]reports.TypeTotal, error) {
	r.totals++
	return r.Repository.TypeTotals(ctx, f)
}

func (r *countingRepo) FirstEntries(ctx context.Context, ids []id.ID) (map[id.ID]time.Time, error) {
	r.entries++
	return r.Repository.FirstEntries(ctx, ids)
}

func newTestCache(t *testing.T) (*ReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReportCache(client, time.Minute), mr
}

func TestBuildKeyFollowsScopeVersions(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	project := id.New()
	scopes := []string{reports.ScopeAll, reports.ProjectScope(project)}

	first, err := c.BuildKey(ctx, scopes, "guide", project.String())
	require.NoError(t, err)
	assert.Equal(t, "reports:guide:"+project.String()+":all@0:project:"+project.String()+"@0", first)

	require.NoError(t, c.Invalidate(ctx, id.New()))
	second, err := c.BuildKey(ctx, scopes, "guide", project.String())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.NoError(t, c.Invalidate(ctx, id.New(), project))
	versions, err := c.Versions(ctx, scopes...)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, versions)
}

func TestFetchJSON(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}

	var got map[string]int
	require.NoError(t, c.FetchJSON(ctx, "reports:k", &got, loader))
	require.NoError(t, c.FetchJSON(ctx, "reports:k", &got, loader))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, got["n"])

	mr.FastForward(2 * time.Minute)
	require.NoError(t, c.FetchJSON(ctx, "reports:k", &got, loader))
	assert.Equal(t, 2, got["n"])

	assert.Error(t, c.FetchJSON(ctx, "reports:k", &got, nil))
}

func TestNilCachePassesThrough(t *testing.T) {
	var c *ReportCache
	ctx := context.Background()

	var got []string
	require.NoError(t, c.FetchJSON(ctx, "k", &got, func(context.Context) (any, error) { return []string{"a"}, nil }))
	assert.Equal(t, []string{"a"}, got)
	assert.NoError(t, c.Invalidate(ctx, id.New()))
	assert.NoError(t, c.Ping(ctx))
}

// TestReportsInvalidatedByLedgerWrites wires the cache as both the report
// cache and the ledger's invalidator.
func TestReportsInvalidatedByLedgerWrites(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	store := memory.New()
	repo := &countingRepo{Repository: store.Reports()}

	projection := stock.NewProjection(store.Materials(), store.Movements(), store, nil, stock.DefaultConfig())
	ledgerSvc := ledger.NewService(store.Movements(), store.Allocations(), projection, store, c, nil)
	tracker := allocation.NewService(store.Allocations(), store.Movements(), ledgerSvc, store, nil, allocation.DefaultConfig())
	svc := reports.NewService(repo, store.Materials(), store.Movements(), store.Allocations(), c, reports.DefaultConfig())

	m := entity.NewMaterial("CIM-50", "Cement", "bag", 0)
	require.NoError(t, store.Materials().Create(ctx, m))
	_, err := ledgerSvc.RecordEntry(ctx, ledger.EntryCommand{MaterialID: m.ID, Quantity: types.NewQuantity(50), Responsible: "x"})
	require.NoError(t, err)

	now := time.Now().UTC()
	filter := reports.SummaryFilter{From: now.Add(-time.Hour), To: now.Add(time.Hour)}

	first, err := svc.PeriodSummary(ctx, filter)
	require.NoError(t, err)
	_, err = svc.PeriodSummary(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.totals)
	assert.Equal(t, types.NewQuantity(50), first.Totals.Entries)

	project := id.New()
	exit, err := ledgerSvc.RecordExit(ctx, ledger.ExitCommand{MaterialID: m.ID, ProjectID: project, Quantity: types.NewQuantity(20), Responsible: "x"})
	require.NoError(t, err)

	second, err := svc.PeriodSummary(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.totals)
	assert.Equal(t, types.NewQuantity(20), second.Totals.Exits)

	guide, err := svc.ConsumptionGuide(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(20), guide.Totals.Pending)
	_, err = svc.ConsumptionGuide(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.entries)

	_, err = tracker.Consume(ctx, allocation.ConsumeCommand{AllocationID: exit.Allocation.ID, Quantity: types.NewQuantity(5), Responsible: "x"})
	require.NoError(t, err)

	guide, err = svc.ConsumptionGuide(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.entries)
	assert.Equal(t, types.NewQuantity(15), guide.Totals.Pending)
	assert.True(t, guide.Materials[0].Lines[0].Markers.HadConsumption)
}
