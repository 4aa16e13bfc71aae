package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain/reports"
)

func sampleSummary() *reports.PeriodSummary {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	material := id.New()
	row := reports.SummaryRow{Key: "CIM-50", MaterialID: &material, MaterialCode: "CIM-50", MaterialName: "Cimento", Unit: "saco"}
	row.Add(entity.MovementEntry, types.NewQuantity(100))
	row.Add(entity.MovementExit, types.NewQuantityFromFloat64(12.5))
	return &reports.PeriodSummary{
		From:    from,
		To:      from.AddDate(0, 1, 0),
		GroupBy: reports.GroupByMaterial,
		Rows:    []reports.SummaryRow{row},
		Totals:  row.Totals,
	}
}

func TestWritePeriodSummaryCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WritePeriodSummaryCSV(buf, sampleSummary()))

	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "entries", records[0][4])
	assert.Equal(t, []string{"CIM-50", "CIM-50", "Cimento", "saco", "100", "12.5", "0", "0", "0", "0", "0", "87.5"}, records[1])
	assert.Equal(t, "total", records[2][0])
	assert.Equal(t, "87.5", records[2][11])
}

func TestWritePeriodSummaryXLSX(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WritePeriodSummaryXLSX(buf, sampleSummary()))

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Resumo")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Período", "2026-03-01", "2026-04-01", "material"}, rows[0])
	assert.Equal(t, "CIM-50", rows[2][0])
	assert.Equal(t, "100", rows[2][4])
	assert.Equal(t, "12.5", rows[2][5])
	assert.Equal(t, "Total", rows[3][0])
	assert.Equal(t, "87.5", rows[3][11])
}

func TestWriteConsumptionGuideXLSX(t *testing.T) {
	stage := id.New()
	line := reports.GuideLine{
		AllocationID: id.New(),
		StageID:      &stage,
		Allocated:    types.NewQuantity(20),
		Consumed:     types.NewQuantity(12),
		Returned:     types.NewQuantity(3),
		Pending:      types.NewQuantity(5),
		Status:       entity.StatusPartiallyConsumed,
		CreatedAt:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Markers:      reports.GuideMarkers{HadEntry: true, HadConsumption: true, HadReturn: true, IsPending: true},
	}
	sub := reports.GuideTotals{Allocated: line.Allocated, Consumed: line.Consumed, Returned: line.Returned, Pending: line.Pending}
	guide := &reports.ConsumptionGuide{
		ProjectID:   id.New(),
		GeneratedAt: time.Now(),
		Materials: []reports.GuideMaterial{{
			MaterialID: id.New(), Code: "CIM-50", Name: "Cimento", Unit: "saco",
			Lines: []reports.GuideLine{line}, Subtotal: sub,
		}},
		Totals:             sub,
		PendingAllocations: 1,
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteConsumptionGuideXLSX(buf, guide))

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Guia")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, guide.ProjectID.String(), rows[0][1])

	data := rows[2]
	assert.Equal(t, line.AllocationID.String(), data[3])
	assert.Equal(t, stage.String(), data[4])
	assert.Equal(t, []string{"20", "12", "3", "5"}, data[6:10])
	assert.Equal(t, string(entity.StatusPartiallyConsumed), data[10])
	assert.Equal(t, []string{"sim", "sim", "sim", "sim"}, data[11:15])

	assert.Equal(t, "Subtotal", rows[3][1])
	assert.Equal(t, "Total", rows[4][1])
	assert.Equal(t, "5", rows[4][9])
}
