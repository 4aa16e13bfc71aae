package export

import (
	"encoding/csv"
	"io"

	"canteiro/internal/core/types"
	"canteiro/internal/domain/reports"
)

const ContentTypeCSV = "text/csv; charset=utf-8"

// WritePeriodSummaryCSV emits the summary rows followed by a totals row.
func WritePeriodSummaryCSV(w io.Writer, s *reports.PeriodSummary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"group", "material_code", "material_name", "unit",
		"entries", "exits", "consumption", "returns",
		"adjustments_positive", "adjustments_negative", "transfers", "net_stock_effect",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range s.Rows {
		record := append([]string{r.Key, r.MaterialCode, r.MaterialName, r.Unit}, totalsRecord(r.Totals)...)
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	if err := writer.Write(append([]string{"total", "", "", ""}, totalsRecord(s.Totals)...)); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func totalsRecord(t reports.Totals) []string {
	values := []types.Quantity{
		t.Entries, t.Exits, t.Consumption, t.Returns,
		t.AdjustmentsPositive, t.AdjustmentsNegative, t.Transfers, t.NetStockEffect,
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Format()
	}
	return out
}
