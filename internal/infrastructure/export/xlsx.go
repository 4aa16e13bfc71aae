// Package export renders report views as spreadsheets and CSV.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"canteiro/internal/domain/reports"
)

// ContentTypeXLSX is the media type of the workbooks written here.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var summaryHeader = []interface{}{
	"Grupo", "Código", "Material", "Unidade",
	"Entradas", "Saídas", "Consumo", "Devoluções",
	"Ajustes (+)", "Ajustes (-)", "Transferências", "Efeito líquido",
}

var guideHeader = []interface{}{
	"Código", "Material", "Unidade", "Alocação", "Etapa", "Criada em",
	"Alocado", "Consumido", "Devolvido", "Pendente", "Status",
	"Entrada", "Consumo", "Devolução", "Pendente?",
}

func totalsCells(t reports.Totals) []interface{} {
	return []interface{}{
		t.Entries.Float64(),
		t.Exits.Float64(),
		t.Consumption.Float64(),
		t.Returns.Float64(),
		t.AdjustmentsPositive.Float64(),
		t.AdjustmentsNegative.Float64(),
		t.Transfers.Float64(),
		t.NetStockEffect.Float64(),
	}
}

func guideTotalsCells(t reports.GuideTotals) []interface{} {
	return []interface{}{t.Allocated.Float64(), t.Consumed.Float64(), t.Returned.Float64(), t.Pending.Float64()}
}

func yesNo(b bool) string {
	if b {
		return "sim"
	}
	return "não"
}

// sheetWriter appends rows to the active sheet.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func newSheetWriter(f *excelize.File, name string) (*sheetWriter, error) {
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if name != "" && name != sheet {
		if err := f.SetSheetName(sheet, name); err != nil {
			return nil, fmt.Errorf("rename sheet: %w", err)
		}
		sheet = name
	}
	return &sheetWriter{f: f, sheet: sheet, row: 1}, nil
}

func (w *sheetWriter) append(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(w.sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", w.row, err)
	}
	w.row++
	return nil
}

// WritePeriodSummaryXLSX writes one row per summary group and a final
// totals row.
func WritePeriodSummaryXLSX(w io.Writer, s *reports.PeriodSummary) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sw, err := newSheetWriter(f, "Resumo")
	if err != nil {
		return err
	}
	if err := sw.append([]interface{}{"Período", s.From.Format(time.DateOnly), s.To.Format(time.DateOnly), string(s.GroupBy)}); err != nil {
		return err
	}
	if err := sw.append(summaryHeader); err != nil {
		return err
	}
	for _, r := range s.Rows {
		row := []interface{}{r.Key, r.MaterialCode, r.MaterialName, r.Unit}
		if err := sw.append(append(row, totalsCells(r.Totals)...)); err != nil {
			return err
		}
	}
	total := []interface{}{"Total", "", "", ""}
	if err := sw.append(append(total, totalsCells(s.Totals)...)); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteConsumptionGuideXLSX writes every allocation line of the guide with
// a subtotal row after each material and a grand total at the end.
func WriteConsumptionGuideXLSX(w io.Writer, g *reports.ConsumptionGuide) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sw, err := newSheetWriter(f, "Guia")
	if err != nil {
		return err
	}
	meta := []interface{}{"Obra", g.ProjectID.String(), "Gerada em", g.GeneratedAt.UTC().Format(time.RFC3339), "Pendentes", g.PendingAllocations}
	if err := sw.append(meta); err != nil {
		return err
	}
	if err := sw.append(guideHeader); err != nil {
		return err
	}
	for _, m := range g.Materials {
		for _, l := range m.Lines {
			stage := ""
			if l.StageID != nil {
				stage = l.StageID.String()
			}
			row := []interface{}{m.Code, m.Name, m.Unit, l.AllocationID.String(), stage, l.CreatedAt.UTC().Format(time.DateTime)}
			row = append(row, l.Allocated.Float64(), l.Consumed.Float64(), l.Returned.Float64(), l.Pending.Float64(), string(l.Status))
			row = append(row, yesNo(l.Markers.HadEntry), yesNo(l.Markers.HadConsumption), yesNo(l.Markers.HadReturn), yesNo(l.Markers.IsPending))
			if err := sw.append(row); err != nil {
				return err
			}
		}
		sub := []interface{}{m.Code, "Subtotal", m.Unit, "", "", ""}
		if err := sw.append(append(sub, guideTotalsCells(m.Subtotal)...)); err != nil {
			return err
		}
	}
	total := []interface{}{"", "Total", "", "", "", ""}
	if err := sw.append(append(total, guideTotalsCells(g.Totals)...)); err != nil {
		return err
	}
	return f.Write(w)
}
