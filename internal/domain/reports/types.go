// Package reports provides read-only views over the movement ledger:
// timelines, period summaries and project consumption guides.
package reports

import (
	"fmt"
	"time"

	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
)

// --- Timeline ---

// TimelineEvent is one movement with the running balance after it.
type TimelineEvent struct {
	Movement entity.Movement `json:"movement"`
	// Balance is on-hand stock for a material timeline and pending
	// quantity for a project timeline.
	Balance types.Quantity `json:"balance"`
	// Origin marks the material's first entry heading a project timeline.
	Origin bool `json:"origin,omitempty"`
}

// --- Period Summary ---

// GroupBy selects how summary rows are keyed.
type GroupBy string

const (
	GroupByMaterial GroupBy = "material"
	GroupByDay      GroupBy = "day"
	GroupByWeek     GroupBy = "week"
	GroupByMonth    GroupBy = "month"
)

// Valid reports whether g is a known grouping.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByMaterial, GroupByDay, GroupByWeek, GroupByMonth:
		return true
	}
	return false
}

// IsTimeBucket reports whether rows are keyed by period start.
func (g GroupBy) IsTimeBucket() bool {
	return g == GroupByDay || g == GroupByWeek || g == GroupByMonth
}

// TruncateBucket returns the UTC start of the bucket containing t.
// Weeks start on Monday.
func TruncateBucket(t time.Time, g GroupBy) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case GroupByDay:
		return day
	case GroupByWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GroupByMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}

// SummaryFilter selects movements in [From, To).
type SummaryFilter struct {
	From        time.Time
	To          time.Time
	GroupBy     GroupBy
	MaterialIDs []id.ID
	ProjectID   *id.ID
}

func (f SummaryFilter) cacheParts() []string {
	parts := []string{
		f.From.UTC().Format(time.RFC3339),
		f.To.UTC().Format(time.RFC3339),
		string(f.GroupBy),
	}
	if f.ProjectID != nil {
		parts = append(parts, "p="+f.ProjectID.String())
	}
	for _, m := range f.MaterialIDs {
		parts = append(parts, "m="+m.String())
	}
	return parts
}

// TypeTotal is a repository aggregate: the quantity of one movement type
// within one group. MaterialID is set when grouping by material, Bucket
// when grouping by time.
type TypeTotal struct {
	MaterialID id.ID               `db:"material_id"`
	Bucket     time.Time           `db:"bucket"`
	Type       entity.MovementType `db:"type"`
	Quantity   types.Quantity      `db:"quantity"`
}

// Totals sums quantities per movement type.
type Totals struct {
	Entries             types.Quantity `json:"entries"`
	Exits               types.Quantity `json:"exits"`
	Consumption         types.Quantity `json:"consumption"`
	Returns             types.Quantity `json:"returns"`
	AdjustmentsPositive types.Quantity `json:"adjustmentsPositive"`
	AdjustmentsNegative types.Quantity `json:"adjustmentsNegative"`
	Transfers           types.Quantity `json:"transfers"`
	NetStockEffect      types.Quantity `json:"netStockEffect"`
}

// Add accumulates q units of type t.
func (t *Totals) Add(mt entity.MovementType, q types.Quantity) {
	switch mt {
	case entity.MovementEntry:
		t.Entries += q
	case entity.MovementExit:
		t.Exits += q
	case entity.MovementConsumption:
		t.Consumption += q
	case entity.MovementReturn:
		t.Returns += q
	case entity.MovementAdjustmentPositive:
		t.AdjustmentsPositive += q
	case entity.MovementAdjustmentNegative:
		t.AdjustmentsNegative += q
	case entity.MovementTransfer:
		t.Transfers += q
	}
	t.NetStockEffect += mt.StockEffect(q)
}

// SummaryRow is one group of a period summary.
type SummaryRow struct {
	Key          string     `json:"key"`
	MaterialID   *id.ID     `json:"materialId,omitempty"`
	MaterialCode string     `json:"materialCode,omitempty"`
	MaterialName string     `json:"materialName,omitempty"`
	Unit         string     `json:"unit,omitempty"`
	BucketStart  *time.Time `json:"bucketStart,omitempty"`
	Totals
}

// PeriodSummary is the result of PeriodSummary.
type PeriodSummary struct {
	From    time.Time    `json:"from"`
	To      time.Time    `json:"to"`
	GroupBy GroupBy      `json:"groupBy"`
	Rows    []SummaryRow `json:"rows"`
	Totals  Totals       `json:"totals"`
}

// bucketKey renders a bucket start for row keys and exports.
func bucketKey(t time.Time, g GroupBy) string {
	switch g {
	case GroupByMonth:
		return t.Format("2006-01")
	case GroupByWeek:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	default:
		return t.Format("2006-01-02")
	}
}

// --- Consumption Guide ---

// GuideMarkers flag which kinds of movement an allocation has seen.
type GuideMarkers struct {
	HadEntry       bool `json:"hadEntry"`
	HadConsumption bool `json:"hadConsumption"`
	HadReturn      bool `json:"hadReturn"`
	IsPending      bool `json:"isPending"`
}

// GuideTotals sums allocation counters.
type GuideTotals struct {
	Allocated types.Quantity `json:"allocated"`
	Consumed  types.Quantity `json:"consumed"`
	Returned  types.Quantity `json:"returned"`
	Pending   types.Quantity `json:"pending"`
}

func (t *GuideTotals) add(l GuideLine) {
	t.Allocated += l.Allocated
	t.Consumed += l.Consumed
	t.Returned += l.Returned
	t.Pending += l.Pending
}

// GuideLine is one allocation of the project.
type GuideLine struct {
	AllocationID     id.ID                   `json:"allocationId"`
	StageID          *id.ID                  `json:"stageId,omitempty"`
	SourceMovementID id.ID                   `json:"sourceMovementId"`
	Allocated        types.Quantity          `json:"allocated"`
	Consumed         types.Quantity          `json:"consumed"`
	Returned         types.Quantity          `json:"returned"`
	Pending          types.Quantity          `json:"pending"`
	Status           entity.AllocationStatus `json:"status"`
	CreatedAt        time.Time               `json:"createdAt"`
	Markers          GuideMarkers            `json:"markers"`
}

// GuideMaterial groups a project's allocations of one material.
type GuideMaterial struct {
	MaterialID id.ID       `json:"materialId"`
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Unit       string      `json:"unit"`
	Lines      []GuideLine `json:"lines"`
	Subtotal   GuideTotals `json:"subtotal"`
}

// ConsumptionGuide summarizes every allocation of a project.
type ConsumptionGuide struct {
	ProjectID          id.ID           `json:"projectId"`
	GeneratedAt        time.Time       `json:"generatedAt"`
	Materials          []GuideMaterial `json:"materials"`
	Totals             GuideTotals     `json:"totals"`
	PendingAllocations int             `json:"pendingAllocations"`
}
