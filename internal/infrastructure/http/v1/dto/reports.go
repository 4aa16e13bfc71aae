package dto

import (
	"fmt"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/id"
	"canteiro/internal/domain/reports"
)

// Report formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

func checkFormat(f string, allowed ...string) (string, error) {
	if f == "" {
		return FormatJSON, nil
	}
	for _, a := range allowed {
		if f == a {
			return f, nil
		}
	}
	return "", apperror.NewValidation(fmt.Sprintf("format must be one of: %v", allowed)).WithDetail("format", f)
}

// TimelineQuery selects a material history, optionally scoped to a project.
type TimelineQuery struct {
	MaterialID string `form:"materialId"`
	ProjectID  string `form:"projectId"`
	Limit      int    `form:"limit" binding:"omitempty,min=1"`
}

// Parse returns the material and optional project ids.
func (q TimelineQuery) Parse() (id.ID, *id.ID, error) {
	material, err := parseRef("materialId", q.MaterialID)
	if err != nil {
		return id.ID{}, nil, err
	}
	if material == nil {
		return id.ID{}, nil, apperror.NewValidation("materialId is required")
	}
	project, err := parseRef("projectId", q.ProjectID)
	if err != nil {
		return id.ID{}, nil, err
	}
	return *material, project, nil
}

// TimelineResponse is a bounded page of a material timeline. Truncated is set
// when more events exist past Limit.
type TimelineResponse struct {
	MaterialID id.ID                   `json:"materialId"`
	ProjectID  *id.ID                  `json:"projectId,omitempty"`
	Events     []reports.TimelineEvent `json:"events"`
	Limit      int                     `json:"limit"`
	Truncated  bool                    `json:"truncated"`
}

// PeriodSummaryQuery selects a period summary. materialId may repeat.
type PeriodSummaryQuery struct {
	From        string   `form:"from"`
	To          string   `form:"to"`
	GroupBy     string   `form:"groupBy"`
	MaterialIDs []string `form:"materialId"`
	ProjectID   string   `form:"projectId"`
	Format      string   `form:"format"`
}

// ToFilter validates the query. It returns the filter and the output format.
func (q PeriodSummaryQuery) ToFilter() (reports.SummaryFilter, string, error) {
	var f reports.SummaryFilter

	format, err := checkFormat(q.Format, FormatJSON, FormatCSV, FormatXLSX)
	if err != nil {
		return f, "", err
	}
	from, err := parseTime("from", q.From)
	if err != nil {
		return f, "", err
	}
	to, err := parseTime("to", q.To)
	if err != nil {
		return f, "", err
	}
	if from != nil {
		f.From = *from
	}
	if to != nil {
		f.To = *to
	}
	f.GroupBy = reports.GroupBy(q.GroupBy)
	for _, raw := range q.MaterialIDs {
		m, err := parseRef("materialId", raw)
		if err != nil {
			return f, "", err
		}
		if m != nil {
			f.MaterialIDs = append(f.MaterialIDs, *m)
		}
	}
	if f.ProjectID, err = parseRef("projectId", q.ProjectID); err != nil {
		return f, "", err
	}
	return f, format, nil
}

// GuideQuery selects the output of the consumption guide.
type GuideQuery struct {
	Format string `form:"format"`
}

// ParseFormat returns json or xlsx.
func (q GuideQuery) ParseFormat() (string, error) {
	return checkFormat(q.Format, FormatJSON, FormatXLSX)
}
