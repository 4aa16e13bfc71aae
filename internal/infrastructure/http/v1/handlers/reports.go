package handlers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"canteiro/internal/domain/reports"
	"canteiro/internal/infrastructure/export"
	"canteiro/internal/infrastructure/http/v1/dto"
)

// ReportsHandler serves timelines, period summaries and consumption guides.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service

	defaultLimit int
	maxLimit     int
}

// NewReportsHandler creates a new reports handler. maxLimit caps timeline pages.
func NewReportsHandler(base *BaseHandler, service *reports.Service, maxLimit int) *ReportsHandler {
	if maxLimit <= 0 {
		maxLimit = 1000
	}
	return &ReportsHandler{
		BaseHandler:  base,
		service:      service,
		defaultLimit: min(100, maxLimit),
		maxLimit:     maxLimit,
	}
}

// RegisterRoutes mounts the /reports routes.
func (h *ReportsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/reports")
	g.GET("/timeline", h.Timeline)
	g.GET("/period-summary", h.PeriodSummary)
	g.GET("/consumption-guide/:projectId", h.ConsumptionGuide)
}

// Timeline handles GET /reports/timeline.
func (h *ReportsHandler) Timeline(c *gin.Context) {
	var q dto.TimelineQuery
	if !h.BindQuery(c, &q) {
		return
	}
	materialID, projectID, err := q.Parse()
	if err != nil {
		h.Error(c, err)
		return
	}
	limit := q.Limit
	if limit <= 0 {
		limit = h.defaultLimit
	}
	limit = min(limit, h.maxLimit)

	resp := dto.TimelineResponse{
		MaterialID: materialID,
		ProjectID:  projectID,
		Events:     make([]reports.TimelineEvent, 0, limit),
		Limit:      limit,
	}
	for ev, err := range h.service.TimelineFor(c.Request.Context(), materialID, projectID) {
		if err != nil {
			h.Error(c, err)
			return
		}
		if len(resp.Events) == limit {
			resp.Truncated = true
			break
		}
		resp.Events = append(resp.Events, ev)
	}
	h.OK(c, resp)
}

// PeriodSummary handles GET /reports/period-summary.
func (h *ReportsHandler) PeriodSummary(c *gin.Context) {
	var q dto.PeriodSummaryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, format, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	summary, err := h.service.PeriodSummary(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	name := fmt.Sprintf("resumo_%s_%s", summary.From.Format(time.DateOnly), summary.To.Format(time.DateOnly))
	var buf bytes.Buffer
	switch format {
	case dto.FormatCSV:
		if err := export.WritePeriodSummaryCSV(&buf, summary); err != nil {
			h.Error(c, err)
			return
		}
		h.Attachment(c, name+".csv", export.ContentTypeCSV, buf.Bytes())
	case dto.FormatXLSX:
		if err := export.WritePeriodSummaryXLSX(&buf, summary); err != nil {
			h.Error(c, err)
			return
		}
		h.Attachment(c, name+".xlsx", export.ContentTypeXLSX, buf.Bytes())
	default:
		h.OK(c, summary)
	}
}

// ConsumptionGuide handles GET /reports/consumption-guide/:projectId.
func (h *ReportsHandler) ConsumptionGuide(c *gin.Context) {
	projectID, ok := h.PathID(c, "projectId")
	if !ok {
		return
	}
	var q dto.GuideQuery
	if !h.BindQuery(c, &q) {
		return
	}
	format, err := q.ParseFormat()
	if err != nil {
		h.Error(c, err)
		return
	}
	guide, err := h.service.ConsumptionGuide(c.Request.Context(), projectID)
	if err != nil {
		h.Error(c, err)
		return
	}

	if format != dto.FormatXLSX {
		h.OK(c, guide)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteConsumptionGuideXLSX(&buf, guide); err != nil {
		h.Error(c, err)
		return
	}
	h.Attachment(c, "guia_"+projectID.String()+".xlsx", export.ContentTypeXLSX, buf.Bytes())
}
