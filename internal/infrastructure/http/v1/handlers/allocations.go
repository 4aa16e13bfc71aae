package handlers

import (
	"github.com/gin-gonic/gin"

	"canteiro/internal/domain/allocation"
	"canteiro/internal/infrastructure/http/v1/dto"
)

// AllocationsHandler serves allocation queries and site-side operations.
type AllocationsHandler struct {
	*BaseHandler
	tracker *allocation.Service
}

// NewAllocationsHandler creates a new allocations handler.
func NewAllocationsHandler(base *BaseHandler, tracker *allocation.Service) *AllocationsHandler {
	return &AllocationsHandler{BaseHandler: base, tracker: tracker}
}

// RegisterRoutes mounts the /allocations routes.
func (h *AllocationsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/allocations")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/consumptions", h.Consume)
	g.POST("/:id/returns", h.Return)
	g.POST("/:id/reconcile", h.Reconcile)
}

// List handles GET /allocations.
func (h *AllocationsHandler) List(c *gin.Context) {
	var q dto.AllocationListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	items, err := h.tracker.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromAllocations(items), q.PageQuery))
}

// Get handles GET /allocations/:id.
func (h *AllocationsHandler) Get(c *gin.Context) {
	allocationID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	a, err := h.tracker.Get(c.Request.Context(), allocationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAllocation(*a))
}

// Consume handles POST /allocations/:id/consumptions.
func (h *AllocationsHandler) Consume(c *gin.Context) {
	allocationID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var cmd allocation.ConsumeCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	cmd.AllocationID = allocationID
	cmd.Responsible = h.Responsible(c, cmd.Responsible)

	res, err := h.tracker.Consume(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, resultResponse(res))
}

// Return handles POST /allocations/:id/returns.
func (h *AllocationsHandler) Return(c *gin.Context) {
	allocationID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var cmd allocation.ReturnCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	cmd.AllocationID = allocationID
	cmd.Responsible = h.Responsible(c, cmd.Responsible)

	res, err := h.tracker.Return(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, resultResponse(res))
}

// Reconcile handles POST /allocations/:id/reconcile?repair=true.
func (h *AllocationsHandler) Reconcile(c *gin.Context) {
	allocationID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	res, err := h.tracker.Reconcile(c.Request.Context(), allocationID, h.ParseBoolQuery(c, "repair", false))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

func resultResponse(res *allocation.Result) gin.H {
	body := gin.H{
		"movement":   res.Movement,
		"allocation": dto.FromAllocation(*res.Allocation),
	}
	if res.Restock != nil {
		body["restock"] = res.Restock
	}
	return body
}
