package handlers

import (
	"github.com/gin-gonic/gin"

	"canteiro/internal/domain/allocation"
	"canteiro/internal/domain/ledger"
	"canteiro/internal/infrastructure/http/v1/dto"
)

// MovementsHandler records ledger movements and lists the journal.
type MovementsHandler struct {
	*BaseHandler
	ledger  *ledger.Service
	tracker *allocation.Service
}

// NewMovementsHandler creates a new movements handler. Transfers go through
// the allocation tracker.
func NewMovementsHandler(base *BaseHandler, ledgerSvc *ledger.Service, tracker *allocation.Service) *MovementsHandler {
	return &MovementsHandler{BaseHandler: base, ledger: ledgerSvc, tracker: tracker}
}

// RegisterRoutes mounts the /movements routes.
func (h *MovementsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/movements")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/entries", h.RecordEntry)
	g.POST("/exits", h.RecordExit)
	g.POST("/adjustments", h.RecordAdjustment)
	g.POST("/transfers", h.RecordTransfer)
}

// RecordEntry handles POST /movements/entries.
func (h *MovementsHandler) RecordEntry(c *gin.Context) {
	var cmd ledger.EntryCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	cmd.Responsible = h.Responsible(c, cmd.Responsible)

	res, err := h.ledger.RecordEntry(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// RecordExit handles POST /movements/exits.
func (h *MovementsHandler) RecordExit(c *gin.Context) {
	var cmd ledger.ExitCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	cmd.Responsible = h.Responsible(c, cmd.Responsible)

	res, err := h.ledger.RecordExit(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// RecordAdjustment handles POST /movements/adjustments.
func (h *MovementsHandler) RecordAdjustment(c *gin.Context) {
	var cmd ledger.AdjustmentCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	cmd.Responsible = h.Responsible(c, cmd.Responsible)

	res, err := h.ledger.RecordAdjustment(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// RecordTransfer handles POST /movements/transfers.
func (h *MovementsHandler) RecordTransfer(c *gin.Context) {
	var cmd allocation.TransferCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	cmd.Responsible = h.Responsible(c, cmd.Responsible)

	res, err := h.tracker.Transfer(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, gin.H{
		"movement":    res.Movement,
		"source":      dto.FromAllocation(*res.Source),
		"destination": dto.FromAllocation(*res.Destination),
	})
}

// List handles GET /movements.
func (h *MovementsHandler) List(c *gin.Context) {
	var q dto.MovementListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	items, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, q.PageQuery))
}

// Get handles GET /movements/:id.
func (h *MovementsHandler) Get(c *gin.Context) {
	movementID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	m, err := h.ledger.Get(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, m)
}
