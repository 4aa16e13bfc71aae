package handlers

import (
	"github.com/gin-gonic/gin"

	"canteiro/internal/domain/catalog"
	"canteiro/internal/domain/stock"
	"canteiro/internal/infrastructure/http/v1/dto"
)

// MaterialsHandler serves the material catalog and its stock view.
type MaterialsHandler struct {
	*BaseHandler
	catalog *catalog.Service
	stock   *stock.Projection
}

// NewMaterialsHandler creates a new materials handler.
func NewMaterialsHandler(base *BaseHandler, catalogSvc *catalog.Service, projection *stock.Projection) *MaterialsHandler {
	return &MaterialsHandler{BaseHandler: base, catalog: catalogSvc, stock: projection}
}

// RegisterRoutes mounts the /materials routes.
func (h *MaterialsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/materials")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/critical", h.ListCritical)
	g.GET("/:id", h.Get)
	g.GET("/:id/stock", h.Stock)
	g.POST("/:id/reconcile", h.Reconcile)
}

// Create handles POST /materials.
func (h *MaterialsHandler) Create(c *gin.Context) {
	var cmd catalog.CreateMaterialCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	m, err := h.catalog.CreateMaterial(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m)
}

// List handles GET /materials.
func (h *MaterialsHandler) List(c *gin.Context) {
	var q dto.MaterialListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	items, err := h.catalog.List(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, q.PageQuery))
}

// Get handles GET /materials/:id.
func (h *MaterialsHandler) Get(c *gin.Context) {
	materialID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	m, err := h.catalog.Get(c.Request.Context(), materialID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, m)
}

// Stock handles GET /materials/:id/stock.
func (h *MaterialsHandler) Stock(c *gin.Context) {
	materialID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	crit, err := h.stock.IsCritical(c.Request.Context(), materialID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromCriticality(*crit))
}

// ListCritical handles GET /materials/critical.
func (h *MaterialsHandler) ListCritical(c *gin.Context) {
	list, err := h.stock.ListCritical(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	out := make([]dto.StockResponse, len(list))
	for i, crit := range list {
		out[i] = dto.FromCriticality(crit)
	}
	h.OK(c, gin.H{"items": out})
}

// Reconcile handles POST /materials/:id/reconcile?repair=true.
func (h *MaterialsHandler) Reconcile(c *gin.Context) {
	materialID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	res, err := h.stock.Reconcile(c.Request.Context(), materialID, h.ParseBoolQuery(c, "repair", false))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
