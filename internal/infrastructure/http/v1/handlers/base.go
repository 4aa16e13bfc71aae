// Package handlers provides the HTTP handlers of the v1 API.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"canteiro/internal/core/apperror"
	appctx "canteiro/internal/core/context"
	"canteiro/internal/core/id"
	"canteiro/internal/infrastructure/http/v1/middleware"
	"canteiro/pkg/logger"
)

const contentTypeJSON = "application/json; charset=utf-8"

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON decodes the request body. Command validation happens in the services.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// PathID parses a UUID path parameter.
func (h *BaseHandler) PathID(c *gin.Context, name string) (id.ID, bool) {
	raw := c.Param(name)
	v, err := id.Parse(raw)
	if err != nil {
		h.Error(c, apperror.NewValidation(name+" must be a UUID").WithDetail(name, raw))
		return id.ID{}, false
	}
	return v, true
}

// ParseBoolQuery parses a boolean query parameter with default value.
func (h *BaseHandler) ParseBoolQuery(c *gin.Context, key string, defaultVal bool) bool {
	v, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return defaultVal
	}
	return v
}

// Responsible falls back to the authenticated subject when the body names nobody.
func (h *BaseHandler) Responsible(c *gin.Context, given string) string {
	if given != "" {
		return given
	}
	return appctx.GetSubject(c.Request.Context())
}

// Error registers err on the context and aborts. middleware.ErrorHandler
// writes the response.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Created sends 201 with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	h.respond(c, http.StatusCreated, data)
}

// OK sends 200 with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	h.respond(c, http.StatusOK, data)
}

// respond encodes once so the idempotency record holds the exact bytes sent.
func (h *BaseHandler) respond(c *gin.Context, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	h.completeIdempotency(c, status, contentTypeJSON, body)
	c.Data(status, contentTypeJSON, body)
}

// Attachment sends a file download. Downloads are not recorded for replay.
func (h *BaseHandler) Attachment(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, body)
}

func (h *BaseHandler) completeIdempotency(c *gin.Context, status int, contentType string, body []byte) {
	key, store, ok := middleware.IdempotencyFrom(c)
	if !ok {
		return
	}
	if err := store.CompleteKey(c.Request.Context(), key, status, contentType, body); err != nil {
		logger.Warn(c.Request.Context(), "idempotency completion not recorded", "key", key, "error", err)
	}
}
