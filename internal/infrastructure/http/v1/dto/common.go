// Package dto provides the request and response shapes of the v1 API.
package dto

import (
	"fmt"
	"strings"
	"time"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/id"
)

// --- Pagination ---

// PageQuery is the limit/offset pair shared by list endpoints.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewListResponse never returns a null items array.
func NewListResponse[T any](items []T, page PageQuery) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: page.Limit, Offset: page.Offset}
}

// --- Error Response ---

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- Parsing helpers ---

// parseRef parses an optional id query parameter.
func parseRef(field, raw string) (*id.ID, error) {
	v, err := id.ParseOptional(raw)
	if err != nil {
		return nil, apperror.NewValidation(fmt.Sprintf("%s must be a UUID", field)).WithDetail(field, raw)
	}
	return v, nil
}

// parseTime accepts RFC 3339 timestamps and plain dates (midnight UTC).
func parseTime(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperror.NewValidation(fmt.Sprintf("%s must be an RFC 3339 timestamp or a date", field)).
		WithDetail(field, raw)
}
