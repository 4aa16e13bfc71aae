package domain

import (
	"context"

	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
)

// ReportInvalidator drops cached report aggregates after a committed write.
type ReportInvalidator interface {
	Invalidate(ctx context.Context, materialID id.ID, projectIDs ...id.ID) error
}

// Recorder receives operational counters.
type Recorder interface {
	MovementRecorded(t entity.MovementType, q types.Quantity)
	ConflictRetried(operation string)
	DriftDetected(kind string)
}

// NopInvalidator is used when no report cache is configured.
type NopInvalidator struct{}

func (NopInvalidator) Invalidate(context.Context, id.ID, ...id.ID) error { return nil }

// NopRecorder discards counters.
type NopRecorder struct{}

func (NopRecorder) MovementRecorded(entity.MovementType, types.Quantity) {}
func (NopRecorder) ConflictRetried(string)                               {}
func (NopRecorder) DriftDetected(string)                                 {}

// IdempotencyReplay is a stored response returned for a repeated request.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore remembers the outcome of mutating requests by key.
//
// AcquireKey returns (nil, nil) when the caller owns the key and must run
// the request, or a replay when the key already completed.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, actor, operation, requestHash string) (*IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
}
