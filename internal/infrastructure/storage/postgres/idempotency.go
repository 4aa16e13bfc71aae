package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"canteiro/internal/core/apperror"
	"canteiro/internal/domain"
)

type idempotencyStatus string

const (
	idempotencyPending idempotencyStatus = "pending"
	idempotencySuccess idempotencyStatus = "success"
	idempotencyFailed  idempotencyStatus = "failed"

	// A pending key older than this belongs to a request that died.
	stalePendingAfter = time.Minute
)

var _ domain.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore keeps request outcomes in sys_idempotency.
type IdempotencyStore struct {
	txm *TxManager
	ttl time.Duration
}

// NewIdempotencyStore creates the store; records expire after ttl.
func NewIdempotencyStore(txm *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{txm: txm, ttl: ttl}
}

type idempotencyRecord struct {
	Inserted    bool              `db:"inserted"`
	Actor       string            `db:"actor"`
	Operation   string            `db:"operation"`
	Status      idempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	UpdatedAt   time.Time         `db:"updated_at"`
}

func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, actor, operation, requestHash string) (*domain.IdempotencyReplay, error) {
	now := time.Now().UTC()
	var rec idempotencyRecord
	err := s.txm.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, actor, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET expires_at = GREATEST(sys_idempotency.expires_at, EXCLUDED.expires_at)
		RETURNING (xmax = 0), actor, operation, status, request_hash, response, response_status, response_content_type, updated_at
	`, key, actor, operation, idempotencyPending, requestHash, now, now.Add(s.ttl)).Scan(
		&rec.Inserted, &rec.Actor, &rec.Operation, &rec.Status, &rec.RequestHash,
		&rec.Response, &rec.StatusCode, &rec.ContentType, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if rec.Inserted {
		return nil, nil
	}

	if rec.Actor != actor || rec.Operation != operation || rec.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("storedOperation", rec.Operation).
			WithDetail("requestOperation", operation)
	}

	switch rec.Status {
	case idempotencySuccess, idempotencyFailed:
		return replayOf(rec.StatusCode, rec.ContentType, rec.Response), nil
	default:
		if now.Sub(rec.UpdatedAt) <= stalePendingAfter {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		tag, err := s.txm.GetQuerier(ctx).Exec(ctx, `
			UPDATE sys_idempotency SET updated_at = $1
			WHERE idempotency_key = $2 AND status = $3 AND updated_at = $4
		`, now, key, idempotencyPending, rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("reclaim stale key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		return nil, nil
	}
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status idempotencyStatus, statusCode int, contentType string, body []byte) error {
	_, err := s.txm.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1, response = $2, response_status = $3, response_content_type = $4, updated_at = $5
		WHERE idempotency_key = $6
	`, status, body, statusCode, contentType, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("finish idempotency key: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(ctx, key, idempotencySuccess, statusCode, contentType, body)
}

func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(ctx, key, idempotencyFailed, statusCode, contentType, body)
}

// CleanupExpired removes expired records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, `DELETE FROM sys_idempotency WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func replayOf(status int, contentType string, body []byte) *domain.IdempotencyReplay {
	if status == 0 {
		status = http.StatusOK
	}
	if contentType == "" {
		contentType = "application/json"
	}
	return &domain.IdempotencyReplay{StatusCode: status, ContentType: contentType, Body: body}
}
