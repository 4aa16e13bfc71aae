package memory

import (
	"context"
	"sync"
	"time"

	"canteiro/internal/core/apperror"
	"canteiro/internal/domain"
)

var _ domain.IdempotencyStore = (*IdempotencyStore)(nil)

type idempotencyRecord struct {
	actor, operation, hash string
	done                   bool
	replay                 domain.IdempotencyReplay
	expiresAt              time.Time
}

// IdempotencyStore keeps request outcomes in process memory.
type IdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*idempotencyRecord
	now     func() time.Time
}

// NewIdempotencyStore creates a store whose records expire after ttl.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{ttl: ttl, records: make(map[string]*idempotencyRecord), now: time.Now}
}

func (s *IdempotencyStore) AcquireKey(_ context.Context, key, actor, operation, requestHash string) (*domain.IdempotencyReplay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[key]
	if !ok || now.After(rec.expiresAt) {
		s.records[key] = &idempotencyRecord{actor: actor, operation: operation, hash: requestHash, expiresAt: now.Add(s.ttl)}
		return nil, nil
	}
	if rec.actor != actor || rec.operation != operation || rec.hash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key)
	}
	if !rec.done {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	replay := rec.replay
	return &replay, nil
}

func (s *IdempotencyStore) finish(key string, statusCode int, contentType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		rec.done = true
		rec.replay = domain.IdempotencyReplay{StatusCode: statusCode, ContentType: contentType, Body: body}
	}
	return nil
}

func (s *IdempotencyStore) CompleteKey(_ context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(key, statusCode, contentType, body)
}

func (s *IdempotencyStore) FailKey(_ context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(key, statusCode, contentType, body)
}
