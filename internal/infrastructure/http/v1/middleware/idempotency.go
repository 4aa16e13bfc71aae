package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"canteiro/internal/core/apperror"
	appctx "canteiro/internal/core/context"
	"canteiro/internal/domain"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"

	maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

	keyIdempotencyKey   = "idempotency_key"
	keyIdempotencyStore = "idempotency_store"
)

// Idempotency replays the stored response of a POST carrying an
// X-Idempotency-Key that was already answered. The key is scoped to the actor
// and route, and the body hash must match the first request.
func Idempotency(store domain.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1))
		if err != nil {
			_ = c.Error(apperror.NewValidation("unreadable request body"))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		sum := sha256.Sum256(body)
		operation := c.Request.Method + " " + c.FullPath()
		actor := appctx.GetSubject(c.Request.Context())

		replay, err := store.AcquireKey(c.Request.Context(), key, actor, operation, hex.EncodeToString(sum[:]))
		if err != nil {
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}
		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(keyIdempotencyKey, key)
		c.Set(keyIdempotencyStore, store)
		c.Next()
	}
}

// IdempotencyFrom returns the key acquired for this request, if any.
func IdempotencyFrom(c *gin.Context) (string, domain.IdempotencyStore, bool) {
	key := c.GetString(keyIdempotencyKey)
	if key == "" {
		return "", nil, false
	}
	v, ok := c.Get(keyIdempotencyStore)
	if !ok {
		return "", nil, false
	}
	store, ok := v.(domain.IdempotencyStore)
	return key, store, ok && store != nil
}
