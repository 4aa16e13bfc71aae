package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"canteiro/internal/core/apperror"
	"canteiro/internal/infrastructure/http/v1/dto"
	"canteiro/pkg/logger"
)

const contentTypeJSON = "application/json; charset=utf-8"

// ErrorHandler renders the last error registered on the context as
// {code, message, details}. Internal causes are logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		status, body := render(c, c.Errors.Last().Err)
		raw, err := json.Marshal(body)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}

		failIdempotency(c, status, raw)
		c.Data(status, contentTypeJSON, raw)
	}
}

func render(c *gin.Context, err error) (int, dto.ErrorResponse) {
	ctx := c.Request.Context()

	appErr, ok := apperror.AsAppError(err)
	if !ok {
		logger.Error(ctx, "unhandled error", "error", err)
		return http.StatusInternalServerError, dto.ErrorResponse{
			Code:    apperror.CodeInternal,
			Message: "Internal server error",
			Details: map[string]any{"request_id": c.GetString(keyRequestID)},
		}
	}

	if appErr.Err != nil {
		logger.Error(ctx, "request error",
			"code", appErr.Code,
			"cause", appErr.Err,
		)
	} else if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error(ctx, "request error", "code", appErr.Code, "message", appErr.Message)
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return status, dto.ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}
}

// failIdempotency stores the error response under the request's key so a
// retry sees the same answer. Best effort.
func failIdempotency(c *gin.Context, status int, raw []byte) {
	key, store, ok := IdempotencyFrom(c)
	if !ok {
		return
	}
	if err := store.FailKey(c.Request.Context(), key, status, contentTypeJSON, raw); err != nil {
		logger.Warn(c.Request.Context(), "idempotency fail not recorded", "key", key, "error", err)
	}
}
