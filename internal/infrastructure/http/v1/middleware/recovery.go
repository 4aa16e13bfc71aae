// Package middleware provides the gin middleware of the v1 API.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"canteiro/internal/core/apperror"
	"canteiro/pkg/logger"
)

// Recovery turns a panic into an INTERNAL_ERROR response. The stack is logged.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", r,
					"stack", string(debug.Stack()),
				)
				_ = c.Error(
					apperror.NewInternal(fmt.Errorf("panic: %v", r)).
						WithDetail("request_id", c.GetString(keyRequestID)),
				)
				c.Abort()
			}
		}()
		c.Next()
	}
}
