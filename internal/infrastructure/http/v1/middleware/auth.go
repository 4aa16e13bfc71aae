package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"canteiro/internal/core/apperror"
	appctx "canteiro/internal/core/context"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*appctx.Actor, error)
}

// Auth resolves the bearer token into an Actor. With required unset, a
// request without an Authorization header passes anonymously, but a header
// that is present must still be valid.
func Auth(verifier TokenVerifier, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || verifier == nil {
			if required {
				abortUnauthorized(c, "missing authorization header")
				return
			}
			c.Next()
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		actor, err := verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(appctx.WithActor(c.Request.Context(), actor))
		c.Set("subject", actor.Subject)
		c.Next()
	}
}

// RequireRole lets through only actors holding one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if appctx.GetActor(ctx) == nil {
			abortUnauthorized(c, "authentication required")
			return
		}
		for _, r := range roles {
			if appctx.HasRole(ctx, r) {
				c.Next()
				return
			}
		}
		_ = c.Error(apperror.NewForbidden("insufficient permissions").WithDetail("required_roles", roles))
		c.Abort()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
