package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/khscrm/api/internal/apperror"
	"github.com/khscrm/api/internal/auth"
	"github.com/khscrm/api/internal/model"
)

// Context keys set by AuthMiddleware.
const (
	CtxUserID    = "userID"
	CtxUserEmail = "userEmail"
	CtxUserRole  = "userRole"
)

// AuthMiddleware requires a valid JWT access token. Verification is
// stateless: no store lookup happens on this path.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Error(apperror.Unauthorized("authorization header required"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.Error(apperror.Unauthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := auth.ValidateAccessToken(parts[1], jwtSecret)
		if err != nil {
			c.Error(apperror.Unauthorized("invalid or expired token"))
			c.Abort()
			return
		}

		// Set user info in context
		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxUserEmail, claims.Email)
		c.Set(CtxUserRole, claims.Role)

		c.Next()
	}
}

// RequireRole gates a route on the authenticated user's role. Must run
// after AuthMiddleware.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(CtxUserRole)
		if !exists {
			c.Error(apperror.Unauthorized("authentication required"))
			c.Abort()
			return
		}

		role, ok := value.(model.Role)
		if !ok {
			c.Error(apperror.Unauthorized("authentication required"))
			c.Abort()
			return
		}

		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		c.Error(apperror.Forbidden("insufficient role for this operation"))
		c.Abort()
	}
}

// UserID returns the authenticated user's id from the request context.
func UserID(c *gin.Context) (int64, bool) {
	value, exists := c.Get(CtxUserID)
	if !exists {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}
