package middleware

import (
	"log"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/khscrm/api/internal/apperror"
	"github.com/khscrm/api/internal/limiter"
)

// RateLimit gates requests through a named fixed-window policy keyed by
// client IP. A nil limiter or a counter-backend failure fails open: losing
// Redis must not take authentication down with it.
func RateLimit(l *limiter.Limiter, p limiter.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}

		result, err := l.Check(c.Request.Context(), c.ClientIP(), p)
		if err != nil {
			log.Printf("Warning: rate limit check failed for policy %s: %v", p.Name, err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			RecordRateLimitRejection(p.Name)
			c.Error(apperror.TooManyRequests(p.Message))
			c.Abort()
			return
		}

		c.Next()
	}
}
