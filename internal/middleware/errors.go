package middleware

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/khscrm/api/internal/apperror"
)

// ErrorHandler is the single boundary that turns application errors into
// HTTP responses. Handlers attach errors with c.Error and abort; nothing
// below this middleware writes an error body directly.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperror.Error
		if !errors.As(err, &appErr) {
			// Unexpected failure: log it, surface a generic 500.
			log.Printf("unhandled error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			appErr = apperror.Internal()
		} else if appErr.Status >= 500 {
			log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		}

		c.JSON(appErr.Status, gin.H{"error": appErr})
	}
}
