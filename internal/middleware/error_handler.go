package middleware

import (
	"github.com/gin-gonic/gin"

	"gowork_messaging/pkg/errors"
)

// ErrorHandler converts errors attached to the gin context into a JSON
// response with the status derived from the error taxonomy. Retryable
// failures additionally carry a hint for the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			statusCode := errors.HTTPStatusFromError(err.Err)

			body := gin.H{"error": err.Error()}
			if errors.Retryable(err.Err) {
				body["retryable"] = true
			}

			c.JSON(statusCode, body)
		}
	}
}
