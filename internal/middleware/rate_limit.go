package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gowork_messaging/internal/service"
	"gowork_messaging/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	limit            int
	windowSeconds    int
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, limit, windowSeconds int, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		limit:            limit,
		windowSeconds:    windowSeconds,
		log:              log,
	}
}

// Limit throttles per authenticated participant, falling back to client IP
// on unauthenticated routes.
func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if id, ok := ParticipantID(c); ok {
			key = id.String()
		}

		allowed, remaining, err := m.rateLimitService.Allow(c.Request.Context(), key, m.limit, m.windowSeconds)
		if err != nil {
			// The limiter failing open is preferable to blocking all traffic.
			m.log.Error("Rate limit check failed", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(m.limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
