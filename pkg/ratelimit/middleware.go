package ratelimit

import (
	"net/http"
	"slices"
	"strconv"

	"eventdraw/internal/shared/utils/response"
	"eventdraw/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Middleware limits requests in scope per authenticated user, falling back to client IP.
// The client IP comes from gin, so forwarding headers only count when the engine trusts the proxy.
func Middleware(limiter Limiter, scope string, whitelist []string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if slices.Contains(whitelist, clientIP) {
			c.Next()
			return
		}

		identity := c.GetString("user_id")
		if identity == "" {
			identity = "ip:" + clientIP
		}

		result, err := limiter.Allow(c.Request.Context(), scope, identity)
		if err != nil {
			// fail open: a limiter outage must not block joins
			log.ErrorWithContext(c.Request.Context(), "rate limit check failed", err, map[string]interface{}{"scope": scope})
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime, 10))

		if !result.Allowed {
			log.LogRateLimitExceeded(c.Request.Context(), identity, c.FullPath())
			response.RespondError(c, http.StatusTooManyRequests, "Rate limit exceeded", map[string]interface{}{
				"limit":      result.Limit,
				"reset_time": result.ResetTime,
			})
			return
		}

		c.Next()
	}
}
