package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/briefly-app/core/internal/pkg/redis"
	"github.com/briefly-app/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const rateLimitWindow = time.Minute

// RateLimit enforces a fixed per-minute budget per caller. Authenticated
// callers are keyed by user id, anonymous ones by client IP. Redis errors
// let the request through.
func RateLimit(rdb *redis.Client, prefix string, perMinute int, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || perMinute <= 0 {
			c.Next()
			return
		}

		subject := CurrentUserID(c)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		window := time.Now().Unix() / int64(rateLimitWindow.Seconds())
		key := fmt.Sprintf("%s:rate_limit:%s:%s:%d", prefix, c.FullPath(), subject, window)

		count, err := rdb.IncrWindow(c.Request.Context(), key, rateLimitWindow+time.Second)
		if err != nil {
			log.Warn("rate limit unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := int64(perMinute) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(perMinute) {
			c.Header("Retry-After", strconv.Itoa(int(rateLimitWindow.Seconds())))
			response.TooManyRequests(c, "too many requests, slow down")
			return
		}
		c.Next()
	}
}
