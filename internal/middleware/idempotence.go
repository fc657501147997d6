package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/briefly-app/core/internal/pkg/redis"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	IdempotenceHeader = "Idempotency-Key"
	idempotenceTTL    = 60 * time.Second

	idempotencePending = "0"
	idempotenceDone    = "1"
)

// Idempotence rejects a replay of a mutating request that carries the same
// Idempotency-Key header as one that is in flight or succeeded within the
// last minute. Requests without the header are never deduplicated here, so
// identical summarize calls still reach the summary cache.
func Idempotence(rdb *redis.Client, prefix string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader(IdempotenceHeader))
		if key == "" {
			c.Next()
			return
		}

		redisKey := fmt.Sprintf("%s:idempotence:%s:%s", prefix, CurrentUserID(c), key)
		ctx := c.Request.Context()

		acquired, err := rdb.SetNX(ctx, redisKey, idempotencePending, idempotenceTTL)
		if err != nil {
			log.Warn("idempotence unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			msg := "an identical request already succeeded"
			if val, _, _ := rdb.Get(ctx, redisKey); val == idempotencePending {
				msg = "an identical request is still being processed"
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"ok":      0,
				"code":    http.StatusConflict,
				"message": msg,
			})
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			ttl, err := rdb.TTL(ctx, redisKey)
			if err != nil || ttl <= 0 {
				ttl = idempotenceTTL
			}
			_ = rdb.Set(ctx, redisKey, idempotenceDone, ttl)
		} else {
			_ = rdb.Del(ctx, redisKey)
		}
	}
}
