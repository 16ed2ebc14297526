package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"election-platform/internal/audit"
	"election-platform/internal/auth"
	"election-platform/pkg/logger"
)

// Origin attaches the caller's address and user agent for audit entries.
// c.ClientIP honours the engine's trusted proxy settings.
func Origin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithOrigin(c.Request.Context(), audit.Origin{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CastLimiter caps how many casts one voter may have running at once.
// utils.CastSlots is the Redis-backed implementation.
type CastLimiter interface {
	Acquire(ctx context.Context, voterID string) (bool, error)
	Release(ctx context.Context, voterID string) error
}

// LimitInflightCasts rejects a voter's cast with 429 while their previous
// casts are still running. Duplicate votes are stopped by the database either
// way; this only sheds request floods. If the limiter is unreachable the
// request proceeds.
func LimitInflightCasts(l CastLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}
		ok, err := l.Acquire(c.Request.Context(), uid)
		if err != nil {
			logger.FromGin(c).Warn("cast limiter unavailable", "err", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "cast already in progress", "code": "too_many_requests"})
			return
		}
		defer func() {
			if err := l.Release(context.WithoutCancel(c.Request.Context()), uid); err != nil {
				logger.FromGin(c).Warn("cast limiter release failed", "err", err)
			}
		}()
		c.Next()
	}
}
