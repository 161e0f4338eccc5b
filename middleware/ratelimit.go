package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// enforceWindow counts the request against a Redis fixed window and
// answers 429 when the limit is spent. Returns false when the request
// was rejected. Redis being down fails open; limiting is protection,
// not a dependency.
func enforceWindow(c *gin.Context, rdb *redis.Client, key string, limit, windowSecs int, details gin.H) bool {
	ctx := context.Background()
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return true
	}

	if count == 1 {
		rdb.Expire(ctx, key, time.Duration(windowSecs)*time.Second)
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))

	if count > int64(limit) {
		c.Header("X-RateLimit-Remaining", "0")
		c.Header("X-RateLimit-Reset", strconv.FormatInt(
			time.Now().Add(time.Duration(windowSecs)*time.Second).Unix(), 10))

		if details == nil {
			details = gin.H{}
		}
		details["retry_after"] = windowSecs
		details["limit"] = limit

		utils.RespondWithError(c, http.StatusTooManyRequests,
			"rate_limit_exceeded",
			"Too many requests. Please try again later.", details)
		c.Abort()
		return false
	}

	c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
	return true
}

// RateLimitMiddleware limits requests per IP and endpoint. Applied
// globally; health probes are exempt so orchestrators never get throttled.
func RateLimitMiddleware(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == "/health" || c.FullPath() == "/ready" {
			c.Next()
			return
		}

		key := "ratelimit:" + c.ClientIP() + ":" + c.FullPath()
		if enforceWindow(c, rdb, key, cfg.RateLimitReqs, cfg.RateLimitWindow, nil) {
			c.Next()
		}
	}
}

// RoleBasedRateLimit guards model-backed endpoints (deck builds, corpus
// Q&A) with per-role budgets. Admins get headroom for operational work;
// anonymous traffic gets the base limit.
func RoleBasedRateLimit(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)

		limit := cfg.RateLimitReqs
		switch role {
		case "superadmin", "admin":
			limit *= 10
		case "member":
			limit *= 2
		}

		key := "ratelimit:" + role + ":" + c.ClientIP() + ":" + c.FullPath()
		if enforceWindow(c, rdb, key, limit, cfg.RateLimitWindow, gin.H{"role": role}) {
			c.Next()
		}
	}
}
