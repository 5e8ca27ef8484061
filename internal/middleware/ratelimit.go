package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts requests per key in the current window and
// reports whether the caller is still under the limit.
const fixedWindowScript = `
	local current = tonumber(redis.call('GET', KEYS[1]) or 0)
	local limit = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[2])

	local allowed = current < limit
	local remaining = limit - current - 1

	if allowed then
		redis.call('INCR', KEYS[1])
		if current == 0 then
			redis.call('EXPIRE', KEYS[1], ttl)
		end
	else
		remaining = -1
	end

	return {allowed and 1 or 0, remaining}
`

// RateLimit caps requests per user (per IP when unauthenticated) in
// fixed windows. Report queries fan out to ClickHouse per time bucket,
// so the report routes sit behind this. Redis errors fail open.
func RateLimit(redisClient *redis.Client, limit, windowSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString(ContextUserID)
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}
		window := time.Now().Unix() / int64(windowSeconds)
		key := fmt.Sprintf("geofleet:ratelimit:%s:%d", caller, window)

		result, err := redisClient.Eval(c.Request.Context(), fixedWindowScript,
			[]string{key}, limit, windowSeconds+1).Result()
		if err != nil {
			c.Next()
			return
		}

		values := result.([]interface{})
		allowed := values[0].(int64) == 1
		remaining := values[1].(int64)
		resetAt := (window + 1) * int64(windowSeconds)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"errcode":     "RATE_LIMIT_EXCEEDED",
				"msg":         "Too many requests",
				"retry_after": resetAt - time.Now().Unix(),
			})
			return
		}
		c.Next()
	}
}
