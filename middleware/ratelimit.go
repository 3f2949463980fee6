package middleware

import (
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	config "github.com/phillip/volunteer-listings-go/config"
)

// tokenBucket refills and takes one token atomically.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

local elapsed = math.max(0, now_ms - last_refill)
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
	tokens = math.min(capacity, tokens + (intervals * refill_tokens))
	last_refill = last_refill + (intervals * interval_ms)
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// RateLimit is a Redis token bucket keyed by client IP and route. A nil
// client or a disabled config lets every request through, as does a Redis
// error.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client) gin.HandlerFunc {
	if !cfg.Enabled || rdb == nil {
		return func(c *gin.Context) { c.Next() }
	}
	cfg = cfg.Normalize()

	return func(c *gin.Context) {
		key := rateKey(cfg.Prefix, c)
		args := []any{
			time.Now().UnixMilli(),
			cfg.Capacity,
			cfg.RefillTokens,
			cfg.RefillInterval.Milliseconds(),
			int64(cfg.TTL / time.Second),
		}
		vals, err := tokenBucket.Run(c.Request.Context(), rdb, []string{key}, args...).Slice()
		if err != nil || len(vals) != 3 {
			log.Printf("ratelimit: key=%s: %v", key, err)
			c.Next()
			return
		}

		remaining := asInt64(vals[1])
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if asInt64(vals[0]) != 1 {
			secs := int(math.Ceil(float64(asInt64(vals[2])) / 1000))
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
			return
		}
		c.Next()
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

func rateKey(prefix string, c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return strings.Join([]string{prefix, "ip", ip, "route", c.FullPath()}, ":")
}
