package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/blog-backend/internal/pkg/errors"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/redis"
	"github.com/lk2023060901/blog-backend/internal/pkg/response"
	"go.uber.org/zap"
)

// RateLimiterConfig sliding window limit per client IP
type RateLimiterConfig struct {
	Name        string // key namespace, e.g. "login"
	MaxRequests int
	Window      time.Duration
}

// slidingWindow trims the window, then admits and records the request while
// under the limit. Returns {allowed, remaining, reset_unix_ms}.
const slidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local current = redis.call('ZCARD', key)

if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	return {1, limit - current - 1, now + window}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')[2]
return {0, 0, tonumber(oldest) + window}
`

// RateLimiter limits requests per client IP using Redis. A nil client
// disables the limiter and a Redis failure lets the request through.
func RateLimiter(client *redis.Client, cfg RateLimiterConfig, log *logger.Logger) gin.HandlerFunc {
	if client == nil || cfg.MaxRequests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Name == "" {
		cfg.Name = "api"
	}

	return func(c *gin.Context) {
		key := client.Key("rate_limit", cfg.Name, c.ClientIP())

		allowed, remaining, reset, err := checkRateLimit(c.Request.Context(), client, key, cfg)
		if err != nil {
			log.WithContext(c.Request.Context()).Error("rate limiter error", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			retry := max(time.Until(reset), time.Second)
			c.Header("Retry-After", strconv.Itoa(int(retry.Round(time.Second)/time.Second)))
			response.ErrorWithCode(c, apperrors.ErrTooManyRequests, fmt.Sprintf("retry in %s", retry.Round(time.Second)))
			return
		}
		c.Next()
	}
}

func checkRateLimit(ctx context.Context, client *redis.Client, key string, cfg RateLimiterConfig) (bool, int, time.Time, error) {
	now := time.Now()
	result, err := client.Eval(ctx, slidingWindow, []string{key},
		now.UnixMilli(), cfg.Window.Milliseconds(), cfg.MaxRequests, strconv.FormatInt(now.UnixNano(), 10))
	if err != nil {
		return false, 0, time.Time{}, err
	}

	values, ok := result.([]any)
	if !ok || len(values) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected rate limit result %v", result)
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	reset, _ := values[2].(int64)
	return allowed == 1, int(remaining), time.UnixMilli(reset), nil
}

// LoginRateLimiter is the limiter in front of the login endpoint
func LoginRateLimiter(client *redis.Client, maxAttempts int, window time.Duration, log *logger.Logger) gin.HandlerFunc {
	return RateLimiter(client, RateLimiterConfig{
		Name:        "login",
		MaxRequests: maxAttempts,
		Window:      window,
	}, log)
}
