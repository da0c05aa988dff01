package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"SkinCoach/config"
	"SkinCoach/pkg/errors"
	"SkinCoach/pkg/logger"
	"SkinCoach/pkg/response"
	"SkinCoach/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 限流键前缀
	KeyPrefix string
	// 错误消息
	ErrorMessage string
	// 时间窗口（秒）
	Window int
	// 时间窗口内最大请求数
	MaxRequests int
	// 阻塞时长（秒），超过限制后禁止访问的时间
	BlockDuration int
	// 是否按向导会话限流（需要认证）
	BySession bool
	// 是否按IP限流
	ByIP bool
}

// DefaultRateLimitConfig 默认限流配置，挂在所有会话接口上
var DefaultRateLimitConfig = RateLimitConfig{
	Window:        60,
	MaxRequests:   120,
	KeyPrefix:     "rate:limit",
	BySession:     true,
	ByIP:          true,
	BlockDuration: 300,
	ErrorMessage:  "Too many requests, please slow down",
}

// ExistenceRateLimitConfig 存在性检查可被用来枚举邮箱，限制更严
var ExistenceRateLimitConfig = RateLimitConfig{
	Window:        60,
	MaxRequests:   10,
	KeyPrefix:     "exists:rate",
	ByIP:          true,
	BlockDuration: 600,
	ErrorMessage:  "Too many lookups, please try again later",
}

// SessionCreateRateLimitConfig 创建会话按 IP 限流
var SessionCreateRateLimitConfig = RateLimitConfig{
	Window:        60,
	MaxRequests:   30,
	KeyPrefix:     "session:rate",
	ByIP:          true,
	BlockDuration: 300,
	ErrorMessage:  "Too many sessions started, please try again later",
}

// RateLimiter 限流器
type RateLimiter struct {
	now    func() time.Time
	config RateLimitConfig
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config: config,
		now:    time.Now,
	}
}

// getKey 生成限流键，会话优先，其次 IP
func (rl *RateLimiter) getKey(ctx context.Context, c *app.RequestContext) string {
	var identifier string

	if rl.config.BySession {
		if sid, exists := GetSessionID(ctx, c); exists {
			identifier = "session:" + sid
		}
	}

	if identifier == "" && rl.config.ByIP {
		identifier = "ip:" + c.ClientIP()
	}

	return redis.Key(rl.config.KeyPrefix, identifier)
}

func (rl *RateLimiter) blockKey(ctx context.Context, c *app.RequestContext) string {
	return redis.Key(rl.config.KeyPrefix+":block", rl.getKey(ctx, c))
}

// Allow 检查是否允许请求，使用滑动窗口算法
func (rl *RateLimiter) Allow(ctx context.Context, c *app.RequestContext) (bool, int, error) {
	key := rl.getKey(ctx, c)
	now := rl.now()
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	// zset 来实现滑动窗口限流
	pipe := redis.Client().Pipeline()

	// 移除窗口开始时间之前的所有请求记录
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))

	// 同一纳秒内的并发请求需要不同的 member
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()[:8],
	})

	zcardCmd := pipe.ZCard(ctx, key)

	pipe.Expire(ctx, key, time.Duration(rl.config.Window+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) Block(ctx context.Context, c *app.RequestContext) error {
	return redis.Client().Set(ctx, rl.blockKey(ctx, c), "1", time.Duration(rl.config.BlockDuration)*time.Second).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, c *app.RequestContext) (bool, error) {
	result, err := redis.Client().Exists(ctx, rl.blockKey(ctx, c)).Result()
	return result > 0, err
}

// RateLimitMiddleware 创建限流中间件；Redis 不可用时放行，只记日志
func RateLimitMiddleware(config RateLimitConfig) app.HandlerFunc {
	limiter := NewRateLimiter(config)
	return limiter.Handler()
}

// Handler 限流处理函数
func (rl *RateLimiter) Handler() app.HandlerFunc {
	cfg := rl.config
	tooMany := errors.TooManyRequests.WithMessage(cfg.ErrorMessage)

	return func(ctx context.Context, c *app.RequestContext) {
		blocked, err := rl.IsBlocked(ctx, c)
		if err != nil {
			logger.Logger.Warn("Failed to check block status, skipping rate limit",
				zap.String("prefix", cfg.KeyPrefix),
				zap.Error(err),
			)
			c.Next(ctx)
			return
		}

		if blocked {
			response.Error(ctx, c, tooMany)
			c.Abort()
			return
		}

		allowed, count, err := rl.Allow(ctx, c)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit, skipping",
				zap.String("prefix", cfg.KeyPrefix),
				zap.Error(err),
			)
			c.Next(ctx)
			return
		}

		remaining := cfg.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(time.Duration(cfg.Window)*time.Second).Unix(), 10))

		if !allowed {
			if err := rl.Block(ctx, c); err != nil {
				logger.Logger.Error("Failed to block client", zap.Error(err))
			}

			logger.Logger.Warn("Rate limit exceeded",
				zap.String("prefix", cfg.KeyPrefix),
				zap.String("client_ip", c.ClientIP()),
				zap.Int("count", count),
			)
			response.Error(ctx, c, tooMany)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}

// passThrough RATE_LIMIT_ENABLED=false 时使用
func passThrough(ctx context.Context, c *app.RequestContext) {
	c.Next(ctx)
}

func rateLimitOrPass(cfg RateLimitConfig) app.HandlerFunc {
	if !config.Cfg.RateLimitEnabled {
		return passThrough
	}
	return RateLimitMiddleware(cfg)
}

// GeneralRateLimitMiddleware 通用限流中间件（会话接口）
func GeneralRateLimitMiddleware() app.HandlerFunc {
	return rateLimitOrPass(DefaultRateLimitConfig)
}

// ExistenceRateLimitMiddleware 存在性检查限流
func ExistenceRateLimitMiddleware() app.HandlerFunc {
	return rateLimitOrPass(ExistenceRateLimitConfig)
}

// SessionCreateRateLimitMiddleware 创建会话限流
func SessionCreateRateLimitMiddleware() app.HandlerFunc {
	return rateLimitOrPass(SessionCreateRateLimitConfig)
}
