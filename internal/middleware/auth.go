package middleware

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	"SkinCoach/pkg/errors"
	"SkinCoach/pkg/response"
	"SkinCoach/pkg/token"
)

const (
	IdentityKey = token.IdentityKey
)

var (
	authMiddleware *jwt.HertzJWTMiddleware
)

func initAuthMiddleware() error {
	// 使用 token 包中共享的生成器
	sharedGenerator := token.GetGenerator()
	if sharedGenerator == nil {
		return fmt.Errorf("token generator not initialized, call token.Init() first")
	}

	// 走 jwt.New 补齐签名算法等默认值
	mw, err := jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "SkinCoach Onboarding",
		Key:         sharedGenerator.Key,
		Timeout:     sharedGenerator.Timeout,
		MaxRefresh:  sharedGenerator.MaxRefresh,
		IdentityKey: sharedGenerator.IdentityKey,
		TimeFunc:    sharedGenerator.TimeFunc,

		// 令牌里只有会话 ID
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			sid, ok := claims[IdentityKey].(string)
			if !ok || sid == "" {
				return nil
			}
			return sid
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			response.Error(ctx, c, errors.Unauthorized.WithMessage(message))
		},

		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize auth middleware: %w", err)
	}

	authMiddleware = mw
	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// GetSessionID 从请求上下文中获取向导会话 ID
func GetSessionID(ctx context.Context, c *app.RequestContext) (string, bool) {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	sid, ok := value.(string)
	if !ok || sid == "" {
		return "", false
	}

	return sid, true
}
