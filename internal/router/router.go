package router

import (
	"github.com/cloudwego/hertz/pkg/route"

	"SkinCoach/internal/handler"
	"SkinCoach/internal/middleware"
)

// Register 注册全部路由；server.Hertz 传 h.Engine，测试里直接传 route.Engine
func Register(r *route.Engine) {
	r.Use(middleware.RecoverMiddleware())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.OpenTelemetryMiddleware())
	// 无 cookie 会话，令牌只走 Authorization 头，不需要 csrf 中间件

	r.GET("/healthz", handler.Healthz)

	v1 := r.Group("/v1")

	// 向导会话路由
	wizard := v1.Group("/wizard/sessions")
	{
		wizard.POST("", middleware.SessionCreateRateLimitMiddleware(), handler.CreateWizardSession)

		me := wizard.Group("/me")
		me.Use(middleware.AuthMiddleware()) // 会话令牌鉴权
		me.Use(middleware.GeneralRateLimitMiddleware())
		{
			me.GET("", handler.GetWizardSession)
			me.DELETE("", handler.DeleteWizardSession)
			me.POST("/steps/current", handler.SubmitCurrentStep)
			me.POST("/back", handler.BackWizardStep)
		}
	}

	// 资料相关路由
	profiles := v1.Group("/profiles")
	{
		profiles.GET("/exists", middleware.ExistenceRateLimitMiddleware(), handler.CheckProfileExistence)
		profiles.GET("/:profile_id/progress", handler.GetOnboardingProgress)
	}
}
