package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/route"

	"fitcoach/internal/handler"
	"fitcoach/internal/middleware"
	"fitcoach/internal/service"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Onboarding *handler.OnboardingHandler
	Profile    *handler.ProfileHandler
}

// Register 使用全局服务注册路由，需在 storage.Init 之后调用
func Register(h *server.Hertz) {
	Setup(h.Engine, Handlers{
		Onboarding: handler.NewOnboardingHandler(service.Onboarding()),
		Profile:    handler.NewProfileHandler(service.Profile()),
	})
}

func Setup(r *route.Engine, hs Handlers) {
	r.Use(middleware.RecoverMiddleware())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/healthz", handler.Healthz)

	v1 := r.Group("/v1")

	// 引导流程路由，按用户限流
	onb := v1.Group("/onboarding")
	onb.Use(middleware.IdentityMiddleware())
	onb.Use(middleware.RateLimitMiddleware(middleware.OnboardingRateLimitConfig()))
	{
		onb.GET("/options", hs.Onboarding.Options)
		onb.POST("", hs.Onboarding.Start)
		onb.GET("/:session_id", hs.Onboarding.Get)
		onb.DELETE("/:session_id", hs.Onboarding.Abandon)
		onb.PATCH("/:session_id/fields", hs.Onboarding.UpdateField)
		onb.POST("/:session_id/toggle", hs.Onboarding.Toggle)
		onb.POST("/:session_id/next", hs.Onboarding.Next)
		onb.POST("/:session_id/previous", hs.Onboarding.Previous)
		onb.POST("/:session_id/complete", hs.Onboarding.Complete)
	}

	profiles := v1.Group("/profiles")
	profiles.Use(middleware.IdentityMiddleware())
	{
		profiles.GET("/me", hs.Profile.GetMyProfile)
	}
}
