package handler

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"SkinCoach/internal/model/dto"
	"SkinCoach/internal/service"
	"SkinCoach/pkg/response"
)

// GetOnboardingProgress 资料的引导进度，供控制台的"继续引导"入口使用
// GET /v1/profiles/:profile_id/progress
func GetOnboardingProgress(ctx context.Context, c *app.RequestContext) {
	profileID := strings.TrimSpace(c.Param("profile_id"))

	progress, err := service.Onboarding().Progress(ctx, profileID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, progress)
}

// CheckProfileExistence 邮箱或手机号是否已注册
// GET /v1/profiles/exists?email=&phone_number=
func CheckProfileExistence(ctx context.Context, c *app.RequestContext) {
	var req dto.ExistenceQuery
	if err := c.BindQuery(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := service.Onboarding().CheckExistence(ctx,
		strings.ToLower(strings.TrimSpace(req.Email)),
		strings.TrimSpace(req.PhoneNumber),
	)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}
