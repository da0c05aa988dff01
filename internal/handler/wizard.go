package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"SkinCoach/internal/middleware"
	"SkinCoach/internal/model/dto"
	"SkinCoach/internal/service"
	"SkinCoach/internal/wizard"
	"SkinCoach/pkg/errors"
	"SkinCoach/pkg/logger"
	"SkinCoach/pkg/response"
	"SkinCoach/pkg/token"
)

// CreateWizardSession 页面加载时创建向导会话并签发会话令牌
// POST /v1/wizard/sessions?profile_id=&payment_success=&payment_canceled=
func CreateWizardSession(ctx context.Context, c *app.RequestContext) {
	var req dto.CreateSessionRequest
	if err := c.BindQuery(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	entry := wizard.EntryParams{
		ProfileID:       req.ProfileID,
		PaymentSuccess:  queryFlag(req.PaymentSuccess),
		PaymentCanceled: queryFlag(req.PaymentCanceled),
	}

	snap, err := service.Onboarding().CreateSession(ctx, entry)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	accessToken, expiresIn, err := token.GenerateSessionToken(snap.SessionID)
	if err != nil {
		logger.Logger.Error("Failed to issue session token",
			zap.String("session_id", snap.SessionID),
			zap.Error(err),
		)
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, dto.CreateSessionData{
		Session:     *snap,
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	})
}

// GetWizardSession 当前会话快照
// GET /v1/wizard/sessions/me
func GetWizardSession(ctx context.Context, c *app.RequestContext) {
	sessionID, ok := middleware.GetSessionID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	snap, err := service.Onboarding().GetSession(ctx, sessionID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, snap)
}

// DeleteWizardSession 离开页面时销毁会话
// DELETE /v1/wizard/sessions/me
func DeleteWizardSession(ctx context.Context, c *app.RequestContext) {
	sessionID, ok := middleware.GetSessionID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	if err := service.Onboarding().DeleteSession(ctx, sessionID); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.NoContent(ctx, c)
}

// SubmitCurrentStep 提交当前步骤，请求体按步骤类型解析
// POST /v1/wizard/sessions/me/steps/current
func SubmitCurrentStep(ctx context.Context, c *app.RequestContext) {
	sessionID, ok := middleware.GetSessionID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	data, err := service.Onboarding().SubmitCurrent(ctx, sessionID, c.Request.Body())
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, data)
}

// BackWizardStep 后退一步
// POST /v1/wizard/sessions/me/back
func BackWizardStep(ctx context.Context, c *app.RequestContext) {
	sessionID, ok := middleware.GetSessionID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	snap, err := service.Onboarding().Back(ctx, sessionID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, snap)
}

// queryFlag 支付页回跳带 "true"，其他值一律视为未设置
func queryFlag(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
