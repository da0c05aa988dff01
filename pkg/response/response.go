package response

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"SkinCoach/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// detailer 能够提供 details 的错误，如字段校验错误
type detailer interface {
	ErrorDetails() map[string]interface{}
}

func errorToHTTPStatus(def errors.Definition, ok bool) int {
	if !ok {
		return http.StatusInternalServerError
	}

	// 根据错误码映射 HTTP 状态码
	switch def.Code {
	case errors.ValidationFailed.Code:
		return http.StatusUnprocessableEntity // 422
	case errors.Unauthorized.Code:
		return http.StatusUnauthorized // 401
	case errors.TooManyRequests.Code:
		return http.StatusTooManyRequests // 429
	case errors.WizardSessionNotFound.Code, errors.ProfileNotFound.Code:
		return http.StatusNotFound // 404
	case errors.WizardSessionBusy.Code, errors.ProfileConflict.Code,
		errors.UserAlreadyExists.Code, errors.OnboardingAlreadyCompleted.Code,
		errors.SubscriptionUnconfirmed.Code:
		return http.StatusConflict // 409
	case errors.InvalidRequest.Code, errors.OnboardingStepInvalid.Code,
		errors.ProfileRequired.Code, errors.ProfileRequestRejected.Code,
		errors.BookingEventInvalid.Code:
		return http.StatusBadRequest // 400
	case errors.ProfileCreateFailed.Code, errors.ProfileUpdateFailed.Code,
		errors.ProfileFetchFailed.Code, errors.ExistenceCheckFailed.Code,
		errors.CheckoutFailed.Code:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// Resolve 把任意错误解析为状态码与响应体，未知错误不向外暴露原始信息
func Resolve(err error) (int, ErrorDetail) {
	var def errors.Definition
	ok := stderrors.As(err, &def)

	detail := ErrorDetail{
		Code:    errors.InternalError.Code,
		Message: errors.InternalError.Message,
	}
	if ok {
		detail.Code = def.Code
		detail.Message = def.Message
	}

	var d detailer
	if stderrors.As(err, &d) {
		detail.Details = d.ErrorDetails()
	}

	return errorToHTTPStatus(def, ok), detail
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	status, detail := Resolve(err)
	c.JSON(status, ErrorResponse{Error: detail})
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	status, detail := Resolve(err)
	detail.Details = details
	c.JSON(status, ErrorResponse{Error: detail})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

// Created 返回 201
func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data: data,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}

// NoContent 返回 204 No Content（用于 DELETE 等操作）
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
