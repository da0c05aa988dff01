package errors

import (
	stderrors "errors"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// WithMessage 复制一份并替换提示信息，错误码不变
func (d Definition) WithMessage(message string) Definition {
	d.Message = message
	return d
}

// Is 按错误码比较，WithMessage 之后仍能 errors.Is
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	return ok && t.Code == d.Code
}

// DetailedError 附带 details 的业务错误，响应时原样输出到 error.details
type DetailedError struct {
	Definition
	Details map[string]interface{}
}

// WithDetails 附加响应 details
func (d Definition) WithDetails(details map[string]interface{}) *DetailedError {
	return &DetailedError{Definition: d, Details: details}
}

func (e *DetailedError) Unwrap() error {
	return e.Definition
}

func (e *DetailedError) ErrorDetails() map[string]interface{} {
	return e.Details
}

// 通用错误。
var (
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	InternalError   = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}
)

// 向导会话错误。
var (
	WizardSessionNotFound = Definition{Code: "WIZARD_SESSION_NOT_FOUND", Message: "Wizard session not found or expired"}
	WizardSessionBusy     = Definition{Code: "WIZARD_SESSION_BUSY", Message: "A step submission is already in progress"}
	ProfileRequired       = Definition{Code: "PROFILE_REQUIRED", Message: "Complete your personal details first"}
)

// 引导流程错误。
var (
	OnboardingStepInvalid      = Definition{Code: "ONBOARDING_STEP_INVALID", Message: "Onboarding step invalid"}
	OnboardingAlreadyCompleted = Definition{Code: "ONBOARDING_ALREADY_COMPLETED", Message: "Onboarding is already complete"}
	ValidationFailed           = Definition{Code: "VALIDATION_FAILED", Message: "Please check the highlighted fields"}
	UserAlreadyExists          = Definition{Code: "USER_ALREADY_EXISTS", Message: "An account with these details already exists"}
	BookingEventInvalid        = Definition{Code: "BOOKING_EVENT_INVALID", Message: "Booking event invalid"}
)

// 资料服务错误，4xx 时 Message 会被替换为远端原文。
var (
	ProfileCreateFailed    = Definition{Code: "PROFILE_CREATE_FAILED", Message: "Failed to create profile"}
	ProfileUpdateFailed    = Definition{Code: "PROFILE_UPDATE_FAILED", Message: "Failed to update profile"}
	ProfileFetchFailed     = Definition{Code: "PROFILE_FETCH_FAILED", Message: "Failed to fetch profile"}
	ExistenceCheckFailed   = Definition{Code: "EXISTENCE_CHECK_FAILED", Message: "Failed to check user existence"}
	ProfileNotFound        = Definition{Code: "PROFILE_NOT_FOUND", Message: "Profile not found"}
	ProfileRequestRejected = Definition{Code: "PROFILE_REQUEST_REJECTED", Message: "Profile request rejected"}
	ProfileConflict        = Definition{Code: "PROFILE_CONFLICT", Message: "Profile conflict"}
)

// 支付错误。
var (
	CheckoutFailed          = Definition{Code: "CHECKOUT_FAILED", Message: "Failed to start checkout"}
	SubscriptionUnconfirmed = Definition{Code: "SUBSCRIPTION_UNCONFIRMED", Message: "We were unable to confirm your subscription. Please try again."}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:             InvalidRequest,
	Unauthorized.Code:               Unauthorized,
	TooManyRequests.Code:            TooManyRequests,
	InternalError.Code:              InternalError,
	WizardSessionNotFound.Code:      WizardSessionNotFound,
	WizardSessionBusy.Code:          WizardSessionBusy,
	ProfileRequired.Code:            ProfileRequired,
	OnboardingStepInvalid.Code:      OnboardingStepInvalid,
	OnboardingAlreadyCompleted.Code: OnboardingAlreadyCompleted,
	ValidationFailed.Code:           ValidationFailed,
	UserAlreadyExists.Code:          UserAlreadyExists,
	BookingEventInvalid.Code:        BookingEventInvalid,
	ProfileCreateFailed.Code:        ProfileCreateFailed,
	ProfileUpdateFailed.Code:        ProfileUpdateFailed,
	ProfileFetchFailed.Code:         ProfileFetchFailed,
	ExistenceCheckFailed.Code:       ExistenceCheckFailed,
	ProfileNotFound.Code:            ProfileNotFound,
	ProfileRequestRejected.Code:     ProfileRequestRejected,
	ProfileConflict.Code:            ProfileConflict,
	CheckoutFailed.Code:             CheckoutFailed,
	SubscriptionUnconfirmed.Code:    SubscriptionUnconfirmed,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// 令牌相关
var (
	ErrTokenGeneratorNotInitialized = stderrors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = stderrors.New("unexpected signing method")
	ErrInvalidToken                 = stderrors.New("invalid token")
	ErrInvalidTokenClaims           = stderrors.New("invalid token claims")
)

// SkipMessageError 消费端返回此错误表示消息无需重试
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

// IsSkipMessageError 判断是否为可跳过的消息错误
func IsSkipMessageError(err error) bool {
	var skip *SkipMessageError
	return stderrors.As(err, &skip)
}
