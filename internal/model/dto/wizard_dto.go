package dto

import (
	"time"

	"SkinCoach/internal/model"
	"SkinCoach/internal/wizard"
)

// ========== 向导会话相关 DTO ==========

// CreateSessionRequest 页面加载时的查询参数
type CreateSessionRequest struct {
	ProfileID       string `query:"profile_id"`
	PaymentSuccess  string `query:"payment_success"`
	PaymentCanceled string `query:"payment_canceled"`
}

// CreateSessionData 创建会话响应，令牌用于后续 /me 接口
type CreateSessionData struct {
	Session     SessionSnapshot `json:"session"`
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int             `json:"expires_in"`
}

// SessionSnapshot 前端渲染当前步骤所需的全部状态
type SessionSnapshot struct {
	UpdatedAt      time.Time            `json:"updated_at"`
	SessionID      string               `json:"session_id"`
	ProfileID      string               `json:"profile_id,omitempty"`
	PaymentStatus  wizard.PaymentStatus `json:"payment_status,omitempty"`
	PaymentMode    string               `json:"payment_mode"`
	Current        wizard.StepMeta      `json:"current_step"`
	Steps          []wizard.StepMeta    `json:"steps"`
	CompletedSteps []model.StepID       `json:"completed_steps"`
	Form           model.FormValues     `json:"form"`
	CurrentIndex   int                  `json:"current_index"`
	Total          int                  `json:"total"`
	// IsLast 前端据此把"下一步"换成"完成"
	IsLast      bool `json:"is_last"`
	IsCompleted bool `json:"is_completed"`
}

// BookingResult 预约完成的结果，重复事件返回 duplicate
type BookingResult struct {
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	EventURI    string     `json:"event_uri,omitempty"`
	InviteeURI  string     `json:"invitee_uri"`
}

const (
	BookingConfirmed = "confirmed"
	BookingDuplicate = "duplicate"
)

// StepOutcome 一次步骤提交的结果
type StepOutcome struct {
	Booking      *BookingResult `json:"booking,omitempty"`
	Step         model.StepID   `json:"step"`
	CheckoutURL  string         `json:"checkout_url,omitempty"`
	ClientSecret string         `json:"client_secret,omitempty"`
	// Advanced 远端调用成功且向导已前进
	Advanced bool `json:"advanced"`
	// Completed 本次提交让该步骤进入 completedSteps
	Completed bool `json:"completed"`
	Finished  bool `json:"finished"`
}

// SubmitStepData 提交步骤响应
type SubmitStepData struct {
	Outcome StepOutcome     `json:"outcome"`
	Session SessionSnapshot `json:"session"`
}

// ExistenceQuery 存在性检查查询参数
type ExistenceQuery struct {
	Email       string `query:"email"`
	PhoneNumber string `query:"phone_number"`
}
