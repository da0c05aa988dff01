package wizard

import (
	"context"
	"errors"
	"time"

	"SkinCoach/internal/model"
)

var (
	ErrSessionNotFound = errors.New("wizard session not found")
	ErrSessionBusy     = errors.New("wizard session is busy")
)

// PaymentStatus 从支付页返回时的状态
type PaymentStatus string

const (
	PaymentNone      PaymentStatus = ""
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCanceled  PaymentStatus = "canceled"
)

// Session 一次页面加载对应的向导会话，只存在于会话存储中，不会写回资料服务
type Session struct {
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ID             string           `json:"id"`
	ProfileID      string           `json:"profile_id"`
	PaymentStatus  PaymentStatus    `json:"payment_status"`
	Form           model.FormValues `json:"form"`
	CompletedSteps []model.StepID   `json:"completed_steps"`
	StepIndex      int              `json:"step_index"`
	BookingEnabled bool             `json:"booking_enabled"`
	IsCompleted    bool             `json:"is_completed"`
}

// NewSession 按入口参数创建会话
func NewSession(id string, bookingEnabled bool, entry EntryParams, now time.Time) *Session {
	s := &Session{
		ID:             id,
		ProfileID:      entry.ProfileID,
		BookingEnabled: bookingEnabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	switch {
	case entry.ProfileID == "":
	case entry.PaymentSuccess:
		s.PaymentStatus = PaymentSucceeded
	case entry.PaymentCanceled:
		s.PaymentStatus = PaymentCanceled
	}

	s.StepIndex = InitialIndex(s.Steps(), entry)
	return s
}

// Steps 会话固定的步骤表
func (s *Session) Steps() []StepMeta {
	return DefaultSteps(s.BookingEnabled)
}

// Wizard 基于当前下标构造向导
func (s *Session) Wizard() *Wizard {
	return New(s.Steps(), s.StepIndex)
}

// Apply 回写向导下标
func (s *Session) Apply(w *Wizard, now time.Time) {
	s.StepIndex = w.Index()
	s.UpdatedAt = now
}

// SyncProfile 用远端最新资料刷新会话里的进度
func (s *Session) SyncProfile(p *model.UserProfile) {
	if p == nil {
		return
	}
	s.ProfileID = p.ID
	s.CompletedSteps = p.CompletedSteps
	s.IsCompleted = p.IsCompleted
}

// Store 会话存储
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// Lock 获取会话级互斥，返回的函数用于释放；已被占用时返回 ErrSessionBusy
	Lock(ctx context.Context, id string) (func(), error)
}
