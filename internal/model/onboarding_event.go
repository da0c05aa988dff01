package model

import "time"

// OnboardingEvent 引导事件审计记录，worker 从队列消费后写入
type OnboardingEvent struct {
	BaseModel
	OccurredAt     time.Time `gorm:"not null;index:idx_onboarding_events_occurred" json:"occurred_at"`
	MessageID      string    `gorm:"uniqueIndex;type:varchar(64);not null" json:"message_id"`
	SessionID      string    `gorm:"type:varchar(32);not null;default:''" json:"session_id"`
	ProfileID      string    `gorm:"type:varchar(64);not null;index:idx_onboarding_events_profile" json:"profile_id"`
	Step           StepID    `gorm:"type:varchar(16);not null" json:"step"`
	EventType      string    `gorm:"type:varchar(32);not null" json:"event_type"`
	CompletedSteps string    `gorm:"type:varchar(128);not null;default:''" json:"completed_steps"` // 逗号分隔
}

// TableName 指定表名
func (OnboardingEvent) TableName() string {
	return "onboarding_events"
}
