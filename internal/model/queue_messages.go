package model

// 引导事件的路由键
const (
	OnboardingEventsExchange   = "onboarding.events"
	OnboardingAuditQueue       = "onboarding.events.audit"
	RoutingKeyStepCompleted    = "onboarding.step.completed"
	RoutingKeyOnboardingFinish = "onboarding.completed"
)

// 事件类型
const (
	EventStepCompleted       = "step_completed"
	EventOnboardingCompleted = "onboarding_completed"
)

// OnboardingEventMessage 步骤完成事件，由 server 发布、worker 消费落库
type OnboardingEventMessage struct {
	MessageID      string   `json:"message_id"` // 消息唯一ID，用于幂等性检查
	SessionID      string   `json:"session_id"`
	ProfileID      string   `json:"profile_id"`
	Step           StepID   `json:"step"`
	EventType      string   `json:"event_type"`
	OccurredAt     string   `json:"occurred_at"`
	CompletedSteps []StepID `json:"completed_steps"`
}
