package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"SkinCoach/internal/cache"
	"SkinCoach/internal/model"
	"SkinCoach/pkg/errors"
	"SkinCoach/pkg/logger"
	"SkinCoach/storage/mq"
)

// EventStore 审计事件写入
type EventStore interface {
	Save(ctx context.Context, event *model.OnboardingEvent) error
}

// MessageMarks 消息幂等标记，默认走 Redis
type MessageMarks interface {
	TryMarkProcessing(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
	Unmark(ctx context.Context, messageID string) error
}

type redisMarks struct{}

func (redisMarks) TryMarkProcessing(ctx context.Context, messageID string) (bool, error) {
	return cache.TryMarkMessageProcessing(ctx, messageID, 24*time.Hour)
}

func (redisMarks) MarkProcessed(ctx context.Context, messageID string) error {
	return cache.MarkMessageProcessed(ctx, messageID, 48*time.Hour)
}

func (redisMarks) Unmark(ctx context.Context, messageID string) error {
	return cache.UnmarkMessageProcessing(ctx, messageID)
}

// RedisMessageMarks 基于 SETNX 的消息标记
func RedisMessageMarks() MessageMarks {
	return redisMarks{}
}

// AuditConsumer 消费引导事件并落审计表
type AuditConsumer struct {
	store EventStore
	marks MessageMarks
}

func NewAuditConsumer(store EventStore, marks MessageMarks) *AuditConsumer {
	return &AuditConsumer{store: store, marks: marks}
}

// Handle 处理单条消息；格式错误的消息返回 SkipMessageError，不再重投
func (c *AuditConsumer) Handle(ctx context.Context, body []byte) error {
	var msg model.OnboardingEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return &errors.SkipMessageError{Reason: fmt.Sprintf("malformed onboarding event: %v", err)}
	}

	event, err := toOnboardingEvent(msg)
	if err != nil {
		return &errors.SkipMessageError{Reason: err.Error()}
	}

	// 【幂等性检查】使用 SETNX 原子性地检查并标记消息正在处理
	first, err := c.marks.TryMarkProcessing(ctx, msg.MessageID)
	if err != nil {
		// 标记失败不阻塞落库，表上还有 message_id 唯一约束兜底
		logger.Logger.Warn("Failed to check message processed status",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	} else if !first {
		return &errors.SkipMessageError{Reason: fmt.Sprintf("message %s already processed", msg.MessageID)}
	}

	if err := c.store.Save(ctx, event); err != nil {
		// 取消标记，允许重投后重试
		if unmarkErr := c.marks.Unmark(ctx, msg.MessageID); unmarkErr != nil {
			logger.Logger.Warn("Failed to unmark message",
				zap.String("message_id", msg.MessageID),
				zap.Error(unmarkErr),
			)
		}
		return err
	}

	if err := c.marks.MarkProcessed(ctx, msg.MessageID); err != nil {
		logger.Logger.Warn("Failed to mark message as processed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}

	logger.Logger.Info("Onboarding event recorded",
		zap.String("message_id", msg.MessageID),
		zap.String("profile_id", msg.ProfileID),
		zap.String("event_type", msg.EventType),
		zap.String("step", string(msg.Step)),
	)
	return nil
}

func toOnboardingEvent(msg model.OnboardingEventMessage) (*model.OnboardingEvent, error) {
	if msg.MessageID == "" {
		return nil, fmt.Errorf("onboarding event without message_id")
	}
	if msg.ProfileID == "" {
		return nil, fmt.Errorf("onboarding event %s without profile_id", msg.MessageID)
	}
	if !msg.Step.Valid() {
		return nil, fmt.Errorf("onboarding event %s has unknown step %q", msg.MessageID, msg.Step)
	}
	switch msg.EventType {
	case model.EventStepCompleted, model.EventOnboardingCompleted:
	default:
		return nil, fmt.Errorf("onboarding event %s has unknown type %q", msg.MessageID, msg.EventType)
	}

	occurredAt, err := time.Parse(time.RFC3339, msg.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("onboarding event %s has invalid occurred_at: %w", msg.MessageID, err)
	}

	steps := make([]string, 0, len(msg.CompletedSteps))
	for _, s := range msg.CompletedSteps {
		steps = append(steps, string(s))
	}

	return &model.OnboardingEvent{
		OccurredAt:     occurredAt.UTC(),
		MessageID:      msg.MessageID,
		SessionID:      msg.SessionID,
		ProfileID:      msg.ProfileID,
		Step:           msg.Step,
		EventType:      msg.EventType,
		CompletedSteps: strings.Join(steps, ","),
	}, nil
}

// Start 阻塞消费审计队列，直到 ctx 取消
func (c *AuditConsumer) Start(ctx context.Context) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         model.OnboardingAuditQueue,
		ConsumerTag:   "onboarding_audit_consumer",
		PrefetchCount: 20,
		Handler:       c.Handle,
	})
}
