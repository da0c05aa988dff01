package queue

import (
	"context"

	"go.uber.org/zap"

	"SkinCoach/internal/model"
	"SkinCoach/pkg/logger"
	"SkinCoach/pkg/metrics"
	"SkinCoach/storage/mq"
)

// Producer 把引导事件发到 onboarding.events 交换机
type Producer struct{}

func NewProducer() *Producer {
	return &Producer{}
}

// PublishOnboardingEvent 发布步骤完成或引导完成事件
func (p *Producer) PublishOnboardingEvent(ctx context.Context, routingKey string, msg model.OnboardingEventMessage) error {
	err := mq.PublishMessage(ctx, model.OnboardingEventsExchange, routingKey, msg.MessageID, msg)
	metrics.RecordEventPublished(ctx, routingKey, err)

	if err != nil {
		logger.Logger.Error("Failed to publish onboarding event",
			zap.String("message_id", msg.MessageID),
			zap.String("routing_key", routingKey),
			zap.String("profile_id", msg.ProfileID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Debug("Published onboarding event",
		zap.String("message_id", msg.MessageID),
		zap.String("routing_key", routingKey),
		zap.String("step", string(msg.Step)),
	)
	return nil
}
