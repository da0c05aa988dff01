package metrics

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 资料服务调用
	ProfileAPIRequestTotal metric.Int64Counter
	ProfileAPIDuration     metric.Float64Histogram

	// 引导流程
	StepSubmittedTotal      metric.Int64Counter
	OnboardingCompleted     metric.Int64Counter
	SubscriptionPollTotal   metric.Int64Counter
	WizardSessionsCreated   metric.Int64Counter
	OnboardingEventsPublish metric.Int64Counter
}

var (
	// 全局指标实例，未初始化时所有 Record 函数为空操作
	metrics *OTelMetrics
	meter   = otel.Meter("skincoach")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	m := &OTelMetrics{}

	m.ProfileAPIRequestTotal, err = meter.Int64Counter(
		"profile_api_requests_total",
		metric.WithDescription("Total number of requests sent to the profile API"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.ProfileAPIDuration, err = meter.Float64Histogram(
		"profile_api_request_duration_seconds",
		metric.WithDescription("Profile API request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.StepSubmittedTotal, err = meter.Int64Counter(
		"onboarding_step_submitted_total",
		metric.WithDescription("Total number of wizard step submissions"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return err
	}

	m.OnboardingCompleted, err = meter.Int64Counter(
		"onboarding_completed_total",
		metric.WithDescription("Total number of finished onboardings"),
		metric.WithUnit("{profile}"),
	)
	if err != nil {
		return err
	}

	m.SubscriptionPollTotal, err = meter.Int64Counter(
		"subscription_poll_attempts_total",
		metric.WithDescription("Total number of subscription confirmation polls"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	m.WizardSessionsCreated, err = meter.Int64Counter(
		"wizard_sessions_created_total",
		metric.WithDescription("Total number of wizard sessions created"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return err
	}

	m.OnboardingEventsPublish, err = meter.Int64Counter(
		"onboarding_events_published_total",
		metric.WithDescription("Total number of onboarding events published"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// RecordProfileAPICall 记录一次资料服务调用，status 为 0 表示未拿到响应
func RecordProfileAPICall(ctx context.Context, op string, status int, d time.Duration, err error) {
	m := GetMetrics()
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status_code", strconv.Itoa(status)),
		attribute.String("outcome", outcome(err)),
	)
	m.ProfileAPIRequestTotal.Add(ctx, 1, attrs)
	m.ProfileAPIDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("op", op)))
}

// RecordStepSubmitted 记录一次步骤提交
func RecordStepSubmitted(ctx context.Context, step string, err error) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.StepSubmittedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("outcome", outcome(err)),
	))
}

// RecordOnboardingCompleted 记录引导完成
func RecordOnboardingCompleted(ctx context.Context, bookingEnabled bool) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.OnboardingCompleted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("booking_enabled", bookingEnabled)))
}

// RecordSubscriptionPoll 记录一次订阅确认轮询
func RecordSubscriptionPoll(ctx context.Context, confirmed bool) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.SubscriptionPollTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("confirmed", confirmed)))
}

// RecordSessionCreated 记录会话创建，paymentReturn 表示是否为支付回跳
func RecordSessionCreated(ctx context.Context, paymentReturn bool) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.WizardSessionsCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("payment_return", paymentReturn)))
}

// RecordEventPublished 记录事件投递
func RecordEventPublished(ctx context.Context, routingKey string, err error) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.OnboardingEventsPublish.Add(ctx, 1, metric.WithAttributes(
		attribute.String("routing_key", routingKey),
		attribute.String("outcome", outcome(err)),
	))
}
