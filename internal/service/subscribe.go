package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"SkinCoach/config"
	"SkinCoach/internal/model"
	"SkinCoach/internal/model/dto"
	"SkinCoach/internal/wizard"
	pkgerrors "SkinCoach/pkg/errors"
	"SkinCoach/pkg/logger"
	"SkinCoach/pkg/metrics"
	"SkinCoach/pkg/profileapi"
)

const (
	SubscribeActionCheckout = "checkout"
	SubscribeActionConfirm  = "confirm"
)

// SubscribeForm 第五步请求：checkout 发起支付，confirm 确认订阅
type SubscribeForm struct {
	Action          string `json:"action" validate:"required,oneof=checkout confirm"`
	PaymentIntentID string `json:"payment_intent_id" validate:"max=255"`
}

var errSubscriptionPending = errors.New("subscription not yet active")

// subscribeStep 第五步，按支付模式分为页内支付与跳转支付
type subscribeStep struct {
	svc *OnboardingService
}

func (c *subscribeStep) Submit(ctx context.Context, sess *wizard.Session, body []byte) (*dto.StepOutcome, error) {
	var form SubscribeForm
	if err := decodeBody(body, &form); err != nil {
		return nil, err
	}
	form.Action = strings.TrimSpace(form.Action)
	form.PaymentIntentID = strings.TrimSpace(form.PaymentIntentID)
	if err := c.validate(form); err != nil {
		return nil, err
	}

	existing, err := c.svc.loadProfile(ctx, sess)
	if err != nil {
		return nil, err
	}

	if form.Action == SubscribeActionCheckout {
		return c.checkout(ctx, sess)
	}
	if c.svc.opts.PaymentMode == config.PaymentModeElements {
		return c.confirmElements(ctx, sess, existing)
	}
	return c.confirmRedirect(ctx, sess)
}

// validate 页内支付模式下 confirm 必须带 payment_intent_id，校验失败不发起任何远端调用
func (c *subscribeStep) validate(form SubscribeForm) error {
	if err := validateForm(form); err != nil {
		return err
	}
	if form.Action == SubscribeActionConfirm &&
		c.svc.opts.PaymentMode == config.PaymentModeElements &&
		form.PaymentIntentID == "" {
		return fieldError("payment_intent_id", fieldMessages["required"])
	}
	return nil
}

// checkout 跳转模式返回托管支付页地址，页内模式返回 client secret；都不前进
func (c *subscribeStep) checkout(ctx context.Context, sess *wizard.Session) (*dto.StepOutcome, error) {
	opts := c.svc.opts

	if opts.PaymentMode == config.PaymentModeElements {
		intent, err := c.svc.profiles.CreateSubscriptionIntent(ctx, profileapi.SubscriptionIntentRequest{
			ProfileID: sess.ProfileID,
			PriceID:   opts.PriceID,
		})
		if err != nil {
			return nil, remoteFailure("create_subscription_intent", err, pkgerrors.CheckoutFailed)
		}
		return &dto.StepOutcome{ClientSecret: intent.ClientSecret}, nil
	}

	checkout, err := c.svc.profiles.CreateCheckoutSession(ctx, profileapi.CheckoutSessionRequest{
		ProfileID:  sess.ProfileID,
		PriceID:    opts.PriceID,
		SuccessURL: paymentReturnURL(opts.ReturnURL, sess.ProfileID, "payment_success"),
		CancelURL:  paymentReturnURL(opts.ReturnURL, sess.ProfileID, "payment_canceled"),
	})
	if err != nil {
		return nil, remoteFailure("create_checkout_session", err, pkgerrors.CheckoutFailed)
	}

	logger.Logger.Info("Checkout session created",
		zap.String("session_id", sess.ID),
		zap.String("profile_id", sess.ProfileID),
		zap.String("checkout_id", checkout.ID),
	)
	return &dto.StepOutcome{CheckoutURL: checkout.URL}, nil
}

// confirmElements 页内支付成功后由前端带 payment_intent_id 回调。
// 这里不向支付方核验该 ID，订阅状态以资料后端的 webhook 为准
func (c *subscribeStep) confirmElements(ctx context.Context, sess *wizard.Session, existing *model.UserProfile) (*dto.StepOutcome, error) {
	subscribed := true
	return c.finish(ctx, sess, existing, model.ProfileUpdate{IsSubscribed: &subscribed})
}

// confirmRedirect 从托管支付页返回后，订阅标志由 webhook 异步写入，
// 有限次数指数退避轮询，超过次数返回可手动重试的错误
func (c *subscribeStep) confirmRedirect(ctx context.Context, sess *wizard.Session) (*dto.StepOutcome, error) {
	opts := c.svc.opts

	b := backoff.NewExponentialBackOff()
	if opts.PollInitial > 0 {
		b.InitialInterval = opts.PollInitial
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempts := 0
	p, err := backoff.Retry(ctx, func() (*model.UserProfile, error) {
		attempts++

		p, err := c.svc.profiles.GetProfile(ctx, sess.ProfileID)
		if err != nil {
			// 4xx 重试也不会变
			if status := profileapi.StatusOf(err); status >= 400 && status < 500 {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		metrics.RecordSubscriptionPoll(ctx, p.IsSubscribed)
		if !p.IsSubscribed {
			return nil, errSubscriptionPending
		}
		return p, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(opts.PollAttempts)))

	if err != nil {
		if errors.Is(err, errSubscriptionPending) {
			logger.Logger.Warn("Subscription not confirmed after polling",
				zap.String("session_id", sess.ID),
				zap.String("profile_id", sess.ProfileID),
				zap.Int("attempts", attempts),
			)
			return nil, pkgerrors.SubscriptionUnconfirmed.WithDetails(map[string]interface{}{
				"retryable": true,
				"attempts":  attempts,
			})
		}
		return nil, remoteFailure("get_profile", err, pkgerrors.ProfileFetchFailed)
	}

	return c.finish(ctx, sess, p, model.ProfileUpdate{})
}

// finish 记录 SUBSCRIBE；未开启预约时订阅就是最后一步，同时完成整个引导
func (c *subscribeStep) finish(ctx context.Context, sess *wizard.Session, existing *model.UserProfile, update model.ProfileUpdate) (*dto.StepOutcome, error) {
	finished := !sess.BookingEnabled
	if finished {
		done := true
		now := c.svc.now().UTC()
		update.IsCompleted = &done
		update.CompletedAt = &now
	}

	if _, err := c.svc.patchStep(ctx, sess, existing, update, model.StepSubscribe); err != nil {
		return nil, err
	}

	sess.PaymentStatus = wizard.PaymentSucceeded
	return &dto.StepOutcome{Advanced: true, Completed: true, Finished: finished}, nil
}

// paymentReturnURL 支付页返回到向导的地址，带上 profile_id 与结果标记
func paymentReturnURL(base, profileID, flag string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("profile_id", profileID)
	q.Set(flag, "true")
	u.RawQuery = q.Encode()
	return u.String()
}
