package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"SkinCoach/config"
	"SkinCoach/internal/model"
	"SkinCoach/internal/model/dto"
	"SkinCoach/internal/wizard"
	pkgerrors "SkinCoach/pkg/errors"
	"SkinCoach/pkg/logger"
	"SkinCoach/pkg/metrics"
	"SkinCoach/pkg/profileapi"
	"SkinCoach/utils"
)

// StepController 单个步骤的表单控制器。
// 返回 nil error 表示远端调用已成功，是否前进由 outcome.Advanced 决定。
type StepController interface {
	Submit(ctx context.Context, sess *wizard.Session, body []byte) (*dto.StepOutcome, error)
}

// EventPublisher 投递引导事件
type EventPublisher interface {
	PublishOnboardingEvent(ctx context.Context, routingKey string, msg model.OnboardingEventMessage) error
}

// BookingMarker 预约事件幂等标记
type BookingMarker interface {
	// TryMarkBooking 首次标记返回 true，已标记返回 false
	TryMarkBooking(ctx context.Context, profileID, inviteeURI string) (bool, error)
	UnmarkBooking(ctx context.Context, profileID, inviteeURI string) error
}

// Options 引导流程的可配置项
type Options struct {
	PaymentMode    string
	PriceID        string
	ReturnURL      string
	PollInitial    time.Duration
	PollAttempts   int
	BookingEnabled bool
	// SubmitTimeout 单次步骤提交的远端调用总时限，需小于会话锁 TTL
	SubmitTimeout time.Duration
}

// OptionsFromConfig 从全局配置构造
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PaymentMode:    cfg.PaymentMode,
		PriceID:        cfg.StripePriceID,
		ReturnURL:      cfg.OnboardingReturnURL(),
		PollInitial:    time.Duration(cfg.SubscriptionPollInitialMS) * time.Millisecond,
		PollAttempts:   cfg.SubscriptionPollAttempts,
		BookingEnabled: cfg.BookingEnabled,
		SubmitTimeout:  cfg.SubmissionTimeout(),
	}
}

// Dependencies 装配 OnboardingService 所需的协作者
type Dependencies struct {
	Profiles profileapi.Client
	Sessions wizard.Store
	Events   EventPublisher
	Bookings BookingMarker
	NewID    func() (string, error)
	Now      func() time.Time
	Options  Options
}

var (
	onboardingService *OnboardingService
	onboardingOnce    sync.Once
)

// SetupOnboarding 启动时装配全局实例，只生效一次
func SetupOnboarding(deps Dependencies) *OnboardingService {
	onboardingOnce.Do(func() {
		onboardingService = NewOnboardingService(deps)
	})
	return onboardingService
}

// Onboarding 返回全局实例
func Onboarding() *OnboardingService {
	if onboardingService == nil {
		panic("onboarding service not initialized, call service.SetupOnboarding() first")
	}
	return onboardingService
}

// OnboardingService 向导会话与各步骤控制器的调度
type OnboardingService struct {
	profiles    profileapi.Client
	sessions    wizard.Store
	events      EventPublisher
	bookings    BookingMarker
	newID       func() (string, error)
	now         func() time.Time
	controllers map[wizard.StepKind]StepController
	opts        Options
}

func NewOnboardingService(deps Dependencies) *OnboardingService {
	s := &OnboardingService{
		profiles: deps.Profiles,
		sessions: deps.Sessions,
		events:   deps.Events,
		bookings: deps.Bookings,
		newID:    deps.NewID,
		now:      deps.Now,
		opts:     deps.Options,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() (string, error) { return uuid.NewString(), nil }
	}
	if s.opts.PollAttempts <= 0 {
		s.opts.PollAttempts = 3
	}
	if s.opts.PaymentMode == "" {
		s.opts.PaymentMode = config.PaymentModeRedirect
	}

	s.controllers = map[wizard.StepKind]StepController{
		wizard.KindPersonal:  &personalStep{svc: s},
		wizard.KindSkinType:  &skinTypeStep{svc: s},
		wizard.KindConcerns:  &concernsStep{svc: s},
		wizard.KindAllergies: &allergiesStep{svc: s},
		wizard.KindSubscribe: &subscribeStep{svc: s},
		wizard.KindBooking:   &bookingStep{svc: s},
	}
	return s
}

// CreateSession 对应一次页面加载。
// 带 profile_id 时先拉取资料回填表单；从支付页返回时直接落在订阅步骤。
func (s *OnboardingService) CreateSession(ctx context.Context, entry wizard.EntryParams) (*dto.SessionSnapshot, error) {
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	sess := wizard.NewSession(id, s.opts.BookingEnabled, entry, s.now())

	if entry.ProfileID != "" {
		p, err := s.profiles.GetProfile(ctx, entry.ProfileID)
		if err != nil {
			return nil, remoteFailure("get_profile", err, pkgerrors.ProfileFetchFailed)
		}
		sess.SyncProfile(p)
		sess.Form = utils.MapProfileToFormValues(p)
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save wizard session: %w", err)
	}

	metrics.RecordSessionCreated(ctx, entry.IsPaymentReturn())
	logger.Logger.Info("Wizard session created",
		zap.String("session_id", sess.ID),
		zap.String("profile_id", sess.ProfileID),
		zap.Int("step_index", sess.StepIndex),
		zap.String("payment_status", string(sess.PaymentStatus)),
	)

	snap := s.snapshot(sess)
	return &snap, nil
}

// GetSession 当前会话快照
func (s *OnboardingService) GetSession(ctx context.Context, sessionID string) (*dto.SessionSnapshot, error) {
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := s.snapshot(sess)
	return &snap, nil
}

// DeleteSession 离开页面时销毁会话，不存在也视为成功
func (s *OnboardingService) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete wizard session: %w", err)
	}
	return nil
}

// Back 后退一步，第一步时不变
func (s *OnboardingService) Back(ctx context.Context, sessionID string) (*dto.SessionSnapshot, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	w := sess.Wizard()
	w.Back()
	sess.Apply(w, s.now())

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save wizard session: %w", err)
	}

	snap := s.snapshot(sess)
	return &snap, nil
}

// SubmitCurrent 提交当前步骤：校验、远端调用完成之后才前进，失败时下标不变
func (s *OnboardingService) SubmitCurrent(ctx context.Context, sessionID string, body []byte) (*dto.SubmitStepData, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.IsCompleted {
		return nil, pkgerrors.OnboardingAlreadyCompleted
	}

	w := sess.Wizard()
	current := w.Current()

	ctrl, ok := s.controllers[current.Kind]
	if !ok {
		return nil, pkgerrors.OnboardingStepInvalid
	}
	if current.Kind != wizard.KindPersonal && sess.ProfileID == "" {
		return nil, pkgerrors.ProfileRequired
	}

	outcome, err := s.submitStep(ctx, ctrl, sess, body)
	metrics.RecordStepSubmitted(ctx, current.Kind.String(), err)
	if err != nil {
		logger.Logger.Info("Wizard step submission failed",
			zap.String("session_id", sess.ID),
			zap.String("step", current.Kind.String()),
			zap.Error(err),
		)
		return nil, err
	}
	outcome.Step = current.ID

	if outcome.Advanced {
		w.Next()
	}
	sess.Apply(w, s.now())

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save wizard session: %w", err)
	}

	if outcome.Completed {
		s.publishStepEvent(ctx, sess, current.ID, outcome.Finished)
	}
	if outcome.Finished {
		metrics.RecordOnboardingCompleted(ctx, sess.BookingEnabled)
	}

	return &dto.SubmitStepData{
		Outcome: *outcome,
		Session: s.snapshot(sess),
	}, nil
}

// submitStep 控制器的远端调用受 SubmitTimeout 约束，超时前锁一定还在
func (s *OnboardingService) submitStep(ctx context.Context, ctrl StepController, sess *wizard.Session, body []byte) (*dto.StepOutcome, error) {
	if s.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SubmitTimeout)
		defer cancel()
	}
	return ctrl.Submit(ctx, sess, body)
}

// Progress 资料的完成进度，CurrentIndex 为第一个未完成步骤
func (s *OnboardingService) Progress(ctx context.Context, profileID string) (*model.OnboardingProgressData, error) {
	if profileID == "" {
		return nil, pkgerrors.InvalidRequest.WithMessage("profile_id is required")
	}

	p, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return nil, remoteFailure("get_profile", err, pkgerrors.ProfileFetchFailed)
	}

	completed := utils.MergeCompletedSteps(p.CompletedSteps, nil)
	idx := utils.IncompleteStepIndex(completed)

	return &model.OnboardingProgressData{
		ProfileID:      p.ID,
		CurrentStep:    model.StepOrder[idx],
		CompletedSteps: completed,
		Steps:          model.NewOnboardingSteps(completed),
		CurrentIndex:   idx,
		Finished:       p.IsCompleted,
	}, nil
}

// CheckExistence 邮箱或手机号是否已被注册，至少需要一个参数
func (s *OnboardingService) CheckExistence(ctx context.Context, email, phoneNumber string) (*model.ExistenceResult, error) {
	if email == "" && phoneNumber == "" {
		return nil, &ValidationError{Fields: map[string]string{
			"email":        "Provide an email or a phone number",
			"phone_number": "Provide an email or a phone number",
		}}
	}
	if email != "" {
		if err := Validator().Var(email, "email"); err != nil {
			return nil, fieldError("email", fieldMessages["email"])
		}
	}
	if phoneNumber != "" {
		if !utils.ValidateUKPhone(phoneNumber) {
			return nil, fieldError("phone_number", fieldMessages["ukphone"])
		}
		phoneNumber = utils.ToE164UKPhone(phoneNumber)
	}

	res, err := s.profiles.CheckExistence(ctx, email, phoneNumber)
	if err != nil {
		return nil, remoteFailure("check_existence", err, pkgerrors.ExistenceCheckFailed)
	}
	return res, nil
}

func (s *OnboardingService) lock(ctx context.Context, sessionID string) (func(), error) {
	unlock, err := s.sessions.Lock(ctx, sessionID)
	if err != nil {
		if errors.Is(err, wizard.ErrSessionBusy) {
			return nil, pkgerrors.WizardSessionBusy
		}
		return nil, fmt.Errorf("failed to lock wizard session: %w", err)
	}
	return unlock, nil
}

func (s *OnboardingService) loadSession(ctx context.Context, sessionID string) (*wizard.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, wizard.ErrSessionNotFound) {
			return nil, pkgerrors.WizardSessionNotFound
		}
		return nil, fmt.Errorf("failed to load wizard session: %w", err)
	}
	return sess, nil
}

// loadProfile 每步提交前拉取最新资料，已完成引导的资料不允许再修改
func (s *OnboardingService) loadProfile(ctx context.Context, sess *wizard.Session) (*model.UserProfile, error) {
	p, err := s.profiles.GetProfile(ctx, sess.ProfileID)
	if err != nil {
		return nil, remoteFailure("get_profile", err, pkgerrors.ProfileFetchFailed)
	}
	if p.IsCompleted {
		sess.SyncProfile(p)
		return nil, pkgerrors.OnboardingAlreadyCompleted
	}
	return p, nil
}

// patchStep 只发送本步骤的字段，并附带合并后的 completedSteps
func (s *OnboardingService) patchStep(ctx context.Context, sess *wizard.Session, existing *model.UserProfile, update model.ProfileUpdate, step model.StepID) (*model.UserProfile, error) {
	update.CompletedSteps = utils.MergeCompletedSteps(existing.CompletedSteps, []model.StepID{step})

	p, err := s.profiles.UpdateProfile(ctx, sess.ProfileID, update)
	if err != nil {
		return nil, remoteFailure("update_profile", err, pkgerrors.ProfileUpdateFailed)
	}
	sess.SyncProfile(p)
	return p, nil
}

func (s *OnboardingService) snapshot(sess *wizard.Session) dto.SessionSnapshot {
	w := sess.Wizard()
	return dto.SessionSnapshot{
		SessionID:      sess.ID,
		ProfileID:      sess.ProfileID,
		PaymentStatus:  sess.PaymentStatus,
		PaymentMode:    s.opts.PaymentMode,
		Current:        w.Current(),
		Steps:          w.Steps(),
		CompletedSteps: sess.CompletedSteps,
		Form:           sess.Form,
		CurrentIndex:   w.Index(),
		Total:          w.Total(),
		IsLast:         w.IsLast(),
		IsCompleted:    sess.IsCompleted,
		UpdatedAt:      sess.UpdatedAt,
	}
}

// publishStepEvent 投递失败只记录日志，不影响步骤结果
func (s *OnboardingService) publishStepEvent(ctx context.Context, sess *wizard.Session, step model.StepID, finished bool) {
	if s.events == nil {
		return
	}

	routingKey := model.RoutingKeyStepCompleted
	eventType := model.EventStepCompleted
	if finished {
		routingKey = model.RoutingKeyOnboardingFinish
		eventType = model.EventOnboardingCompleted
	}

	msg := model.OnboardingEventMessage{
		MessageID:      uuid.NewString(),
		SessionID:      sess.ID,
		ProfileID:      sess.ProfileID,
		Step:           step,
		EventType:      eventType,
		OccurredAt:     s.now().UTC().Format(time.RFC3339),
		CompletedSteps: sess.CompletedSteps,
	}

	if err := s.events.PublishOnboardingEvent(ctx, routingKey, msg); err != nil {
		logger.Logger.Warn("Failed to publish onboarding event",
			zap.String("session_id", sess.ID),
			zap.String("profile_id", sess.ProfileID),
			zap.String("step", string(step)),
			zap.Error(err),
		)
	}
}

// decodeBody 解析步骤请求体，空体视为空对象交给校验处理
func decodeBody(body []byte, v interface{}) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return pkgerrors.InvalidRequest.WithMessage("Request body must be a JSON object")
	}
	return nil
}
