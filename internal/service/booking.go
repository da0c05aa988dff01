package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"SkinCoach/internal/model"
	"SkinCoach/internal/model/dto"
	"SkinCoach/internal/wizard"
	pkgerrors "SkinCoach/pkg/errors"
	"SkinCoach/pkg/logger"
)

// CalendlyEventScheduled 预约组件通过 postMessage 发出的事件名
const CalendlyEventScheduled = "calendly.event_scheduled"

// BookingForm 前端转发的预约组件消息
type BookingForm struct {
	Event   string `json:"event"`
	Payload struct {
		Event struct {
			URI string `json:"uri"`
		} `json:"event"`
		Invitee struct {
			URI string `json:"uri"`
		} `json:"invitee"`
	} `json:"payload"`
}

// bookingStep 第六步：一次收尾 PATCH，失败会返回给前端而不是静默吞掉
type bookingStep struct {
	svc *OnboardingService
}

func (c *bookingStep) Submit(ctx context.Context, sess *wizard.Session, body []byte) (*dto.StepOutcome, error) {
	var form BookingForm
	if err := decodeBody(body, &form); err != nil {
		return nil, err
	}

	if form.Event != CalendlyEventScheduled {
		return nil, pkgerrors.BookingEventInvalid.WithMessage("Unsupported booking event")
	}
	inviteeURI := strings.TrimSpace(form.Payload.Invitee.URI)
	if inviteeURI == "" {
		return nil, pkgerrors.BookingEventInvalid.WithMessage("Booking event is missing the invitee")
	}

	result := &dto.BookingResult{
		Status:     dto.BookingConfirmed,
		EventURI:   strings.TrimSpace(form.Payload.Event.URI),
		InviteeURI: inviteeURI,
	}

	marked := false
	if c.svc.bookings != nil {
		first, err := c.svc.bookings.TryMarkBooking(ctx, sess.ProfileID, inviteeURI)
		switch {
		case err != nil:
			// 标记失败时照常处理，只是失去去重能力
			logger.Logger.Warn("Failed to mark booking event",
				zap.String("profile_id", sess.ProfileID),
				zap.Error(err),
			)
		case !first:
			booked, err := c.alreadyBooked(ctx, sess)
			if err != nil {
				return nil, err
			}
			if booked {
				result.Status = dto.BookingDuplicate
				return &dto.StepOutcome{Booking: result}, nil
			}
			// 标记还在但资料没有收尾，上一次处理中途退出，接管标记重新收尾
			logger.Logger.Warn("Booking marked but not finalized, finalizing again",
				zap.String("session_id", sess.ID),
				zap.String("profile_id", sess.ProfileID),
			)
			marked = true
		default:
			marked = true
		}
	}

	existing, err := c.svc.loadProfile(ctx, sess)
	if err != nil {
		c.unmark(ctx, sess.ProfileID, inviteeURI, marked)
		return nil, err
	}

	done := true
	completedAt := c.svc.now().UTC()
	update := model.ProfileUpdate{
		HasCompletedBooking: &done,
		IsCompleted:         &done,
		CompletedAt:         &completedAt,
	}

	if _, err := c.svc.patchStep(ctx, sess, existing, update, model.StepBooking); err != nil {
		c.unmark(ctx, sess.ProfileID, inviteeURI, marked)
		logger.Logger.Error("Failed to finalize booking",
			zap.String("session_id", sess.ID),
			zap.String("profile_id", sess.ProfileID),
			zap.Error(err),
		)
		return nil, err
	}

	result.CompletedAt = &completedAt
	logger.Logger.Info("Onboarding completed",
		zap.String("session_id", sess.ID),
		zap.String("profile_id", sess.ProfileID),
	)

	return &dto.StepOutcome{Booking: result, Advanced: true, Completed: true, Finished: true}, nil
}

// alreadyBooked 重复事件只有在资料确实已记录预约时才是空操作
func (c *bookingStep) alreadyBooked(ctx context.Context, sess *wizard.Session) (bool, error) {
	p, err := c.svc.profiles.GetProfile(ctx, sess.ProfileID)
	if err != nil {
		return false, remoteFailure("get_profile", err, pkgerrors.ProfileFetchFailed)
	}
	if !p.HasCompletedBooking {
		return false, nil
	}
	sess.SyncProfile(p)
	return true, nil
}

// unmark 收尾失败时撤销标记，让用户可以重新提交
func (c *bookingStep) unmark(ctx context.Context, profileID, inviteeURI string, marked bool) {
	if !marked {
		return
	}
	if err := c.svc.bookings.UnmarkBooking(ctx, profileID, inviteeURI); err != nil {
		logger.Logger.Warn("Failed to unmark booking event",
			zap.String("profile_id", profileID),
			zap.Error(err),
		)
	}
}
