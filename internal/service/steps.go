package service

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"SkinCoach/internal/model"
	"SkinCoach/internal/model/dto"
	"SkinCoach/internal/wizard"
	pkgerrors "SkinCoach/pkg/errors"
	"SkinCoach/pkg/logger"
	"SkinCoach/utils"
)

// personalStep 第一步：没有资料时先查重再创建，已有资料时改为 PATCH
type personalStep struct {
	svc *OnboardingService
}

func (c *personalStep) Submit(ctx context.Context, sess *wizard.Session, body []byte) (*dto.StepOutcome, error) {
	var form PersonalForm
	if err := decodeBody(body, &form); err != nil {
		return nil, err
	}
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	form.PhoneNumber = strings.TrimSpace(form.PhoneNumber)
	form.DateOfBirth = strings.TrimSpace(form.DateOfBirth)

	if err := validateForm(form); err != nil {
		return nil, err
	}

	phone := utils.ToE164UKPhone(form.PhoneNumber)

	if sess.ProfileID == "" {
		if err := c.ensureNotRegistered(ctx, form.Email, phone); err != nil {
			return nil, err
		}

		p, err := c.svc.profiles.CreateProfile(ctx, model.CreateProfileRequest{
			FirstName:   form.FirstName,
			LastName:    form.LastName,
			Email:       form.Email,
			PhoneNumber: phone,
			DateOfBirth: form.DateOfBirth,
		})
		if err != nil {
			return nil, remoteFailure("create_profile", err, pkgerrors.ProfileCreateFailed)
		}

		sess.SyncProfile(p)
		logger.Logger.Info("Profile created",
			zap.String("session_id", sess.ID),
			zap.String("profile_id", p.ID),
		)
	} else {
		existing, err := c.svc.loadProfile(ctx, sess)
		if err != nil {
			return nil, err
		}

		update := model.ProfileUpdate{
			FirstName:   &form.FirstName,
			LastName:    &form.LastName,
			Email:       &form.Email,
			PhoneNumber: &phone,
			DateOfBirth: &form.DateOfBirth,
		}
		if _, err := c.svc.patchStep(ctx, sess, existing, update, model.StepPersonal); err != nil {
			return nil, err
		}
	}

	sess.Form.FirstName = form.FirstName
	sess.Form.LastName = form.LastName
	sess.Form.Email = form.Email
	sess.Form.PhoneNumber = utils.NormalizeUKPhone(phone)
	sess.Form.DateOfBirth = form.DateOfBirth

	return &dto.StepOutcome{Advanced: true, Completed: true}, nil
}

func (c *personalStep) ensureNotRegistered(ctx context.Context, email, phone string) error {
	res, err := c.svc.profiles.CheckExistence(ctx, email, phone)
	if err != nil {
		return remoteFailure("check_existence", err, pkgerrors.ExistenceCheckFailed)
	}
	if !res.Exists {
		return nil
	}

	field := "email"
	if res.Field == "phoneNumber" || res.Field == "phone_number" {
		field = "phone_number"
	}
	return pkgerrors.UserAlreadyExists.WithDetails(map[string]interface{}{"field": field})
}

// skinTypeStep 第二步
type skinTypeStep struct {
	svc *OnboardingService
}

func (c *skinTypeStep) Submit(ctx context.Context, sess *wizard.Session, body []byte) (*dto.StepOutcome, error) {
	var form SkinTypeForm
	if err := decodeBody(body, &form); err != nil {
		return nil, err
	}
	if err := validateForm(form); err != nil {
		return nil, err
	}

	existing, err := c.svc.loadProfile(ctx, sess)
	if err != nil {
		return nil, err
	}

	if _, err := c.svc.patchStep(ctx, sess, existing, model.ProfileUpdate{SkinTypes: form.SkinTypes}, model.StepSkinType); err != nil {
		return nil, err
	}

	sess.Form.SkinTypes = slices.Clone(form.SkinTypes)
	return &dto.StepOutcome{Advanced: true, Completed: true}, nil
}

// concernsStep 第三步：提交前把 Other 与自定义内容还原成扁平列表
type concernsStep struct {
	svc *OnboardingService
}

func (c *concernsStep) Submit(ctx context.Context, sess *wizard.Session, body []byte) (*dto.StepOutcome, error) {
	var form ConcernsForm
	if err := decodeBody(body, &form); err != nil {
		return nil, err
	}
	form.ConcernOther = strings.TrimSpace(form.ConcernOther)
	if err := validateForm(form); err != nil {
		return nil, err
	}

	existing, err := c.svc.loadProfile(ctx, sess)
	if err != nil {
		return nil, err
	}

	flat := utils.FlattenConcerns(form.Concerns, form.ConcernOther, existing.Concerns)
	if _, err := c.svc.patchStep(ctx, sess, existing, model.ProfileUpdate{Concerns: flat}, model.StepSkinConcerns); err != nil {
		return nil, err
	}

	// 回写时与从资料回填的结果保持一致
	sess.Form.Concerns, sess.Form.ConcernOther = utils.SplitConcerns(flat)
	return &dto.StepOutcome{Advanced: true, Completed: true}, nil
}

// allergiesStep 第四步：没有过敏时清空详情
type allergiesStep struct {
	svc *OnboardingService
}

func (c *allergiesStep) Submit(ctx context.Context, sess *wizard.Session, body []byte) (*dto.StepOutcome, error) {
	var form AllergiesForm
	if err := decodeBody(body, &form); err != nil {
		return nil, err
	}
	form.AllergyDetails = strings.TrimSpace(form.AllergyDetails)
	if err := validateForm(form); err != nil {
		return nil, err
	}
	if !*form.HasAllergies {
		form.AllergyDetails = ""
	}

	existing, err := c.svc.loadProfile(ctx, sess)
	if err != nil {
		return nil, err
	}

	update := model.ProfileUpdate{
		HasAllergies:   form.HasAllergies,
		AllergyDetails: &form.AllergyDetails,
	}
	if _, err := c.svc.patchStep(ctx, sess, existing, update, model.StepAllergies); err != nil {
		return nil, err
	}

	hasAllergies := *form.HasAllergies
	sess.Form.HasAllergies = &hasAllergies
	sess.Form.AllergyDetails = form.AllergyDetails
	return &dto.StepOutcome{Advanced: true, Completed: true}, nil
}
