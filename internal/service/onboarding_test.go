package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkinCoach/config"
	"SkinCoach/internal/model"
	"SkinCoach/internal/model/dto"
	"SkinCoach/internal/wizard"
	pkgerrors "SkinCoach/pkg/errors"
	"SkinCoach/pkg/profileapi"
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []model.OnboardingEventMessage
	err    error
}

func (p *recordingPublisher) PublishOnboardingEvent(ctx context.Context, routingKey string, msg model.OnboardingEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, msg)
	return p.err
}

type memoryBookings struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memoryBookings) TryMarkBooking(ctx context.Context, profileID, inviteeURI string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := profileID + "|" + inviteeURI
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *memoryBookings) UnmarkBooking(ctx context.Context, profileID, inviteeURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, profileID+"|"+inviteeURI)
	return nil
}

type harness struct {
	svc       *OnboardingService
	api       *profileapi.MockClient
	store     *wizard.MemoryStore
	publisher *recordingPublisher
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()

	opts := Options{
		PaymentMode:    config.PaymentModeRedirect,
		PriceID:        "price_123",
		ReturnURL:      "https://skincoach.test/onboarding",
		PollInitial:    time.Millisecond,
		PollAttempts:   3,
		BookingEnabled: true,
	}
	if mutate != nil {
		mutate(&opts)
	}

	h := &harness{
		api:       profileapi.NewMockClient(),
		store:     wizard.NewMemoryStore(time.Hour),
		publisher: &recordingPublisher{},
	}

	seq := 0
	h.svc = NewOnboardingService(Dependencies{
		Profiles: h.api,
		Sessions: h.store,
		Events:   h.publisher,
		Bookings: &memoryBookings{seen: map[string]bool{}},
		NewID: func() (string, error) {
			seq++
			return fmt.Sprintf("sess-%d", seq), nil
		},
		Now:     func() time.Time { return fixedNow },
		Options: opts,
	})
	return h
}

func (h *harness) submit(t *testing.T, sid string, body interface{}) (*dto.SubmitStepData, error) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return h.svc.SubmitCurrent(context.Background(), sid, raw)
}

func (h *harness) mustSubmit(t *testing.T, sid string, body interface{}) *dto.SubmitStepData {
	t.Helper()
	res, err := h.submit(t, sid, body)
	require.NoError(t, err)
	return res
}

func personalBody() map[string]interface{} {
	return map[string]interface{}{
		"first_name":    "Ada",
		"last_name":     "O'Neil",
		"email":         "Ada@Example.com",
		"phone_number":  "07400123456",
		"date_of_birth": "1990-05-15",
	}
}

func TestOnboarding_FullFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	snap, err := h.svc.CreateSession(ctx, wizard.EntryParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, 6, snap.Total)
	sid := snap.SessionID

	res := h.mustSubmit(t, sid, personalBody())
	assert.True(t, res.Outcome.Advanced)
	assert.Equal(t, model.StepPersonal, res.Outcome.Step)
	assert.Equal(t, 1, res.Session.CurrentIndex)
	assert.Equal(t, "profile-1", res.Session.ProfileID)
	assert.Equal(t, "07400123456", res.Session.Form.PhoneNumber)
	assert.Equal(t, 1, h.api.CallCount("check_existence"))

	res = h.mustSubmit(t, sid, map[string]interface{}{"skin_types": []string{"Dry", "Sensitive"}})
	assert.Equal(t, []model.StepID{model.StepPersonal, model.StepSkinType}, res.Session.CompletedSteps)
	assert.Equal(t, []model.StepID{model.StepPersonal, model.StepSkinType}, h.api.LastUpdate().CompletedSteps)

	res = h.mustSubmit(t, sid, map[string]interface{}{
		"concerns":      []string{"Acne", "Redness", "Other"},
		"concern_other": "Lactose Intolerance",
	})
	assert.Equal(t, []string{"Acne", "Redness", "Lactose Intolerance"}, h.api.LastUpdate().Concerns)
	assert.Equal(t, []string{"Acne", "Redness", "Other"}, res.Session.Form.Concerns)
	assert.Equal(t, "Lactose Intolerance", res.Session.Form.ConcernOther)

	res = h.mustSubmit(t, sid, map[string]interface{}{"has_allergies": true, "allergy_details": "Nuts"})
	assert.Equal(t, 4, res.Session.CurrentIndex)
	assert.Equal(t, wizard.KindSubscribe, res.Session.Current.Kind)

	res = h.mustSubmit(t, sid, map[string]interface{}{"action": "checkout"})
	assert.False(t, res.Outcome.Advanced)
	assert.Contains(t, res.Outcome.CheckoutURL, "checkout.stripe.test")
	assert.Equal(t, 4, res.Session.CurrentIndex)

	h.api.BeforeGet = func(attempt int, p *model.UserProfile) { p.IsSubscribed = true }
	res = h.mustSubmit(t, sid, map[string]interface{}{"action": "confirm"})
	assert.True(t, res.Outcome.Advanced)
	assert.Equal(t, 5, res.Session.CurrentIndex)

	res = h.mustSubmit(t, sid, map[string]interface{}{
		"event": CalendlyEventScheduled,
		"payload": map[string]interface{}{
			"event":   map[string]string{"uri": "https://api.calendly.com/scheduled_events/E1"},
			"invitee": map[string]string{"uri": "https://api.calendly.com/scheduled_events/E1/invitees/I1"},
		},
	})
	require.NotNil(t, res.Outcome.Booking)
	assert.Equal(t, dto.BookingConfirmed, res.Outcome.Booking.Status)
	assert.True(t, res.Outcome.Finished)
	assert.True(t, res.Session.IsCompleted)
	assert.Equal(t, 5, res.Session.CurrentIndex)

	p, err := h.api.GetProfile(ctx, "profile-1")
	require.NoError(t, err)
	assert.Equal(t, model.StepOrder, p.CompletedSteps)
	assert.True(t, p.HasCompletedBooking)
	assert.True(t, p.IsCompleted)
	require.NotNil(t, p.CompletedAt)

	// 完成后不允许再提交
	_, err = h.submit(t, sid, map[string]interface{}{})
	assert.ErrorIs(t, err, pkgerrors.OnboardingAlreadyCompleted)

	require.Len(t, h.publisher.keys, 6)
	assert.Equal(t, model.RoutingKeyStepCompleted, h.publisher.keys[0])
	assert.Equal(t, model.RoutingKeyOnboardingFinish, h.publisher.keys[5])
	assert.Equal(t, model.StepBooking, h.publisher.events[5].Step)
}

func TestOnboarding_PaymentReturnLandsOnSubscribe(t *testing.T) {
	h := newHarness(t, nil)
	h.api.Seed(&model.UserProfile{
		ID:             "X",
		PhoneNumber:    "+447400123456",
		Concerns:       []string{"Acne", "Lactose Intolerance"},
		CompletedSteps: []model.StepID{model.StepPersonal, model.StepSkinType, model.StepSkinConcerns, model.StepAllergies},
	})

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{ProfileID: "X", PaymentCanceled: true})
	require.NoError(t, err)

	assert.Equal(t, wizard.IndexOfKind(snap.Steps, wizard.KindSubscribe), snap.CurrentIndex)
	assert.Equal(t, wizard.KindSubscribe, snap.Current.Kind)
	assert.Equal(t, wizard.PaymentCanceled, snap.PaymentStatus)
	assert.Equal(t, "07400123456", snap.Form.PhoneNumber)
	assert.Equal(t, []string{"Acne", "Other"}, snap.Form.Concerns)
	assert.Equal(t, "Lactose Intolerance", snap.Form.ConcernOther)
}

func TestOnboarding_ReloadStartsAtFirstStep(t *testing.T) {
	h := newHarness(t, nil)
	h.api.Seed(&model.UserProfile{ID: "X", CompletedSteps: []model.StepID{model.StepPersonal, model.StepSkinType}})

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{ProfileID: "X"})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CurrentIndex)

	progress, err := h.svc.Progress(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, 2, progress.CurrentIndex)
	assert.Equal(t, model.StepSkinConcerns, progress.CurrentStep)
}

func TestOnboarding_SubscriptionPollingExhausts(t *testing.T) {
	h := newHarness(t, nil)
	h.api.Seed(&model.UserProfile{ID: "X", CompletedSteps: []model.StepID{model.StepPersonal}})

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{ProfileID: "X", PaymentSuccess: true})
	require.NoError(t, err)
	gets := h.api.CallCount("get_profile")

	_, err = h.submit(t, snap.SessionID, map[string]interface{}{"action": "confirm"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.SubscriptionUnconfirmed)

	var detailed *pkgerrors.DetailedError
	require.ErrorAs(t, err, &detailed)
	assert.Equal(t, true, detailed.Details["retryable"])
	assert.Equal(t, 3, detailed.Details["attempts"])

	// 一次提交前的读取加三次轮询，且没有写入
	assert.Equal(t, gets+1+3, h.api.CallCount("get_profile"))
	assert.Equal(t, 0, h.api.CallCount("update_profile"))

	after, err := h.svc.GetSession(context.Background(), snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, snap.CurrentIndex, after.CurrentIndex)

	// 手动重试：提交前读取一次，第二次轮询时生效
	exhausted := h.api.CallCount("get_profile")
	h.api.BeforeGet = func(attempt int, p *model.UserProfile) {
		if attempt >= exhausted+3 {
			p.IsSubscribed = true
		}
	}
	res := h.mustSubmit(t, snap.SessionID, map[string]interface{}{"action": "confirm"})
	assert.True(t, res.Outcome.Advanced)
	assert.Equal(t, []model.StepID{model.StepPersonal, model.StepSubscribe}, res.Session.CompletedSteps)
}

func TestOnboarding_ValidationNeverReachesNetwork(t *testing.T) {
	h := newHarness(t, nil)
	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{})
	require.NoError(t, err)

	body := personalBody()
	body["phone_number"] = "12345"
	body["first_name"] = ""
	body["date_of_birth"] = "2020-01-01"

	_, err = h.submit(t, snap.SessionID, body)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ValidationFailed)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "phone_number")
	assert.Contains(t, verr.Fields, "first_name")
	assert.Contains(t, verr.Fields, "date_of_birth")
	assert.Empty(t, h.api.Calls)

	after, err := h.svc.GetSession(context.Background(), snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.CurrentIndex)

	subscribeCases := []struct {
		name  string
		mode  string
		body  map[string]interface{}
		field string
	}{
		{name: "unknown action", mode: config.PaymentModeRedirect, body: map[string]interface{}{"action": "bogus"}, field: "action"},
		{name: "missing action", mode: config.PaymentModeRedirect, body: map[string]interface{}{}, field: "action"},
		{name: "elements confirm without intent", mode: config.PaymentModeElements, body: map[string]interface{}{"action": "confirm"}, field: "payment_intent_id"},
	}

	for _, tc := range subscribeCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) { o.PaymentMode = tc.mode })
			h.api.Seed(&model.UserProfile{ID: "X", CompletedSteps: []model.StepID{model.StepPersonal}})

			snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{ProfileID: "X", PaymentSuccess: true})
			require.NoError(t, err)
			require.Equal(t, wizard.KindSubscribe, snap.Current.Kind)
			calls := len(h.api.Calls)

			_, err = h.submit(t, snap.SessionID, tc.body)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
			assert.Len(t, h.api.Calls, calls, "rejected before any remote call")
		})
	}
}

func TestOnboarding_StepValidation(t *testing.T) {
	h := newHarness(t, nil)
	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{})
	require.NoError(t, err)
	sid := snap.SessionID
	h.mustSubmit(t, sid, personalBody())

	tests := []struct {
		name  string
		body  map[string]interface{}
		field string
	}{
		{"no skin type", map[string]interface{}{"skin_types": []string{}}, "skin_types"},
		{"unknown skin type", map[string]interface{}{"skin_types": []string{"Scaly"}}, "skin_types"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.submit(t, sid, tt.body)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	h.mustSubmit(t, sid, map[string]interface{}{"skin_types": []string{"Oily"}})

	_, err = h.submit(t, sid, map[string]interface{}{"concerns": []string{"Acne", "Other"}, "concern_other": "  "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "concern_other")

	h.mustSubmit(t, sid, map[string]interface{}{"concerns": []string{"Acne"}})

	_, err = h.submit(t, sid, map[string]interface{}{"has_allergies": true})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "allergy_details")

	_, err = h.submit(t, sid, map[string]interface{}{})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "has_allergies")

	res := h.mustSubmit(t, sid, map[string]interface{}{"has_allergies": false, "allergy_details": "ignored"})
	require.NotNil(t, res.Session.Form.HasAllergies)
	assert.False(t, *res.Session.Form.HasAllergies)
	assert.Equal(t, "", *h.api.LastUpdate().AllergyDetails)
}

func TestOnboarding_RemoteErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    string
		message string
	}{
		{"conflict verbatim", &profileapi.APIError{Status: 409, Message: "Email already in use"}, "PROFILE_CONFLICT", "Email already in use"},
		{"bad request verbatim", &profileapi.APIError{Status: 400, Message: "dateOfBirth is invalid"}, "PROFILE_REQUEST_REJECTED", "dateOfBirth is invalid"},
		{"server error generic", &profileapi.APIError{Status: 503, Message: "upstream exploded"}, "PROFILE_CREATE_FAILED", "Failed to create profile"},
		{"network error generic", errors.New("dial tcp: connection refused"), "PROFILE_CREATE_FAILED", "Failed to create profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.api.Errors["create_profile"] = tt.err

			snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{})
			require.NoError(t, err)

			_, err = h.submit(t, snap.SessionID, personalBody())
			require.Error(t, err)

			var def pkgerrors.Definition
			require.ErrorAs(t, err, &def)
			assert.Equal(t, tt.code, def.Code)
			assert.Equal(t, tt.message, def.Message)

			after, err := h.svc.GetSession(context.Background(), snap.SessionID)
			require.NoError(t, err)
			assert.Equal(t, 0, after.CurrentIndex)
			assert.Empty(t, h.publisher.events)
		})
	}
}

func TestOnboarding_UpdateFailureKeepsStep(t *testing.T) {
	h := newHarness(t, nil)
	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{})
	require.NoError(t, err)
	h.mustSubmit(t, snap.SessionID, personalBody())

	h.api.Errors["update_profile"] = &profileapi.APIError{Status: 500, Message: "boom"}
	_, err = h.submit(t, snap.SessionID, map[string]interface{}{"skin_types": []string{"Dry"}})
	assert.ErrorIs(t, err, pkgerrors.ProfileUpdateFailed)

	after, err := h.svc.GetSession(context.Background(), snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.CurrentIndex)
}

func TestOnboarding_ExistingUserRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.api.Existence = &model.ExistenceResult{Exists: true, Field: "phoneNumber"}

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{})
	require.NoError(t, err)

	_, err = h.submit(t, snap.SessionID, personalBody())
	assert.ErrorIs(t, err, pkgerrors.UserAlreadyExists)

	var detailed *pkgerrors.DetailedError
	require.ErrorAs(t, err, &detailed)
	assert.Equal(t, "phone_number", detailed.Details["field"])
	assert.Equal(t, 0, h.api.CallCount("create_profile"))
}

func TestOnboarding_PriorProgressSurvivesMerge(t *testing.T) {
	h := newHarness(t, nil)
	h.api.Seed(&model.UserProfile{
		ID:             "X",
		CompletedSteps: []model.StepID{model.StepAllergies, model.StepPersonal},
	})

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{ProfileID: "X"})
	require.NoError(t, err)

	// 已有资料时第一步走 PATCH
	h.mustSubmit(t, snap.SessionID, personalBody())
	assert.Equal(t, 0, h.api.CallCount("create_profile"))
	assert.Equal(t, 0, h.api.CallCount("check_existence"))

	res := h.mustSubmit(t, snap.SessionID, map[string]interface{}{"skin_types": []string{"Normal"}})
	assert.Equal(t, []model.StepID{model.StepPersonal, model.StepSkinType, model.StepAllergies}, res.Session.CompletedSteps)
}

func TestOnboarding_CompletedProfileIsImmutable(t *testing.T) {
	h := newHarness(t, nil)
	h.api.Seed(&model.UserProfile{ID: "X", IsCompleted: true, CompletedSteps: model.StepOrder})

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{ProfileID: "X"})
	require.NoError(t, err)
	assert.True(t, snap.IsCompleted)

	_, err = h.submit(t, snap.SessionID, personalBody())
	assert.ErrorIs(t, err, pkgerrors.OnboardingAlreadyCompleted)
	assert.Equal(t, 0, h.api.CallCount("update_profile"))
}

func TestOnboarding_StepsAfterPersonalNeedProfile(t *testing.T) {
	h := newHarness(t, nil)
	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{})
	require.NoError(t, err)

	// 未创建资料时不可能出现在第二步，这里直接改会话模拟
	sess, err := h.store.Get(context.Background(), snap.SessionID)
	require.NoError(t, err)
	sess.StepIndex = 1
	require.NoError(t, h.store.Save(context.Background(), sess))

	_, err = h.submit(t, snap.SessionID, map[string]interface{}{"skin_types": []string{"Dry"}})
	assert.ErrorIs(t, err, pkgerrors.ProfileRequired)
}

func TestOnboarding_BackClamps(t *testing.T) {
	h := newHarness(t, nil)
	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{})
	require.NoError(t, err)

	back, err := h.svc.Back(context.Background(), snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, back.CurrentIndex)

	h.mustSubmit(t, snap.SessionID, personalBody())
	back, err = h.svc.Back(context.Background(), snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, back.CurrentIndex)
}

func TestOnboarding_SessionErrors(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, pkgerrors.WizardSessionNotFound)

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{})
	require.NoError(t, err)

	unlock, err := h.store.Lock(context.Background(), snap.SessionID)
	require.NoError(t, err)
	_, err = h.submit(t, snap.SessionID, personalBody())
	assert.ErrorIs(t, err, pkgerrors.WizardSessionBusy)
	unlock()

	_, err = h.svc.SubmitCurrent(context.Background(), snap.SessionID, []byte("{not json"))
	assert.ErrorIs(t, err, pkgerrors.InvalidRequest)

	require.NoError(t, h.svc.DeleteSession(context.Background(), snap.SessionID))
	_, err = h.svc.GetSession(context.Background(), snap.SessionID)
	assert.ErrorIs(t, err, pkgerrors.WizardSessionNotFound)
}

func TestOnboarding_PublishFailureDoesNotFailStep(t *testing.T) {
	h := newHarness(t, nil)
	h.publisher.err = errors.New("channel closed")

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{})
	require.NoError(t, err)

	res := h.mustSubmit(t, snap.SessionID, personalBody())
	assert.True(t, res.Outcome.Advanced)
}

func seedAtBooking(t *testing.T, h *harness) string {
	t.Helper()
	h.api.Seed(&model.UserProfile{
		ID:             "X",
		IsSubscribed:   true,
		CompletedSteps: []model.StepID{model.StepPersonal, model.StepSkinType, model.StepSkinConcerns, model.StepAllergies},
	})
	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{ProfileID: "X", PaymentSuccess: true})
	require.NoError(t, err)
	h.mustSubmit(t, snap.SessionID, map[string]interface{}{"action": "confirm"})
	return snap.SessionID
}

func bookingBody(event, invitee string) map[string]interface{} {
	return map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"invitee": map[string]string{"uri": invitee},
		},
	}
}

func TestOnboarding_BookingEvents(t *testing.T) {
	t.Run("wrong event name", func(t *testing.T) {
		h := newHarness(t, nil)
		sid := seedAtBooking(t, h)

		_, err := h.submit(t, sid, bookingBody("calendly.profile_page_viewed", "inv-1"))
		assert.ErrorIs(t, err, pkgerrors.BookingEventInvalid)
	})

	t.Run("failure surfaces and can be retried", func(t *testing.T) {
		h := newHarness(t, nil)
		sid := seedAtBooking(t, h)

		h.api.FailOnce = true
		h.api.Errors["update_profile"] = &profileapi.APIError{Status: 502, Message: "bad gateway"}

		_, err := h.submit(t, sid, bookingBody(CalendlyEventScheduled, "inv-1"))
		assert.ErrorIs(t, err, pkgerrors.ProfileUpdateFailed)

		res := h.mustSubmit(t, sid, bookingBody(CalendlyEventScheduled, "inv-1"))
		assert.Equal(t, dto.BookingConfirmed, res.Outcome.Booking.Status)
		assert.True(t, res.Session.IsCompleted)
	})

	t.Run("duplicate invitee is a no-op", func(t *testing.T) {
		h := newHarness(t, nil)
		sid := seedAtBooking(t, h)

		marker := h.svc.bookings
		first, err := marker.TryMarkBooking(context.Background(), "X", "inv-2")
		require.NoError(t, err)
		require.True(t, first)

		// 另一个会话已经完成收尾
		booked, err := h.api.GetProfile(context.Background(), "X")
		require.NoError(t, err)
		booked.HasCompletedBooking = true
		booked.IsCompleted = true
		h.api.Seed(booked)

		updates := h.api.CallCount("update_profile")
		res := h.mustSubmit(t, sid, bookingBody(CalendlyEventScheduled, "inv-2"))
		assert.Equal(t, dto.BookingDuplicate, res.Outcome.Booking.Status)
		assert.False(t, res.Outcome.Advanced)
		assert.True(t, res.Session.IsCompleted)
		assert.Equal(t, updates, h.api.CallCount("update_profile"))
	})

	t.Run("leftover mark without booking still finalizes", func(t *testing.T) {
		h := newHarness(t, nil)
		sid := seedAtBooking(t, h)

		first, err := h.svc.bookings.TryMarkBooking(context.Background(), "X", "inv-3")
		require.NoError(t, err)
		require.True(t, first)

		res := h.mustSubmit(t, sid, bookingBody(CalendlyEventScheduled, "inv-3"))
		assert.Equal(t, dto.BookingConfirmed, res.Outcome.Booking.Status)
		assert.True(t, res.Outcome.Finished)
		assert.True(t, res.Session.IsCompleted)

		update := h.api.LastUpdate()
		require.NotNil(t, update.HasCompletedBooking)
		assert.True(t, *update.HasCompletedBooking)
	})
}

func TestOnboarding_ElementsMode(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.PaymentMode = config.PaymentModeElements })
	h.api.Seed(&model.UserProfile{ID: "X", CompletedSteps: []model.StepID{model.StepPersonal}})

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{ProfileID: "X", PaymentSuccess: true})
	require.NoError(t, err)
	assert.Equal(t, config.PaymentModeElements, snap.PaymentMode)

	res := h.mustSubmit(t, snap.SessionID, map[string]interface{}{"action": "checkout"})
	assert.Equal(t, "pi_mock_secret", res.Outcome.ClientSecret)
	assert.False(t, res.Outcome.Advanced)

	_, err = h.submit(t, snap.SessionID, map[string]interface{}{"action": "confirm"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "payment_intent_id")

	res = h.mustSubmit(t, snap.SessionID, map[string]interface{}{"action": "confirm", "payment_intent_id": "pi_1"})
	assert.True(t, res.Outcome.Advanced)
	require.NotNil(t, h.api.LastUpdate().IsSubscribed)
	assert.True(t, *h.api.LastUpdate().IsSubscribed)
}

func TestOnboarding_WithoutBookingSubscribeFinishes(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.BookingEnabled = false })
	h.api.Seed(&model.UserProfile{ID: "X", IsSubscribed: true, CompletedSteps: []model.StepID{model.StepPersonal}})

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{ProfileID: "X", PaymentSuccess: true})
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 4, snap.CurrentIndex)

	res := h.mustSubmit(t, snap.SessionID, map[string]interface{}{"action": "confirm"})
	assert.True(t, res.Outcome.Finished)
	assert.True(t, res.Session.IsCompleted)
	assert.Equal(t, 4, res.Session.CurrentIndex)
	assert.Equal(t, model.RoutingKeyOnboardingFinish, h.publisher.keys[len(h.publisher.keys)-1])
}

func TestOnboarding_CheckoutReturnURLs(t *testing.T) {
	assert.Equal(t,
		"https://skincoach.test/onboarding?payment_success=true&profile_id=X",
		paymentReturnURL("https://skincoach.test/onboarding", "X", "payment_success"),
	)
}

func TestOnboarding_CheckExistence(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.CheckExistence(context.Background(), "", "")
	assert.ErrorIs(t, err, pkgerrors.ValidationFailed)

	_, err = h.svc.CheckExistence(context.Background(), "not-an-email", "")
	assert.ErrorIs(t, err, pkgerrors.ValidationFailed)

	h.api.Existence = &model.ExistenceResult{Exists: true, Field: "email"}
	res, err := h.svc.CheckExistence(context.Background(), "a@b.com", "07400123456")
	require.NoError(t, err)
	assert.True(t, res.Exists)

	h.api.Errors["check_existence"] = &profileapi.APIError{Status: 500}
	_, err = h.svc.CheckExistence(context.Background(), "a@b.com", "")
	var def pkgerrors.Definition
	require.ErrorAs(t, err, &def)
	assert.Equal(t, "Failed to check user existence", def.Message)
}

type deadlineClient struct {
	*profileapi.MockClient
	deadlines []time.Duration
}

func (c *deadlineClient) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	if d, ok := ctx.Deadline(); ok {
		c.deadlines = append(c.deadlines, time.Until(d))
	} else {
		c.deadlines = append(c.deadlines, -1)
	}
	return c.MockClient.GetProfile(ctx, id)
}

func TestOnboarding_SubmitRunsUnderDeadline(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.SubmitTimeout = 40 * time.Second })
	client := &deadlineClient{MockClient: h.api}
	h.svc.profiles = client
	h.api.Seed(&model.UserProfile{ID: "X", IsSubscribed: true, CompletedSteps: []model.StepID{model.StepPersonal}})

	snap, err := h.svc.CreateSession(context.Background(), wizard.EntryParams{ProfileID: "X", PaymentSuccess: true})
	require.NoError(t, err)
	require.Len(t, client.deadlines, 1)
	assert.Equal(t, time.Duration(-1), client.deadlines[0], "session creation is not bounded by the submit timeout")

	h.mustSubmit(t, snap.SessionID, map[string]interface{}{"action": "confirm"})

	require.Greater(t, len(client.deadlines), 1)
	for _, remaining := range client.deadlines[1:] {
		assert.Greater(t, remaining, time.Duration(0))
		assert.LessOrEqual(t, remaining, 40*time.Second)
	}
}
