package profileapi

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"SkinCoach/internal/model"
)

type MockCall struct {
	Op        string
	ProfileID string
	Create    *model.CreateProfileRequest
	Update    *model.ProfileUpdate
}

// MockClient 可配置的资料服务 mock，实现 Client 接口，按 PATCH 语义在内存里维护资料
type MockClient struct {
	mu       sync.Mutex
	Calls    []MockCall
	Profiles map[string]*model.UserProfile

	// Errors 按操作名注入错误，如 "update_profile"；FailOnce 为 true 时触发一次后清除
	Errors   map[string]error
	FailOnce bool

	// BeforeGet 每次 GetProfile 前回调，可用来模拟服务端异步翻转订阅标志
	BeforeGet func(attempt int, p *model.UserProfile)

	Existence *model.ExistenceResult
	Checkout  *CheckoutSession
	Intent    *SubscriptionIntent

	nextID   int
	getCount int
}

var _ Client = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		Calls:    make([]MockCall, 0),
		Profiles: make(map[string]*model.UserProfile),
		Errors:   make(map[string]error),
	}
}

// Seed 预置一份资料
func (m *MockClient) Seed(p *model.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.Profiles[p.ID] = &cp
}

// CallCount 统计某个操作被调用的次数
func (m *MockClient) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// LastUpdate 最近一次 PATCH 的请求体
func (m *MockClient) LastUpdate() *model.ProfileUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Update != nil {
			return m.Calls[i].Update
		}
	}
	return nil
}

func (m *MockClient) failure(op string) error {
	err, ok := m.Errors[op]
	if !ok {
		return nil
	}
	if m.FailOnce {
		delete(m.Errors, op)
	}
	return err
}

func (m *MockClient) CreateProfile(ctx context.Context, req model.CreateProfileRequest) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Op: "create_profile", Create: &req})
	if err := m.failure("create_profile"); err != nil {
		return nil, err
	}

	m.nextID++
	p := &model.UserProfile{
		ID:             fmt.Sprintf("profile-%d", m.nextID),
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		DateOfBirth:    req.DateOfBirth,
		CompletedSteps: []model.StepID{model.StepPersonal},
	}
	m.Profiles[p.ID] = p

	cp := *p
	return &cp, nil
}

func (m *MockClient) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Op: "get_profile", ProfileID: id})
	m.getCount++

	p, ok := m.Profiles[id]
	if ok && m.BeforeGet != nil {
		m.BeforeGet(m.getCount, p)
	}
	if err := m.failure("get_profile"); err != nil {
		return nil, err
	}
	if !ok {
		return nil, &APIError{Status: 404, Message: "Profile not found"}
	}

	cp := *p
	return &cp, nil
}

func (m *MockClient) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Op: "update_profile", ProfileID: id, Update: &update})
	if err := m.failure("update_profile"); err != nil {
		return nil, err
	}

	p, ok := m.Profiles[id]
	if !ok {
		return nil, &APIError{Status: 404, Message: "Profile not found"}
	}

	applyUpdate(p, update)
	cp := *p
	return &cp, nil
}

func (m *MockClient) CheckExistence(ctx context.Context, email, phoneNumber string) (*model.ExistenceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Op: "check_existence"})
	if err := m.failure("check_existence"); err != nil {
		return nil, err
	}
	if m.Existence != nil {
		r := *m.Existence
		return &r, nil
	}
	return &model.ExistenceResult{Exists: false}, nil
}

func (m *MockClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Op: "create_checkout_session", ProfileID: req.ProfileID})
	if err := m.failure("create_checkout_session"); err != nil {
		return nil, err
	}
	if m.Checkout != nil {
		s := *m.Checkout
		return &s, nil
	}
	return &CheckoutSession{ID: "cs_test_mock", URL: "https://checkout.stripe.test/c/cs_test_mock?success=" + req.SuccessURL}, nil
}

func (m *MockClient) CreateSubscriptionIntent(ctx context.Context, req SubscriptionIntentRequest) (*SubscriptionIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Op: "create_subscription_intent", ProfileID: req.ProfileID})
	if err := m.failure("create_subscription_intent"); err != nil {
		return nil, err
	}
	if m.Intent != nil {
		i := *m.Intent
		return &i, nil
	}
	return &SubscriptionIntent{SubscriptionID: "sub_mock", ClientSecret: "pi_mock_secret"}, nil
}

func applyUpdate(p *model.UserProfile, u model.ProfileUpdate) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&p.FirstName, u.FirstName)
	setString(&p.LastName, u.LastName)
	setString(&p.Email, u.Email)
	setString(&p.PhoneNumber, u.PhoneNumber)
	setString(&p.DateOfBirth, u.DateOfBirth)
	setString(&p.AllergyDetails, u.AllergyDetails)
	setBool(&p.HasAllergies, u.HasAllergies)
	setBool(&p.IsSubscribed, u.IsSubscribed)
	setBool(&p.HasCompletedBooking, u.HasCompletedBooking)
	setBool(&p.IsCompleted, u.IsCompleted)

	if u.SkinTypes != nil {
		p.SkinTypes = slices.Clone(u.SkinTypes)
	}
	if u.Concerns != nil {
		p.Concerns = slices.Clone(u.Concerns)
	}
	if u.CompletedSteps != nil {
		p.CompletedSteps = slices.Clone(u.CompletedSteps)
	}
	if u.CompletedAt != nil {
		t := u.CompletedAt.UTC().Truncate(time.Second)
		p.CompletedAt = &t
	}
}
