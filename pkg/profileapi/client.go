package profileapi

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"SkinCoach/config"
	"SkinCoach/internal/model"
	"SkinCoach/pkg/logger"
)

// Client 远端资料服务客户端接口，资料的存储与校验都在远端完成
type Client interface {
	// CreateProfile POST /profiles，返回带 id 的完整资料，completedSteps 为 ["PERSONAL"]
	CreateProfile(ctx context.Context, req model.CreateProfileRequest) (*model.UserProfile, error)
	// GetProfile GET /profiles/{id}
	GetProfile(ctx context.Context, id string) (*model.UserProfile, error)
	// UpdateProfile PATCH /profiles/{id}，只发送变化的字段
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.UserProfile, error)
	// CheckExistence GET /profiles/exists?email=&phoneNumber=
	CheckExistence(ctx context.Context, email, phoneNumber string) (*model.ExistenceResult, error)
	// CreateCheckoutSession 跳转模式下创建 Stripe Checkout 会话
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	// CreateSubscriptionIntent 页内模式下创建订阅并返回 client secret
	CreateSubscriptionIntent(ctx context.Context, req SubscriptionIntentRequest) (*SubscriptionIntent, error)
}

// CheckoutSessionRequest 创建 Checkout 会话请求
type CheckoutSessionRequest struct {
	ProfileID  string `json:"profileId"`
	PriceID    string `json:"priceId"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// CheckoutSession 外部托管支付页
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SubscriptionIntentRequest 页内支付请求
type SubscriptionIntentRequest struct {
	ProfileID string `json:"profileId"`
	PriceID   string `json:"priceId"`
}

// SubscriptionIntent 页内支付所需的 client secret
type SubscriptionIntent struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientSecret   string `json:"clientSecret"`
}

var (
	apiClient Client
	apiOnce   sync.Once
	apiErr    error
)

// Init 按配置初始化全局客户端
func Init() error {
	apiOnce.Do(func() {
		cfg := config.Cfg
		// 先落到具体类型的局部变量，失败时不能把 typed nil 存进接口
		client, err := NewHTTPClient(HTTPClientOptions{
			BaseURL:        cfg.ProfileAPIBaseURL,
			Token:          cfg.ProfileAPIToken,
			TimeoutSeconds: cfg.ProfileAPITimeoutSeconds,
		})
		if err != nil {
			apiErr = err
			logger.Logger.Error("Failed to initialize profile API client", zap.Error(apiErr))
			return
		}
		apiClient = client

		logger.Logger.Info("Profile API client initialized successfully",
			zap.String("base_url", cfg.ProfileAPIBaseURL),
		)
	})

	return apiErr
}

func GetClient() Client {
	if apiClient == nil {
		panic(fmt.Sprintf("profile API client not initialized, call profileapi.Init() first: %v", apiErr))
	}
	return apiClient
}
