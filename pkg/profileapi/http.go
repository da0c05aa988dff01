package profileapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.uber.org/zap"

	"SkinCoach/internal/model"
	"SkinCoach/pkg/logger"
	"SkinCoach/pkg/metrics"
)

// HTTPClientOptions HTTP 客户端配置
type HTTPClientOptions struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

// HTTPClient 基于 Hertz client 的实现
type HTTPClient struct {
	hc      *client.Client
	baseURL string
	token   string
	timeout time.Duration
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(opts HTTPClientOptions) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("profile api base url is empty")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid profile api base url: %w", err)
	}

	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc, err := client.NewClient(
		client.WithDialTimeout(3*time.Second),
		client.WithClientReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
		client.WithMaxConnsPerHost(256),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hertz client: %w", err)
	}

	return &HTTPClient{
		hc:      hc,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		timeout: timeout,
	}, nil
}

func (c *HTTPClient) CreateProfile(ctx context.Context, req model.CreateProfileRequest) (*model.UserProfile, error) {
	var profile model.UserProfile
	if err := c.do(ctx, "create_profile", consts.MethodPost, "/profiles", req, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *HTTPClient) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	var profile model.UserProfile
	if err := c.do(ctx, "get_profile", consts.MethodGet, "/profiles/"+url.PathEscape(id), nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *HTTPClient) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.UserProfile, error) {
	var profile model.UserProfile
	if err := c.do(ctx, "update_profile", consts.MethodPatch, "/profiles/"+url.PathEscape(id), update, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *HTTPClient) CheckExistence(ctx context.Context, email, phoneNumber string) (*model.ExistenceResult, error) {
	q := url.Values{}
	if email != "" {
		q.Set("email", email)
	}
	if phoneNumber != "" {
		q.Set("phoneNumber", phoneNumber)
	}

	var result model.ExistenceResult
	if err := c.do(ctx, "check_existence", consts.MethodGet, "/profiles/exists?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.do(ctx, "create_checkout_session", consts.MethodPost, "/payments/checkout-session", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *HTTPClient) CreateSubscriptionIntent(ctx context.Context, req SubscriptionIntentRequest) (*SubscriptionIntent, error) {
	var intent SubscriptionIntent
	if err := c.do(ctx, "create_subscription_intent", consts.MethodPost, "/payments/subscription-intent", req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// do 发送 JSON 请求，非 2xx 转成 *APIError
func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out interface{}) (err error) {
	start := time.Now()
	status := 0
	defer func() {
		metrics.RecordProfileAPICall(ctx, op, status, time.Since(start), err)
	}()

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(body)
	}

	if err = c.hc.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		logger.Logger.Warn("Profile API request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.Error(err),
		)
		return fmt.Errorf("profile api %s: %w", op, err)
	}

	status = resp.StatusCode()
	body := resp.Body()

	if status < 200 || status >= 300 {
		apiErr := parseErrorBody(status, body)
		logger.Logger.Info("Profile API returned error status",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}

	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
