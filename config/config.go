package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

const (
	PaymentModeElements = "elements" // 页内 Stripe Elements
	PaymentModeRedirect = "redirect" // 跳转到 Stripe Checkout 托管页
)

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"skincoach-onboarding"`

	// PostgreSQL 配置（worker 写入引导事件审计表）
	PostgreSQLHost        string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort        string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser        string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword    string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase    string `env:"POSTGRESQL_DATABASE" envDefault:"skincoach"`
	PostgreSQLSchema      string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode     string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle     int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"10"`
	PostgreSQLMaxOpen     int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"50"`
	PostgreSQLReplicaHost string `env:"POSTGRESQL_REPLICA_HOST" envDefault:""` // 可选只读副本

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"skc"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置，向导会话令牌
	JWTSecret         string `env:"JWT_SECRET"` // 必填
	JWTExpireMinutes  int    `env:"JWT_EXPIRE_MINUTES" envDefault:"120"`
	JWTRefreshMinutes int    `env:"JWT_REFRESH_MINUTES" envDefault:"240"`

	// 远端资料服务（用户资料的真正存储方）
	ProfileAPIBaseURL        string `env:"PROFILE_API_BASE_URL"` // 必填，如 https://api.example.com/v1
	ProfileAPIToken          string `env:"PROFILE_API_TOKEN"`
	ProfileAPITimeoutSeconds int    `env:"PROFILE_API_TIMEOUT_SECONDS" envDefault:"10"`

	// 支付配置
	PaymentMode   string `env:"PAYMENT_MODE" envDefault:"redirect"` // elements, redirect
	StripePriceID string `env:"STRIPE_PRICE_ID"`
	AppPublicURL  string `env:"APP_PUBLIC_URL" envDefault:"http://localhost:3000"`
	OnboardingURL string `env:"ONBOARDING_PATH" envDefault:"/onboarding"`

	// 订阅状态轮询，固定 3 次
	SubscriptionPollAttempts  int `env:"SUBSCRIPTION_POLL_ATTEMPTS" envDefault:"3"`
	SubscriptionPollInitialMS int `env:"SUBSCRIPTION_POLL_INITIAL_MS" envDefault:"1000"`

	// 向导配置
	BookingEnabled          bool   `env:"BOOKING_ENABLED" envDefault:"true"`
	WizardSessionTTLMinutes int    `env:"WIZARD_SESSION_TTL_MINUTES" envDefault:"120"`
	SessionStore            string `env:"SESSION_STORE" envDefault:"redis"` // redis, memory

	// 审计事件保留天数，scheduler 每天清理一次
	AuditRetentionDays int `env:"AUDIT_RETENTION_DAYS" envDefault:"180"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
}

// Load 读取 .env 和环境变量并校验
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	return Cfg.Validate()
}

// Validate 校验必填项
func (c *Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	if c.ProfileAPIBaseURL == "" {
		errs = append(errs, errors.New("PROFILE_API_BASE_URL is required"))
	}

	switch c.PaymentMode {
	case PaymentModeElements, PaymentModeRedirect:
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_MODE must be %q or %q, got %q", PaymentModeElements, PaymentModeRedirect, c.PaymentMode))
	}

	if c.SubscriptionPollAttempts <= 0 {
		errs = append(errs, errors.New("SUBSCRIPTION_POLL_ATTEMPTS must be positive"))
	}

	if c.StripePriceID == "" {
		log.Printf("WARN: STRIPE_PRICE_ID is not set, the subscription step will not work")
	}

	return errors.Join(errs...)
}

func (c *Config) GetDSN() string {
	return c.dsnForHost(c.PostgreSQLHost)
}

// GetReplicaDSN 未配置副本时返回空串
func (c *Config) GetReplicaDSN() string {
	if c.PostgreSQLReplicaHost == "" {
		return ""
	}
	return c.dsnForHost(c.PostgreSQLReplicaHost)
}

func (c *Config) dsnForHost(host string) string {
	return "host=" + host +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

// SubmissionTimeout 一次步骤提交的最长耗时：读资料、每次轮询、更新资料各一个远端超时，
// 再加上轮询之间的退避间隔。会话锁的 TTL 必须大于它
func (c *Config) SubmissionTimeout() time.Duration {
	remote := time.Duration(c.ProfileAPITimeoutSeconds) * time.Second
	attempts := max(c.SubscriptionPollAttempts, 1)

	total := remote * time.Duration(attempts+2)
	interval := time.Duration(c.SubscriptionPollInitialMS) * time.Millisecond
	for i := 1; i < attempts; i++ {
		total += interval
		interval *= 2
	}
	return total
}

// SessionLockTTL 会话锁在提交超时之外留出保存会话的余量
func (c *Config) SessionLockTTL() time.Duration {
	return c.SubmissionTimeout() + 5*time.Second
}

// OnboardingReturnURL 构造 Stripe Checkout 返回地址
func (c *Config) OnboardingReturnURL() string {
	return strings.TrimRight(c.AppPublicURL, "/") + c.OnboardingURL
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
