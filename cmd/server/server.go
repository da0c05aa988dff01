package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hzconfig "github.com/cloudwego/hertz/pkg/common/config"
	otelapi "go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"SkinCoach/config"
	"SkinCoach/internal/cache"
	"SkinCoach/internal/middleware"
	"SkinCoach/internal/queue"
	"SkinCoach/internal/router"
	"SkinCoach/internal/service"
	"SkinCoach/internal/wizard"
	"SkinCoach/pkg/logger"
	"SkinCoach/pkg/metrics"
	"SkinCoach/pkg/otel"
	"SkinCoach/pkg/profileapi"
	"SkinCoach/pkg/snowflake"
	"SkinCoach/pkg/token"
	"SkinCoach/storage"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 日志部分
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if config.Cfg.OTelEnabled {
		shutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
			ServiceName:  config.Cfg.ServiceName,
			Environment:  config.Cfg.Environment,
			OTLPEndpoint: config.Cfg.OTelEndpoint,
			SampleRatio:  config.Cfg.OTelSampleRatio,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()

		if err := metrics.InitMetrics(); err != nil {
			logger.Logger.Fatal("Failed to initialize metrics", zap.Error(err))
		}
		if err := middleware.InitMetrics(otelapi.Meter("hertz-server")); err != nil {
			logger.Logger.Fatal("Failed to initialize HTTP metrics", zap.Error(err))
		}
	}

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// 会话存储、限流、预约幂等都依赖 Redis
	if err := storage.Init(storage.Options{Redis: true}); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	// 事件只用于审计，MQ 不可用时照常服务
	if err := storage.Init(storage.Options{MQ: true}); err != nil {
		logger.Logger.Warn("Failed to initialize RabbitMQ, onboarding events will be dropped", zap.Error(err))
	}

	if err := profileapi.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize profile API client", zap.Error(err))
	}

	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	} // token 在中间件前初始化，middleware 依赖 token

	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	service.SetupOnboarding(service.Dependencies{
		Profiles: profileapi.GetClient(),
		Sessions: newSessionStore(),
		Events:   queue.NewProducer(),
		Bookings: cache.NewBookingMarks(),
		NewID:    snowflake.NextStringID,
		Options:  service.OptionsFromConfig(&config.Cfg),
	})

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
		zap.String("payment_mode", config.Cfg.PaymentMode),
		zap.Bool("booking_enabled", config.Cfg.BookingEnabled),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	opts := []hzconfig.Option{server.WithHostPorts(addr)}

	var tracerMW app.HandlerFunc
	if config.Cfg.OTelEnabled {
		var tracerOpt hzconfig.Option
		tracerOpt, tracerMW = middleware.NewServerTracerConfig()
		opts = append(opts, tracerOpt)
	}

	h := server.Default(opts...)
	if tracerMW != nil {
		h.Use(tracerMW)
	}
	router.Register(h.Engine)

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}

// newSessionStore SESSION_STORE=memory 只适合单实例部署
func newSessionStore() wizard.Store {
	ttl := time.Duration(config.Cfg.WizardSessionTTLMinutes) * time.Minute
	if config.Cfg.SessionStore == "memory" {
		logger.Logger.Warn("Using in-memory wizard session store, sessions are lost on restart")
		return wizard.NewMemoryStore(ttl)
	}
	return cache.NewSessionStore(ttl, config.Cfg.SessionLockTTL())
}
