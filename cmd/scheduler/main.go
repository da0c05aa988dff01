package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"SkinCoach/config"
	"SkinCoach/internal/repository"
	"SkinCoach/internal/schedule"
	"SkinCoach/pkg/logger"
	"SkinCoach/storage"
	"SkinCoach/storage/database"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(storage.Options{Database: true, Redis: true}); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.Int("audit_retention_days", config.Cfg.AuditRetentionDays),
	)

	s := schedule.NewRetentionScheduler(
		repository.NewOnboardingEventRepository(database.DB()),
		schedule.RedisLocker(),
		time.Duration(config.Cfg.AuditRetentionDays)*24*time.Hour,
	)

	runRetentionLoop(ctx, s)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runRetentionLoop 每天本地时间 03:05 清理一次；development 环境每分钟一次方便调试
func runRetentionLoop(ctx context.Context, s *schedule.RetentionScheduler) {
	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if _, err := s.PurgeExpiredEvents(runCtx); err != nil {
			logger.Logger.Error("Audit retention run failed", zap.Error(err))
		}
	}

	if config.Cfg.IsDevelopment() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		logger.Logger.Info("Retention scheduler running in development mode with 1m interval")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}

	for {
		now := time.Now()
		next := schedule.NextRun(now)
		logger.Logger.Info("Scheduled next audit retention run",
			zap.Time("next_run", next),
			zap.Duration("delay", next.Sub(now)),
		)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			run()
		}
	}
}
