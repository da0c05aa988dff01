package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"SkinCoach/internal/model"
	"SkinCoach/pkg/logger"
)

// Migrate 运行数据库迁移；用户资料由远端服务保存，本地只有事件审计表
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	if err := db.AutoMigrate(&model.OnboardingEvent{}); err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
