package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"SkinCoach/internal/model"
)

// OnboardingEventRepository 引导事件审计表
type OnboardingEventRepository struct {
	db *gorm.DB
}

func NewOnboardingEventRepository(db *gorm.DB) *OnboardingEventRepository {
	return &OnboardingEventRepository{db: db}
}

// Save 以 message_id 去重写入，重复投递时静默忽略
func (r *OnboardingEventRepository) Save(ctx context.Context, event *model.OnboardingEvent) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(event).Error
	if err != nil {
		return fmt.Errorf("failed to save onboarding event: %w", err)
	}
	return nil
}

// DeleteOccurredBefore 删除早于 cutoff 的事件，返回删除行数；每次最多 batchSize 行，避免长事务
func (r *OnboardingEventRepository) DeleteOccurredBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	sub := r.db.Model(&model.OnboardingEvent{}).
		Select("id").
		Where("occurred_at < ?", cutoff).
		Limit(batchSize)

	res := r.db.WithContext(ctx).
		Unscoped().
		Where("id IN (?)", sub).
		Delete(&model.OnboardingEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge onboarding events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
