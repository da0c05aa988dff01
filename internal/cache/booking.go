package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"SkinCoach/storage/redis"
)

const (
	bookingPrefix = "booking"
	bookingTTL    = 30 * 24 * time.Hour
)

// BookingMarks 预约事件去重，同一预约重复回调只处理一次
type BookingMarks struct {
	ttl time.Duration
}

func NewBookingMarks() *BookingMarks {
	return &BookingMarks{ttl: bookingTTL}
}

// bookingKey invitee URI 较长，取摘要作为键
func bookingKey(profileID, inviteeURI string) string {
	sum := sha256.Sum256([]byte(inviteeURI))
	return redis.Key(bookingPrefix, profileID, hex.EncodeToString(sum[:12]))
}

// TryMarkBooking 返回 true 表示首次收到该预约
func (b *BookingMarks) TryMarkBooking(ctx context.Context, profileID, inviteeURI string) (bool, error) {
	ok, err := redis.Client().SetNX(ctx, bookingKey(profileID, inviteeURI), "1", b.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark booking: %w", err)
	}
	return ok, nil
}

// UnmarkBooking 收尾失败时撤销，允许用户重试
func (b *BookingMarks) UnmarkBooking(ctx context.Context, profileID, inviteeURI string) error {
	return redis.Client().Del(ctx, bookingKey(profileID, inviteeURI)).Err()
}
