package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/staybook/internal/config"
	"go.uber.org/zap"
)

const keyBookingAction = "staybook:booking:%s:%s"

// BookingLocker serializes admin actions per booking across instances.
// Without REDIS_ADDR it is disabled and every TryLock succeeds.
type BookingLocker struct {
	enabled bool
	locker  *Locker
	ttl     func() time.Duration
}

func NewBookingLocker(cfg config.Config, reconcile *config.ReconcileConfigHolder, log *zap.Logger) *BookingLocker {
	addr := strings.TrimSpace(cfg.RedisAddr)
	ttl := func() time.Duration { return reconcile.Get().RefundLockTTL }
	if addr == "" {
		log.Named("lock").Info("redis not configured, booking locks disabled")
		return &BookingLocker{ttl: ttl}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	return newBookingLocker(client, ttl)
}

func newBookingLocker(client redis.UniversalClient, ttl func() time.Duration) *BookingLocker {
	return &BookingLocker{
		enabled: client != nil,
		locker:  NewLocker(client),
		ttl:     ttl,
	}
}

func (l *BookingLocker) Enabled() bool {
	return l != nil && l.enabled
}

func (l *BookingLocker) TryLock(ctx context.Context, bookingID snowflake.ID, action string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	ttl := 30 * time.Second
	if l.ttl != nil && l.ttl() > 0 {
		ttl = l.ttl()
	}
	return l.locker.TryLock(ctx, bookingKey(bookingID, action), ttl)
}

func (l *BookingLocker) Release(ctx context.Context, bookingID snowflake.ID, action string, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, bookingKey(bookingID, action), token)
}

func bookingKey(bookingID snowflake.ID, action string) string {
	return fmt.Sprintf(keyBookingAction, bookingID.String(), strings.TrimSpace(action))
}
