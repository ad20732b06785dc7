package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"aaroh-orders/internal/logger"

	"github.com/go-redis/redis/v8"
)

// Lock holds a short advisory lock per order while a verification is in
// flight. The database row lock is what actually guarantees single
// application; this just keeps concurrent submissions from doing redundant
// work.
type Lock struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewLock(client *redis.Client, log *logger.Logger) *Lock {
	return &Lock{Client: client, Logger: log}
}

func (l *Lock) lockTTL() time.Duration {
	defaultTTL := 30 * time.Second

	ttlStr := os.Getenv("ORDER_LOCK_TTL_SECONDS")
	if ttlStr == "" {
		return defaultTTL
	}
	ttlSec, err := strconv.Atoi(ttlStr)
	if err != nil {
		l.Logger.Warn("REDIS", "Invalid ORDER_LOCK_TTL_SECONDS value '"+ttlStr+"', using default 30s")
		return defaultTTL
	}
	return time.Duration(ttlSec) * time.Second
}

// LockOrder takes the verification lock for an order. The token identifies
// the holder so only the owner can release it.
func (l *Lock) LockOrder(ctx context.Context, orderID, token string) (bool, error) {
	key := "order_verify_lock:" + orderID
	return l.Client.SetNX(ctx, key, token, l.lockTTL()).Result()
}

// UnlockOrder releases the lock if this holder still owns it.
func (l *Lock) UnlockOrder(ctx context.Context, orderID, token string) error {
	key := fmt.Sprintf("order_verify_lock:%s", orderID)
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == token {
		_, err := l.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
