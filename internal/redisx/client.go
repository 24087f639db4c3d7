package redisx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Cache is the read-side shortcut for order status lookups and the
// idempotency fast path. Redis is best-effort here: Postgres stays the
// source of truth, so errors degrade to cache misses.
type Cache struct {
	R *redis.Client
}

func NewCache(r *redis.Client) *Cache { return &Cache{R: r} }

func (c *Cache) GetStatus(ctx context.Context, orderID int64) ([]byte, bool) {
	s, err := c.R.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if err != nil || s == "" {
		return nil, false
	}
	return []byte(s), true
}

func (c *Cache) SetStatus(ctx context.Context, orderID int64, body []byte) {
	_ = c.R.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), body, TTLStatusCache).Err()
}

func (c *Cache) GetIdempotent(ctx context.Context, key string) (int64, bool) {
	s, err := c.R.Get(ctx, fmt.Sprintf(KeyIdemOrderPlace, key)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (c *Cache) SetIdempotent(ctx context.Context, key string, orderID int64) {
	_ = c.R.Set(ctx, fmt.Sprintf(KeyIdemOrderPlace, key), strconv.FormatInt(orderID, 10), TTLIdempotency).Err()
}

func (c *Cache) SeenEvent(ctx context.Context, service, eventID string) bool {
	ok, _ := Exists(ctx, c.R, fmt.Sprintf(KeyDedup, service, eventID))
	return ok
}

func (c *Cache) MarkEvent(ctx context.Context, service, eventID string) {
	_ = c.R.Set(ctx, fmt.Sprintf(KeyDedup, service, eventID), "1", TTLDedup).Err()
}
