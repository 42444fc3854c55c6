package suggestion

import (
	"context"
	"sync"
	"time"

	"service-intake/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// History keeps the service codes a user recently asked for, newest first.
type History interface {
	Record(ctx context.Context, userID, serviceCode string) error
	Recent(ctx context.Context, userID string) ([]string, error)
}

const historyPrefix = "history:"

// RedisHistory stores one capped list per user.
type RedisHistory struct {
	rdb  redis.Cmdable
	size int
	ttl  time.Duration
}

func NewRedisHistory(rdb redis.Cmdable, size int, ttl time.Duration) *RedisHistory {
	if size <= 0 {
		size = 50
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisHistory{rdb: rdb, size: size, ttl: ttl}
}

func historyKey(userID string) string {
	return historyPrefix + userID
}

func (h *RedisHistory) Record(ctx context.Context, userID, serviceCode string) error {
	if userID == "" || serviceCode == "" {
		return nil
	}
	key := historyKey(userID)
	_, err := h.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, serviceCode)
		pipe.LTrim(ctx, key, 0, int64(h.size-1))
		pipe.Expire(ctx, key, h.ttl)
		return nil
	})
	if err != nil {
		return errors.NewDatabaseError("record history", err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, userID string) ([]string, error) {
	codes, err := h.rdb.LRange(ctx, historyKey(userID), 0, int64(h.size-1)).Result()
	if err != nil {
		return nil, errors.NewDatabaseError("read history", err)
	}
	return codes, nil
}

type MemoryHistory struct {
	mu      sync.Mutex
	size    int
	entries map[string][]string
}

func NewMemoryHistory(size int) *MemoryHistory {
	if size <= 0 {
		size = 50
	}
	return &MemoryHistory{size: size, entries: make(map[string][]string)}
}

func (h *MemoryHistory) Record(_ context.Context, userID, serviceCode string) error {
	if userID == "" || serviceCode == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	list := append([]string{serviceCode}, h.entries[userID]...)
	if len(list) > h.size {
		list = list[:h.size]
	}
	h.entries[userID] = list
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, userID string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries[userID]...), nil
}
