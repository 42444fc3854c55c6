package accumulator

import (
	"context"
	"sync"
	"time"

	"service-intake/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// Conversation keeps the last messages of each user, oldest first. It only
// feeds the extractor prompt.
type Conversation interface {
	Append(ctx context.Context, userID, message string) error
	Recent(ctx context.Context, userID string) ([]string, error)
	Reset(ctx context.Context, userID string) error
}

const conversationPrefix = "conversation:"

type RedisConversation struct {
	rdb    redis.Cmdable
	length int
	ttl    time.Duration
}

func NewRedisConversation(rdb redis.Cmdable, length int, ttl time.Duration) *RedisConversation {
	if length <= 0 {
		length = 10
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisConversation{rdb: rdb, length: length, ttl: ttl}
}

func (c *RedisConversation) Append(ctx context.Context, userID, message string) error {
	key := conversationPrefix + userID
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, message)
		pipe.LTrim(ctx, key, int64(-c.length), -1)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return errors.NewDatabaseError("append conversation", err)
	}
	return nil
}

func (c *RedisConversation) Recent(ctx context.Context, userID string) ([]string, error) {
	msgs, err := c.rdb.LRange(ctx, conversationPrefix+userID, 0, -1).Result()
	if err != nil {
		return nil, errors.NewDatabaseError("read conversation", err)
	}
	return msgs, nil
}

func (c *RedisConversation) Reset(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, conversationPrefix+userID).Err(); err != nil {
		return errors.NewDatabaseError("reset conversation", err)
	}
	return nil
}

type MemoryConversation struct {
	mu       sync.Mutex
	length   int
	messages map[string][]string
}

func NewMemoryConversation(length int) *MemoryConversation {
	if length <= 0 {
		length = 10
	}
	return &MemoryConversation{length: length, messages: make(map[string][]string)}
}

func (c *MemoryConversation) Append(_ context.Context, userID, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := append(c.messages[userID], message)
	if len(list) > c.length {
		list = list[len(list)-c.length:]
	}
	c.messages[userID] = list
	return nil
}

func (c *MemoryConversation) Recent(_ context.Context, userID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages[userID]...), nil
}

func (c *MemoryConversation) Reset(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, userID)
	return nil
}
