package accumulator

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"service-intake/internal/common/errors"
	"service-intake/internal/models"

	"github.com/redis/go-redis/v9"
)

// Store persists one RequestInfo per user. Get returns an empty RequestInfo
// for unknown users.
type Store interface {
	Get(ctx context.Context, userID string) (models.RequestInfo, error)
	Put(ctx context.Context, userID string, info models.RequestInfo) error
	Delete(ctx context.Context, userID string) error
}

const statePrefix = "state:"

func StateKey(userID string) string { return statePrefix + userID }

// RedisStore keeps state as JSON. Every write refreshes the TTL, so idle
// conversations are evicted after ttl.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (models.RequestInfo, error) {
	raw, err := s.rdb.Get(ctx, StateKey(userID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return models.RequestInfo{}, nil
	}
	if err != nil {
		return models.RequestInfo{}, errors.NewDatabaseError("load state", err)
	}
	var info models.RequestInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return models.RequestInfo{}, errors.NewDatabaseError("decode state", err)
	}
	return info, nil
}

func (s *RedisStore) Put(ctx context.Context, userID string, info models.RequestInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return errors.NewSystemError(err)
	}
	if err := s.rdb.Set(ctx, StateKey(userID), data, s.ttl).Err(); err != nil {
		return errors.NewDatabaseError("save state", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, StateKey(userID)).Err(); err != nil {
		return errors.NewDatabaseError("delete state", err)
	}
	return nil
}

// MemoryStore is a process-local Store with lazy TTL eviction.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	info    models.RequestInfo
	expires time.Time
}

// NewMemoryStore returns a store whose entries expire after ttl. A zero ttl
// keeps entries until deleted.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (models.RequestInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return models.RequestInfo{}, nil
	}
	if !e.expires.IsZero() && s.now().After(e.expires) {
		delete(s.entries, userID)
		return models.RequestInfo{}, nil
	}
	return e.info, nil
}

func (s *MemoryStore) Put(_ context.Context, userID string, info models.RequestInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memoryEntry{info: info}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.entries[userID] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}
