package agentsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
)

const redisKeyPrefix = "support-chat:session:"

// RedisStore хранит записи сессий как JSON с TTL до конца сессии.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, id string, actor model.Actor, ttl time.Duration) error {
	body, err := json.Marshal(actor)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisKeyPrefix+id, body, ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, id string) (model.Actor, error) {
	body, err := s.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Actor{}, errs.ErrSessionExpired
	}
	if err != nil {
		return model.Actor{}, err
	}
	var actor model.Actor
	if err := json.Unmarshal(body, &actor); err != nil {
		return model.Actor{}, fmt.Errorf("agentsession: decode record: %w", err)
	}
	return actor, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, redisKeyPrefix+id).Err()
}

// MemoryStore Store в памяти одного процесса.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	actor     model.Actor
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, id string, actor model.Actor, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = memoryRecord{actor: actor, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (model.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return model.Actor{}, errs.ErrSessionExpired
	}
	if !s.now().Before(rec.expiresAt) {
		delete(s.records, id)
		return model.Actor{}, errs.ErrSessionExpired
	}
	return rec.actor, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
