// README: Skip-list stores: Redis sets in production, a map for tests and local runs.
package eligibility

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"transferhub/internal/types"
)

const (
	skipKeyPrefix = "eligibility:driver:%s:skipped"
	// Skipped jobs resolve long before this; the TTL only bounds stale keys.
	skipTTL = 30 * 24 * time.Hour
)

type RedisSkipStore struct {
	redis *redis.Client
}

func NewRedisSkipStore(redis *redis.Client) *RedisSkipStore {
	return &RedisSkipStore{redis: redis}
}

func (s *RedisSkipStore) Add(ctx context.Context, driverID, jobID types.ID) error {
	key := skipKey(driverID)
	pipe := s.redis.TxPipeline()
	pipe.SAdd(ctx, key, string(jobID))
	pipe.Expire(ctx, key, skipTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisSkipStore) Remove(ctx context.Context, driverID, jobID types.ID) error {
	return s.redis.SRem(ctx, skipKey(driverID), string(jobID)).Err()
}

func (s *RedisSkipStore) List(ctx context.Context, driverID types.ID) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, skipKey(driverID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

func skipKey(driverID types.ID) string {
	return fmt.Sprintf(skipKeyPrefix, string(driverID))
}

type MemorySkipStore struct {
	mu      sync.RWMutex
	skipped map[types.ID]map[types.ID]struct{}
}

func NewMemorySkipStore() *MemorySkipStore {
	return &MemorySkipStore{skipped: make(map[types.ID]map[types.ID]struct{})}
}

func (m *MemorySkipStore) Add(_ context.Context, driverID, jobID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.skipped[driverID]
	if !ok {
		set = make(map[types.ID]struct{})
		m.skipped[driverID] = set
	}
	set[jobID] = struct{}{}
	return nil
}

func (m *MemorySkipStore) Remove(_ context.Context, driverID, jobID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.skipped[driverID], jobID)
	return nil
}

func (m *MemorySkipStore) List(_ context.Context, driverID types.ID) ([]types.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]types.ID, 0, len(m.skipped[driverID]))
	for id := range m.skipped[driverID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}
