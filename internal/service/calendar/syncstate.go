package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SyncState debounces feed synchronization across processes.
type SyncState interface {
	// Due reports whether a sync window is open and, when it is, claims it
	// so concurrent callers skip.
	Due(ctx context.Context) (bool, error)
	// Release reopens a claimed window so a failed sync can retry before
	// the TTL expires.
	Release(ctx context.Context) error
}

const syncKey = "calendar:last_sync"

// RedisSyncState shares the debounce window between replicas via SETNX.
type RedisSyncState struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSyncState(rdb *redis.Client, ttl time.Duration) *RedisSyncState {
	return &RedisSyncState{rdb: rdb, ttl: ttl}
}

func (s *RedisSyncState) Due(ctx context.Context) (bool, error) {
	return s.rdb.SetNX(ctx, syncKey, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
}

func (s *RedisSyncState) Release(ctx context.Context) error {
	return s.rdb.Del(ctx, syncKey).Err()
}

// MemorySyncState is the single-process variant used in tests.
type MemorySyncState struct {
	mu   sync.Mutex
	last time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemorySyncState(ttl time.Duration) *MemorySyncState {
	return &MemorySyncState{ttl: ttl, now: time.Now}
}

func (s *MemorySyncState) Due(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !s.last.IsZero() && now.Sub(s.last) < s.ttl {
		return false, nil
	}
	s.last = now
	return true, nil
}

func (s *MemorySyncState) Release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = time.Time{}
	return nil
}
