// Package database also provides Redis-based threshold state sharing.
//
// This repository mirrors the adaptive threshold snapshot in Redis so a
// standby engine instance can take over with the learned requirements
// intact. When Redis is unavailable, it falls back to an in-memory cache
// so decision cycles continue without interruption.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JustinHardison/ai-trading-system-sub004/internal/engine"
)

const (
	// ThresholdKeyPrefix is the prefix for per-class threshold state keys
	// Format: engine:threshold:{class}
	ThresholdKeyPrefix = "engine:threshold"

	// ThresholdClassListKey holds the set of classes with persisted state
	ThresholdClassListKey = "engine:thresholds:list"

	// ThresholdStateTTL keeps stale snapshots from outliving a long outage
	ThresholdStateTTL = 30 * 24 * time.Hour
)

// RedisThresholdStateRepository provides Redis-based storage for adaptive
// threshold state with an in-memory fallback cache when Redis is unavailable.
type RedisThresholdStateRepository struct {
	client         *redis.Client
	inMemoryCache  map[engine.InstrumentClass]engine.ClassState
	cacheMu        sync.RWMutex
	redisAvailable atomic.Bool
}

// NewRedisThresholdStateRepository creates a new RedisThresholdStateRepository.
// If client is nil, the repository operates in memory-only mode.
func NewRedisThresholdStateRepository(client *redis.Client) *RedisThresholdStateRepository {
	repo := &RedisThresholdStateRepository{
		client:        client,
		inMemoryCache: make(map[engine.InstrumentClass]engine.ClassState),
	}

	// Check initial Redis availability
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[REDIS-THRESHOLD] Redis unavailable at startup: %v, using in-memory cache", err)
			repo.redisAvailable.Store(false)
		} else {
			log.Printf("[REDIS-THRESHOLD] Redis connected successfully")
			repo.redisAvailable.Store(true)
		}
	} else {
		log.Printf("[REDIS-THRESHOLD] No Redis client provided, using in-memory cache only")
		repo.redisAvailable.Store(false)
	}

	return repo
}

// thresholdKey generates the Redis key for one class's state
func (r *RedisThresholdStateRepository) thresholdKey(class engine.InstrumentClass) string {
	return fmt.Sprintf("%s:%s", ThresholdKeyPrefix, class)
}

// SaveState saves one class's threshold state to Redis with fallback to the
// in-memory cache. Called after every threshold adjustment.
func (r *RedisThresholdStateRepository) SaveState(ctx context.Context, state engine.ClassState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal threshold state: %w", err)
	}

	// Always update the fallback cache
	r.cacheMu.Lock()
	r.inMemoryCache[state.Class] = state
	r.cacheMu.Unlock()

	if r.client == nil || !r.redisAvailable.Load() {
		return nil
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.thresholdKey(state.Class), data, ThresholdStateTTL)
	pipe.SAdd(ctx, ThresholdClassListKey, string(state.Class))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[REDIS-THRESHOLD] Save failed, cached in memory: %v", err)
		r.redisAvailable.Store(false)
		return nil
	}
	r.redisAvailable.Store(true)
	return nil
}

// LoadSnapshot reads all persisted class states. If Redis is unavailable it
// returns the in-memory cache, which may be empty after a restart.
func (r *RedisThresholdStateRepository) LoadSnapshot(ctx context.Context) ([]engine.ClassState, error) {
	if r.client == nil || !r.redisAvailable.Load() {
		return r.cachedSnapshot(), nil
	}

	classes, err := r.client.SMembers(ctx, ThresholdClassListKey).Result()
	if err != nil {
		log.Printf("[REDIS-THRESHOLD] Load failed, using in-memory cache: %v", err)
		r.redisAvailable.Store(false)
		return r.cachedSnapshot(), nil
	}

	snapshot := make([]engine.ClassState, 0, len(classes))
	for _, class := range classes {
		data, err := r.client.Get(ctx, r.thresholdKey(engine.InstrumentClass(class))).Bytes()
		if err == redis.Nil {
			continue // Expired entry still listed in the set
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load threshold state for %s: %w", class, err)
		}

		var state engine.ClassState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal threshold state for %s: %w", class, err)
		}
		snapshot = append(snapshot, state)
	}

	// Refresh the fallback cache with what Redis had
	r.cacheMu.Lock()
	for _, state := range snapshot {
		r.inMemoryCache[state.Class] = state
	}
	r.cacheMu.Unlock()

	return snapshot, nil
}

// DeleteState removes one class's state, used by the operator reset endpoint
func (r *RedisThresholdStateRepository) DeleteState(ctx context.Context, class engine.InstrumentClass) error {
	r.cacheMu.Lock()
	delete(r.inMemoryCache, class)
	r.cacheMu.Unlock()

	if r.client == nil || !r.redisAvailable.Load() {
		return nil
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.thresholdKey(class))
	pipe.SRem(ctx, ThresholdClassListKey, string(class))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete threshold state for %s: %w", class, err)
	}
	return nil
}

// IsRedisAvailable reports whether the last Redis operation succeeded
func (r *RedisThresholdStateRepository) IsRedisAvailable() bool {
	return r.redisAvailable.Load()
}

func (r *RedisThresholdStateRepository) cachedSnapshot() []engine.ClassState {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	snapshot := make([]engine.ClassState, 0, len(r.inMemoryCache))
	for _, state := range r.inMemoryCache {
		snapshot = append(snapshot, state)
	}
	return snapshot
}
