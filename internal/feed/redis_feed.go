// Package feed connects the engine to the surrounding pipeline over Redis.
// The signal layer publishes market context and position snapshots into
// Redis keys; the execution layer consumes finalized decisions from a Redis
// queue. The engine itself never talks to a broker.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/internal/engine"
)

// Redis keys shared with the signal and execution layers
const (
	// ContextKeyPrefix holds the latest market context per instrument
	// Format: engine:context:{instrument}
	ContextKeyPrefix = "engine:context"

	// PositionKeyPrefix holds the open position per instrument, absent when flat
	// Format: engine:position:{instrument}
	PositionKeyPrefix = "engine:position"

	// DecisionQueueKey is the list the execution layer consumes with BRPOP
	DecisionQueueKey = "engine:decisions:queue"

	// DecisionQueueMaxLen bounds the queue when no executor is draining it
	DecisionQueueMaxLen = 1000

	// StaleContextAge rejects snapshots the signal layer stopped refreshing
	StaleContextAge = 5 * time.Minute
)

// ErrStaleContext is returned when the published snapshot is too old to act on
var ErrStaleContext = fmt.Errorf("market context is stale")

// RedisContextProvider reads market context and position snapshots published
// by the signal layer
type RedisContextProvider struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisContextProvider creates a provider over the shared Redis instance
func NewRedisContextProvider(client *redis.Client, logger zerolog.Logger) *RedisContextProvider {
	return &RedisContextProvider{
		client: client,
		logger: logger.With().Str("component", "ContextProvider").Logger(),
	}
}

// Snapshot reads the latest published market context for an instrument
func (p *RedisContextProvider) Snapshot(ctx context.Context, instrument string) (*engine.MarketContext, error) {
	key := fmt.Sprintf("%s:%s", ContextKeyPrefix, instrument)
	data, err := p.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no market context published for %s", instrument)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read market context for %s: %w", instrument, err)
	}

	mc := &engine.MarketContext{}
	if err := json.Unmarshal(data, mc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal market context for %s: %w", instrument, err)
	}

	if age := time.Since(mc.Timestamp); age > StaleContextAge {
		return nil, fmt.Errorf("%w: %s snapshot is %s old", ErrStaleContext, instrument, age.Round(time.Second))
	}
	return mc, nil
}

// OpenPosition reads the open position for an instrument, nil when flat
func (p *RedisContextProvider) OpenPosition(ctx context.Context, instrument string) (*engine.Position, error) {
	key := fmt.Sprintf("%s:%s", PositionKeyPrefix, instrument)
	data, err := p.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read position for %s: %w", instrument, err)
	}

	pos := &engine.Position{}
	if err := json.Unmarshal(data, pos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position for %s: %w", instrument, err)
	}
	return pos, nil
}

// RedisDecisionApplier pushes actionable decisions onto the queue the
// execution layer drains. Hold and Skip decisions are not queued; they carry
// no work for the executor and are journaled separately.
type RedisDecisionApplier struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisDecisionApplier creates an applier over the shared Redis instance
func NewRedisDecisionApplier(client *redis.Client, logger zerolog.Logger) *RedisDecisionApplier {
	return &RedisDecisionApplier{
		client: client,
		logger: logger.With().Str("component", "DecisionApplier").Logger(),
	}
}

// Apply enqueues one finalized decision for execution
func (a *RedisDecisionApplier) Apply(ctx context.Context, d engine.Decision) error {
	switch d.Action {
	case engine.ActionHold, engine.ActionSkip:
		return nil
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision %s: %w", d.ID, err)
	}

	pipe := a.client.Pipeline()
	pipe.LPush(ctx, DecisionQueueKey, data)
	pipe.LTrim(ctx, DecisionQueueKey, 0, DecisionQueueMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue decision %s: %w", d.ID, err)
	}

	a.logger.Info().
		Str("instrument", d.Instrument).
		Str("action", string(d.Action)).
		Str("reason", d.Reason).
		Msg("Decision enqueued for execution")
	return nil
}
