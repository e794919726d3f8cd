// Package runner drives the decision engine: it polls the context provider
// for each configured instrument, runs one evaluation pass, and hands the
// finalized decision to the applier. It owns no trading logic of its own.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/engine"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/events"
)

// ContextProvider supplies the immutable market snapshot for one instrument.
// Implementations wrap the signal model and account feed.
type ContextProvider interface {
	// Snapshot returns the current market context. All fields that could
	// not be computed this cycle must be left absent, never zeroed.
	Snapshot(ctx context.Context, instrument string) (*engine.MarketContext, error)

	// OpenPosition returns the open position for the instrument, or nil
	// when the instrument is flat.
	OpenPosition(ctx context.Context, instrument string) (*engine.Position, error)
}

// DecisionApplier executes a finalized decision against the broker.
// Hold and Skip decisions are delivered too, so the applier can journal them.
type DecisionApplier interface {
	Apply(ctx context.Context, d engine.Decision) error
}

// Runner polls every configured instrument once per interval
type Runner struct {
	cfg      config.EngineConfig
	engine   *engine.Engine
	provider ContextProvider
	applier  DecisionApplier
	eventBus *events.EventBus
	logger   zerolog.Logger

	mu          sync.RWMutex
	running     bool
	cycleCount  int64
	errorCount  int64
	lastCycle   time.Time
	lastBudgets map[string]engine.RiskBudget
}

// New creates a runner
func New(
	cfg config.EngineConfig,
	eng *engine.Engine,
	provider ContextProvider,
	applier DecisionApplier,
	eventBus *events.EventBus,
	logger zerolog.Logger,
) *Runner {
	return &Runner{
		cfg:         cfg,
		engine:      eng,
		provider:    provider,
		applier:     applier,
		eventBus:    eventBus,
		logger:      logger.With().Str("component", "Runner").Logger(),
		lastBudgets: make(map[string]engine.RiskBudget),
	}
}

// Thresholds exposes the engine's threshold controller to the operator API
func (r *Runner) Thresholds() *engine.ThresholdController {
	return r.engine.Thresholds()
}

// Run executes decision cycles until the context is cancelled. The first
// cycle runs immediately; later cycles follow the poll interval.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	r.eventBus.Publish(events.Event{
		Type: events.EventEngineStarted,
		Data: map[string]interface{}{
			"instruments":   r.cfg.Instruments,
			"poll_interval": r.cfg.PollInterval.String(),
		},
	})
	r.logger.Info().
		Strs("instruments", r.cfg.Instruments).
		Dur("poll_interval", r.cfg.PollInterval).
		Msg("Runner started")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()

			r.eventBus.Publish(events.Event{
				Type: events.EventEngineStopped,
				Data: map[string]interface{}{"cycles": r.CycleCount()},
			})
			r.logger.Info().Int64("cycles", r.CycleCount()).Msg("Runner stopped")
			return ctx.Err()

		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle evaluates every instrument once. A failure on one instrument
// never blocks the others.
func (r *Runner) runCycle(ctx context.Context) {
	start := time.Now()
	decided := 0

	for _, instrument := range r.cfg.Instruments {
		if ctx.Err() != nil {
			return
		}
		if err := r.evaluateInstrument(ctx, instrument); err != nil {
			r.mu.Lock()
			r.errorCount++
			r.mu.Unlock()

			r.logger.Error().Err(err).Str("instrument", instrument).Msg("Cycle evaluation failed")
			r.eventBus.Publish(events.Event{
				Type: events.EventError,
				Data: map[string]interface{}{
					"instrument": instrument,
					"error":      err.Error(),
				},
			})
			continue
		}
		decided++
	}

	r.mu.Lock()
	r.cycleCount++
	r.lastCycle = start
	r.mu.Unlock()

	r.eventBus.Publish(events.Event{
		Type: events.EventCycleCompleted,
		Data: map[string]interface{}{
			"decided":     decided,
			"instruments": len(r.cfg.Instruments),
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
}

// evaluateInstrument runs one full decision pass for one instrument
func (r *Runner) evaluateInstrument(ctx context.Context, instrument string) error {
	snapshot, err := r.provider.Snapshot(ctx, instrument)
	if err != nil {
		return fmt.Errorf("snapshot for %s: %w", instrument, err)
	}

	pos, err := r.provider.OpenPosition(ctx, instrument)
	if err != nil {
		return fmt.Errorf("open position for %s: %w", instrument, err)
	}

	r.mu.Lock()
	r.lastBudgets[instrument] = snapshot.Budget
	r.mu.Unlock()

	decision := r.engine.Evaluate(snapshot, pos)

	if err := r.applier.Apply(ctx, decision); err != nil {
		return fmt.Errorf("apply %s for %s: %w", decision.Action, instrument, err)
	}
	return nil
}

// CycleCount returns the number of completed cycles
func (r *Runner) CycleCount() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycleCount
}

// Status returns a snapshot of runner state for the operator API
func (r *Runner) Status() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	budgets := make(map[string]engine.RiskBudget, len(r.lastBudgets))
	for instrument, b := range r.lastBudgets {
		budgets[instrument] = b
	}

	return map[string]interface{}{
		"running":       r.running,
		"instruments":   r.cfg.Instruments,
		"poll_interval": r.cfg.PollInterval.String(),
		"cycle_count":   r.cycleCount,
		"error_count":   r.errorCount,
		"last_cycle":    r.lastCycle,
		"risk_budgets":  budgets,
	}
}
