package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
)

// Engine runs one decision pass per instrument per cycle. Evaluation order
// is fixed: for an instrument with an open position the lifecycle manager
// runs first, and a terminal lifecycle action short-circuits the entry
// gate; every decision leaving either path is authorized by the risk guard
// before it is returned.
type Engine struct {
	cfg       config.EngineConfig
	scorer    *QualityScorer
	threshold *ThresholdController
	entry     *EntryGate
	lifecycle *LifecycleManager
	guard     *RiskGuard
	logger    zerolog.Logger

	onDecision func(Decision)
	onOutcome  func(class InstrumentClass, win bool, profitFactor float64)
}

// New wires the engine from its five components
func New(cfg *config.Config, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg.EngineConfig,
		scorer:    NewQualityScorer(cfg.QualityConfig),
		threshold: NewThresholdController(cfg.ThresholdConfig, logger),
		entry:     NewEntryGate(cfg.EntryConfig),
		lifecycle: NewLifecycleManager(cfg.LifecycleConfig, logger),
		guard:     NewRiskGuard(cfg.GuardConfig, logger),
		logger:    logger.With().Str("component", "Engine").Logger(),
	}
}

// Thresholds exposes the adaptive threshold controller for persistence and
// the operator API
func (e *Engine) Thresholds() *ThresholdController {
	return e.threshold
}

// OnDecision sets a callback invoked for every finalized decision
func (e *Engine) OnDecision(fn func(Decision)) {
	e.onDecision = fn
}

// OnOutcome sets a callback invoked for every recorded trade outcome
func (e *Engine) OnOutcome(fn func(class InstrumentClass, win bool, profitFactor float64)) {
	e.onOutcome = fn
}

// Evaluate runs one decision pass for one instrument. pos is nil when no
// position is open. The pass is a pure computation over the snapshot; the
// only shared state touched is a read of the adaptive threshold.
func (e *Engine) Evaluate(ctx *MarketContext, pos *Position) Decision {
	var d Decision

	if pos != nil {
		if !positionConsistent(pos) {
			// An inconsistent position report means the execution layer and
			// engine disagree about reality. Guessing aggressively is worse
			// than missing a cycle.
			d = Decision{
				Instrument: ctx.Instrument,
				Action:     ActionHold,
				Reason:     "position state inconsistent, holding until next report",
				Timestamp:  ctx.Timestamp,
			}
			e.logger.Error().
				Str("instrument", pos.Instrument).
				Float64("size", pos.Size).
				Int("dca_count", pos.DCACount).
				Msg("Inconsistent position state reported")
			return e.finalize(d, ctx)
		}

		d = e.lifecycle.Evaluate(ctx, pos)
		if d.Terminal() || d.Action == ActionHold {
			return e.finalize(d, ctx)
		}
	}

	class := ctx.Class(e.cfg.HighVolBoundary)
	quality := e.scorer.Score(ctx)
	threshold := e.threshold.Current(class)

	entry := e.entry.Decide(ctx, quality, threshold, class)
	d = Decision{
		Instrument:   ctx.Instrument,
		QualityScore: quality.Score,
		Confidence:   ctx.Signal.Confidence,
		Threshold:    threshold,
		Reason:       entry.Reason,
		Timestamp:    ctx.Timestamp,
	}
	if entry.Approve {
		d.Action = ActionOpen
		d.SizeMultiplier = entry.SizeMultiplier
	} else {
		d.Action = ActionSkip
	}

	return e.finalize(d, ctx)
}

// RecordOutcome feeds a fully closed trade back into the adaptive
// threshold controller. Called exactly once per close by the hosting
// process.
func (e *Engine) RecordOutcome(class InstrumentClass, win bool, profitFactor float64) {
	e.threshold.RecordOutcome(class, win, profitFactor)
	if e.onOutcome != nil {
		e.onOutcome(class, win, profitFactor)
	}
}

// finalize authorizes the decision, stamps it, and notifies listeners
func (e *Engine) finalize(d Decision, ctx *MarketContext) Decision {
	d = e.guard.Authorize(d, ctx)
	d.ID = uuid.New().String()
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}

	e.logger.Debug().
		Str("instrument", d.Instrument).
		Str("action", string(d.Action)).
		Float64("quality", d.QualityScore).
		Float64("confidence", d.Confidence).
		Str("reason", d.Reason).
		Msg("Decision finalized")

	if e.onDecision != nil {
		e.onDecision(d)
	}
	return d
}

// positionConsistent sanity-checks the execution layer's position report
func positionConsistent(pos *Position) bool {
	if pos.Size <= 0 || pos.AvgEntryPrice <= 0 {
		return false
	}
	if pos.DCACount < 0 {
		return false
	}
	if pos.Direction != DirectionLong && pos.Direction != DirectionShort {
		return false
	}
	return true
}
