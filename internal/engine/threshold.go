package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
)

// Outcome is one completed trade reported back by the execution layer
type Outcome struct {
	Win          bool      `json:"win"`
	ProfitFactor float64   `json:"profit_factor"`
	ClosedAt     time.Time `json:"closed_at"`
}

// ClassState is the adaptive threshold record for one instrument class.
// It is the serialized form used by the persistence layer.
type ClassState struct {
	Class         InstrumentClass `json:"class"`
	MinConfidence float64         `json:"min_confidence"`
	Outcomes      []Outcome       `json:"outcomes"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ThresholdController owns the live minimum-confidence value per instrument
// class and adjusts it from realized trade outcomes. It is the single source
// of truth: every entry decision reads Current, never a cached copy.
type ThresholdController struct {
	mu      sync.RWMutex
	cfg     config.ThresholdConfig
	classes map[InstrumentClass]*ClassState
	logger  zerolog.Logger

	onAdjust func(class InstrumentClass, old, new float64, winRate float64)
	onReset  func(class InstrumentClass)
}

// NewThresholdController creates a controller with every class at the
// configured default
func NewThresholdController(cfg config.ThresholdConfig, logger zerolog.Logger) *ThresholdController {
	return &ThresholdController{
		cfg:     cfg,
		classes: make(map[InstrumentClass]*ClassState),
		logger:  logger.With().Str("component", "ThresholdController").Logger(),
	}
}

// OnAdjust sets a callback invoked after every threshold change
func (tc *ThresholdController) OnAdjust(fn func(class InstrumentClass, old, new float64, winRate float64)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.onAdjust = fn
}

// OnReset sets a callback invoked after an operator reset, so the hosting
// process can drop the persisted mirror of the discarded state
func (tc *ThresholdController) OnReset(fn func(class InstrumentClass)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.onReset = fn
}

// Current returns the live minimum confidence for the class
func (tc *ThresholdController) Current(class InstrumentClass) float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	if st, ok := tc.classes[class]; ok {
		return st.MinConfidence
	}
	return tc.cfg.Default
}

// RecordOutcome feeds one closed trade into the rolling window and adjusts
// the threshold when the recent win rate crosses a water mark. Called
// exactly once per fully closed position.
func (tc *ThresholdController) RecordOutcome(class InstrumentClass, win bool, profitFactor float64) {
	tc.mu.Lock()

	st := tc.classes[class]
	if st == nil {
		st = &ClassState{Class: class, MinConfidence: tc.cfg.Default}
		tc.classes[class] = st
	}

	st.Outcomes = append(st.Outcomes, Outcome{Win: win, ProfitFactor: profitFactor, ClosedAt: time.Now()})
	if len(st.Outcomes) > tc.cfg.WindowSize {
		st.Outcomes = st.Outcomes[len(st.Outcomes)-tc.cfg.WindowSize:]
	}
	st.UpdatedAt = time.Now()

	if len(st.Outcomes) < tc.cfg.MinOutcomes {
		tc.mu.Unlock()
		return
	}

	wins := 0
	for _, o := range st.Outcomes {
		if o.Win {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(st.Outcomes))

	old := st.MinConfidence
	switch {
	case winRate > tc.cfg.HighWinRate:
		// The model/context combination is working; let more trades through
		st.MinConfidence = clampRange(st.MinConfidence-tc.cfg.Step, tc.cfg.Floor, tc.cfg.Ceiling)
	case winRate < tc.cfg.LowWinRate:
		st.MinConfidence = clampRange(st.MinConfidence+tc.cfg.Step, tc.cfg.Floor, tc.cfg.Ceiling)
	}

	updated := st.MinConfidence
	onAdjust := tc.onAdjust
	tc.mu.Unlock()

	// Callback runs outside the lock so listeners may read the controller
	if updated != old {
		tc.logger.Info().
			Str("class", string(class)).
			Float64("old", old).
			Float64("new", updated).
			Float64("win_rate", winRate).
			Msg("Adaptive threshold adjusted")
		if onAdjust != nil {
			onAdjust(class, old, updated, winRate)
		}
	}
}

// Snapshot returns a deep copy of all class records for persistence
func (tc *ThresholdController) Snapshot() []ClassState {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	out := make([]ClassState, 0, len(tc.classes))
	for _, st := range tc.classes {
		cp := *st
		cp.Outcomes = make([]Outcome, len(st.Outcomes))
		copy(cp.Outcomes, st.Outcomes)
		out = append(out, cp)
	}
	return out
}

// Restore replaces controller state from persisted records, clamping each
// threshold into the configured bounds in case the bounds changed between
// restarts.
func (tc *ThresholdController) Restore(states []ClassState) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	for _, st := range states {
		cp := st
		cp.MinConfidence = clampRange(cp.MinConfidence, tc.cfg.Floor, tc.cfg.Ceiling)
		if len(cp.Outcomes) > tc.cfg.WindowSize {
			cp.Outcomes = cp.Outcomes[len(cp.Outcomes)-tc.cfg.WindowSize:]
		}
		tc.classes[cp.Class] = &cp
		tc.logger.Info().
			Str("class", string(cp.Class)).
			Float64("min_confidence", cp.MinConfidence).
			Int("outcomes", len(cp.Outcomes)).
			Msg("Threshold state restored")
	}
}

// Reset returns the class to the configured default, discarding its window.
// Operator action only.
func (tc *ThresholdController) Reset(class InstrumentClass) {
	tc.mu.Lock()
	tc.classes[class] = &ClassState{
		Class:         class,
		MinConfidence: tc.cfg.Default,
		UpdatedAt:     time.Now(),
	}
	onReset := tc.onReset
	tc.mu.Unlock()

	tc.logger.Warn().Str("class", string(class)).Msg("Threshold state reset to default")
	// Callback runs outside the lock so listeners may read the controller
	if onReset != nil {
		onReset(class)
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
