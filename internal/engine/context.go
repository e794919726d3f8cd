package engine

import (
	"math"
	"time"
)

// Direction represents the side of a signal or position
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Regime is the discrete market-regime label supplied by the feature aggregator
type Regime string

const (
	RegimeTrendingUp   Regime = "trending_up"
	RegimeTrendingDown Regime = "trending_down"
	RegimeRanging      Regime = "ranging"
	RegimeVolatile     Regime = "volatile"
)

// InstrumentClass groups symbols by volatility characteristics for
// threshold selection
type InstrumentClass string

const (
	ClassLowVol  InstrumentClass = "low_vol"
	ClassHighVol InstrumentClass = "high_vol"
)

// Action is the decision emitted for an instrument on a cycle
type Action string

const (
	ActionSkip     Action = "SKIP"
	ActionOpen     Action = "OPEN"
	ActionHold     Action = "HOLD"
	ActionClose    Action = "CLOSE"
	ActionDCA      Action = "DCA"
	ActionScaleIn  Action = "SCALE_IN"
	ActionScaleOut Action = "SCALE_OUT"
)

// OptFloat is an optional feature value. Absent fields are explicit so the
// scorer can substitute a neutral contribution instead of mistaking a
// missing value for zero.
type OptFloat struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Float wraps a present value
func Float(v float64) OptFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return OptFloat{}
	}
	return OptFloat{Value: v, Valid: true}
}

// Or returns the value if present, otherwise the fallback
func (o OptFloat) Or(fallback float64) float64 {
	if o.Valid {
		return o.Value
	}
	return fallback
}

// SignalOutput is the directional model's output for one instrument
type SignalOutput struct {
	Direction  Direction `json:"direction"`  // LONG, SHORT, NEUTRAL
	Confidence float64   `json:"confidence"` // 0-100
}

// RiskBudget carries the account-wide compliance budget view
type RiskBudget struct {
	DailyLossRemaining float64 `json:"daily_loss_remaining"` // Absolute currency
	DailyLossFraction  float64 `json:"daily_loss_fraction"`  // Remaining fraction of the daily budget [0,1]
	DrawdownRemaining  float64 `json:"drawdown_remaining"`   // Absolute currency from peak
	DrawdownFraction   float64 `json:"drawdown_fraction"`    // Remaining fraction of the drawdown budget [0,1]
	Violated           bool    `json:"violated"`             // Provider limit crossed this period
}

// MarketContext is the immutable per-cycle snapshot for one instrument.
// It is assembled by the external feature aggregator and consumed read-only.
type MarketContext struct {
	Instrument string    `json:"instrument"`
	Timestamp  time.Time `json:"timestamp"`
	Price      float64   `json:"price"`

	// Per-timeframe trend strength, [-1, 1] (sign = direction)
	TrendFast   OptFloat `json:"trend_fast"`
	TrendMedium OptFloat `json:"trend_medium"`
	TrendSlow   OptFloat `json:"trend_slow"`

	Volatility OptFloat `json:"volatility"` // Normalized volatility measure [0,1]
	Regime     Regime   `json:"regime"`

	// Volume regime indicators, each [0,1]
	Accumulation OptFloat `json:"accumulation"`
	Distribution OptFloat `json:"distribution"`
	Divergence   OptFloat `json:"divergence"`

	// Order-book pressure, each [0,1]
	BidPressure OptFloat `json:"bid_pressure"`
	AskPressure OptFloat `json:"ask_pressure"`

	Confluence OptFloat `json:"confluence"` // Cross-class agreement score [0,1]

	Signal SignalOutput `json:"signal"`

	Balance float64    `json:"balance"`
	Equity  float64    `json:"equity"`
	Budget  RiskBudget `json:"budget"`
}

// Class maps the context's volatility onto an instrument class. Contexts
// with no volatility reading default to the conservative high_vol class.
func (mc *MarketContext) Class(highVolBoundary float64) InstrumentClass {
	if !mc.Volatility.Valid || mc.Volatility.Value >= highVolBoundary {
		return ClassHighVol
	}
	return ClassLowVol
}

// Position is the engine's read-only view of one open trade, reported back
// by the execution layer each cycle. The engine never mutates it.
type Position struct {
	Instrument    string    `json:"instrument"`
	Direction     Direction `json:"direction"`
	Size          float64   `json:"size"`           // Notional size
	AvgEntryPrice float64   `json:"avg_entry_price"`
	OpenedAt      time.Time `json:"opened_at"`
	DCACount      int       `json:"dca_count"`      // Averaging additions already executed
	UnrealizedPnL float64   `json:"unrealized_pnl"` // Absolute currency
	PnLPercent    float64   `json:"pnl_percent"`    // % of notional, negative when losing
}

// Age returns elapsed time since the position opened, measured against the
// snapshot timestamp rather than the wall clock.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// IsLosing reports whether the position is under water
func (p *Position) IsLosing() bool {
	return p.PnLPercent < 0
}

// Decision is the single output of one evaluation pass for one instrument
type Decision struct {
	ID             string    `json:"id"`
	Instrument     string    `json:"instrument"`
	Action         Action    `json:"action"`
	SizeMultiplier float64   `json:"size_multiplier,omitempty"` // OPEN only
	AddSize        float64   `json:"add_size,omitempty"`        // DCA / SCALE_IN
	RemoveFraction float64   `json:"remove_fraction,omitempty"` // SCALE_OUT
	BudgetForced   bool      `json:"budget_forced,omitempty"`   // Overridden by the risk guard
	QualityScore   float64   `json:"quality_score"`
	Confidence     float64   `json:"confidence"`
	Threshold      float64   `json:"threshold"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

// Terminal reports whether a lifecycle decision ends the evaluation pass
// for this instrument (the entry gate is skipped this cycle).
func (d *Decision) Terminal() bool {
	switch d.Action {
	case ActionClose, ActionDCA, ActionScaleIn, ActionScaleOut:
		return true
	}
	return false
}

// Opposes reports whether the signal direction opposes the position direction
func Opposes(signal, position Direction) bool {
	return (signal == DirectionLong && position == DirectionShort) ||
		(signal == DirectionShort && position == DirectionLong)
}
