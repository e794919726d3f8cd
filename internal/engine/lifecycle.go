package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
)

// timeRound is the display granularity for ages in reason strings
const timeRound = time.Second

// Recovery-probability blend weights. These reflect how much each signal
// family has historically said about a losing position returning to profit.
const (
	recoveryWeightTrend      = 0.35
	recoveryWeightConfidence = 0.25
	recoveryWeightVolume     = 0.20
	recoveryWeightRegime     = 0.10
	recoveryWeightLossDepth  = 0.10
)

// LifecycleManager evaluates one open position per cycle and emits a single
// lifecycle action. Transition order is fixed; the first match wins. The
// hard stop-loss is the only transition exempt from dwell-time suppression.
type LifecycleManager struct {
	cfg    config.LifecycleConfig
	logger zerolog.Logger
}

// NewLifecycleManager creates a lifecycle manager
func NewLifecycleManager(cfg config.LifecycleConfig, logger zerolog.Logger) *LifecycleManager {
	return &LifecycleManager{
		cfg:    cfg,
		logger: logger.With().Str("component", "LifecycleManager").Logger(),
	}
}

// Evaluate runs the transition ladder for one open position. The returned
// decision is pre-authorization; the engine passes it through the risk
// guard before it leaves the process.
func (lm *LifecycleManager) Evaluate(ctx *MarketContext, pos *Position) Decision {
	d := Decision{
		Instrument: ctx.Instrument,
		Confidence: ctx.Signal.Confidence,
		Timestamp:  ctx.Timestamp,
	}

	// 1. Hard stop-loss. The one deliberate hard veto kept inside the
	// lifecycle: unlimited downside is what kills funded accounts.
	if pos.PnLPercent <= -lm.cfg.HardStopLossPct {
		d.Action = ActionClose
		d.Reason = fmt.Sprintf("hard stop: unrealized %.2f%% breaches -%.2f%% floor",
			pos.PnLPercent, lm.cfg.HardStopLossPct)
		return d
	}

	// Dwell-time suppression: a freshly opened position holds through
	// everything except the hard stop, so short-lived noise cannot reverse
	// an entry minutes after it was made.
	if age := pos.Age(ctx.Timestamp); age < lm.cfg.MinDwellTime {
		d.Action = ActionHold
		d.Reason = fmt.Sprintf("dwell: position age %s below minimum %s",
			age.Round(timeRound), lm.cfg.MinDwellTime)
		return d
	}

	// 2. Strong reversal closes losers only. Winners ride out opposing
	// signals; cutting them on noisy flips was a corrected failure mode.
	if Opposes(ctx.Signal.Direction, pos.Direction) &&
		ctx.Signal.Confidence >= lm.cfg.ReversalConfidence &&
		pos.IsLosing() {
		d.Action = ActionClose
		d.Reason = fmt.Sprintf("strong reversal: %s signal at %.1f against losing %s position",
			ctx.Signal.Direction, ctx.Signal.Confidence, pos.Direction)
		return d
	}

	if pos.IsLosing() {
		return lm.evaluateRecovery(ctx, pos, d)
	}
	return lm.evaluateWinner(ctx, pos, d)
}

// evaluateRecovery decides between averaging down, giving up, and holding a
// losing position
func (lm *LifecycleManager) evaluateRecovery(ctx *MarketContext, pos *Position, d Decision) Decision {
	rp := lm.RecoveryProbability(ctx, pos)

	if rp < lm.cfg.RecoveryGiveUp {
		d.Action = ActionClose
		d.Reason = fmt.Sprintf("give up: recovery probability %.2f below %.2f at %.2f%% loss",
			rp, lm.cfg.RecoveryGiveUp, pos.PnLPercent)
		return d
	}

	maxAdds := lm.dcaCap(ctx, pos)
	if rp >= lm.cfg.RecoveryDCAMin && pos.DCACount < maxAdds {
		add := lm.dcaSize(pos, rp)
		if add > 0 {
			d.Action = ActionDCA
			d.AddSize = add
			d.Reason = fmt.Sprintf("average down: recovery probability %.2f, attempt %d/%d, add %.2f",
				rp, pos.DCACount+1, maxAdds, add)
			return d
		}
	}

	d.Action = ActionHold
	d.Reason = fmt.Sprintf("holding loser: recovery probability %.2f, dca %d/%d",
		rp, pos.DCACount, maxAdds)
	return d
}

// evaluateWinner handles profit-taking and scale-in for a profitable position
func (lm *LifecycleManager) evaluateWinner(ctx *MarketContext, pos *Position, d Decision) Decision {
	target := lm.ProfitTarget(ctx, pos)

	if pos.PnLPercent >= target {
		d.Action = ActionClose
		d.Reason = fmt.Sprintf("profit target reached: %.2f%% >= dynamic target %.2f%%",
			pos.PnLPercent, target)
		return d
	}

	if pos.PnLPercent >= target*lm.cfg.ScaleOutFraction {
		d.Action = ActionScaleOut
		d.RemoveFraction = lm.cfg.ScaleOutPortion
		d.Reason = fmt.Sprintf("scale out: %.2f%% past %.0f%% of target %.2f%%, locking %.0f%% of position",
			pos.PnLPercent, lm.cfg.ScaleOutFraction*100, target, lm.cfg.ScaleOutPortion*100)
		return d
	}

	if add, ok := lm.scaleInSize(ctx, pos); ok {
		d.Action = ActionScaleIn
		d.AddSize = add
		d.Reason = fmt.Sprintf("scale in: trend and volume confirm %s winner at %.2f%%, add %.2f",
			pos.Direction, pos.PnLPercent, add)
		return d
	}

	d.Action = ActionHold
	d.Reason = fmt.Sprintf("holding winner: %.2f%% of %.2f%% target", pos.PnLPercent, target)
	return d
}

// RecoveryProbability blends trend, signal confidence, volume support,
// regime alignment, and loss depth into a [0,1] estimate that a losing
// position returns to profit. Missing inputs contribute their neutral
// midpoint, never a zero that would silently drag the estimate down.
func (lm *LifecycleManager) RecoveryProbability(ctx *MarketContext, pos *Position) float64 {
	sign := 1.0
	if pos.Direction == DirectionShort {
		sign = -1.0
	}

	// Trend strength toward the position's direction, averaged over the
	// timeframes that reported
	trend := 0.5
	present := 0
	sum := 0.0
	for _, f := range []OptFloat{ctx.TrendFast, ctx.TrendMedium, ctx.TrendSlow} {
		if f.Valid {
			present++
			sum += clamp01(f.Value * sign)
		}
	}
	if present > 0 {
		trend = sum / float64(present)
	}

	// Signal confidence in the position's direction
	confidence := 0.5
	switch {
	case ctx.Signal.Direction == pos.Direction:
		confidence = ctx.Signal.Confidence / 100
	case Opposes(ctx.Signal.Direction, pos.Direction):
		confidence = 1 - ctx.Signal.Confidence/100
	}

	// Volume support on the position's side
	volume := 0.5
	if pos.Direction == DirectionLong && ctx.Accumulation.Valid {
		volume = clamp01(ctx.Accumulation.Value)
	} else if pos.Direction == DirectionShort && ctx.Distribution.Valid {
		volume = clamp01(ctx.Distribution.Value)
	}

	// Regime alignment with the position
	regime := 0.5
	switch ctx.Regime {
	case RegimeTrendingUp:
		if pos.Direction == DirectionLong {
			regime = 1.0
		} else {
			regime = 0.0
		}
	case RegimeTrendingDown:
		if pos.Direction == DirectionShort {
			regime = 1.0
		} else {
			regime = 0.0
		}
	case RegimeVolatile:
		regime = 0.3
	}

	// Deeper losses recover less often; scale against the hard-stop floor
	lossDepth := 1 - clamp01(-pos.PnLPercent/lm.cfg.HardStopLossPct)

	return trend*recoveryWeightTrend +
		confidence*recoveryWeightConfidence +
		volume*recoveryWeightVolume +
		regime*recoveryWeightRegime +
		lossDepth*recoveryWeightLossDepth
}

// dcaCap returns how many averaging additions this position may take.
// A strong trend in the position's direction earns one extra attempt;
// ranging and volatile regimes stay at the base cap.
func (lm *LifecycleManager) dcaCap(ctx *MarketContext, pos *Position) int {
	limit := lm.cfg.BaseDCACap

	trendingWithPosition := (ctx.Regime == RegimeTrendingUp && pos.Direction == DirectionLong) ||
		(ctx.Regime == RegimeTrendingDown && pos.Direction == DirectionShort)

	sign := 1.0
	if pos.Direction == DirectionShort {
		sign = -1.0
	}
	strongTrend := ctx.TrendMedium.Valid && ctx.TrendMedium.Value*sign > 0.5

	if trendingWithPosition && strongTrend {
		limit += lm.cfg.TrendingDCABonus
	}
	return limit
}

// dcaSize computes the addition that pulls the weighted-average entry a
// bounded fraction of the way toward the current price. The pull fraction
// scales with recovery probability, so a less certain trade gets a smaller
// addition:
//
//	newGap = gap * size/(size+add)  =>  add = size * pull/(1-pull)
//
// where pull = recoveryProbability * DCATargetDistancePct.
func (lm *LifecycleManager) dcaSize(pos *Position, recoveryProb float64) float64 {
	pull := recoveryProb * lm.cfg.DCATargetDistancePct
	if pull <= 0 || pull >= 1 {
		return 0
	}
	add := pos.Size * pull / (1 - pull)
	if math.IsNaN(add) || math.IsInf(add, 0) || add <= 0 {
		return 0
	}
	return add
}

// ProfitTarget computes the dynamic profit target in percent of notional:
// the volatility measure (typical per-cycle range as % of notional) times a
// multiple that grows with trend strength, signal confidence, and
// confluence, clamped to the configured floor and ceiling.
func (lm *LifecycleManager) ProfitTarget(ctx *MarketContext, pos *Position) float64 {
	sign := 1.0
	if pos.Direction == DirectionShort {
		sign = -1.0
	}

	present := 0
	sum := 0.0
	for _, f := range []OptFloat{ctx.TrendFast, ctx.TrendMedium, ctx.TrendSlow} {
		if f.Valid {
			present++
			sum += clamp01(f.Value * sign)
		}
	}
	trend := 0.0
	if present > 0 {
		trend = sum / float64(present)
	}

	// Strength factor blends trend with confidence and confluence; full
	// marks require all three.
	strength := trend * 0.5
	if ctx.Signal.Direction == pos.Direction {
		strength += (ctx.Signal.Confidence / 100) * 0.3
	}
	strength += clamp01(ctx.Confluence.Or(0)) * 0.2

	multiple := lm.cfg.ProfitTargetFloor +
		(lm.cfg.ProfitTargetCeiling-lm.cfg.ProfitTargetFloor)*clamp01(strength)

	// Volatility is % of notional per cycle; an absent reading falls back
	// to a conservative half-percent base.
	return ctx.Volatility.Or(0.5) * multiple
}

// scaleInSize approves adding to a winner when trend, confluence, and
// volume all still confirm and the position remains under its size cap
func (lm *LifecycleManager) scaleInSize(ctx *MarketContext, pos *Position) (float64, bool) {
	if pos.Size >= lm.cfg.MaxPositionNotional {
		return 0, false
	}

	sign := 1.0
	if pos.Direction == DirectionShort {
		sign = -1.0
	}

	if !ctx.TrendMedium.Valid || ctx.TrendMedium.Value*sign <= 0.5 {
		return 0, false
	}
	if !ctx.Confluence.Valid || ctx.Confluence.Value < 0.6 {
		return 0, false
	}

	volumeConfirms := (pos.Direction == DirectionLong && ctx.Accumulation.Or(0) > 0.5) ||
		(pos.Direction == DirectionShort && ctx.Distribution.Or(0) > 0.5)
	if !volumeConfirms {
		return 0, false
	}

	add := pos.Size * lm.cfg.ScaleInFraction * (ctx.Signal.Confidence / 100)
	if add <= 0 {
		return 0, false
	}
	if pos.Size+add > lm.cfg.MaxPositionNotional {
		add = lm.cfg.MaxPositionNotional - pos.Size
	}
	return add, true
}
