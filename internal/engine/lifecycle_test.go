package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
)

func newTestLifecycle() *LifecycleManager {
	return NewLifecycleManager(config.DefaultLifecycleConfig(), zerolog.Nop())
}

// seasoned returns a position old enough to be past the dwell window
func seasoned(now time.Time, dir Direction, pnlPercent float64) *Position {
	return &Position{
		Instrument:    "EURUSD",
		Direction:     dir,
		Size:          1000,
		AvgEntryPrice: 1.0850,
		OpenedAt:      now.Add(-2 * time.Hour),
		PnLPercent:    pnlPercent,
	}
}

func TestLifecycleHardStopOverridesEverything(t *testing.T) {
	lm := newTestLifecycle()

	// Fresh position, overwhelming recovery evidence, and a signal still in
	// the trade's favor: none of it matters at -2.3%.
	ctx := testContext(DirectionLong, 95)
	ctx.TrendFast = Float(1.0)
	ctx.TrendMedium = Float(1.0)
	ctx.TrendSlow = Float(1.0)
	ctx.Regime = RegimeTrendingUp
	ctx.Accumulation = Float(1.0)

	pos := seasoned(ctx.Timestamp, DirectionLong, -2.3)
	pos.OpenedAt = ctx.Timestamp.Add(-time.Minute) // Inside the dwell window

	d := lm.Evaluate(ctx, pos)
	if d.Action != ActionClose {
		t.Fatalf("action = %s at -2.3%% loss, want CLOSE", d.Action)
	}
	if !strings.Contains(d.Reason, "hard stop") {
		t.Errorf("reason %q does not name the hard stop", d.Reason)
	}
}

func TestLifecycleDwellSuppressesNonStopTransitions(t *testing.T) {
	lm := newTestLifecycle()

	// Strong reversal against a fresh losing position: dwell wins
	ctx := testContext(DirectionShort, 90)
	pos := seasoned(ctx.Timestamp, DirectionLong, -1.0)
	pos.OpenedAt = ctx.Timestamp.Add(-5 * time.Minute)

	d := lm.Evaluate(ctx, pos)
	if d.Action != ActionHold {
		t.Errorf("action = %s inside the dwell window, want HOLD", d.Action)
	}
}

func TestLifecycleStrongReversalClosesLoser(t *testing.T) {
	lm := newTestLifecycle()

	ctx := testContext(DirectionShort, 80)
	pos := seasoned(ctx.Timestamp, DirectionLong, -1.0)

	d := lm.Evaluate(ctx, pos)
	if d.Action != ActionClose {
		t.Fatalf("action = %s on a strong reversal against a loser, want CLOSE", d.Action)
	}
	if !strings.Contains(d.Reason, "reversal") {
		t.Errorf("reason %q does not name the reversal", d.Reason)
	}
}

func TestLifecycleReversalNeverCutsWinner(t *testing.T) {
	lm := newTestLifecycle()

	// Opposing signal at high confidence against a profitable position:
	// winners ride out reversals.
	ctx := testContext(DirectionShort, 90)
	pos := seasoned(ctx.Timestamp, DirectionLong, 0.8)

	d := lm.Evaluate(ctx, pos)
	if d.Action == ActionClose && strings.Contains(d.Reason, "reversal") {
		t.Errorf("winner cut on reversal: %s", d.Reason)
	}
}

func TestLifecycleWeakReversalHoldsLoser(t *testing.T) {
	lm := newTestLifecycle()
	cfg := config.DefaultLifecycleConfig()

	ctx := testContext(DirectionShort, cfg.ReversalConfidence-1)
	// Keep recovery evidence neutral so the loser path holds
	pos := seasoned(ctx.Timestamp, DirectionLong, -0.3)

	d := lm.Evaluate(ctx, pos)
	if d.Action == ActionClose && strings.Contains(d.Reason, "reversal") {
		t.Errorf("loser closed below the reversal confidence bar: %s", d.Reason)
	}
}

func TestLifecycleDCAOnHighRecovery(t *testing.T) {
	lm := newTestLifecycle()

	// Shallow loss, trend and volume behind the position
	ctx := testContext(DirectionLong, 70)
	ctx.TrendFast = Float(0.8)
	ctx.TrendMedium = Float(0.8)
	ctx.TrendSlow = Float(0.6)
	ctx.Regime = RegimeTrendingUp
	ctx.Accumulation = Float(0.8)

	pos := seasoned(ctx.Timestamp, DirectionLong, -0.5)

	d := lm.Evaluate(ctx, pos)
	if d.Action != ActionDCA {
		t.Fatalf("action = %s with strong recovery evidence, want DCA (%s)", d.Action, d.Reason)
	}
	if d.AddSize <= 0 {
		t.Errorf("DCA decision with add size %v", d.AddSize)
	}
}

func TestLifecycleGiveUpOnLowRecovery(t *testing.T) {
	lm := newTestLifecycle()

	// Deep loss, everything against the position
	ctx := testContext(DirectionShort, 70)
	ctx.TrendFast = Float(0.9) // Trending up against a short
	ctx.TrendMedium = Float(0.9)
	ctx.TrendSlow = Float(0.9)
	ctx.Regime = RegimeTrendingUp
	ctx.Signal.Direction = DirectionLong
	ctx.Distribution = Float(0.1)

	pos := seasoned(ctx.Timestamp, DirectionShort, -1.9)

	d := lm.Evaluate(ctx, pos)
	if d.Action != ActionClose {
		t.Fatalf("action = %s with collapsed recovery probability, want CLOSE (%s)", d.Action, d.Reason)
	}
	if !strings.Contains(d.Reason, "give up") {
		t.Errorf("reason %q does not name giving up", d.Reason)
	}
}

func TestLifecycleDCACapExhaustedHolds(t *testing.T) {
	lm := newTestLifecycle()
	cfg := config.DefaultLifecycleConfig()

	ctx := testContext(DirectionLong, 70)
	ctx.TrendFast = Float(0.8)
	ctx.TrendMedium = Float(0.8)
	ctx.Regime = RegimeTrendingUp
	ctx.Accumulation = Float(0.8)

	pos := seasoned(ctx.Timestamp, DirectionLong, -0.5)
	pos.DCACount = cfg.BaseDCACap + cfg.TrendingDCABonus // Every attempt used

	d := lm.Evaluate(ctx, pos)
	if d.Action == ActionDCA {
		t.Error("DCA approved past the adaptive cap")
	}
}

func TestLifecycleDCASizeMonotonicInRecovery(t *testing.T) {
	lm := newTestLifecycle()
	pos := seasoned(time.Now(), DirectionLong, -0.5)

	prev := 0.0
	for _, rp := range []float64{0.5, 0.6, 0.7, 0.8, 0.9} {
		add := lm.dcaSize(pos, rp)
		if add <= prev {
			t.Errorf("dca size not increasing: rp %v gave %v, previous %v", rp, add, prev)
		}
		prev = add
	}
}

func TestLifecycleRecoveryProbabilityBounds(t *testing.T) {
	lm := newTestLifecycle()

	best := testContext(DirectionLong, 100)
	best.TrendFast = Float(1.0)
	best.TrendMedium = Float(1.0)
	best.TrendSlow = Float(1.0)
	best.Regime = RegimeTrendingUp
	best.Accumulation = Float(1.0)
	bestPos := seasoned(best.Timestamp, DirectionLong, -0.01)

	worst := testContext(DirectionShort, 100)
	worst.Signal.Direction = DirectionLong
	worst.TrendFast = Float(1.0)
	worst.TrendMedium = Float(1.0)
	worst.TrendSlow = Float(1.0)
	worst.Regime = RegimeTrendingUp
	worst.Distribution = Float(0.0)
	worstPos := seasoned(worst.Timestamp, DirectionShort, -1.99)

	if rp := lm.RecoveryProbability(best, bestPos); rp < 0 || rp > 1 {
		t.Errorf("recovery probability %v out of [0,1]", rp)
	}
	if rp := lm.RecoveryProbability(worst, worstPos); rp < 0 || rp > 1 {
		t.Errorf("recovery probability %v out of [0,1]", rp)
	}

	bestRP := lm.RecoveryProbability(best, bestPos)
	worstRP := lm.RecoveryProbability(worst, worstPos)
	if bestRP <= worstRP {
		t.Errorf("best case (%v) should outrank worst case (%v)", bestRP, worstRP)
	}
}

func TestLifecycleRecoveryNeutralOnMissingInputs(t *testing.T) {
	lm := newTestLifecycle()

	// No trend, no volume, no regime, neutral signal: only loss depth moves
	// the blend off its midpoints.
	ctx := testContext(DirectionNeutral, 0)
	pos := seasoned(ctx.Timestamp, DirectionLong, -0.1)

	rp := lm.RecoveryProbability(ctx, pos)
	if rp < 0.5 || rp > 0.65 {
		t.Errorf("recovery probability %v with absent inputs, want near the neutral midpoint", rp)
	}
}

func TestLifecycleProfitTargetCloseAndScaleOut(t *testing.T) {
	lm := newTestLifecycle()

	ctx := testContext(DirectionLong, 80)
	ctx.TrendFast = Float(0.7)
	ctx.TrendMedium = Float(0.7)
	ctx.TrendSlow = Float(0.7)
	ctx.Volatility = Float(0.8)
	ctx.Confluence = Float(0.5)

	pos := seasoned(ctx.Timestamp, DirectionLong, 0)
	target := lm.ProfitTarget(ctx, pos)
	if target <= 0 {
		t.Fatalf("profit target %v, want positive", target)
	}

	// At the target: close
	pos.PnLPercent = target + 0.01
	if d := lm.Evaluate(ctx, pos); d.Action != ActionClose {
		t.Errorf("action = %s at the profit target, want CLOSE (%s)", d.Action, d.Reason)
	}

	// At 70% of the target: scale out
	cfg := config.DefaultLifecycleConfig()
	pos.PnLPercent = target * cfg.ScaleOutFraction * 1.01
	d := lm.Evaluate(ctx, pos)
	if d.Action != ActionScaleOut {
		t.Fatalf("action = %s at %.0f%% of target, want SCALE_OUT (%s)",
			d.Action, cfg.ScaleOutFraction*100, d.Reason)
	}
	if d.RemoveFraction != cfg.ScaleOutPortion {
		t.Errorf("remove fraction = %v, want %v", d.RemoveFraction, cfg.ScaleOutPortion)
	}
}

func TestLifecycleProfitTargetScalesWithTrend(t *testing.T) {
	lm := newTestLifecycle()

	weak := testContext(DirectionLong, 40)
	weak.Volatility = Float(0.8)
	weak.Signal.Direction = DirectionNeutral

	strong := testContext(DirectionLong, 90)
	strong.Volatility = Float(0.8)
	strong.TrendFast = Float(0.9)
	strong.TrendMedium = Float(0.9)
	strong.TrendSlow = Float(0.9)
	strong.Confluence = Float(0.9)

	pos := seasoned(time.Now(), DirectionLong, 0.1)

	weakTarget := lm.ProfitTarget(weak, pos)
	strongTarget := lm.ProfitTarget(strong, pos)
	if strongTarget <= weakTarget {
		t.Errorf("strong-trend target (%v) should exceed weak-trend target (%v)",
			strongTarget, weakTarget)
	}
}

func TestLifecycleScaleInRequiresConfirmation(t *testing.T) {
	lm := newTestLifecycle()

	ctx := testContext(DirectionLong, 80)
	ctx.TrendMedium = Float(0.8)
	ctx.Confluence = Float(0.8)
	ctx.Accumulation = Float(0.8)
	ctx.Volatility = Float(0.8)

	// A modest winner well short of the scale-out band
	pos := seasoned(ctx.Timestamp, DirectionLong, 0.1)

	d := lm.Evaluate(ctx, pos)
	if d.Action != ActionScaleIn {
		t.Fatalf("action = %s with full confirmation, want SCALE_IN (%s)", d.Action, d.Reason)
	}
	if d.AddSize <= 0 {
		t.Errorf("scale-in with add size %v", d.AddSize)
	}

	// Remove volume confirmation: hold instead
	ctx.Accumulation = Float(0.2)
	if d := lm.Evaluate(ctx, pos); d.Action == ActionScaleIn {
		t.Error("scale-in approved without volume confirmation")
	}
}

func TestLifecycleScaleInRespectsNotionalCap(t *testing.T) {
	lm := newTestLifecycle()
	cfg := config.DefaultLifecycleConfig()

	ctx := testContext(DirectionLong, 80)
	ctx.TrendMedium = Float(0.8)
	ctx.Confluence = Float(0.8)
	ctx.Accumulation = Float(0.8)

	pos := seasoned(ctx.Timestamp, DirectionLong, 0.1)
	pos.Size = cfg.MaxPositionNotional

	if d := lm.Evaluate(ctx, pos); d.Action == ActionScaleIn {
		t.Error("scale-in approved at the notional cap")
	}
}
