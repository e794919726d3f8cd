package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
)

func newTestEngine() *Engine {
	return New(config.Default(), zerolog.Nop())
}

func TestEngineOpenWhenFlat(t *testing.T) {
	eng := newTestEngine()

	ctx := testContext(DirectionLong, 82)
	ctx.Volatility = Float(0.3) // low_vol
	ctx.TrendFast = Float(0.8)
	ctx.TrendMedium = Float(0.7)
	ctx.TrendSlow = Float(0.6)
	ctx.Confluence = Float(0.8)
	ctx.Regime = RegimeTrendingUp

	d := eng.Evaluate(ctx, nil)
	if d.Action != ActionOpen {
		t.Fatalf("action = %s for a strong flat-instrument signal, want OPEN (%s)", d.Action, d.Reason)
	}
	if d.ID == "" {
		t.Error("finalized decision has no ID")
	}
	if d.SizeMultiplier <= 0 {
		t.Errorf("OPEN with size multiplier %v", d.SizeMultiplier)
	}
}

func TestEngineLifecycleShortCircuitsEntry(t *testing.T) {
	eng := newTestEngine()

	// Hard-stopped position and a flawless fresh entry signal on the same
	// instrument: the lifecycle action must win the cycle.
	ctx := testContext(DirectionLong, 95)
	ctx.Volatility = Float(0.3)
	ctx.TrendFast = Float(1.0)
	ctx.TrendMedium = Float(1.0)
	ctx.TrendSlow = Float(1.0)
	ctx.Confluence = Float(1.0)
	ctx.Regime = RegimeTrendingUp

	pos := &Position{
		Instrument:    "EURUSD",
		Direction:     DirectionLong,
		Size:          1000,
		AvgEntryPrice: 1.0850,
		OpenedAt:      ctx.Timestamp.Add(-time.Hour),
		PnLPercent:    -2.5,
	}

	d := eng.Evaluate(ctx, pos)
	if d.Action != ActionClose {
		t.Fatalf("action = %s with a hard-stopped position, want CLOSE", d.Action)
	}
	if !strings.Contains(d.Reason, "hard stop") {
		t.Errorf("reason %q does not name the hard stop", d.Reason)
	}
}

func TestEngineHoldIsFinalForTheCycle(t *testing.T) {
	eng := newTestEngine()

	// Position held by dwell suppression: no entry evaluation happens
	ctx := testContext(DirectionLong, 95)
	ctx.Volatility = Float(0.3)
	ctx.TrendFast = Float(1.0)
	ctx.Confluence = Float(1.0)

	pos := &Position{
		Instrument:    "EURUSD",
		Direction:     DirectionLong,
		Size:          1000,
		AvgEntryPrice: 1.0850,
		OpenedAt:      ctx.Timestamp.Add(-time.Minute),
		PnLPercent:    -0.2,
	}

	d := eng.Evaluate(ctx, pos)
	if d.Action != ActionHold {
		t.Errorf("action = %s for a fresh held position, want HOLD (%s)", d.Action, d.Reason)
	}
}

func TestEngineInconsistentPositionHolds(t *testing.T) {
	eng := newTestEngine()

	ctx := testContext(DirectionLong, 80)
	pos := &Position{
		Instrument: "EURUSD",
		Direction:  DirectionLong,
		Size:       -5, // Impossible
		OpenedAt:   ctx.Timestamp.Add(-time.Hour),
	}

	d := eng.Evaluate(ctx, pos)
	if d.Action != ActionHold {
		t.Errorf("action = %s for an inconsistent position report, want HOLD", d.Action)
	}
	if !strings.Contains(d.Reason, "inconsistent") {
		t.Errorf("reason %q does not name the inconsistency", d.Reason)
	}
}

func TestEngineGuardWrapsLifecycleDecisions(t *testing.T) {
	eng := newTestEngine()

	// A DCA-grade recovery setup under an exhausted budget becomes CLOSE
	ctx := testContext(DirectionLong, 70)
	ctx.Volatility = Float(0.3)
	ctx.TrendFast = Float(0.8)
	ctx.TrendMedium = Float(0.8)
	ctx.Regime = RegimeTrendingUp
	ctx.Accumulation = Float(0.8)
	ctx.Budget = RiskBudget{Violated: true}

	pos := &Position{
		Instrument:    "EURUSD",
		Direction:     DirectionLong,
		Size:          1000,
		AvgEntryPrice: 1.0850,
		OpenedAt:      ctx.Timestamp.Add(-2 * time.Hour),
		PnLPercent:    -0.5,
	}

	d := eng.Evaluate(ctx, pos)
	if d.Action != ActionClose {
		t.Fatalf("action = %s under a violated budget, want forced CLOSE", d.Action)
	}
	if d.AddSize != 0 {
		t.Errorf("forced decision retains add size %v", d.AddSize)
	}
}

func TestEngineGuardWrapsEntryDecisions(t *testing.T) {
	eng := newTestEngine()

	ctx := testContext(DirectionLong, 95)
	ctx.Volatility = Float(0.3)
	ctx.TrendFast = Float(1.0)
	ctx.Confluence = Float(1.0)
	ctx.Budget = RiskBudget{Violated: true}

	d := eng.Evaluate(ctx, nil)
	if d.Action != ActionSkip {
		t.Errorf("action = %s for an entry under a violated budget, want forced SKIP", d.Action)
	}
}

func TestEngineThresholdAdaptationChangesEntryVerdict(t *testing.T) {
	eng := newTestEngine()
	cfg := config.Default()

	// Confidence just above the default requirement for low_vol
	ctx := testContext(DirectionLong, cfg.ThresholdConfig.Default+2)
	ctx.Volatility = Float(0.3)
	ctx.TrendFast = Float(0.8)
	ctx.TrendMedium = Float(0.7)
	ctx.Confluence = Float(0.8)
	ctx.Regime = RegimeTrendingUp

	if d := eng.Evaluate(ctx, nil); d.Action != ActionOpen {
		t.Fatalf("baseline entry rejected: %s", d.Reason)
	}

	// A losing streak tightens the requirement past this signal
	for i := 0; i < cfg.ThresholdConfig.WindowSize; i++ {
		eng.RecordOutcome(ClassLowVol, false, 0.5)
	}

	if d := eng.Evaluate(ctx, nil); d.Action != ActionSkip {
		t.Errorf("action = %s after the threshold tightened, want SKIP (%s)", d.Action, d.Reason)
	}
}

func TestEngineDecisionCallbackFires(t *testing.T) {
	eng := newTestEngine()

	var got []Decision
	eng.OnDecision(func(d Decision) { got = append(got, d) })

	ctx := testContext(DirectionLong, 40)
	eng.Evaluate(ctx, nil)

	if len(got) != 1 {
		t.Fatalf("decision callback fired %d times, want 1", len(got))
	}
	if got[0].Action != ActionSkip {
		t.Errorf("callback action = %s for weak signal, want SKIP", got[0].Action)
	}
}
