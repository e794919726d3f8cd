package engine

import (
	"testing"
	"time"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
)

func testContext(dir Direction, confidence float64) *MarketContext {
	return &MarketContext{
		Instrument: "EURUSD",
		Timestamp:  time.Now(),
		Price:      1.0850,
		Signal:     SignalOutput{Direction: dir, Confidence: confidence},
		Budget: RiskBudget{
			DailyLossRemaining: 1000,
			DailyLossFraction:  1.0,
			DrawdownRemaining:  5000,
			DrawdownFraction:   1.0,
		},
	}
}

func newTestScorer() *QualityScorer {
	return NewQualityScorer(config.DefaultQualityConfig())
}

func TestQualityScoreDeterministic(t *testing.T) {
	scorer := newTestScorer()

	ctx := testContext(DirectionLong, 70)
	ctx.TrendFast = Float(0.8)
	ctx.TrendMedium = Float(0.6)
	ctx.TrendSlow = Float(0.4)
	ctx.Confluence = Float(0.7)
	ctx.Regime = RegimeTrendingUp
	ctx.Divergence = Float(0.2)
	ctx.Accumulation = Float(0.8)
	ctx.Distribution = Float(0.1)
	ctx.BidPressure = Float(0.7)
	ctx.AskPressure = Float(0.3)

	first := scorer.Score(ctx)
	for i := 0; i < 10; i++ {
		again := scorer.Score(ctx)
		if again.Score != first.Score {
			t.Fatalf("score changed between identical evaluations: %v vs %v", first.Score, again.Score)
		}
		if len(again.Breakdown) != len(first.Breakdown) {
			t.Fatalf("breakdown length changed: %d vs %d", len(first.Breakdown), len(again.Breakdown))
		}
	}
}

func TestQualityFullyAlignedLongScoresPositive(t *testing.T) {
	scorer := newTestScorer()

	ctx := testContext(DirectionLong, 70)
	ctx.TrendFast = Float(1.0)
	ctx.TrendMedium = Float(1.0)
	ctx.TrendSlow = Float(1.0)
	ctx.Confluence = Float(1.0)
	ctx.Regime = RegimeTrendingUp
	ctx.Divergence = Float(0.1)
	ctx.Accumulation = Float(0.9)
	ctx.Distribution = Float(0.1)
	ctx.BidPressure = Float(0.9)
	ctx.AskPressure = Float(0.1)

	res := scorer.Score(ctx)
	if res.Score <= 0 {
		t.Errorf("fully aligned long context scored %v, want positive", res.Score)
	}
	if len(res.Gaps) != 0 {
		t.Errorf("complete context reported gaps: %v", res.Gaps)
	}
}

func TestQualityMissingFieldsScoreNeutralNotNegative(t *testing.T) {
	scorer := newTestScorer()

	// Everything absent except the signal itself
	bare := testContext(DirectionLong, 70)
	res := scorer.Score(bare)

	if res.Score != 0 {
		t.Errorf("all-absent context scored %v, want exactly 0 (neutral)", res.Score)
	}
	if len(res.Gaps) == 0 {
		t.Error("all-absent context reported no gaps")
	}
}

func TestQualityAbsentDiffersFromHostile(t *testing.T) {
	scorer := newTestScorer()

	absent := testContext(DirectionLong, 70)

	hostile := testContext(DirectionLong, 70)
	hostile.TrendFast = Float(-0.9)
	hostile.TrendMedium = Float(-0.9)
	hostile.TrendSlow = Float(-0.9)
	hostile.Regime = RegimeTrendingDown
	hostile.Divergence = Float(0.9)
	hostile.Distribution = Float(0.9)
	hostile.Accumulation = Float(0.1)

	absentRes := scorer.Score(absent)
	hostileRes := scorer.Score(hostile)

	if hostileRes.Score >= absentRes.Score {
		t.Errorf("hostile context (%v) should score below absent context (%v)",
			hostileRes.Score, absentRes.Score)
	}
}

func TestQualityNoSingleFeatureVeto(t *testing.T) {
	scorer := newTestScorer()

	// Strong setup with one maximally bad feature: the composite must stay
	// positive because no single feature may veto.
	ctx := testContext(DirectionLong, 70)
	ctx.TrendFast = Float(1.0)
	ctx.TrendMedium = Float(1.0)
	ctx.TrendSlow = Float(1.0)
	ctx.Confluence = Float(1.0)
	ctx.Regime = RegimeTrendingUp
	ctx.Divergence = Float(1.0) // Worst possible divergence
	ctx.Accumulation = Float(0.9)
	ctx.BidPressure = Float(0.9)
	ctx.AskPressure = Float(0.1)

	res := scorer.Score(ctx)
	if res.Score <= 0 {
		t.Errorf("one bad feature vetoed an otherwise strong setup: score %v", res.Score)
	}
}

func TestQualityRegimeConflictScalesWithAlignment(t *testing.T) {
	scorer := newTestScorer()

	confident := testContext(DirectionLong, 70)
	confident.TrendFast = Float(0.9)
	confident.TrendMedium = Float(0.9)
	confident.TrendSlow = Float(0.9)
	confident.Regime = RegimeTrendingDown

	ambiguous := testContext(DirectionLong, 70)
	ambiguous.TrendFast = Float(0.1)
	ambiguous.TrendMedium = Float(0.1)
	ambiguous.TrendSlow = Float(0.1)
	ambiguous.Regime = RegimeTrendingDown

	confidentPen := contributionDelta(t, scorer.Score(confident), "regime conflict")
	ambiguousPen := contributionDelta(t, scorer.Score(ambiguous), "regime conflict")

	if confidentPen >= 0 || ambiguousPen >= 0 {
		t.Fatalf("regime conflict must penalize: got %v and %v", confidentPen, ambiguousPen)
	}
	if confidentPen >= ambiguousPen {
		t.Errorf("confident conflict (%v) should be penalized more than ambiguous (%v)",
			confidentPen, ambiguousPen)
	}
}

func TestQualityNeutralSignalScoresNothing(t *testing.T) {
	scorer := newTestScorer()

	ctx := testContext(DirectionNeutral, 80)
	ctx.TrendFast = Float(0.9)
	ctx.Confluence = Float(0.9)

	res := scorer.Score(ctx)
	if res.Score != 0 {
		t.Errorf("neutral signal scored %v, want 0", res.Score)
	}
	if len(res.Breakdown) != 0 {
		t.Errorf("neutral signal produced contributions: %v", res.Breakdown)
	}
}

func contributionDelta(t *testing.T, res QualityResult, name string) float64 {
	t.Helper()
	for _, c := range res.Breakdown {
		if c.Name == name {
			return c.Delta
		}
	}
	t.Fatalf("contribution %q not found in breakdown %v", name, res.Breakdown)
	return 0
}
