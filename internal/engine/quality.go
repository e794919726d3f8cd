package engine

import (
	"fmt"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
)

// Contribution is one labeled delta in a quality breakdown
type Contribution struct {
	Name  string  `json:"name"`
	Delta float64 `json:"delta"`
}

// QualityResult is the scorer output: a composite score plus the labeled
// contributions that produced it. Computed fresh every cycle, never stored.
type QualityResult struct {
	Score     float64        `json:"score"`
	Breakdown []Contribution `json:"breakdown"`
	Gaps      []string       `json:"gaps,omitempty"` // Fields that were absent and scored neutral
}

// QualityScorer computes the composite setup-quality score. It is pure and
// deterministic: the same context always yields the same score and
// breakdown. Every signal contributes an additive delta; no field can veto
// a decision on its own.
type QualityScorer struct {
	cfg config.QualityConfig
}

// NewQualityScorer creates a scorer with the given contribution magnitudes
func NewQualityScorer(cfg config.QualityConfig) *QualityScorer {
	return &QualityScorer{cfg: cfg}
}

// Score evaluates the context against the signal direction it carries.
// Missing feature values contribute zero and are recorded as gaps; the
// scorer never returns an error for business inputs.
func (qs *QualityScorer) Score(ctx *MarketContext) QualityResult {
	res := QualityResult{Breakdown: make([]Contribution, 0, 6)}

	dir := ctx.Signal.Direction
	if dir == DirectionNeutral || dir == "" {
		// A neutral signal has no directional bias to score against; the
		// entry gate rejects it on confidence grounds anyway.
		res.Gaps = append(res.Gaps, "signal_direction")
		return res
	}

	alignment := qs.scoreAlignment(ctx, dir, &res)
	qs.scoreConfluence(ctx, &res)
	qs.scoreRegime(ctx, dir, alignment, &res)
	qs.scoreDivergence(ctx, &res)
	qs.scoreInstitutional(ctx, dir, &res)
	qs.scoreOrderBook(ctx, dir, &res)

	return res
}

// add appends a contribution and accumulates the score
func (res *QualityResult) add(name string, delta float64) {
	res.Breakdown = append(res.Breakdown, Contribution{Name: name, Delta: delta})
	res.Score += delta
}

// gap records an absent field
func (res *QualityResult) gap(field string) {
	res.Gaps = append(res.Gaps, field)
}

// scoreAlignment rewards timeframes agreeing with the signal direction.
// Returns the absolute alignment fraction [0,1] for reuse by the regime
// contribution.
func (qs *QualityScorer) scoreAlignment(ctx *MarketContext, dir Direction, res *QualityResult) float64 {
	sign := 1.0
	if dir == DirectionShort {
		sign = -1.0
	}

	frames := []struct {
		name string
		val  OptFloat
	}{
		{"trend_fast", ctx.TrendFast},
		{"trend_medium", ctx.TrendMedium},
		{"trend_slow", ctx.TrendSlow},
	}

	present := 0
	agreeing := 0.0
	for _, f := range frames {
		if !f.val.Valid {
			res.gap(f.name)
			continue
		}
		present++
		// Trend strength signed toward the trade direction
		if f.val.Value*sign > 0 {
			agreeing += f.val.Value * sign
		}
	}

	if present == 0 {
		res.add("multi-timeframe alignment", 0)
		return 0
	}

	fraction := agreeing / float64(present)
	res.add("multi-timeframe alignment", qs.cfg.AlignmentMax*fraction)
	return fraction
}

// scoreConfluence rewards independent signal classes agreeing
func (qs *QualityScorer) scoreConfluence(ctx *MarketContext, res *QualityResult) {
	if !ctx.Confluence.Valid {
		res.gap("confluence")
		res.add("confluence", 0)
		return
	}
	res.add("confluence", qs.cfg.ConfluenceMax*clamp01(ctx.Confluence.Value))
}

// scoreRegime rewards a signal aligned with the regime and penalizes a
// conflict. The conflict penalty shrinks toward zero as cross-timeframe
// alignment approaches zero: an ambiguous conflict is punished less than a
// confident one.
func (qs *QualityScorer) scoreRegime(ctx *MarketContext, dir Direction, alignment float64, res *QualityResult) {
	var aligned, conflicted bool
	switch ctx.Regime {
	case RegimeTrendingUp:
		aligned = dir == DirectionLong
		conflicted = dir == DirectionShort
	case RegimeTrendingDown:
		aligned = dir == DirectionShort
		conflicted = dir == DirectionLong
	case RegimeRanging, RegimeVolatile:
		// No directional bias to agree or conflict with
	default:
		res.gap("regime")
	}

	switch {
	case aligned:
		res.add("regime alignment", qs.cfg.RegimeAlignBonus)
	case conflicted:
		res.add("regime conflict", -qs.cfg.RegimeConflictPen*clamp01(alignment))
	default:
		res.add("regime alignment", 0)
	}
}

// scoreDivergence penalizes price moves unconfirmed by volume, interpolating
// linearly between the floor and ceiling divergence readings
func (qs *QualityScorer) scoreDivergence(ctx *MarketContext, res *QualityResult) {
	if !ctx.Divergence.Valid {
		res.gap("divergence")
		res.add("volume divergence", 0)
		return
	}

	d := clamp01(ctx.Divergence.Value)
	floor, ceiling := qs.cfg.DivergenceFloor, qs.cfg.DivergenceCeiling
	var penalty float64
	switch {
	case d <= floor:
		penalty = 0
	case d >= ceiling:
		penalty = qs.cfg.DivergencePenMax
	default:
		penalty = qs.cfg.DivergencePenMax * (d - floor) / (ceiling - floor)
	}
	res.add("volume divergence", -penalty)
}

// scoreInstitutional reads accumulation/distribution activity. Accumulation
// favors longs, distribution favors shorts; the sign flips with direction.
func (qs *QualityScorer) scoreInstitutional(ctx *MarketContext, dir Direction, res *QualityResult) {
	longBias := 1.0
	if dir == DirectionShort {
		longBias = -1.0
	}

	delta := 0.0
	if ctx.Accumulation.Valid {
		if ctx.Accumulation.Value > qs.cfg.InstitutionalFloor {
			delta += qs.cfg.InstitutionalBonus * longBias
		}
	} else {
		res.gap("accumulation")
	}
	if ctx.Distribution.Valid {
		if ctx.Distribution.Value > qs.cfg.InstitutionalFloor {
			delta -= qs.cfg.InstitutionalBonus * longBias
		}
	} else {
		res.gap("distribution")
	}

	res.add("institutional flow", delta)
}

// scoreOrderBook rewards book pressure on the trade's side of the market
func (qs *QualityScorer) scoreOrderBook(ctx *MarketContext, dir Direction, res *QualityResult) {
	var pressure, opposing OptFloat
	if dir == DirectionLong {
		pressure, opposing = ctx.BidPressure, ctx.AskPressure
	} else {
		pressure, opposing = ctx.AskPressure, ctx.BidPressure
	}

	if !pressure.Valid || !opposing.Valid {
		res.gap("order_book")
		res.add("order-book pressure", 0)
		return
	}

	// Net imbalance toward the trade direction, [0,1]
	net := clamp01(pressure.Value - opposing.Value)
	res.add("order-book pressure", qs.cfg.OrderBookMax*net)
}

// Summary renders the breakdown as a compact human-readable string for
// decision reasons and logs
func (r QualityResult) Summary() string {
	s := fmt.Sprintf("quality=%.2f", r.Score)
	for _, c := range r.Breakdown {
		if c.Delta != 0 {
			s += fmt.Sprintf(" [%s %+.2f]", c.Name, c.Delta)
		}
	}
	if len(r.Gaps) > 0 {
		s += fmt.Sprintf(" (missing: %v)", r.Gaps)
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
