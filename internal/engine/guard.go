package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
)

// RiskGuard wraps every outgoing decision with the account-protection
// budget. An exhausted budget is the second deliberate hard veto: no signal
// quality overrides account survival. Short of exhaustion, the guard tapers
// size multipliers linearly so the system degrades instead of switching off.
type RiskGuard struct {
	cfg    config.GuardConfig
	logger zerolog.Logger
}

// NewRiskGuard creates a risk guard
func NewRiskGuard(cfg config.GuardConfig, logger zerolog.Logger) *RiskGuard {
	return &RiskGuard{
		cfg:    cfg,
		logger: logger.With().Str("component", "RiskGuard").Logger(),
	}
}

// Authorize finalizes a decision against the account budget carried in the
// context. It is idempotent: authorizing an already-forced decision returns
// the same forced decision.
func (rg *RiskGuard) Authorize(d Decision, ctx *MarketContext) Decision {
	b := ctx.Budget

	if b.Violated || b.DailyLossRemaining <= 0 || b.DrawdownRemaining <= 0 {
		return rg.force(d, ctx)
	}

	remaining := minFraction(b.DailyLossFraction, b.DrawdownFraction)
	if remaining <= 0 {
		return rg.force(d, ctx)
	}

	if remaining < rg.cfg.TaperStartFraction {
		scale := remaining / rg.cfg.TaperStartFraction
		if d.SizeMultiplier > 0 {
			d.SizeMultiplier *= scale
		}
		if d.AddSize > 0 {
			d.AddSize *= scale
		}
		d.Reason = fmt.Sprintf("%s [risk taper %.0f%%: budget %.0f%% remaining]",
			d.Reason, scale*100, remaining*100)
	}

	return d
}

// force converts a decision into its budget-exhausted form: open attempts
// become skips, anything touching an open position becomes a close, and a
// close stays a close.
func (rg *RiskGuard) force(d Decision, ctx *MarketContext) Decision {
	reason := fmt.Sprintf("risk budget exhausted (daily %.2f, drawdown %.2f remaining, violated=%v)",
		ctx.Budget.DailyLossRemaining, ctx.Budget.DrawdownRemaining, ctx.Budget.Violated)

	switch d.Action {
	case ActionOpen, ActionSkip:
		d.Action = ActionSkip
	default:
		d.Action = ActionClose
	}
	d.SizeMultiplier = 0
	d.AddSize = 0
	d.RemoveFraction = 0
	d.BudgetForced = true
	d.Reason = reason

	rg.logger.Warn().
		Str("instrument", d.Instrument).
		Str("action", string(d.Action)).
		Msg("Decision forced by risk budget")

	return d
}

func minFraction(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
