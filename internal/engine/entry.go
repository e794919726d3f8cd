package engine

import (
	"fmt"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
)

// EntryDecision is the entry gate's verdict for one instrument
type EntryDecision struct {
	Approve        bool    `json:"approve"`
	SizeMultiplier float64 `json:"size_multiplier"`
	Reason         string  `json:"reason"`
}

// EntryGate combines the signal model's confidence, the quality score, and
// the live adaptive threshold into an open/skip decision with a sizing
// multiplier.
type EntryGate struct {
	cfg config.EntryConfig
}

// NewEntryGate creates an entry gate
func NewEntryGate(cfg config.EntryConfig) *EntryGate {
	return &EntryGate{cfg: cfg}
}

// Decide evaluates an entry. The threshold argument must be read from the
// ThresholdController on this cycle; callers never cache it.
//
// Approval paths:
//  1. confidence meets the effective requirement and the quality score is
//     positive, or
//  2. confidence exceeds the requirement by the escape margin, regardless
//     of quality; a noisy quality score must not permanently block an
//     obviously strong signal.
func (eg *EntryGate) Decide(ctx *MarketContext, quality QualityResult, threshold float64, class InstrumentClass) EntryDecision {
	if ctx.Signal.Direction == DirectionNeutral || ctx.Signal.Direction == "" {
		return EntryDecision{Reason: "no directional signal"}
	}

	required := threshold
	if class == ClassHighVol {
		required *= eg.cfg.HighVolMultiplier
	}

	conf := ctx.Signal.Confidence

	if conf >= required+eg.cfg.EscapeMargin {
		return EntryDecision{
			Approve:        true,
			SizeMultiplier: eg.sizeMultiplier(quality.Score),
			Reason: fmt.Sprintf("confidence %.1f exceeds requirement %.1f by escape margin (%s)",
				conf, required, quality.Summary()),
		}
	}

	if conf >= required && quality.Score > 0 {
		return EntryDecision{
			Approve:        true,
			SizeMultiplier: eg.sizeMultiplier(quality.Score),
			Reason: fmt.Sprintf("confidence %.1f >= %.1f with positive quality (%s)",
				conf, required, quality.Summary()),
		}
	}

	if conf < required {
		return EntryDecision{
			Reason: fmt.Sprintf("insufficient confidence: %.1f < required %.1f (%s)",
				conf, required, quality.Summary()),
		}
	}
	return EntryDecision{
		Reason: fmt.Sprintf("insufficient quality: score %.2f not positive at confidence %.1f (%s)",
			quality.Score, conf, quality.Summary()),
	}
}

// sizeMultiplier maps the quality score monotonically onto the configured
// clamp range so stronger setups get proportionally more capital without
// unbounded escalation. Score 0 maps to 1.0x.
func (eg *EntryGate) sizeMultiplier(score float64) float64 {
	m := 1.0 + score*0.5
	if m < eg.cfg.SizeMultiplierMin {
		return eg.cfg.SizeMultiplierMin
	}
	if m > eg.cfg.SizeMultiplierMax {
		return eg.cfg.SizeMultiplierMax
	}
	return m
}
