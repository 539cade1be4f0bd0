package strategy

import (
	"MarketPulse/internal/model"

	"github.com/shopspring/decimal"
)

type band struct {
	Bound    decimal.Decimal
	Movement model.Movement
}

// Gains are checked against an exclusive lower bound, from the largest down.
var gains = []band{
	{decimal.NewFromInt(20), model.Movement{Tier: model.TierSoaring, Marker: "🕊️"}},
	{decimal.NewFromInt(15), model.Movement{Tier: model.TierRocketing, Marker: "🚀"}},
	{decimal.NewFromInt(10), model.Movement{Tier: model.TierSurging, Marker: "⚡"}},
	{decimal.NewFromInt(5), model.Movement{Tier: model.TierClimbing, Marker: "📈"}},
	{decimal.NewFromInt(1), model.Movement{Tier: model.TierRising, Marker: "⬆️"}},
}

// Losses are checked against an exclusive upper bound, from the largest drop up.
var losses = []band{
	{decimal.NewFromInt(-20), model.Movement{Tier: model.TierCollapsing, Marker: "🕳️"}},
	{decimal.NewFromInt(-15), model.Movement{Tier: model.TierCrashing, Marker: "☠️"}},
	{decimal.NewFromInt(-10), model.Movement{Tier: model.TierBleeding, Marker: "🩸"}},
	{decimal.NewFromInt(-5), model.Movement{Tier: model.TierFalling, Marker: "📉"}},
	{decimal.NewFromInt(-1), model.Movement{Tier: model.TierDipping, Marker: "⬇️"}},
}

// Flat covers [-1, 1] and is the fallback, so Classify is total.
var Flat = model.Movement{Tier: model.TierFlat, Marker: "↔️"}

// Classify maps a signed percent change to its movement band.
func Classify(percentChange decimal.Decimal) model.Movement {
	for _, b := range gains {
		if percentChange.GreaterThan(b.Bound) {
			return b.Movement
		}
	}
	for _, b := range losses {
		if percentChange.LessThan(b.Bound) {
			return b.Movement
		}
	}
	return Flat
}

// Gate decides whether a change is significant enough to publish.
// The change is significant when |percent change| >= threshold; a zero
// threshold therefore always publishes.
func Gate(change model.ChangeResult, threshold decimal.Decimal) model.AlertDecision {
	if change.PercentChange.Abs().LessThan(threshold) {
		return model.AlertDecision{ShouldPublish: false, Reason: model.ReasonBelowThreshold}
	}
	return model.AlertDecision{ShouldPublish: true, Reason: model.ReasonThresholdMet}
}

// InsufficientData is the decision for windows too short to measure.
func InsufficientData() model.AlertDecision {
	return model.AlertDecision{ShouldPublish: false, Reason: model.ReasonInsufficientData}
}
