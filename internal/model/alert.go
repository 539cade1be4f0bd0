package model

import "github.com/shopspring/decimal"

// ChangeResult is the price movement between the first and last sample of a window.
type ChangeResult struct {
	StartPrice    decimal.Decimal
	EndPrice      decimal.Decimal
	AbsoluteDiff  decimal.Decimal
	PercentChange decimal.Decimal
}

// Tier names a movement band.
type Tier string

const (
	TierSoaring    Tier = "SOARING"
	TierRocketing  Tier = "ROCKETING"
	TierSurging    Tier = "SURGING"
	TierClimbing   Tier = "CLIMBING"
	TierRising     Tier = "RISING"
	TierFlat       Tier = "FLAT"
	TierDipping    Tier = "DIPPING"
	TierFalling    Tier = "FALLING"
	TierBleeding   Tier = "BLEEDING"
	TierCrashing   Tier = "CRASHING"
	TierCollapsing Tier = "COLLAPSING"
)

// Movement is the classification of a percent change.
type Movement struct {
	Tier   Tier
	Marker string
}

// Reason explains an AlertDecision.
type Reason string

const (
	ReasonThresholdMet     Reason = "THRESHOLD_MET"
	ReasonInsufficientData Reason = "INSUFFICIENT_DATA"
	ReasonBelowThreshold   Reason = "BELOW_THRESHOLD"
)

// AlertDecision is produced once per run.
type AlertDecision struct {
	ShouldPublish bool
	Reason        Reason
}

// PublishRequest is consumed exactly once by a publisher.
type PublishRequest struct {
	Text  string
	Image []byte // optional PNG
}

// HasImage reports whether an image is attached.
func (r PublishRequest) HasImage() bool { return len(r.Image) > 0 }
