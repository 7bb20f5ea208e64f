package domain

// Trait names a behavioral trait derived from accumulated evidence.
// All trait scores are in [0, 1].
type Trait string

const (
	TraitVolatility     Trait = "volatility"
	TraitCompliance     Trait = "compliance"
	TraitCreativity     Trait = "creativity"
	TraitMethodicalness Trait = "methodicalness"
	TraitResilience     Trait = "resilience"
	TraitSelfCorrection Trait = "self_correction"
	TraitFocus          Trait = "focus"
	TraitTrustAlignment Trait = "trust_alignment"
)

// Traits lists every assessed trait in a fixed order.
var Traits = []Trait{
	TraitVolatility,
	TraitCompliance,
	TraitCreativity,
	TraitMethodicalness,
	TraitResilience,
	TraitSelfCorrection,
	TraitFocus,
	TraitTrustAlignment,
}

// LowerIsBetter reports whether a decrease in the trait is a favorable move.
func (t Trait) LowerIsBetter() bool {
	return t == TraitVolatility
}

// Trend classifies the direction of behavioral movement.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendVolatile  Trend = "volatile"
	TrendStable    Trend = "stable"
)
