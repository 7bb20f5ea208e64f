package behavior

import (
	"math"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
)

// ChangeDelta is the minimum trait movement reported as a change.
const ChangeDelta = 0.15

// Red flag thresholds.
const (
	volatilityFlagThreshold = 0.7
	complianceFlagThreshold = 0.3
	focusFlagThreshold      = 0.25
	// lowStabilitySourceLimit flags cumulative exposure to a source with
	// stability below lowStabilityCutoff once interactions exceed it.
	lowStabilitySourceLimit = 20
	lowStabilityCutoff      = 0.4
)

// trendConfidenceSaturation is the interaction count at which trend
// confidence reaches 1.0.
const trendConfidenceSaturation = 100

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// computeTraits derives the eight trait scores from a profile and its
// exposure evidence.
//
// Inputs per trait:
//   - volatility: anomaly rate, failure rate, session risk
//   - compliance: success rate blended with stability-weighted source
//     compliance
//   - creativity: breadth of expertise domains and competencies
//   - methodicalness: success, low risk, decision discipline
//   - resilience: sustained success under anomalies and risk
//   - self_correction: success after anomalies
//   - focus: erosion by risk, anomalies and failure
//   - trust_alignment: compliance, success and low volatility combined
func computeTraits(profile domain.DNAProfile, exposures []domain.ExposureRecord, sources SourceProfiles) map[domain.Trait]float64 {
	success := clamp01(profile.SuccessRate)
	failure := 1 - success
	risk := clamp01(profile.RiskScore)

	var anomalyRate float64
	if profile.TotalInteractions > 0 {
		// Saturates once anomalies reach 10% of interactions.
		anomalyRate = math.Min(1, float64(profile.AnomalyCount)/float64(profile.TotalInteractions)*10)
	}
	var decisionRatio float64
	if profile.TotalInteractions > 0 {
		decisionRatio = math.Min(1, float64(profile.TotalDecisions)/float64(profile.TotalInteractions))
	}

	volatility := clamp01(0.5*anomalyRate + 0.3*failure + 0.2*risk)

	compliance := success
	if len(exposures) > 0 {
		var weighted, weights float64
		for _, exposure := range exposures {
			w := sources.Profile(exposure.Source).Stability
			weighted += exposure.Compliance * w
			weights += w
		}
		if weights > 0 {
			compliance = clamp01(0.6*success + 0.4*(weighted/weights))
		}
	}

	creativity := clamp01(0.1 + 0.1*float64(len(profile.ExpertiseDomains)) + 0.04*float64(len(profile.Competencies)))
	methodicalness := clamp01(0.5*success + 0.3*(1-risk) + 0.2*decisionRatio)
	resilience := clamp01(0.4*success + 0.4*(1-anomalyRate) + 0.2*(1-risk))
	selfCorrection := clamp01(0.3 + 0.5*success - 0.3*anomalyRate)
	focus := clamp01(1 - 0.5*risk - 0.3*anomalyRate - 0.2*failure)
	trustAlignment := clamp01(0.5*compliance + 0.3*success + 0.2*(1-volatility))

	return map[domain.Trait]float64{
		domain.TraitVolatility:     volatility,
		domain.TraitCompliance:     compliance,
		domain.TraitCreativity:     creativity,
		domain.TraitMethodicalness: methodicalness,
		domain.TraitResilience:     resilience,
		domain.TraitSelfCorrection: selfCorrection,
		domain.TraitFocus:          focus,
		domain.TraitTrustAlignment: trustAlignment,
	}
}

// classifyTrend counts favorable versus unfavorable trait movement, with a
// margin of one to avoid flapping between classifications. Movement below
// trendEpsilon does not count.
const trendEpsilon = 0.01

func classifyTrend(previous, current map[domain.Trait]float64) domain.Trend {
	var favorable, unfavorable int
	for _, trait := range domain.Traits {
		prev, ok := previous[trait]
		if !ok {
			continue
		}
		delta := current[trait] - prev
		if math.Abs(delta) < trendEpsilon {
			continue
		}
		improved := delta > 0
		if trait.LowerIsBetter() {
			improved = !improved
		}
		if improved {
			favorable++
		} else {
			unfavorable++
		}
	}

	moved := favorable + unfavorable
	diff := favorable - unfavorable
	switch {
	case moved >= 6 && diff >= -1 && diff <= 1:
		return domain.TrendVolatile
	case diff >= 2:
		return domain.TrendImproving
	case diff <= -2:
		return domain.TrendDegrading
	default:
		return domain.TrendStable
	}
}

// trendConfidence scales with interaction volume, saturating at 100.
func trendConfidence(totalInteractions int) float64 {
	if totalInteractions <= 0 {
		return 0
	}
	return math.Min(1, float64(totalInteractions)/trendConfidenceSaturation)
}

// flagSeverity maps how far a value crossed its threshold into [0, 10].
// span is the distance from the threshold to the worst possible value.
func flagSeverity(excess, span float64) float64 {
	if span <= 0 {
		return 10
	}
	return math.Min(10, excess/span*10)
}
