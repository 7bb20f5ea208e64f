package archetype

import (
	"math"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
)

// Capability names one dimension of the capability vector. All scores are
// in [0, 1].
type Capability string

const (
	CapabilityReasoning          Capability = "reasoning"
	CapabilityPatternRecognition Capability = "pattern_recognition"
	CapabilityAdaptability       Capability = "adaptability"
	CapabilityPrecision          Capability = "precision"
	CapabilityDivergentThinking  Capability = "divergent_thinking"
	CapabilityResponseSpeed      Capability = "response_speed"
	CapabilityRetention          Capability = "retention"
	CapabilityCollaboration      Capability = "collaboration"
)

// Capabilities lists every dimension in a fixed order.
var Capabilities = []Capability{
	CapabilityReasoning,
	CapabilityPatternRecognition,
	CapabilityAdaptability,
	CapabilityPrecision,
	CapabilityDivergentThinking,
	CapabilityResponseSpeed,
	CapabilityRetention,
	CapabilityCollaboration,
}

// Vector is a capability score per dimension.
type Vector map[Capability]float64

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// deriveVector computes the capability vector from a DNA profile.
//
// Inputs per dimension:
//   - reasoning: success rate and decision discipline
//   - pattern_recognition: success plus competency depth
//   - adaptability: expertise breadth under low risk
//   - precision: success discounted by anomalies
//   - divergent_thinking: breadth of domains and competencies
//   - response_speed: decision discipline under low risk
//   - retention: interaction volume, log-scaled
//   - collaboration: breadth and positivity of source influences
func deriveVector(profile domain.DNAProfile) Vector {
	success := clamp01(profile.SuccessRate)
	risk := clamp01(profile.RiskScore)

	var anomalyRate float64
	if profile.TotalInteractions > 0 {
		anomalyRate = math.Min(1, float64(profile.AnomalyCount)/float64(profile.TotalInteractions)*10)
	}
	var decisionRatio float64
	if profile.TotalInteractions > 0 {
		decisionRatio = math.Min(1, float64(profile.TotalDecisions)/float64(profile.TotalInteractions))
	}

	var competencyDepth float64
	if len(profile.Competencies) > 0 {
		var levels float64
		for _, competency := range profile.Competencies {
			levels += float64(competency.Level)
		}
		competencyDepth = levels / float64(len(profile.Competencies)) / 5
	}

	var positiveShare float64
	if len(profile.Influences) > 0 {
		var positive int
		for _, influence := range profile.Influences {
			if influence.Impact == "positive" {
				positive++
			}
		}
		positiveShare = float64(positive) / float64(len(profile.Influences))
	}

	domains := float64(len(profile.ExpertiseDomains))
	competencies := float64(len(profile.Competencies))
	retention := math.Min(1, math.Log10(1+float64(profile.TotalInteractions))/3)

	return Vector{
		CapabilityReasoning:          clamp01(0.6*success + 0.4*decisionRatio),
		CapabilityPatternRecognition: clamp01(0.5*success + 0.3*competencyDepth + 0.2*retention),
		CapabilityAdaptability:       clamp01(0.2 + 0.1*domains + 0.3*(1-risk)),
		CapabilityPrecision:          clamp01(success * (1 - anomalyRate)),
		CapabilityDivergentThinking:  clamp01(0.1 + 0.12*domains + 0.05*competencies),
		CapabilityResponseSpeed:      clamp01(0.4 + 0.3*(1-risk) + 0.3*decisionRatio),
		CapabilityRetention:          retention,
		CapabilityCollaboration:      clamp01(0.3 + 0.1*float64(len(profile.Influences)) + 0.2*positiveShare),
	}
}

// deriveStability scores how steady the anchor's output is: low risk, few
// anomalies, consistent success, discounted by volatility when assessed.
func deriveStability(profile domain.DNAProfile) float64 {
	success := clamp01(profile.SuccessRate)
	risk := clamp01(profile.RiskScore)

	var anomalyRate float64
	if profile.TotalInteractions > 0 {
		anomalyRate = math.Min(1, float64(profile.AnomalyCount)/float64(profile.TotalInteractions)*10)
	}

	stability := 0.4*(1-risk) + 0.3*(1-anomalyRate) + 0.3*success
	if volatility, ok := profile.Traits[domain.TraitVolatility]; ok {
		stability -= 0.2 * volatility
	}
	return clamp01(stability)
}
