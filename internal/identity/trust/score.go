package trust

import (
	"math"
	"time"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
)

// Trust levels, ordered from most to least restricted.
const (
	LevelRestricted   = 0
	LevelLimited      = 1
	LevelProbationary = 2
	LevelStandard     = 3
	LevelEstablished  = 4
	LevelExemplary    = 5
)

// Level thresholds on the 0-100 score, checked in descending order.
const (
	exemplaryThreshold    = 90.0
	establishedThreshold  = 75.0
	standardThreshold     = 50.0
	probationaryThreshold = 25.0
	limitedThreshold      = 10.0
)

// Sub-score weights. They sum to 1.
const (
	experienceWeight     = 0.2
	successWeight        = 0.3
	anomalyWeight        = 0.2
	sessionQualityWeight = 0.15
	recencyWeight        = 0.15
)

// experienceSaturation is the interaction count (log-scaled) at which the
// experience sub-score reaches 1.
const experienceSaturation = 1000

// recencyHalfLifeDays halves the recency sub-score for every 30 days of
// inactivity.
const recencyHalfLifeDays = 30.0

// LevelName returns the human-readable name of a trust level.
func LevelName(level int) string {
	switch level {
	case LevelExemplary:
		return "exemplary"
	case LevelEstablished:
		return "established"
	case LevelStandard:
		return "standard"
	case LevelProbationary:
		return "probationary"
	case LevelLimited:
		return "limited"
	default:
		return "restricted"
	}
}

// levelForScore maps a 0-100 score to a trust level via descending
// threshold lookup.
func levelForScore(score float64) int {
	switch {
	case score >= exemplaryThreshold:
		return LevelExemplary
	case score >= establishedThreshold:
		return LevelEstablished
	case score >= standardThreshold:
		return LevelStandard
	case score >= probationaryThreshold:
		return LevelProbationary
	case score >= limitedThreshold:
		return LevelLimited
	default:
		return LevelRestricted
	}
}

// computeScore derives the composite trust score and its contributing
// sub-scores from the profile and the anchor's last activity.
func computeScore(profile domain.DNAProfile, lastActivityAt, now time.Time) (float64, []domain.TrustFactor) {
	experience := math.Min(1, math.Log10(1+float64(profile.TotalInteractions))/math.Log10(1+experienceSaturation))
	success := clamp01(profile.SuccessRate)

	anomaly := 1.0
	if profile.TotalInteractions > 0 {
		anomaly = 1 - math.Min(1, float64(profile.AnomalyCount)/float64(profile.TotalInteractions)*10)
	}

	sessionQuality := 1 - clamp01(profile.RiskScore)

	recency := 1.0
	if !lastActivityAt.IsZero() && now.After(lastActivityAt) {
		days := now.Sub(lastActivityAt).Hours() / 24
		recency = math.Pow(0.5, days/recencyHalfLifeDays)
	}

	factors := []domain.TrustFactor{
		{Name: "experience", Value: experience, Weight: experienceWeight},
		{Name: "success", Value: success, Weight: successWeight},
		{Name: "anomaly", Value: anomaly, Weight: anomalyWeight},
		{Name: "session_quality", Value: sessionQuality, Weight: sessionQualityWeight},
		{Name: "recency", Value: recency, Weight: recencyWeight},
	}

	var score float64
	for _, factor := range factors {
		score += factor.Value * factor.Weight
	}
	return score * 100, factors
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
