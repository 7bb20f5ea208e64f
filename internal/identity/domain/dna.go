package domain

import (
	"time"
)

// Competency tracks one observed capability in a DNA profile.
type Competency struct {
	// Level is the highest proficiency observed (1-5).
	Level int
	// Observations counts how many sessions exhibited the competency.
	Observations int
}

// Influence summarizes accumulated exposure to one external source.
type Influence struct {
	// Interactions counts recorded exposures to the source.
	Interactions int
	// Impact is a qualitative label (positive, neutral, negative).
	Impact string
}

// DNAProfile is the accumulated, continuously updated summary for one
// anchor. There is exactly one profile per anchor, created at anchor
// creation time. The accumulator is the single writer.
type DNAProfile struct {
	AnchorID string
	// TotalInteractions counts every committed interaction.
	TotalInteractions int
	// TotalDecisions counts every committed decision.
	TotalDecisions int
	// SuccessRate is the running success fraction (0-1), blended
	// incrementally by session share.
	SuccessRate float64
	// RiskScore is the running session risk (0-1), blended the same way.
	RiskScore float64
	// AnomalyCount accumulates observed anomalies.
	AnomalyCount int
	// Competencies maps competency name to observed proficiency.
	Competencies map[string]Competency
	// ExpertiseDomains is the union of observed expertise domains.
	ExpertiseDomains []string
	// Traits holds the most recent behavioral trait scores (0-1).
	Traits map[Trait]float64
	// Influences maps external source to accumulated exposure.
	Influences map[string]Influence
	// TrendDirection is the last assessed trend.
	TrendDirection Trend
	// TrendConfidence is the confidence in the trend (0-1), saturating
	// with interaction volume.
	TrendConfidence float64
	// RedFlagCount accumulates raised red flags.
	RedFlagCount int
	// ActiveRedFlags holds the keys of the flag conditions active at the
	// last assessment. A flag is raised (counted and journaled) only when
	// its condition crosses into this set, not while it persists.
	ActiveRedFlags []string
	// InteractionsAtLastTrustEval is the interaction total when trust was
	// last recalculated; the evolution gate compares against it.
	InteractionsAtLastTrustEval int
	// FirstUpdatedAt and LastUpdatedAt bound the profile's history.
	FirstUpdatedAt time.Time
	LastUpdatedAt  time.Time
	// Version is the optimistic-concurrency version of the stored row.
	Version int64
}

// NewDNAProfile creates the empty profile written at anchor creation.
func NewDNAProfile(anchorID string, now func() time.Time) DNAProfile {
	if now == nil {
		now = time.Now
	}
	createdAt := now().UTC()
	return DNAProfile{
		AnchorID:       anchorID,
		Competencies:   make(map[string]Competency),
		Traits:         make(map[Trait]float64),
		Influences:     make(map[string]Influence),
		TrendDirection: TrendStable,
		FirstUpdatedAt: createdAt,
		LastUpdatedAt:  createdAt,
		Version:        1,
	}
}

// CompetencyObservation is one competency sighting inside a session.
type CompetencyObservation struct {
	Name  string
	Level int
}

// SessionMetrics is what a caller commits back when a session ends.
type SessionMetrics struct {
	SessionID    string
	Interactions int
	Decisions    int
	// SuccessRate is the session's success fraction (0-1).
	SuccessRate float64
	// RiskScore is the session's assessed risk (0-1).
	RiskScore float64
	// Anomalies counts anomalous interactions in the session.
	Anomalies    int
	Competencies []CompetencyObservation
	// Domains lists expertise domains exercised in the session.
	Domains []string
}
