package domain

import "time"

// BehavioralEventKind classifies a behavioral audit snapshot.
type BehavioralEventKind string

const (
	// BehavioralEventTraitShift records a trait moving past the change delta.
	BehavioralEventTraitShift BehavioralEventKind = "trait_shift"
	// BehavioralEventRedFlag records a threshold crossing.
	BehavioralEventRedFlag BehavioralEventKind = "red_flag"
	// BehavioralEventTrendChange records a trend reclassification.
	BehavioralEventTrendChange BehavioralEventKind = "trend_change"
)

// BehavioralEvent is a point-in-time snapshot recording why a trait shift,
// red flag or trend change occurred. Append-only, never mutated.
type BehavioralEvent struct {
	ID       string
	AnchorID string
	Kind     BehavioralEventKind
	// Subject names the trait or flag involved.
	Subject string
	// PreviousState and NewState capture the before/after values.
	PreviousState string
	NewState      string
	// Factors lists the ordered contributing factors.
	Factors []string
	// Severity is 0-10.
	Severity  float64
	Timestamp time.Time
}

// TrustFactor is one weighted sub-score contributing to a trust evolution.
type TrustFactor struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// TrustEvolutionRecord is the append-only audit artifact written when trust
// actually changes.
type TrustEvolutionRecord struct {
	ID            string
	AnchorID      string
	PreviousScore float64
	NewScore      float64
	PreviousLevel int
	NewLevel      int
	// Factors lists the contributing sub-scores in evaluation order.
	Factors   []TrustFactor
	Timestamp time.Time
}
