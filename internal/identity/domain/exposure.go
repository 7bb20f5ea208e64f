package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptySource indicates a missing exposure source.
var ErrEmptySource = errors.New("exposure source is required")

// ExposureRecord logs one interaction between an anchor and an external
// information source. Records are append-only evidence for behavioral
// assessment.
type ExposureRecord struct {
	ID       string
	AnchorID string
	// Source identifies the external source (usually a domain).
	Source string
	// Category is the source category (documentation, forum, social, ...).
	Category string
	// InteractionType describes the interaction (read, cite, follow, ...).
	InteractionType string
	// Sentiment is the interaction sentiment (-1..1).
	Sentiment float64
	// Compliance is the compliance-alignment score (0..1).
	Compliance float64
	SessionID  string
	Timestamp  time.Time
}

// NewExposureRecord validates and normalizes an exposure record.
func NewExposureRecord(rec ExposureRecord, now func() time.Time, idGenerator func() (string, error)) (ExposureRecord, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = NewID
	}

	rec.AnchorID = strings.TrimSpace(rec.AnchorID)
	if rec.AnchorID == "" {
		return ExposureRecord{}, ErrEmptyGlobalID
	}
	rec.Source = strings.TrimSpace(rec.Source)
	if rec.Source == "" {
		return ExposureRecord{}, ErrEmptySource
	}
	if rec.Sentiment < -1 || rec.Sentiment > 1 {
		return ExposureRecord{}, fmt.Errorf("sentiment %v out of range [-1, 1]", rec.Sentiment)
	}
	if rec.Compliance < 0 || rec.Compliance > 1 {
		return ExposureRecord{}, fmt.Errorf("compliance %v out of range [0, 1]", rec.Compliance)
	}

	recordID, err := idGenerator()
	if err != nil {
		return ExposureRecord{}, fmt.Errorf("generate exposure id: %w", err)
	}
	rec.ID = recordID
	rec.Category = strings.TrimSpace(rec.Category)
	rec.InteractionType = strings.TrimSpace(rec.InteractionType)
	rec.SessionID = strings.TrimSpace(rec.SessionID)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now().UTC()
	}
	return rec, nil
}
