// Package dna maintains the accumulated behavioral and competency profile
// for each anchor. The Accumulator is the single write path for DNA
// profiles; aggregates are updated incrementally, never recomputed from
// history.
package dna

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/ledger"
	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
	"github.com/halcyonworks/anchorage/internal/storage"
)

// maxRetries bounds the compare-and-swap retry loop. Concurrent commits for
// the same anchor are expected but rare; a handful of retries absorbs them.
const maxRetries = 5

// Accumulator folds session metrics into DNA profiles and writes the ledger
// entry recording each commit.
type Accumulator struct {
	profiles storage.DNAStore
	journal  storage.LedgerStore
	now      func() time.Time
}

// NewAccumulator creates an accumulator. A nil clock uses time.Now.
func NewAccumulator(profiles storage.DNAStore, journal storage.LedgerStore, now func() time.Time) (*Accumulator, error) {
	if profiles == nil {
		return nil, fmt.Errorf("dna store is required")
	}
	if journal == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Accumulator{profiles: profiles, journal: journal, now: now}, nil
}

// Accumulate folds one session's metrics into the anchor's profile. Lost
// races against concurrent commits are retried by re-reading the profile and
// reapplying the metrics, so no update is silently dropped.
func (a *Accumulator) Accumulate(ctx context.Context, anchorID string, metrics domain.SessionMetrics) (domain.DNAProfile, error) {
	if a == nil {
		return domain.DNAProfile{}, fmt.Errorf("accumulator is not configured")
	}
	ctx, span := otel.Tracer("anchorage/dna").Start(ctx, "dna.Accumulate")
	defer span.End()

	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return domain.DNAProfile{}, domain.ErrEmptyGlobalID
	}
	if err := validateMetrics(metrics); err != nil {
		return domain.DNAProfile{}, err
	}

	var updated domain.DNAProfile
	for attempt := 0; ; attempt++ {
		profile, err := a.profiles.GetDNAProfile(ctx, anchorID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return domain.DNAProfile{}, apperrors.WithMetadata(
					apperrors.CodeDNAProfileNotFound,
					"dna profile not found",
					map[string]string{"anchor_id": anchorID},
				)
			}
			return domain.DNAProfile{}, fmt.Errorf("load dna profile: %w", err)
		}

		updated = fold(profile, metrics, a.now().UTC())
		err = a.profiles.UpdateDNAProfile(ctx, updated)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrVersionConflict) && attempt < maxRetries {
			continue
		}
		if errors.Is(err, storage.ErrVersionConflict) {
			return domain.DNAProfile{}, apperrors.WithMetadata(
				apperrors.CodeDNAVersionConflict,
				"dna profile update lost repeated races",
				map[string]string{"anchor_id": anchorID},
			)
		}
		return domain.DNAProfile{}, fmt.Errorf("update dna profile: %w", err)
	}

	payload, err := json.Marshal(ledger.DNAAccumulatedPayload{
		SessionID:           metrics.SessionID,
		SessionInteractions: metrics.Interactions,
		TotalInteractions:   updated.TotalInteractions,
		SuccessRate:         updated.SuccessRate,
		AnomalyCount:        updated.AnomalyCount,
	})
	if err != nil {
		return domain.DNAProfile{}, fmt.Errorf("marshal accumulation payload: %w", err)
	}
	if _, err := a.journal.AppendEntry(ctx, ledger.Entry{
		AnchorID:    anchorID,
		SessionID:   metrics.SessionID,
		Type:        ledger.TypeDNAAccumulated,
		PayloadJSON: string(payload),
	}); err != nil {
		return domain.DNAProfile{}, fmt.Errorf("journal accumulation: %w", err)
	}

	return updated, nil
}

// NewInteractionsSinceTrustEval reports how many interactions accumulated
// since trust was last recalculated.
func NewInteractionsSinceTrustEval(profile domain.DNAProfile) int {
	return profile.TotalInteractions - profile.InteractionsAtLastTrustEval
}

func validateMetrics(metrics domain.SessionMetrics) error {
	if metrics.Interactions < 0 {
		return fmt.Errorf("interactions must not be negative")
	}
	if metrics.Decisions < 0 {
		return fmt.Errorf("decisions must not be negative")
	}
	if metrics.Anomalies < 0 {
		return fmt.Errorf("anomalies must not be negative")
	}
	if metrics.SuccessRate < 0 || metrics.SuccessRate > 1 {
		return fmt.Errorf("success rate %v out of range [0, 1]", metrics.SuccessRate)
	}
	if metrics.RiskScore < 0 || metrics.RiskScore > 1 {
		return fmt.Errorf("risk score %v out of range [0, 1]", metrics.RiskScore)
	}
	for _, obs := range metrics.Competencies {
		if strings.TrimSpace(obs.Name) == "" {
			return fmt.Errorf("competency name is required")
		}
		if obs.Level < 1 || obs.Level > 5 {
			return fmt.Errorf("competency level %d out of range [1, 5]", obs.Level)
		}
	}
	return nil
}

// fold applies one session's metrics to a profile copy using incremental
// formulas. The session's share of the new total weights the rate blends.
func fold(profile domain.DNAProfile, metrics domain.SessionMetrics, now time.Time) domain.DNAProfile {
	newTotal := profile.TotalInteractions + metrics.Interactions
	if metrics.Interactions > 0 && newTotal > 0 {
		weight := float64(metrics.Interactions) / float64(newTotal)
		profile.SuccessRate = profile.SuccessRate*(1-weight) + metrics.SuccessRate*weight
		profile.RiskScore = profile.RiskScore*(1-weight) + metrics.RiskScore*weight
	}
	profile.TotalInteractions = newTotal
	profile.TotalDecisions += metrics.Decisions
	profile.AnomalyCount += metrics.Anomalies

	if profile.Competencies == nil {
		profile.Competencies = make(map[string]domain.Competency, len(metrics.Competencies))
	}
	for _, obs := range metrics.Competencies {
		name := strings.TrimSpace(obs.Name)
		existing := profile.Competencies[name]
		if obs.Level > existing.Level {
			existing.Level = obs.Level
		}
		existing.Observations++
		profile.Competencies[name] = existing
	}

	for _, candidate := range metrics.Domains {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		known := false
		for _, existing := range profile.ExpertiseDomains {
			if existing == candidate {
				known = true
				break
			}
		}
		if !known {
			profile.ExpertiseDomains = append(profile.ExpertiseDomains, candidate)
		}
	}

	profile.LastUpdatedAt = now
	return profile
}
