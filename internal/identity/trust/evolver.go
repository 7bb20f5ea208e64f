// Package trust evolves an anchor's composite trust score and discrete
// trust level from accumulated DNA evidence. Recalculation is gated on
// fresh evidence so trust never churns on noise.
package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/ledger"
	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
	"github.com/halcyonworks/anchorage/internal/storage"
)

// MinNewInteractions gates recalculation: at least this many interactions
// must have accumulated since the last evaluation.
const MinNewInteractions = 10

// churnScoreDelta suppresses persisting score moves below one point when
// the level is unchanged.
const churnScoreDelta = 1.0

// maxRetries bounds the compare-and-swap retry loops.
const maxRetries = 5

// Outcome reasons.
const (
	ReasonInsufficientEvidence = "insufficient_new_evidence"
	ReasonBelowChurnThreshold  = "change_below_churn_threshold"
	ReasonEvolved              = "evolved"
)

// Outcome reports what a MaybeEvolve call did. Record is set only when
// Evolved is true.
type Outcome struct {
	Evolved bool
	Reason  string
	Score   float64
	Level   int
	Record  *domain.TrustEvolutionRecord
}

// Evolver recomputes trust on demand.
type Evolver struct {
	anchors     storage.AnchorStore
	profiles    storage.DNAStore
	assessments storage.AssessmentStore
	journal     storage.LedgerStore
	now         func() time.Time
	idGenerator func() (string, error)
}

// NewEvolver creates a trust evolver. A nil clock uses time.Now.
func NewEvolver(
	anchors storage.AnchorStore,
	profiles storage.DNAStore,
	assessments storage.AssessmentStore,
	journal storage.LedgerStore,
	now func() time.Time,
	idGenerator func() (string, error),
) (*Evolver, error) {
	if anchors == nil {
		return nil, fmt.Errorf("anchor store is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("dna store is required")
	}
	if assessments == nil {
		return nil, fmt.Errorf("assessment store is required")
	}
	if journal == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = domain.NewID
	}
	return &Evolver{
		anchors:     anchors,
		profiles:    profiles,
		assessments: assessments,
		journal:     journal,
		now:         now,
		idGenerator: idGenerator,
	}, nil
}

// MaybeEvolve recomputes the anchor's trust if enough new evidence has
// accumulated. Too little evidence and sub-threshold score moves are
// explicit no-op outcomes, not errors.
func (e *Evolver) MaybeEvolve(ctx context.Context, anchorID string) (Outcome, error) {
	if e == nil {
		return Outcome{}, fmt.Errorf("evolver is not configured")
	}
	ctx, span := otel.Tracer("anchorage/trust").Start(ctx, "trust.MaybeEvolve")
	defer span.End()

	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return Outcome{}, domain.ErrEmptyGlobalID
	}

	profile, err := e.profiles.GetDNAProfile(ctx, anchorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Outcome{}, apperrors.WithMetadata(
				apperrors.CodeDNAProfileNotFound,
				"dna profile not found",
				map[string]string{"anchor_id": anchorID},
			)
		}
		return Outcome{}, fmt.Errorf("load dna profile: %w", err)
	}

	anchor, err := e.anchors.GetAnchor(ctx, anchorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Outcome{}, apperrors.WithMetadata(
				apperrors.CodeAnchorNotFound,
				"anchor not found",
				map[string]string{"anchor_id": anchorID},
			)
		}
		return Outcome{}, fmt.Errorf("load anchor: %w", err)
	}

	newInteractions := profile.TotalInteractions - profile.InteractionsAtLastTrustEval
	if newInteractions < MinNewInteractions {
		return Outcome{
			Reason: ReasonInsufficientEvidence,
			Score:  anchor.TrustScore,
			Level:  anchor.TrustLevel,
		}, nil
	}

	evaluatedAt := e.now().UTC()
	score, factors := computeScore(profile, anchor.LastActivityAt, evaluatedAt)
	level := levelForScore(score)

	// The evaluation consumed the accumulated evidence either way; advance
	// the gate so the same interactions are not counted twice.
	if err := e.markEvaluated(ctx, anchorID, evaluatedAt); err != nil {
		return Outcome{}, err
	}

	if math.Abs(score-anchor.TrustScore) < churnScoreDelta && level == anchor.TrustLevel {
		return Outcome{
			Reason: ReasonBelowChurnThreshold,
			Score:  anchor.TrustScore,
			Level:  anchor.TrustLevel,
		}, nil
	}

	previousScore := anchor.TrustScore
	previousLevel := anchor.TrustLevel
	if err := e.persistTrust(ctx, anchorID, score, level, evaluatedAt); err != nil {
		return Outcome{}, err
	}

	recordID, err := e.idGenerator()
	if err != nil {
		return Outcome{}, fmt.Errorf("generate record id: %w", err)
	}
	record := domain.TrustEvolutionRecord{
		ID:            recordID,
		AnchorID:      anchorID,
		PreviousScore: previousScore,
		NewScore:      score,
		PreviousLevel: previousLevel,
		NewLevel:      level,
		Factors:       factors,
		Timestamp:     evaluatedAt,
	}
	if err := e.assessments.PutTrustEvolution(ctx, record); err != nil {
		return Outcome{}, fmt.Errorf("store trust evolution: %w", err)
	}

	payload, err := json.Marshal(ledger.TrustChangedPayload{
		PreviousScore: previousScore,
		NewScore:      score,
		PreviousLevel: previousLevel,
		NewLevel:      level,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal trust payload: %w", err)
	}
	if _, err := e.journal.AppendEntry(ctx, ledger.Entry{
		AnchorID:    anchorID,
		Type:        ledger.TypeAnchorTrustChanged,
		PayloadJSON: string(payload),
	}); err != nil {
		return Outcome{}, fmt.Errorf("journal trust change: %w", err)
	}

	return Outcome{
		Evolved: true,
		Reason:  ReasonEvolved,
		Score:   score,
		Level:   level,
		Record:  &record,
	}, nil
}

// markEvaluated advances the evidence gate on the profile.
func (e *Evolver) markEvaluated(ctx context.Context, anchorID string, at time.Time) error {
	for attempt := 0; ; attempt++ {
		profile, err := e.profiles.GetDNAProfile(ctx, anchorID)
		if err != nil {
			return fmt.Errorf("reload dna profile: %w", err)
		}
		profile.InteractionsAtLastTrustEval = profile.TotalInteractions
		profile.LastUpdatedAt = at
		err = e.profiles.UpdateDNAProfile(ctx, profile)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrVersionConflict) && attempt < maxRetries {
			continue
		}
		return fmt.Errorf("advance trust gate: %w", err)
	}
}

// persistTrust writes the new score and level to the anchor under
// optimistic concurrency.
func (e *Evolver) persistTrust(ctx context.Context, anchorID string, score float64, level int, at time.Time) error {
	for attempt := 0; ; attempt++ {
		anchor, err := e.anchors.GetAnchor(ctx, anchorID)
		if err != nil {
			return fmt.Errorf("reload anchor: %w", err)
		}
		anchor.TrustScore = score
		anchor.TrustLevel = level
		anchor.UpdatedAt = at
		err = e.anchors.UpdateAnchor(ctx, anchor)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrVersionConflict) && attempt < maxRetries {
			continue
		}
		return fmt.Errorf("persist trust: %w", err)
	}
}
