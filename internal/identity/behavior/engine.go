// Package behavior derives trait scores, trend direction and red flags from
// accumulated DNA evidence and exposure records.
package behavior

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/ledger"
	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
	"github.com/halcyonworks/anchorage/internal/storage"
)

// maxRetries bounds the profile compare-and-swap retry loop.
const maxRetries = 5

// TraitChange reports one trait that moved past ChangeDelta.
type TraitChange struct {
	Trait    domain.Trait
	Previous float64
	Current  float64
}

// RedFlag reports one threshold crossing.
type RedFlag struct {
	Flag     string
	Severity float64
	Detail   string
	// Source names the external source for per-source flags; empty for
	// trait threshold flags.
	Source string
}

// key identifies the flag condition across assessments. Per-source flags
// are keyed per source so a new source crossing still raises.
func (f RedFlag) key() string {
	if f.Source == "" {
		return f.Flag
	}
	return f.Flag + ":" + f.Source
}

// Assessment is the result of one behavioral assessment run.
type Assessment struct {
	AnchorID        string
	Traits          map[domain.Trait]float64
	Trend           domain.Trend
	TrendConfidence float64
	Changes         []TraitChange
	RedFlags        []RedFlag
}

// Engine assesses behavior on demand. It reads the DNA profile and exposure
// records, and persists trait, trend and red-flag state back to the profile.
type Engine struct {
	profiles    storage.DNAStore
	exposures   storage.ExposureStore
	assessments storage.AssessmentStore
	journal     storage.LedgerStore
	sources     SourceProfiles
	now         func() time.Time
	idGenerator func() (string, error)
}

// NewEngine creates a behavioral assessment engine. The source profile map
// is deployment configuration; nil means every source is treated as
// neutral. A nil clock uses time.Now.
func NewEngine(
	profiles storage.DNAStore,
	exposures storage.ExposureStore,
	assessments storage.AssessmentStore,
	journal storage.LedgerStore,
	sources SourceProfiles,
	now func() time.Time,
	idGenerator func() (string, error),
) (*Engine, error) {
	if profiles == nil {
		return nil, fmt.Errorf("dna store is required")
	}
	if exposures == nil {
		return nil, fmt.Errorf("exposure store is required")
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
	return &Engine{
		profiles:    profiles,
		exposures:   exposures,
		assessments: assessments,
		journal:     journal,
		sources:     sources,
		now:         now,
		idGenerator: idGenerator,
	}, nil
}

// Assess recomputes the anchor's traits, trend and red flags. Trait moves
// past ChangeDelta and new red flags are journaled and recorded as
// behavioral events; the resulting state is persisted to the profile.
func (e *Engine) Assess(ctx context.Context, anchorID string) (Assessment, error) {
	if e == nil {
		return Assessment{}, fmt.Errorf("engine is not configured")
	}
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return Assessment{}, domain.ErrEmptyGlobalID
	}

	profile, err := e.loadProfile(ctx, anchorID)
	if err != nil {
		return Assessment{}, err
	}
	records, err := e.exposures.ListExposures(ctx, anchorID)
	if err != nil {
		return Assessment{}, fmt.Errorf("load exposures: %w", err)
	}

	traits := computeTraits(profile, records, e.sources)
	previous := profile.Traits

	var changes []TraitChange
	for _, trait := range domain.Traits {
		prev, ok := previous[trait]
		if !ok {
			continue
		}
		current := traits[trait]
		if current-prev > ChangeDelta || prev-current > ChangeDelta {
			changes = append(changes, TraitChange{Trait: trait, Previous: prev, Current: current})
		}
	}

	// A flag is raised only when its condition crosses the threshold, not
	// on every assessment while it persists.
	detected := e.detectRedFlags(traits, profile)
	previouslyActive := make(map[string]bool, len(profile.ActiveRedFlags))
	for _, key := range profile.ActiveRedFlags {
		previouslyActive[key] = true
	}
	activeKeys := make([]string, 0, len(detected))
	var raised []RedFlag
	for _, flag := range detected {
		activeKeys = append(activeKeys, flag.key())
		if !previouslyActive[flag.key()] {
			raised = append(raised, flag)
		}
	}
	sort.Strings(activeKeys)

	trend := classifyTrend(previous, traits)
	confidence := trendConfidence(profile.TotalInteractions)
	previousTrend := profile.TrendDirection

	assessedAt := e.now().UTC()
	for _, change := range changes {
		if err := e.recordTraitShift(ctx, anchorID, change, assessedAt); err != nil {
			return Assessment{}, err
		}
	}
	for _, flag := range raised {
		if err := e.recordRedFlag(ctx, anchorID, flag, assessedAt); err != nil {
			return Assessment{}, err
		}
	}
	if trend != previousTrend {
		if err := e.recordTrendChange(ctx, anchorID, previousTrend, trend, confidence, assessedAt); err != nil {
			return Assessment{}, err
		}
	}

	if err := e.persistAssessment(ctx, anchorID, traits, trend, confidence, activeKeys, len(raised), assessedAt); err != nil {
		return Assessment{}, err
	}

	return Assessment{
		AnchorID:        anchorID,
		Traits:          traits,
		Trend:           trend,
		TrendConfidence: confidence,
		Changes:         changes,
		RedFlags:        raised,
	}, nil
}

// RecordExposure logs one interaction with an external source: it stores the
// exposure record, journals it and folds it into the profile's influence
// map.
func (e *Engine) RecordExposure(ctx context.Context, record domain.ExposureRecord) (domain.ExposureRecord, error) {
	if e == nil {
		return domain.ExposureRecord{}, fmt.Errorf("engine is not configured")
	}

	record, err := domain.NewExposureRecord(record, e.now, e.idGenerator)
	if err != nil {
		return domain.ExposureRecord{}, err
	}
	if err := e.exposures.PutExposure(ctx, record); err != nil {
		return domain.ExposureRecord{}, fmt.Errorf("store exposure: %w", err)
	}

	payload, err := json.Marshal(ledger.ExposureRecordedPayload{
		Source:          record.Source,
		Category:        record.Category,
		InteractionType: record.InteractionType,
		Sentiment:       record.Sentiment,
		Compliance:      record.Compliance,
	})
	if err != nil {
		return domain.ExposureRecord{}, fmt.Errorf("marshal exposure payload: %w", err)
	}
	if _, err := e.journal.AppendEntry(ctx, ledger.Entry{
		AnchorID:    record.AnchorID,
		SessionID:   record.SessionID,
		Type:        ledger.TypeExposureRecorded,
		PayloadJSON: string(payload),
	}); err != nil {
		return domain.ExposureRecord{}, fmt.Errorf("journal exposure: %w", err)
	}

	impact := impactLabel(record.Sentiment)
	err = e.updateProfile(ctx, record.AnchorID, func(profile *domain.DNAProfile) {
		if profile.Influences == nil {
			profile.Influences = make(map[string]domain.Influence, 1)
		}
		influence := profile.Influences[record.Source]
		influence.Interactions++
		influence.Impact = impact
		profile.Influences[record.Source] = influence
		profile.LastUpdatedAt = e.now().UTC()
	})
	if err != nil {
		return domain.ExposureRecord{}, err
	}
	return record, nil
}

func (e *Engine) loadProfile(ctx context.Context, anchorID string) (domain.DNAProfile, error) {
	profile, err := e.profiles.GetDNAProfile(ctx, anchorID)
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
	return profile, nil
}

// detectRedFlags applies the fixed thresholds to the new trait values and
// the profile's source influence counts.
func (e *Engine) detectRedFlags(traits map[domain.Trait]float64, profile domain.DNAProfile) []RedFlag {
	var flags []RedFlag

	if v := traits[domain.TraitVolatility]; v > volatilityFlagThreshold {
		flags = append(flags, RedFlag{
			Flag:     "high_volatility",
			Severity: flagSeverity(v-volatilityFlagThreshold, 1-volatilityFlagThreshold),
			Detail:   fmt.Sprintf("volatility %.2f above %.2f", v, volatilityFlagThreshold),
		})
	}
	if c := traits[domain.TraitCompliance]; c < complianceFlagThreshold {
		flags = append(flags, RedFlag{
			Flag:     "low_compliance",
			Severity: flagSeverity(complianceFlagThreshold-c, complianceFlagThreshold),
			Detail:   fmt.Sprintf("compliance %.2f below %.2f", c, complianceFlagThreshold),
		})
	}
	if f := traits[domain.TraitFocus]; f < focusFlagThreshold {
		flags = append(flags, RedFlag{
			Flag:     "low_focus",
			Severity: flagSeverity(focusFlagThreshold-f, focusFlagThreshold),
			Detail:   fmt.Sprintf("focus %.2f below %.2f", f, focusFlagThreshold),
		})
	}
	for source, influence := range profile.Influences {
		if e.sources.Profile(source).Stability >= lowStabilityCutoff {
			continue
		}
		if influence.Interactions <= lowStabilitySourceLimit {
			continue
		}
		flags = append(flags, RedFlag{
			Flag:     "low_stability_source_exposure",
			Severity: flagSeverity(float64(influence.Interactions-lowStabilitySourceLimit), lowStabilitySourceLimit),
			Detail:   fmt.Sprintf("%d interactions with low-stability source %s", influence.Interactions, source),
			Source:   source,
		})
	}
	return flags
}

func (e *Engine) recordTraitShift(ctx context.Context, anchorID string, change TraitChange, at time.Time) error {
	eventID, err := e.idGenerator()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	if err := e.assessments.PutBehavioralEvent(ctx, domain.BehavioralEvent{
		ID:            eventID,
		AnchorID:      anchorID,
		Kind:          domain.BehavioralEventTraitShift,
		Subject:       string(change.Trait),
		PreviousState: fmt.Sprintf("%.4f", change.Previous),
		NewState:      fmt.Sprintf("%.4f", change.Current),
		Factors:       []string{"trait moved past change delta"},
		Timestamp:     at,
	}); err != nil {
		return fmt.Errorf("store trait shift: %w", err)
	}

	payload, err := json.Marshal(ledger.TraitShiftedPayload{
		Trait:    string(change.Trait),
		Previous: change.Previous,
		Current:  change.Current,
	})
	if err != nil {
		return fmt.Errorf("marshal trait shift payload: %w", err)
	}
	if _, err := e.journal.AppendEntry(ctx, ledger.Entry{
		AnchorID:    anchorID,
		Type:        ledger.TypeTraitShifted,
		PayloadJSON: string(payload),
	}); err != nil {
		return fmt.Errorf("journal trait shift: %w", err)
	}
	return nil
}

func (e *Engine) recordRedFlag(ctx context.Context, anchorID string, flag RedFlag, at time.Time) error {
	eventID, err := e.idGenerator()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	if err := e.assessments.PutBehavioralEvent(ctx, domain.BehavioralEvent{
		ID:        eventID,
		AnchorID:  anchorID,
		Kind:      domain.BehavioralEventRedFlag,
		Subject:   flag.Flag,
		NewState:  flag.Detail,
		Factors:   []string{flag.Detail},
		Severity:  flag.Severity,
		Timestamp: at,
	}); err != nil {
		return fmt.Errorf("store red flag: %w", err)
	}

	payload, err := json.Marshal(ledger.RedFlagRaisedPayload{
		Flag:     flag.Flag,
		Severity: flag.Severity,
		Detail:   flag.Detail,
	})
	if err != nil {
		return fmt.Errorf("marshal red flag payload: %w", err)
	}
	if _, err := e.journal.AppendEntry(ctx, ledger.Entry{
		AnchorID:    anchorID,
		Type:        ledger.TypeRedFlagRaised,
		PayloadJSON: string(payload),
	}); err != nil {
		return fmt.Errorf("journal red flag: %w", err)
	}
	return nil
}

func (e *Engine) recordTrendChange(ctx context.Context, anchorID string, previous, current domain.Trend, confidence float64, at time.Time) error {
	eventID, err := e.idGenerator()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	if err := e.assessments.PutBehavioralEvent(ctx, domain.BehavioralEvent{
		ID:            eventID,
		AnchorID:      anchorID,
		Kind:          domain.BehavioralEventTrendChange,
		Subject:       "trend",
		PreviousState: string(previous),
		NewState:      string(current),
		Factors:       []string{fmt.Sprintf("confidence %.2f", confidence)},
		Timestamp:     at,
	}); err != nil {
		return fmt.Errorf("store trend change: %w", err)
	}
	return nil
}

// persistAssessment writes the new trait, trend and red-flag state to the
// profile under optimistic concurrency. activeKeys replaces the stored
// active-flag set; the count only grows by flags raised this run.
func (e *Engine) persistAssessment(ctx context.Context, anchorID string, traits map[domain.Trait]float64, trend domain.Trend, confidence float64, activeKeys []string, newFlags int, at time.Time) error {
	return e.updateProfile(ctx, anchorID, func(profile *domain.DNAProfile) {
		profile.Traits = traits
		profile.TrendDirection = trend
		profile.TrendConfidence = confidence
		profile.RedFlagCount += newFlags
		profile.ActiveRedFlags = activeKeys
		profile.LastUpdatedAt = at
	})
}

// updateProfile applies a mutation under the versioned update protocol,
// retrying lost races against concurrent writers.
func (e *Engine) updateProfile(ctx context.Context, anchorID string, mutate func(*domain.DNAProfile)) error {
	for attempt := 0; ; attempt++ {
		profile, err := e.loadProfile(ctx, anchorID)
		if err != nil {
			return err
		}
		mutate(&profile)
		err = e.profiles.UpdateDNAProfile(ctx, profile)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrVersionConflict) && attempt < maxRetries {
			continue
		}
		if errors.Is(err, storage.ErrVersionConflict) {
			return apperrors.WithMetadata(
				apperrors.CodeDNAVersionConflict,
				"dna profile update lost repeated races",
				map[string]string{"anchor_id": anchorID},
			)
		}
		return fmt.Errorf("update dna profile: %w", err)
	}
}

// impactLabel buckets sentiment into a qualitative influence impact.
func impactLabel(sentiment float64) string {
	switch {
	case sentiment > 0.2:
		return "positive"
	case sentiment < -0.2:
		return "negative"
	default:
		return "neutral"
	}
}
