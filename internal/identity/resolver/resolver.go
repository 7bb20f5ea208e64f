// Package resolver maps ephemeral sessions to durable identity anchors.
// Resolution is deterministic: explicit identifiers are looked up directly,
// everything else goes through the anchor hash. New anchors are only
// created after an explicit confirmation call.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/halcyonworks/anchorage/internal/identity/dna"
	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/identity/minting"
	"github.com/halcyonworks/anchorage/internal/ledger"
	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
	"github.com/halcyonworks/anchorage/internal/storage"
	"github.com/halcyonworks/anchorage/internal/telemetry"
)

// Action tells the caller what a resolution decided.
type Action string

const (
	// ActionBindExisting means a matching anchor was found.
	ActionBindExisting Action = "bind_existing"
	// ActionCreateNew means no anchor matched; creation needs confirmation.
	ActionCreateNew Action = "create_new"
)

// Confidence boosts for bind_existing results.
const (
	confidenceBase          = 0.5
	confidencePerField      = 0.05
	confidenceTrustMax      = 0.15
	confidenceRecencyRecent = 0.15
	confidenceRecencyStale  = 0.05
	recencyRecentWindow     = 7 * 24 * time.Hour
	recencyStaleWindow      = 30 * 24 * time.Hour
)

// DefaultEntityType is minted when the caller does not name one.
const DefaultEntityType = "agent"

// PendingAnchor carries everything needed to create an anchor once the
// caller confirms.
type PendingAnchor struct {
	Hash       string
	Hints      domain.ResolutionHints
	EntityType string
	// RequiresConfirmation is always true for create_new results.
	RequiresConfirmation bool
	// Confirmed must be set by the caller before CreateAnchor accepts the
	// pending anchor.
	Confirmed bool
}

// Resolution is the outcome of a Resolve call.
type Resolution struct {
	Action     Action
	Anchor     *domain.Anchor
	Pending    *PendingAnchor
	Confidence float64
	Reason     string
}

// Config wires a Resolver.
type Config struct {
	Anchors  storage.AnchorStore
	Bindings storage.BindingStore
	Journal  storage.LedgerStore
	// Creator atomically inserts a new anchor with its empty profile.
	Creator     storage.AnchorCreator
	Accumulator *dna.Accumulator
	// Authority is the remote minting authority; optional. Without one
	// every identifier is generated locally.
	Authority minting.Authority
	// Fallback generates local identifiers when the authority fails.
	Fallback *minting.LocalGenerator
	// Telemetry records operator-visible degradation; optional.
	Telemetry *telemetry.Emitter
	// MintTimeout bounds each authority call. Zero uses the minting
	// package default.
	MintTimeout time.Duration
	Now         func() time.Time
}

// Resolver resolves sessions to anchors and manages anchor lifecycle.
type Resolver struct {
	anchors     storage.AnchorStore
	bindings    storage.BindingStore
	journal     storage.LedgerStore
	creator     storage.AnchorCreator
	accumulator *dna.Accumulator
	authority   minting.Authority
	fallback    *minting.LocalGenerator
	telemetry   *telemetry.Emitter
	mintTimeout time.Duration
	now         func() time.Time
}

// New creates a resolver from config. Anchors, bindings, journal, creator,
// accumulator and the local fallback generator are required.
func New(cfg Config) (*Resolver, error) {
	if cfg.Anchors == nil {
		return nil, fmt.Errorf("anchor store is required")
	}
	if cfg.Bindings == nil {
		return nil, fmt.Errorf("binding store is required")
	}
	if cfg.Journal == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if cfg.Creator == nil {
		return nil, fmt.Errorf("anchor creator is required")
	}
	if cfg.Accumulator == nil {
		return nil, fmt.Errorf("accumulator is required")
	}
	if cfg.Fallback == nil {
		return nil, fmt.Errorf("fallback id generator is required")
	}
	if cfg.MintTimeout <= 0 {
		cfg.MintTimeout = minting.DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{
		anchors:     cfg.Anchors,
		bindings:    cfg.Bindings,
		journal:     cfg.Journal,
		creator:     cfg.Creator,
		accumulator: cfg.Accumulator,
		authority:   cfg.Authority,
		fallback:    cfg.Fallback,
		telemetry:   cfg.Telemetry,
		mintTimeout: cfg.MintTimeout,
		now:         cfg.Now,
	}, nil
}

// Resolve maps hints to an anchor decision. An explicit anchor id is looked
// up directly and never falls back to hash matching; a missing explicit id
// is an explicit not-found failure.
func (r *Resolver) Resolve(ctx context.Context, hints domain.ResolutionHints) (Resolution, error) {
	if r == nil {
		return Resolution{}, fmt.Errorf("resolver is not configured")
	}
	ctx, span := otel.Tracer("anchorage/resolver").Start(ctx, "resolver.Resolve")
	defer span.End()

	hints = hints.Normalize()

	if hints.AnchorID != "" {
		anchor, err := r.anchors.GetAnchor(ctx, hints.AnchorID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return Resolution{}, apperrors.WithMetadata(
					apperrors.CodeAnchorNotFound,
					"explicit anchor id not found",
					map[string]string{"anchor_id": hints.AnchorID},
				)
			}
			return Resolution{}, fmt.Errorf("lookup anchor: %w", err)
		}
		return Resolution{
			Action:     ActionBindExisting,
			Anchor:     &anchor,
			Confidence: 1.0,
			Reason:     "explicit anchor id",
		}, nil
	}

	anchorHash, err := hints.AnchorHash()
	if err != nil {
		if errors.Is(err, domain.ErrNoStableHints) {
			return Resolution{}, apperrors.New(
				apperrors.CodeAnchorEmptyHints,
				"no stable hint fields provided",
			)
		}
		return Resolution{}, err
	}

	anchor, err := r.anchors.GetAnchorByHash(ctx, anchorHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Resolution{
				Action: ActionCreateNew,
				Pending: &PendingAnchor{
					Hash:                 anchorHash,
					Hints:                hints,
					EntityType:           DefaultEntityType,
					RequiresConfirmation: true,
				},
				Reason: "no anchor matches stable hints",
			}, nil
		}
		return Resolution{}, fmt.Errorf("lookup anchor by hash: %w", err)
	}

	return Resolution{
		Action:     ActionBindExisting,
		Anchor:     &anchor,
		Confidence: r.confidence(hints, anchor),
		Reason:     "anchor hash match",
	}, nil
}

// confidence scores a hash match from hint coverage, trust and recency,
// capped at 1.0.
func (r *Resolver) confidence(hints domain.ResolutionHints, anchor domain.Anchor) float64 {
	score := confidenceBase
	score += float64(len(hints.StableFields())) * confidencePerField
	score += float64(anchor.TrustLevel) / 5 * confidenceTrustMax

	since := r.now().UTC().Sub(anchor.LastActivityAt)
	switch {
	case since <= recencyRecentWindow:
		score += confidenceRecencyRecent
	case since <= recencyStaleWindow:
		score += confidenceRecencyStale
	}

	if score > 1 {
		return 1
	}
	return score
}

// CreateAnchor creates the anchor a create_new resolution proposed. The
// pending anchor must be explicitly confirmed; anchors are never created
// implicitly.
func (r *Resolver) CreateAnchor(ctx context.Context, pending PendingAnchor) (domain.Anchor, error) {
	if r == nil {
		return domain.Anchor{}, fmt.Errorf("resolver is not configured")
	}
	if !pending.Confirmed {
		return domain.Anchor{}, apperrors.New(
			apperrors.CodeAnchorCreateUnconfirmed,
			"anchor creation requires explicit confirmation",
		)
	}
	if strings.TrimSpace(pending.Hash) == "" {
		return domain.Anchor{}, domain.ErrEmptyAnchorHash
	}
	entityType := strings.TrimSpace(pending.EntityType)
	if entityType == "" {
		entityType = DefaultEntityType
	}

	globalID, mintedLocal, err := r.mint(ctx, entityType, pending.Hints)
	if err != nil {
		return domain.Anchor{}, err
	}

	anchor, err := domain.NewAnchor(globalID, pending.Hash, r.now)
	if err != nil {
		return domain.Anchor{}, err
	}
	// The anchor and its profile are written in one transaction so a
	// failed profile insert never leaves an anchor without a profile.
	if err := r.creator.CreateAnchorWithProfile(ctx, anchor, domain.NewDNAProfile(anchor.ID, r.now)); err != nil {
		return domain.Anchor{}, fmt.Errorf("store anchor with profile: %w", err)
	}

	payload, err := json.Marshal(ledger.AnchorCreatedPayload{
		GlobalID:    anchor.ID,
		AnchorHash:  anchor.Hash,
		MintedLocal: mintedLocal,
		TrustScore:  anchor.TrustScore,
		TrustLevel:  anchor.TrustLevel,
	})
	if err != nil {
		return domain.Anchor{}, fmt.Errorf("marshal created payload: %w", err)
	}
	if _, err := r.journal.AppendEntry(ctx, ledger.Entry{
		AnchorID:    anchor.ID,
		SessionID:   pending.Hints.SessionID,
		Type:        ledger.TypeAnchorCreated,
		PayloadJSON: string(payload),
	}); err != nil {
		return domain.Anchor{}, fmt.Errorf("journal creation: %w", err)
	}

	return anchor, nil
}

// mint asks the authority for a global id and falls back to local
// generation when it fails, warning operators either way.
func (r *Resolver) mint(ctx context.Context, entityType string, hints domain.ResolutionHints) (globalID string, mintedLocal bool, err error) {
	if r.authority != nil {
		mintCtx, cancel := context.WithTimeout(ctx, r.mintTimeout)
		defer cancel()

		globalID, err = r.authority.Mint(mintCtx, entityType, "", map[string]string{
			"organization": hints.Organization,
			"platform":     hints.Platform,
		})
		if err == nil {
			return globalID, false, nil
		}
		log.Printf("minting authority failed, generating local identifier: %v", err)
		if r.telemetry != nil {
			_ = r.telemetry.Emit(ctx, telemetry.SeverityWarn, "minting",
				"authority unavailable, used local fallback",
				map[string]string{"entity_type": entityType, "error": err.Error()},
			)
		}
	}

	globalID, err = r.fallback.Generate(entityType)
	if err != nil {
		return "", false, fmt.Errorf("generate fallback id: %w", err)
	}
	if err := minting.ValidateGlobalID(globalID); err != nil {
		return "", false, err
	}
	return globalID, true, nil
}

// TransitionStatus applies an anchor lifecycle change and journals it.
// Retired anchors never come back.
func (r *Resolver) TransitionStatus(ctx context.Context, anchorID string, to domain.Status, reason string) (domain.Anchor, error) {
	if r == nil {
		return domain.Anchor{}, fmt.Errorf("resolver is not configured")
	}

	var from domain.Status
	anchor, err := r.updateAnchor(ctx, anchorID, func(anchor *domain.Anchor) error {
		from = anchor.Status
		if anchor.Status == domain.StatusRetired {
			return apperrors.WithMetadata(
				apperrors.CodeAnchorRetired,
				"retired anchors cannot transition",
				map[string]string{"anchor_id": anchorID},
			)
		}
		return anchor.Transition(to, r.now)
	})
	if err != nil {
		return domain.Anchor{}, err
	}

	payload, err := json.Marshal(ledger.AnchorStatusChangedPayload{
		FromStatus: string(from),
		ToStatus:   string(to),
		Reason:     reason,
	})
	if err != nil {
		return domain.Anchor{}, fmt.Errorf("marshal status payload: %w", err)
	}
	if _, err := r.journal.AppendEntry(ctx, ledger.Entry{
		AnchorID:    anchorID,
		Type:        ledger.TypeAnchorStatusChanged,
		PayloadJSON: string(payload),
	}); err != nil {
		return domain.Anchor{}, fmt.Errorf("journal status change: %w", err)
	}
	return anchor, nil
}

// maxRetries bounds the anchor compare-and-swap retry loops.
const maxRetries = 5

// updateAnchor applies a mutation under the versioned update protocol.
func (r *Resolver) updateAnchor(ctx context.Context, anchorID string, mutate func(*domain.Anchor) error) (domain.Anchor, error) {
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return domain.Anchor{}, domain.ErrEmptyGlobalID
	}
	for attempt := 0; ; attempt++ {
		anchor, err := r.anchors.GetAnchor(ctx, anchorID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return domain.Anchor{}, apperrors.WithMetadata(
					apperrors.CodeAnchorNotFound,
					"anchor not found",
					map[string]string{"anchor_id": anchorID},
				)
			}
			return domain.Anchor{}, fmt.Errorf("load anchor: %w", err)
		}
		if err := mutate(&anchor); err != nil {
			return domain.Anchor{}, err
		}
		err = r.anchors.UpdateAnchor(ctx, anchor)
		if err == nil {
			return anchor, nil
		}
		if errors.Is(err, storage.ErrVersionConflict) && attempt < maxRetries {
			continue
		}
		return domain.Anchor{}, fmt.Errorf("update anchor: %w", err)
	}
}
