package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/ledger"
	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
	"github.com/halcyonworks/anchorage/internal/storage"
)

// BindSession binds an ephemeral session to an anchor: it opens a session
// binding, adds the session to the anchor's active set and journals the
// bind. A session can hold only one open binding at a time.
func (r *Resolver) BindSession(ctx context.Context, sessionID, anchorID, platform string) (domain.SessionBinding, error) {
	if r == nil {
		return domain.SessionBinding{}, fmt.Errorf("resolver is not configured")
	}

	binding, err := domain.NewSessionBinding(sessionID, anchorID, platform, r.now)
	if err != nil {
		if errors.Is(err, domain.ErrEmptySessionID) {
			return domain.SessionBinding{}, apperrors.New(
				apperrors.CodeBindingEmptySession,
				"session id is required",
			)
		}
		return domain.SessionBinding{}, err
	}

	anchor, err := r.anchors.GetAnchor(ctx, binding.AnchorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.SessionBinding{}, apperrors.WithMetadata(
				apperrors.CodeAnchorNotFound,
				"anchor not found",
				map[string]string{"anchor_id": binding.AnchorID},
			)
		}
		return domain.SessionBinding{}, fmt.Errorf("load anchor: %w", err)
	}
	if anchor.Status == domain.StatusRetired {
		return domain.SessionBinding{}, apperrors.WithMetadata(
			apperrors.CodeAnchorRetired,
			"cannot bind to a retired anchor",
			map[string]string{"anchor_id": binding.AnchorID},
		)
	}

	if err := r.bindings.PutBinding(ctx, binding); err != nil {
		if errors.Is(err, storage.ErrOpenBindingExists) {
			return domain.SessionBinding{}, apperrors.WithMetadata(
				apperrors.CodeBindingAlreadyOpen,
				"session already has an open binding",
				map[string]string{"session_id": binding.SessionID},
			)
		}
		return domain.SessionBinding{}, fmt.Errorf("store binding: %w", err)
	}

	if _, err := r.updateAnchor(ctx, binding.AnchorID, func(anchor *domain.Anchor) error {
		anchor.BindSession(binding.SessionID, r.now)
		return nil
	}); err != nil {
		return domain.SessionBinding{}, err
	}

	payload, err := json.Marshal(ledger.SessionBoundPayload{
		SessionID: binding.SessionID,
		Platform:  binding.Platform,
	})
	if err != nil {
		return domain.SessionBinding{}, fmt.Errorf("marshal bind payload: %w", err)
	}
	if _, err := r.journal.AppendEntry(ctx, ledger.Entry{
		AnchorID:    binding.AnchorID,
		SessionID:   binding.SessionID,
		Type:        ledger.TypeSessionBound,
		PayloadJSON: string(payload),
	}); err != nil {
		return domain.SessionBinding{}, fmt.Errorf("journal bind: %w", err)
	}

	return binding, nil
}

// UnbindSession closes a session's open binding. Session metrics are
// committed to the DNA accumulator before the binding closes, then the
// anchor's active set shrinks and the unbind is journaled.
func (r *Resolver) UnbindSession(ctx context.Context, sessionID, reason string, metrics domain.SessionMetrics) (domain.SessionBinding, error) {
	if r == nil {
		return domain.SessionBinding{}, fmt.Errorf("resolver is not configured")
	}

	binding, err := r.bindings.GetOpenBinding(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.SessionBinding{}, apperrors.WithMetadata(
				apperrors.CodeBindingNotFound,
				"no open binding for session",
				map[string]string{"session_id": sessionID},
			)
		}
		return domain.SessionBinding{}, fmt.Errorf("load binding: %w", err)
	}

	metrics.SessionID = binding.SessionID
	if metrics.Interactions > 0 || metrics.Decisions > 0 {
		if _, err := r.accumulator.Accumulate(ctx, binding.AnchorID, metrics); err != nil {
			return domain.SessionBinding{}, fmt.Errorf("commit session metrics: %w", err)
		}
	}

	if err := binding.Close(reason, metrics.Interactions, metrics.Decisions, r.now); err != nil {
		if errors.Is(err, domain.ErrBindingClosed) {
			return domain.SessionBinding{}, apperrors.WithMetadata(
				apperrors.CodeBindingAlreadyClosed,
				"binding is already closed",
				map[string]string{"session_id": sessionID},
			)
		}
		return domain.SessionBinding{}, err
	}
	if err := r.bindings.CloseBinding(ctx, binding); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.SessionBinding{}, apperrors.WithMetadata(
				apperrors.CodeBindingAlreadyClosed,
				"binding closed concurrently",
				map[string]string{"session_id": sessionID},
			)
		}
		return domain.SessionBinding{}, fmt.Errorf("close binding: %w", err)
	}

	if _, err := r.updateAnchor(ctx, binding.AnchorID, func(anchor *domain.Anchor) error {
		anchor.UnbindSession(binding.SessionID, r.now)
		return nil
	}); err != nil {
		return domain.SessionBinding{}, err
	}

	payload, err := json.Marshal(ledger.SessionUnboundPayload{
		SessionID:    binding.SessionID,
		Reason:       binding.UnbindReason,
		Interactions: binding.Interactions,
		Decisions:    binding.Decisions,
	})
	if err != nil {
		return domain.SessionBinding{}, fmt.Errorf("marshal unbind payload: %w", err)
	}
	if _, err := r.journal.AppendEntry(ctx, ledger.Entry{
		AnchorID:    binding.AnchorID,
		SessionID:   binding.SessionID,
		Type:        ledger.TypeSessionUnbound,
		PayloadJSON: string(payload),
	}); err != nil {
		return domain.SessionBinding{}, fmt.Errorf("journal unbind: %w", err)
	}

	return binding, nil
}
