package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/halcyonworks/anchorage/internal/platform/encoding"
)

var (
	// ErrEmptyAnchorID indicates a missing anchor id.
	ErrEmptyAnchorID = errors.New("anchor id is required")
	// ErrEmptyEventType indicates a missing event type.
	ErrEmptyEventType = errors.New("event type is required")
)

// EntryHash computes the content hash for a ledger entry.
//
// The hash input is a canonical envelope covering the entry identity, its
// payload and the previous entry's hash, so the stored hash both addresses
// the content and links the chain. Field ordering is defined here in one
// place and cannot drift between layers. Chain links carry the full SHA-256
// digest; truncation is reserved for standalone content addresses like the
// anchor hash.
func EntryHash(e Entry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(e.PrevHash) == "" {
		return "", fmt.Errorf("prev hash is required (use %q for the first entry)", GenesisHash)
	}

	var payload any
	raw := strings.TrimSpace(e.PayloadJSON)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return "", fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	envelope := map[string]any{
		"entry_id":   e.ID,
		"anchor_id":  e.AnchorID,
		"session_id": e.SessionID,
		"event_type": string(e.Type),
		"payload":    payload,
		"prev_hash":  e.PrevHash,
		"ts":         e.Timestamp.UTC().UnixMilli(),
	}

	hash, err := encoding.FullHash(envelope)
	if err != nil {
		return "", fmt.Errorf("entry hash: %w", err)
	}
	return hash, nil
}
