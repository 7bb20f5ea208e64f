package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/halcyonworks/anchorage/internal/platform/id"
)

// Status describes the lifecycle state of an identity anchor.
type Status string

const (
	// StatusActive indicates the anchor is in normal use.
	StatusActive Status = "active"
	// StatusDormant indicates the anchor has had no recent activity.
	StatusDormant Status = "dormant"
	// StatusRetired indicates the anchor is permanently closed.
	// Anchors are never physically deleted.
	StatusRetired Status = "retired"
)

// Default trust assigned at anchor creation. Score 50 maps to the Standard
// level (3 on the 0-5 scale counted from Restricted=0).
const (
	DefaultTrustScore = 50.0
	DefaultTrustLevel = 3
)

var (
	// ErrEmptyGlobalID indicates a missing global identifier.
	ErrEmptyGlobalID = errors.New("global id is required")
	// ErrEmptyAnchorHash indicates a missing anchor hash.
	ErrEmptyAnchorHash = errors.New("anchor hash is required")
	// ErrInvalidStatusTransition indicates a disallowed status change.
	ErrInvalidStatusTransition = errors.New("invalid anchor status transition")
)

// Anchor is the durable identity record an ephemeral session resolves to.
type Anchor struct {
	// ID is the opaque global identifier, issued by the minting authority
	// or generated locally as a fallback.
	ID string
	// Hash is the deterministic anchor hash computed from stable
	// identifying attributes, used for lookup.
	Hash string
	// TrustScore is the continuous trust score (0-100).
	TrustScore float64
	// TrustLevel is the discrete trust tier (0-5).
	TrustLevel int
	// Status is the lifecycle state.
	Status Status
	// ActiveSessions holds the currently bound session identifiers.
	ActiveSessions []string
	// TotalSessions counts every session ever bound.
	TotalSessions int
	// LastActivityAt is the most recent bind, unbind or commit time.
	LastActivityAt time.Time
	// CreatedAt is the anchor creation time.
	CreatedAt time.Time
	// UpdatedAt is the last mutation time.
	UpdatedAt time.Time
	// Version is the optimistic-concurrency version of the stored row.
	Version int64
}

// NewAnchor creates an anchor with default trust and ACTIVE status.
func NewAnchor(globalID, anchorHash string, now func() time.Time) (Anchor, error) {
	if now == nil {
		now = time.Now
	}
	globalID = strings.TrimSpace(globalID)
	if globalID == "" {
		return Anchor{}, ErrEmptyGlobalID
	}
	anchorHash = strings.TrimSpace(anchorHash)
	if anchorHash == "" {
		return Anchor{}, ErrEmptyAnchorHash
	}

	createdAt := now().UTC()
	return Anchor{
		ID:             globalID,
		Hash:           anchorHash,
		TrustScore:     DefaultTrustScore,
		TrustLevel:     DefaultTrustLevel,
		Status:         StatusActive,
		LastActivityAt: createdAt,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
		Version:        1,
	}, nil
}

// CanTransition reports whether a status change is allowed. Retired is
// terminal.
func (s Status) CanTransition(to Status) bool {
	if s == StatusRetired {
		return false
	}
	switch to {
	case StatusActive, StatusDormant, StatusRetired:
		return to != s
	default:
		return false
	}
}

// Transition applies a status change, enforcing that retired anchors never
// come back.
func (a *Anchor) Transition(to Status, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	if !a.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, a.Status, to)
	}
	a.Status = to
	a.UpdatedAt = now().UTC()
	return nil
}

// BindSession adds a session to the anchor's active set and bumps counters.
// Binding an already-bound session is a no-op on the set.
func (a *Anchor) BindSession(sessionID string, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	for _, s := range a.ActiveSessions {
		if s == sessionID {
			return
		}
	}
	a.ActiveSessions = append(a.ActiveSessions, sessionID)
	a.TotalSessions++
	a.LastActivityAt = now().UTC()
	a.UpdatedAt = a.LastActivityAt
}

// UnbindSession removes a session from the active set.
func (a *Anchor) UnbindSession(sessionID string, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	kept := a.ActiveSessions[:0]
	for _, s := range a.ActiveSessions {
		if s != sessionID {
			kept = append(kept, s)
		}
	}
	a.ActiveSessions = kept
	a.LastActivityAt = now().UTC()
	a.UpdatedAt = a.LastActivityAt
}

// NewID generates an engine-local record identifier.
func NewID() (string, error) {
	return id.NewID()
}
