package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmptySessionID indicates a missing session id.
	ErrEmptySessionID = errors.New("session id is required")
	// ErrBindingClosed indicates an attempt to close an already closed binding.
	ErrBindingClosed = errors.New("binding is already closed")
)

// SessionBinding links one ephemeral session identifier to exactly one
// anchor for its duration. A session id has at most one binding with a nil
// UnboundAt at any moment; bindings are closed, never deleted.
type SessionBinding struct {
	SessionID    string
	AnchorID     string
	Platform     string
	BoundAt      time.Time
	UnboundAt    *time.Time // nil while the binding is open
	Interactions int
	Decisions    int
	UnbindReason string
}

// NewSessionBinding creates an open binding.
func NewSessionBinding(sessionID, anchorID, platform string, now func() time.Time) (SessionBinding, error) {
	if now == nil {
		now = time.Now
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionBinding{}, ErrEmptySessionID
	}
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return SessionBinding{}, ErrEmptyGlobalID
	}

	return SessionBinding{
		SessionID: sessionID,
		AnchorID:  anchorID,
		Platform:  strings.TrimSpace(platform),
		BoundAt:   now().UTC(),
	}, nil
}

// Close sets the unbind time, reason and final counters.
func (b *SessionBinding) Close(reason string, interactions, decisions int, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	if b.UnboundAt != nil {
		return ErrBindingClosed
	}
	closedAt := now().UTC()
	b.UnboundAt = &closedAt
	b.UnbindReason = strings.TrimSpace(reason)
	if interactions > 0 {
		b.Interactions = interactions
	}
	if decisions > 0 {
		b.Decisions = decisions
	}
	return nil
}

// Open reports whether the binding is still open.
func (b SessionBinding) Open() bool {
	return b.UnboundAt == nil
}
