package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/halcyonworks/anchorage/internal/platform/encoding"
)

// ErrNoStableHints indicates a resolution request with no usable stable fields.
var ErrNoStableHints = errors.New("at least one stable hint field is required")

// ResolutionHints carries the attributes a caller knows about a session when
// asking for an anchor.
type ResolutionHints struct {
	// AnchorID is an explicit anchor identifier. When set, resolution is a
	// direct lookup and never falls back to hash matching.
	AnchorID string
	// Stable identifying attributes. Any non-empty subset participates in
	// the anchor hash.
	ProjectPath  string
	Workspace    string
	SupportType  string
	Organization string
	// Session context, not part of the anchor hash.
	SessionID string
	Platform  string
}

// Normalize trims every field.
func (h ResolutionHints) Normalize() ResolutionHints {
	h.AnchorID = strings.TrimSpace(h.AnchorID)
	h.ProjectPath = strings.TrimSpace(h.ProjectPath)
	h.Workspace = strings.TrimSpace(h.Workspace)
	h.SupportType = strings.TrimSpace(h.SupportType)
	h.Organization = strings.TrimSpace(h.Organization)
	h.SessionID = strings.TrimSpace(h.SessionID)
	h.Platform = strings.TrimSpace(h.Platform)
	return h
}

// StableFields returns the non-empty stable hint fields keyed by their
// canonical names. Two hint sets with the same non-empty subset produce the
// same map regardless of how the caller populated them.
func (h ResolutionHints) StableFields() map[string]string {
	h = h.Normalize()
	fields := make(map[string]string, 4)
	if h.ProjectPath != "" {
		fields["project_path"] = h.ProjectPath
	}
	if h.Workspace != "" {
		fields["workspace"] = h.Workspace
	}
	if h.SupportType != "" {
		fields["support_type"] = h.SupportType
	}
	if h.Organization != "" {
		fields["organization"] = h.Organization
	}
	return fields
}

// AnchorHash computes the deterministic hash of the non-empty stable hint
// fields. Canonical JSON encoding makes the result independent of field
// order.
func (h ResolutionHints) AnchorHash() (string, error) {
	fields := h.StableFields()
	if len(fields) == 0 {
		return "", ErrNoStableHints
	}
	hash, err := encoding.ContentHash(fields)
	if err != nil {
		return "", fmt.Errorf("hash stable fields: %w", err)
	}
	return hash, nil
}
