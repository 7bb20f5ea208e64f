package ledger

import (
	"strings"
	"time"
)

// EventType identifies the type of a ledger entry.
type EventType string

// Anchor lifecycle events.
const (
	// TypeAnchorCreated records the creation of an identity anchor.
	TypeAnchorCreated EventType = "anchor.created"
	// TypeAnchorStatusChanged records an anchor status transition.
	TypeAnchorStatusChanged EventType = "anchor.status_changed"
	// TypeAnchorTrustChanged records a trust score or level change.
	TypeAnchorTrustChanged EventType = "anchor.trust_changed"
)

// Session events.
const (
	// TypeSessionBound records an ephemeral session binding to an anchor.
	TypeSessionBound EventType = "session.bound"
	// TypeSessionUnbound records a session binding being closed.
	TypeSessionUnbound EventType = "session.unbound"
)

// Evidence events.
const (
	// TypeDNAAccumulated records a session commit into the DNA profile.
	TypeDNAAccumulated EventType = "dna.accumulated"
	// TypeExposureRecorded records an interaction with an external source.
	TypeExposureRecorded EventType = "exposure.recorded"
	// TypeTraitShifted records a behavioral trait moving past the change delta.
	TypeTraitShifted EventType = "behavior.trait_shifted"
	// TypeRedFlagRaised records a behavioral red flag.
	TypeRedFlagRaised EventType = "behavior.red_flag_raised"
)

// GenesisHash is the sentinel previous-hash value for an anchor's first entry.
const GenesisHash = "genesis"

// Entry represents one immutable record in an anchor's ledger.
//
// Entries for a given anchor form a singly linked hash chain: each entry's
// Hash covers its content and its PrevHash, and PrevHash equals the prior
// entry's Hash (GenesisHash for the first). Seq is assigned by storage on
// append, starting at 1.
type Entry struct {
	// ID is the entry identifier.
	ID string
	// AnchorID is the anchor this entry belongs to.
	AnchorID string
	// SessionID is the session associated with the entry, if any.
	SessionID string
	// Seq is the entry sequence number within the anchor (starts at 1).
	Seq uint64
	// Type identifies what happened.
	Type EventType
	// PayloadJSON is the structured event payload, serialized as JSON.
	PayloadJSON string
	// Hash is the content hash covering the entry envelope and PrevHash.
	Hash string
	// PrevHash is the prior entry's hash, or GenesisHash for the first entry.
	PrevHash string
	// Timestamp is when the entry was recorded.
	Timestamp time.Time
}

// Validate checks the fields a caller must supply before append.
// Seq, Hash and PrevHash are storage-assigned and not checked here.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.AnchorID) == "" {
		return ErrEmptyAnchorID
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return ErrEmptyEventType
	}
	return nil
}
