// Package storage defines the persistence interfaces the engine relies on.
// Implementations must make every read-modify-write sequence safe to run
// from concurrent execution contexts; see the versioned update methods.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/ledger"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict indicates a versioned update lost a concurrent race.
// Callers should re-read and retry.
var ErrVersionConflict = errors.New("record version conflict")

// ErrOpenBindingExists indicates a session already has an open binding.
var ErrOpenBindingExists = errors.New("open binding exists for session")

// AnchorStore persists identity anchors.
type AnchorStore interface {
	// PutAnchor inserts a new anchor.
	PutAnchor(ctx context.Context, anchor domain.Anchor) error
	// UpdateAnchor applies a compare-and-swap update keyed on the record's
	// Version; returns ErrVersionConflict when the stored version moved.
	UpdateAnchor(ctx context.Context, anchor domain.Anchor) error
	// GetAnchor returns an anchor by global id.
	GetAnchor(ctx context.Context, anchorID string) (domain.Anchor, error)
	// GetAnchorByHash returns the non-retired anchor with the given anchor
	// hash, if any.
	GetAnchorByHash(ctx context.Context, anchorHash string) (domain.Anchor, error)
	// ListAnchorIDs returns every anchor id, retired included.
	ListAnchorIDs(ctx context.Context) ([]string, error)
}

// AnchorCreator creates an anchor together with its empty DNA profile.
type AnchorCreator interface {
	// CreateAnchorWithProfile atomically inserts the anchor and its profile.
	// A failure on either insert must leave neither row behind.
	CreateAnchorWithProfile(ctx context.Context, anchor domain.Anchor, profile domain.DNAProfile) error
}

// BindingStore persists session bindings.
type BindingStore interface {
	// PutBinding inserts an open binding. At most one open binding may
	// exist per session id; a second insert reports ErrOpenBindingExists.
	PutBinding(ctx context.Context, binding domain.SessionBinding) error
	// GetOpenBinding returns the open binding for a session.
	GetOpenBinding(ctx context.Context, sessionID string) (domain.SessionBinding, error)
	// CloseBinding closes the open binding for the record's session.
	CloseBinding(ctx context.Context, binding domain.SessionBinding) error
}

// EntryPage is one page of ledger entries.
type EntryPage struct {
	Entries       []ledger.Entry
	NextPageToken string
}

// LedgerStore persists the hash-chained ledger.
type LedgerStore interface {
	// AppendEntry atomically appends an entry: it allocates the next
	// sequence number, links the previous hash, computes the entry hash
	// and persists the result, all in one transaction per anchor.
	AppendEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error)
	// ListEntries returns an anchor's full chain in insertion order.
	ListEntries(ctx context.Context, anchorID string) ([]ledger.Entry, error)
	// ListEntriesPage returns a filtered page of an anchor's entries.
	// The filter is an AIP-160 expression over session_id, event_type
	// and ts.
	ListEntriesPage(ctx context.Context, anchorID string, pageSize int, pageToken, filter string) (EntryPage, error)
}

// DNAStore persists DNA profiles.
type DNAStore interface {
	PutDNAProfile(ctx context.Context, profile domain.DNAProfile) error
	// UpdateDNAProfile applies a compare-and-swap update keyed on Version.
	UpdateDNAProfile(ctx context.Context, profile domain.DNAProfile) error
	GetDNAProfile(ctx context.Context, anchorID string) (domain.DNAProfile, error)
}

// ExposureStore persists exposure records.
type ExposureStore interface {
	PutExposure(ctx context.Context, record domain.ExposureRecord) error
	ListExposures(ctx context.Context, anchorID string) ([]domain.ExposureRecord, error)
}

// AssessmentStore persists behavioral events and trust evolution records.
type AssessmentStore interface {
	PutBehavioralEvent(ctx context.Context, event domain.BehavioralEvent) error
	ListBehavioralEvents(ctx context.Context, anchorID string) ([]domain.BehavioralEvent, error)
	PutTrustEvolution(ctx context.Context, record domain.TrustEvolutionRecord) error
	ListTrustEvolutions(ctx context.Context, anchorID string) ([]domain.TrustEvolutionRecord, error)
}

// TelemetryEvent records one operational telemetry event.
type TelemetryEvent struct {
	Severity  string
	Component string
	Message   string
	Attrs     map[string]string
	Timestamp time.Time
}

// TelemetryStore persists operational telemetry.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, event TelemetryEvent) error
}
