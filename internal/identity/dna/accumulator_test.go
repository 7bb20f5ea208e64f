package dna

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/ledger"
	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
	"github.com/halcyonworks/anchorage/internal/storage"
	"github.com/halcyonworks/anchorage/internal/storage/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedProfile(t *testing.T, store *sqlite.Store, anchorID string, interactions int, successRate float64) {
	t.Helper()
	profile := domain.NewDNAProfile(anchorID, nil)
	profile.TotalInteractions = interactions
	profile.SuccessRate = successRate
	if err := store.PutDNAProfile(context.Background(), profile); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func TestAccumulateBlendsSuccessRate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedProfile(t, store, "anchor-1", 100, 0.8)

	acc, err := NewAccumulator(store, store, nil)
	if err != nil {
		t.Fatalf("new accumulator: %v", err)
	}

	updated, err := acc.Accumulate(ctx, "anchor-1", domain.SessionMetrics{
		SessionID:    "sess-1",
		Interactions: 50,
		SuccessRate:  0.4,
	})
	if err != nil {
		t.Fatalf("accumulate: %v", err)
	}

	if updated.TotalInteractions != 150 {
		t.Errorf("total interactions = %d, want 150", updated.TotalInteractions)
	}
	want := (0.8*100 + 0.4*50) / 150
	if math.Abs(updated.SuccessRate-want) > 1e-9 {
		t.Errorf("success rate = %v, want %v", updated.SuccessRate, want)
	}
}

func TestAccumulateMergesCompetenciesAndDomains(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	profile := domain.NewDNAProfile("anchor-1", nil)
	profile.Competencies["debugging"] = domain.Competency{Level: 4, Observations: 3}
	profile.ExpertiseDomains = []string{"networking"}
	if err := store.PutDNAProfile(ctx, profile); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	acc, err := NewAccumulator(store, store, nil)
	if err != nil {
		t.Fatalf("new accumulator: %v", err)
	}

	updated, err := acc.Accumulate(ctx, "anchor-1", domain.SessionMetrics{
		Interactions: 10,
		SuccessRate:  0.9,
		Decisions:    4,
		Anomalies:    1,
		Competencies: []domain.CompetencyObservation{
			{Name: "debugging", Level: 2},
			{Name: "refactoring", Level: 3},
		},
		Domains: []string{"networking", "storage"},
	})
	if err != nil {
		t.Fatalf("accumulate: %v", err)
	}

	// Max proficiency wins; every sighting counts.
	if got := updated.Competencies["debugging"]; got.Level != 4 || got.Observations != 4 {
		t.Errorf("debugging = %+v, want level 4 observations 4", got)
	}
	if got := updated.Competencies["refactoring"]; got.Level != 3 || got.Observations != 1 {
		t.Errorf("refactoring = %+v, want level 3 observations 1", got)
	}
	if len(updated.ExpertiseDomains) != 2 {
		t.Errorf("expertise domains = %v, want union of 2", updated.ExpertiseDomains)
	}
	if updated.TotalDecisions != 4 || updated.AnomalyCount != 1 {
		t.Errorf("decisions = %d anomalies = %d", updated.TotalDecisions, updated.AnomalyCount)
	}
}

func TestAccumulateWritesLedgerEntry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedProfile(t, store, "anchor-1", 0, 0)

	acc, err := NewAccumulator(store, store, nil)
	if err != nil {
		t.Fatalf("new accumulator: %v", err)
	}

	if _, err := acc.Accumulate(ctx, "anchor-1", domain.SessionMetrics{
		SessionID:    "sess-1",
		Interactions: 12,
		SuccessRate:  0.75,
	}); err != nil {
		t.Fatalf("accumulate: %v", err)
	}

	entries, err := store.ListEntries(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Type != ledger.TypeDNAAccumulated {
		t.Errorf("entry type = %q", entries[0].Type)
	}
	var payload ledger.DNAAccumulatedPayload
	if err := json.Unmarshal([]byte(entries[0].PayloadJSON), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.TotalInteractions != 12 || payload.SessionID != "sess-1" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestAccumulateMissingProfile(t *testing.T) {
	store := openTestStore(t)

	acc, err := NewAccumulator(store, store, nil)
	if err != nil {
		t.Fatalf("new accumulator: %v", err)
	}

	_, err = acc.Accumulate(context.Background(), "missing", domain.SessionMetrics{Interactions: 1})
	if !apperrors.IsCode(err, apperrors.CodeDNAProfileNotFound) {
		t.Fatalf("err = %v, want CodeDNAProfileNotFound", err)
	}
}

func TestAccumulateRejectsInvalidMetrics(t *testing.T) {
	store := openTestStore(t)
	seedProfile(t, store, "anchor-1", 0, 0)

	acc, err := NewAccumulator(store, store, nil)
	if err != nil {
		t.Fatalf("new accumulator: %v", err)
	}

	bad := []domain.SessionMetrics{
		{Interactions: -1},
		{SuccessRate: 1.5},
		{RiskScore: -0.1},
		{Competencies: []domain.CompetencyObservation{{Name: "x", Level: 6}}},
		{Competencies: []domain.CompetencyObservation{{Name: "", Level: 2}}},
	}
	for i, metrics := range bad {
		if _, err := acc.Accumulate(context.Background(), "anchor-1", metrics); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

// conflictingStore injects a version conflict on the first update to
// exercise the retry path.
type conflictingStore struct {
	storage.DNAStore
	storage.LedgerStore
	conflicts int
}

func (c *conflictingStore) UpdateDNAProfile(ctx context.Context, profile domain.DNAProfile) error {
	if c.conflicts > 0 {
		c.conflicts--
		return storage.ErrVersionConflict
	}
	return c.DNAStore.UpdateDNAProfile(ctx, profile)
}

func TestAccumulateRetriesOnVersionConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedProfile(t, store, "anchor-1", 100, 0.8)

	wrapped := &conflictingStore{DNAStore: store, LedgerStore: store, conflicts: 2}
	acc, err := NewAccumulator(wrapped, wrapped, nil)
	if err != nil {
		t.Fatalf("new accumulator: %v", err)
	}

	updated, err := acc.Accumulate(ctx, "anchor-1", domain.SessionMetrics{
		Interactions: 50,
		SuccessRate:  0.4,
	})
	if err != nil {
		t.Fatalf("accumulate after conflicts: %v", err)
	}
	if updated.TotalInteractions != 150 {
		t.Errorf("total interactions = %d, want 150", updated.TotalInteractions)
	}
}

func TestAccumulateGivesUpAfterRepeatedConflicts(t *testing.T) {
	store := openTestStore(t)
	seedProfile(t, store, "anchor-1", 0, 0)

	wrapped := &conflictingStore{DNAStore: store, LedgerStore: store, conflicts: maxRetries + 5}
	acc, err := NewAccumulator(wrapped, wrapped, nil)
	if err != nil {
		t.Fatalf("new accumulator: %v", err)
	}

	_, err = acc.Accumulate(context.Background(), "anchor-1", domain.SessionMetrics{Interactions: 1})
	if !apperrors.IsCode(err, apperrors.CodeDNAVersionConflict) {
		t.Fatalf("err = %v, want CodeDNAVersionConflict", err)
	}
}

func TestNewInteractionsSinceTrustEval(t *testing.T) {
	profile := domain.DNAProfile{TotalInteractions: 42, InteractionsAtLastTrustEval: 30}
	if got := NewInteractionsSinceTrustEval(profile); got != 12 {
		t.Errorf("new interactions = %d, want 12", got)
	}
}
