package trust

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/ledger"
	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
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

func seedAnchor(t *testing.T, store *sqlite.Store, anchorID string, now time.Time) {
	t.Helper()
	anchor, err := domain.NewAnchor(anchorID, "hash-"+anchorID, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new anchor: %v", err)
	}
	if err := store.PutAnchor(context.Background(), anchor); err != nil {
		t.Fatalf("put anchor: %v", err)
	}
}

func newTestEvolver(t *testing.T, store *sqlite.Store, now time.Time) *Evolver {
	t.Helper()
	evolver, err := NewEvolver(store, store, store, store, func() time.Time { return now }, nil)
	if err != nil {
		t.Fatalf("new evolver: %v", err)
	}
	return evolver
}

func TestMaybeEvolveGateBlocksThinEvidence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	seedAnchor(t, store, "anchor-1", now)

	profile := domain.NewDNAProfile("anchor-1", func() time.Time { return now })
	profile.TotalInteractions = 9
	profile.SuccessRate = 0.9
	if err := store.PutDNAProfile(ctx, profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}

	evolver := newTestEvolver(t, store, now)
	outcome, err := evolver.MaybeEvolve(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("maybe evolve: %v", err)
	}
	if outcome.Evolved || outcome.Reason != ReasonInsufficientEvidence {
		t.Fatalf("outcome = %+v, want insufficient evidence no-op", outcome)
	}
	if outcome.Score != domain.DefaultTrustScore || outcome.Level != domain.DefaultTrustLevel {
		t.Errorf("outcome kept score %v level %d", outcome.Score, outcome.Level)
	}
}

func TestMaybeEvolveProducesRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	seedAnchor(t, store, "anchor-1", now)

	// Fresh anchor commits 12 interactions with 9 successes.
	profile := domain.NewDNAProfile("anchor-1", func() time.Time { return now })
	profile.TotalInteractions = 12
	profile.SuccessRate = 0.75
	if err := store.PutDNAProfile(ctx, profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}

	evolver := newTestEvolver(t, store, now)
	outcome, err := evolver.MaybeEvolve(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("maybe evolve: %v", err)
	}
	if !outcome.Evolved || outcome.Record == nil {
		t.Fatalf("outcome = %+v, want evolved with record", outcome)
	}
	if outcome.Record.PreviousScore != domain.DefaultTrustScore {
		t.Errorf("previous score = %v, want %v", outcome.Record.PreviousScore, domain.DefaultTrustScore)
	}
	if outcome.Record.NewScore == outcome.Record.PreviousScore {
		t.Error("new score equals previous score")
	}
	if len(outcome.Record.Factors) != 5 {
		t.Errorf("factors = %d, want 5", len(outcome.Record.Factors))
	}
	var weightSum float64
	for _, factor := range outcome.Record.Factors {
		weightSum += factor.Weight
	}
	if math.Abs(weightSum-1) > 1e-9 {
		t.Errorf("weights sum to %v, want 1", weightSum)
	}

	// Anchor, audit record and ledger entry all reflect the change.
	anchor, err := store.GetAnchor(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("get anchor: %v", err)
	}
	if anchor.TrustScore != outcome.Score || anchor.TrustLevel != outcome.Level {
		t.Errorf("anchor trust = %v/%d, want %v/%d", anchor.TrustScore, anchor.TrustLevel, outcome.Score, outcome.Level)
	}

	records, err := store.ListTrustEvolutions(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list trust evolutions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}

	entries, err := store.ListEntries(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != ledger.TypeAnchorTrustChanged {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestMaybeEvolveSecondCallIsNoOp(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	seedAnchor(t, store, "anchor-1", now)

	profile := domain.NewDNAProfile("anchor-1", func() time.Time { return now })
	profile.TotalInteractions = 12
	profile.SuccessRate = 0.75
	if err := store.PutDNAProfile(ctx, profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}

	evolver := newTestEvolver(t, store, now)
	first, err := evolver.MaybeEvolve(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("first evolve: %v", err)
	}
	if !first.Evolved {
		t.Fatalf("first outcome = %+v, want evolved", first)
	}

	// No new interactions accumulated since the first evaluation.
	second, err := evolver.MaybeEvolve(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("second evolve: %v", err)
	}
	if second.Evolved || second.Reason != ReasonInsufficientEvidence {
		t.Fatalf("second outcome = %+v, want no-op", second)
	}

	records, err := store.ListTrustEvolutions(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list trust evolutions: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

func TestMaybeEvolveChurnSuppression(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	seedAnchor(t, store, "anchor-1", now)

	// A large base keeps the log-scaled experience sub-score nearly flat
	// when a few more interactions arrive.
	profile := domain.NewDNAProfile("anchor-1", func() time.Time { return now })
	profile.TotalInteractions = 500
	profile.SuccessRate = 0.75
	if err := store.PutDNAProfile(ctx, profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}

	evolver := newTestEvolver(t, store, now)
	first, err := evolver.MaybeEvolve(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("first evolve: %v", err)
	}
	if !first.Evolved {
		t.Fatalf("first outcome = %+v, want evolved", first)
	}

	// Same aggregates plus just enough interactions to pass the gate: the
	// recomputed score barely moves, so nothing persists.
	stored, err := store.GetDNAProfile(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	stored.TotalInteractions += MinNewInteractions
	if err := store.UpdateDNAProfile(ctx, stored); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	second, err := evolver.MaybeEvolve(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("second evolve: %v", err)
	}
	if second.Evolved || second.Reason != ReasonBelowChurnThreshold {
		t.Fatalf("second outcome = %+v, want churn suppression", second)
	}

	records, err := store.ListTrustEvolutions(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list trust evolutions: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

func TestMaybeEvolveMissingRecords(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	evolver := newTestEvolver(t, store, now)
	_, err := evolver.MaybeEvolve(ctx, "missing")
	if !apperrors.IsCode(err, apperrors.CodeDNAProfileNotFound) {
		t.Fatalf("err = %v, want CodeDNAProfileNotFound", err)
	}

	// Profile without an anchor row is an anchor-not-found failure.
	profile := domain.NewDNAProfile("orphan", func() time.Time { return now })
	if err := store.PutDNAProfile(ctx, profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}
	_, err = evolver.MaybeEvolve(ctx, "orphan")
	if !apperrors.IsCode(err, apperrors.CodeAnchorNotFound) {
		t.Fatalf("err = %v, want CodeAnchorNotFound", err)
	}
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  int
	}{
		{95, LevelExemplary},
		{90, LevelExemplary},
		{89.9, LevelEstablished},
		{75, LevelEstablished},
		{50, LevelStandard},
		{49.9, LevelProbationary},
		{25, LevelProbationary},
		{10, LevelLimited},
		{9.9, LevelRestricted},
		{0, LevelRestricted},
	}
	for _, tc := range tests {
		if got := levelForScore(tc.score); got != tc.want {
			t.Errorf("levelForScore(%v) = %d, want %d", tc.score, got, tc.want)
		}
	}
}

func TestLevelName(t *testing.T) {
	if LevelName(LevelExemplary) != "exemplary" {
		t.Errorf("LevelName(5) = %q", LevelName(LevelExemplary))
	}
	if LevelName(-1) != "restricted" {
		t.Errorf("LevelName(-1) = %q", LevelName(-1))
	}
}

func TestComputeScoreRecencyDecay(t *testing.T) {
	now := time.Now().UTC()
	profile := domain.DNAProfile{TotalInteractions: 100, SuccessRate: 0.8}

	freshScore, _ := computeScore(profile, now, now)
	staleScore, factors := computeScore(profile, now.Add(-60*24*time.Hour), now)
	if staleScore >= freshScore {
		t.Errorf("stale score %v not below fresh score %v", staleScore, freshScore)
	}

	var recency float64
	for _, factor := range factors {
		if factor.Name == "recency" {
			recency = factor.Value
		}
	}
	// Two half-lives of inactivity.
	if math.Abs(recency-0.25) > 1e-6 {
		t.Errorf("recency = %v, want 0.25", recency)
	}
}
