package behavior

import (
	"context"
	"math"
	"path/filepath"
	"testing"

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

func newTestEngine(t *testing.T, store *sqlite.Store, sources SourceProfiles) *Engine {
	t.Helper()
	engine, err := NewEngine(store, store, store, store, sources, nil, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func seedProfile(t *testing.T, store *sqlite.Store, profile domain.DNAProfile) {
	t.Helper()
	if err := store.PutDNAProfile(context.Background(), profile); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func TestAssessComputesTraitsInRange(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	profile := domain.NewDNAProfile("anchor-1", nil)
	profile.TotalInteractions = 40
	profile.TotalDecisions = 10
	profile.SuccessRate = 0.85
	profile.RiskScore = 0.2
	profile.AnomalyCount = 1
	profile.ExpertiseDomains = []string{"networking", "storage"}
	seedProfile(t, store, profile)

	engine := newTestEngine(t, store, nil)
	assessment, err := engine.Assess(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}

	if len(assessment.Traits) != len(domain.Traits) {
		t.Fatalf("traits = %d, want %d", len(assessment.Traits), len(domain.Traits))
	}
	for trait, score := range assessment.Traits {
		if score < 0 || score > 1 {
			t.Errorf("%s = %v out of [0, 1]", trait, score)
		}
	}
	wantConfidence := 0.4
	if math.Abs(assessment.TrendConfidence-wantConfidence) > 1e-9 {
		t.Errorf("confidence = %v, want %v", assessment.TrendConfidence, wantConfidence)
	}

	// The new trait state is persisted back to the profile.
	stored, err := store.GetDNAProfile(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if len(stored.Traits) != len(domain.Traits) {
		t.Errorf("stored traits = %d, want %d", len(stored.Traits), len(domain.Traits))
	}
}

func TestAssessVolatilityRisesWithAnomalies(t *testing.T) {
	calm := domain.NewDNAProfile("calm", nil)
	calm.TotalInteractions = 100
	calm.SuccessRate = 0.9

	rough := domain.NewDNAProfile("rough", nil)
	rough.TotalInteractions = 100
	rough.SuccessRate = 0.9
	rough.AnomalyCount = 10

	calmTraits := computeTraits(calm, nil, nil)
	roughTraits := computeTraits(rough, nil, nil)
	if roughTraits[domain.TraitVolatility] <= calmTraits[domain.TraitVolatility] {
		t.Errorf("volatility did not rise with anomalies: %v vs %v",
			roughTraits[domain.TraitVolatility], calmTraits[domain.TraitVolatility])
	}
	if roughTraits[domain.TraitResilience] >= calmTraits[domain.TraitResilience] {
		t.Errorf("resilience did not fall with anomalies")
	}
}

func TestComplianceBlendsSourceAlignment(t *testing.T) {
	profile := domain.NewDNAProfile("anchor-1", nil)
	profile.TotalInteractions = 50
	profile.SuccessRate = 0.5

	sources := SourceProfiles{
		"docs.example.com": {Stability: 1.0, Compliance: 0.9},
	}
	exposures := []domain.ExposureRecord{
		{Source: "docs.example.com", Compliance: 0.9},
	}

	withSources := computeTraits(profile, exposures, sources)
	withoutSources := computeTraits(profile, nil, sources)

	if withoutSources[domain.TraitCompliance] != 0.5 {
		t.Errorf("bare compliance = %v, want success rate 0.5", withoutSources[domain.TraitCompliance])
	}
	want := 0.6*0.5 + 0.4*0.9
	if math.Abs(withSources[domain.TraitCompliance]-want) > 1e-9 {
		t.Errorf("blended compliance = %v, want %v", withSources[domain.TraitCompliance], want)
	}
}

func TestAssessReportsTraitShiftAndJournals(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// A stored volatility far from the recomputed value forces a change.
	profile := domain.NewDNAProfile("anchor-1", nil)
	profile.TotalInteractions = 100
	profile.SuccessRate = 0.9
	profile.Traits[domain.TraitVolatility] = 0.9
	seedProfile(t, store, profile)

	engine := newTestEngine(t, store, nil)
	assessment, err := engine.Assess(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}

	var found bool
	for _, change := range assessment.Changes {
		if change.Trait == domain.TraitVolatility {
			found = true
			if change.Previous != 0.9 {
				t.Errorf("previous = %v, want 0.9", change.Previous)
			}
		}
	}
	if !found {
		t.Fatalf("expected volatility change, got %+v", assessment.Changes)
	}

	events, err := store.ListBehavioralEvents(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var shifts int
	for _, event := range events {
		if event.Kind == domain.BehavioralEventTraitShift {
			shifts++
		}
	}
	if shifts == 0 {
		t.Error("no trait shift events recorded")
	}

	entries, err := store.ListEntries(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	var journaled bool
	for _, entry := range entries {
		if entry.Type == ledger.TypeTraitShifted {
			journaled = true
		}
	}
	if !journaled {
		t.Error("no trait shift ledger entry")
	}
}

func TestAssessRaisesRedFlags(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Total failure with anomalies drives volatility past 0.7 and
	// compliance under 0.3.
	profile := domain.NewDNAProfile("anchor-1", nil)
	profile.TotalInteractions = 50
	profile.SuccessRate = 0.05
	profile.RiskScore = 0.9
	profile.AnomalyCount = 20
	seedProfile(t, store, profile)

	engine := newTestEngine(t, store, nil)
	assessment, err := engine.Assess(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}

	flags := make(map[string]RedFlag, len(assessment.RedFlags))
	for _, flag := range assessment.RedFlags {
		flags[flag.Flag] = flag
		if flag.Severity < 0 || flag.Severity > 10 {
			t.Errorf("%s severity = %v out of [0, 10]", flag.Flag, flag.Severity)
		}
	}
	if _, ok := flags["high_volatility"]; !ok {
		t.Errorf("missing high_volatility flag: %+v", assessment.RedFlags)
	}
	if _, ok := flags["low_compliance"]; !ok {
		t.Errorf("missing low_compliance flag: %+v", assessment.RedFlags)
	}

	stored, err := store.GetDNAProfile(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if stored.RedFlagCount != len(assessment.RedFlags) {
		t.Errorf("red flag count = %d, want %d", stored.RedFlagCount, len(assessment.RedFlags))
	}
}

func TestAssessDoesNotReRaisePersistingFlags(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	profile := domain.NewDNAProfile("anchor-1", nil)
	profile.TotalInteractions = 100
	profile.SuccessRate = 0.1
	profile.RiskScore = 0.9
	profile.AnomalyCount = 20
	seedProfile(t, store, profile)

	engine := newTestEngine(t, store, nil)
	first, err := engine.Assess(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("first assess: %v", err)
	}
	if len(first.RedFlags) == 0 {
		t.Fatal("first assessment raised no flags")
	}

	// Nothing changed between assessments, so the same conditions must not
	// raise again.
	second, err := engine.Assess(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("second assess: %v", err)
	}
	if len(second.RedFlags) != 0 {
		t.Errorf("second assessment re-raised %d flags: %+v", len(second.RedFlags), second.RedFlags)
	}

	stored, err := store.GetDNAProfile(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if stored.RedFlagCount != len(first.RedFlags) {
		t.Errorf("red flag count = %d, want %d", stored.RedFlagCount, len(first.RedFlags))
	}

	entries, err := store.ListEntries(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	var raised int
	for _, entry := range entries {
		if entry.Type == ledger.TypeRedFlagRaised {
			raised++
		}
	}
	if raised != len(first.RedFlags) {
		t.Errorf("red flag ledger entries = %d, want %d", raised, len(first.RedFlags))
	}

	events, err := store.ListBehavioralEvents(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var flagEvents int
	for _, event := range events {
		if event.Kind == domain.BehavioralEventRedFlag {
			flagEvents++
		}
	}
	if flagEvents != len(first.RedFlags) {
		t.Errorf("red flag events = %d, want %d", flagEvents, len(first.RedFlags))
	}
}

func TestAssessFlagsLowStabilitySourceExposure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	profile := domain.NewDNAProfile("anchor-1", nil)
	profile.TotalInteractions = 100
	profile.SuccessRate = 0.9
	profile.Influences["sketchy.example.com"] = domain.Influence{Interactions: 30, Impact: "negative"}
	seedProfile(t, store, profile)

	sources := SourceProfiles{
		"sketchy.example.com": {Stability: 0.2, Compliance: 0.3},
	}
	engine := newTestEngine(t, store, sources)
	assessment, err := engine.Assess(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}

	var found bool
	for _, flag := range assessment.RedFlags {
		if flag.Flag == "low_stability_source_exposure" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing low_stability_source_exposure flag: %+v", assessment.RedFlags)
	}
}

func TestAssessMissingProfile(t *testing.T) {
	store := openTestStore(t)
	engine := newTestEngine(t, store, nil)

	_, err := engine.Assess(context.Background(), "missing")
	if !apperrors.IsCode(err, apperrors.CodeDNAProfileNotFound) {
		t.Fatalf("err = %v, want CodeDNAProfileNotFound", err)
	}
}

func TestRecordExposureUpdatesInfluence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedProfile(t, store, domain.NewDNAProfile("anchor-1", nil))

	engine := newTestEngine(t, store, nil)
	record, err := engine.RecordExposure(ctx, domain.ExposureRecord{
		AnchorID:   "anchor-1",
		Source:     "docs.example.com",
		Category:   "documentation",
		Sentiment:  0.6,
		Compliance: 0.8,
	})
	if err != nil {
		t.Fatalf("record exposure: %v", err)
	}
	if record.ID == "" {
		t.Fatal("exposure id not assigned")
	}

	stored, err := store.GetDNAProfile(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	influence := stored.Influences["docs.example.com"]
	if influence.Interactions != 1 || influence.Impact != "positive" {
		t.Errorf("influence = %+v, want 1 positive", influence)
	}

	entries, err := store.ListEntries(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != ledger.TypeExposureRecorded {
		t.Fatalf("entries = %+v", entries)
	}

	exposures, err := store.ListExposures(ctx, "anchor-1")
	if err != nil {
		t.Fatalf("list exposures: %v", err)
	}
	if len(exposures) != 1 {
		t.Fatalf("len(exposures) = %d, want 1", len(exposures))
	}
}

func TestRecordExposureRejectsOutOfRange(t *testing.T) {
	store := openTestStore(t)
	engine := newTestEngine(t, store, nil)

	_, err := engine.RecordExposure(context.Background(), domain.ExposureRecord{
		AnchorID:  "anchor-1",
		Source:    "docs.example.com",
		Sentiment: 2,
	})
	if err == nil {
		t.Fatal("expected error for sentiment out of range")
	}
}

func TestClassifyTrend(t *testing.T) {
	base := map[domain.Trait]float64{
		domain.TraitVolatility:     0.5,
		domain.TraitCompliance:     0.5,
		domain.TraitCreativity:     0.5,
		domain.TraitMethodicalness: 0.5,
		domain.TraitResilience:     0.5,
		domain.TraitSelfCorrection: 0.5,
		domain.TraitFocus:          0.5,
		domain.TraitTrustAlignment: 0.5,
	}
	shift := func(deltas map[domain.Trait]float64) map[domain.Trait]float64 {
		next := make(map[domain.Trait]float64, len(base))
		for trait, score := range base {
			next[trait] = score + deltas[trait]
		}
		return next
	}

	tests := []struct {
		name   string
		deltas map[domain.Trait]float64
		want   domain.Trend
	}{
		{"no movement", nil, domain.TrendStable},
		{"one up is within margin", map[domain.Trait]float64{domain.TraitFocus: 0.1}, domain.TrendStable},
		{"two up improving", map[domain.Trait]float64{domain.TraitFocus: 0.1, domain.TraitCompliance: 0.1}, domain.TrendImproving},
		{"volatility drop is favorable", map[domain.Trait]float64{domain.TraitVolatility: -0.1, domain.TraitFocus: 0.1}, domain.TrendImproving},
		{"two down degrading", map[domain.Trait]float64{domain.TraitFocus: -0.1, domain.TraitCompliance: -0.1}, domain.TrendDegrading},
		{"volatility rise is unfavorable", map[domain.Trait]float64{domain.TraitVolatility: 0.1, domain.TraitFocus: -0.1}, domain.TrendDegrading},
		{"broad mixed movement is volatile", map[domain.Trait]float64{
			domain.TraitFocus:          0.1,
			domain.TraitCompliance:     0.1,
			domain.TraitCreativity:     0.1,
			domain.TraitMethodicalness: -0.1,
			domain.TraitResilience:     -0.1,
			domain.TraitSelfCorrection: -0.1,
		}, domain.TrendVolatile},
	}
	for _, tc := range tests {
		if got := classifyTrend(base, shift(tc.deltas)); got != tc.want {
			t.Errorf("%s: trend = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestTrendConfidenceSaturates(t *testing.T) {
	if got := trendConfidence(0); got != 0 {
		t.Errorf("confidence(0) = %v", got)
	}
	if got := trendConfidence(50); got != 0.5 {
		t.Errorf("confidence(50) = %v, want 0.5", got)
	}
	if got := trendConfidence(250); got != 1 {
		t.Errorf("confidence(250) = %v, want 1", got)
	}
}

func TestParseSourceProfiles(t *testing.T) {
	data := []byte(`
docs.example.com:
  stability: 0.9
  compliance: 0.85
sketchy.example.com:
  stability: 0.2
  compliance: 0.3
`)
	profiles, err := ParseSourceProfiles(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("len = %d, want 2", len(profiles))
	}
	if profiles["docs.example.com"].Stability != 0.9 {
		t.Errorf("stability = %v", profiles["docs.example.com"].Stability)
	}
	if got := profiles.Profile("unknown.example.com"); got.Stability != DefaultStability {
		t.Errorf("default profile = %+v", got)
	}

	if _, err := ParseSourceProfiles([]byte("bad:\n  stability: 1.5\n  compliance: 0.5\n")); err == nil {
		t.Fatal("expected error for out-of-range stability")
	}
}
