package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/storage"
)

func validateDNAProfile(profile domain.DNAProfile) error {
	if strings.TrimSpace(profile.AnchorID) == "" {
		return fmt.Errorf("anchor id is required")
	}
	if profile.FirstUpdatedAt.IsZero() {
		return fmt.Errorf("first updated at is required")
	}
	if profile.LastUpdatedAt.IsZero() {
		return fmt.Errorf("last updated at is required")
	}
	return nil
}

type dnaJSONColumns struct {
	competencies string
	domains      string
	traits       string
	influences   string
	activeFlags  string
}

func encodeDNAColumns(profile domain.DNAProfile) (dnaJSONColumns, error) {
	competencies := profile.Competencies
	if competencies == nil {
		competencies = map[string]domain.Competency{}
	}
	traits := profile.Traits
	if traits == nil {
		traits = map[domain.Trait]float64{}
	}
	influences := profile.Influences
	if influences == nil {
		influences = map[string]domain.Influence{}
	}
	expertiseDomains := profile.ExpertiseDomains
	if expertiseDomains == nil {
		expertiseDomains = []string{}
	}
	activeFlags := profile.ActiveRedFlags
	if activeFlags == nil {
		activeFlags = []string{}
	}

	var cols dnaJSONColumns
	var err error
	if cols.competencies, err = encodeJSON(competencies); err != nil {
		return dnaJSONColumns{}, err
	}
	if cols.domains, err = encodeJSON(expertiseDomains); err != nil {
		return dnaJSONColumns{}, err
	}
	if cols.traits, err = encodeJSON(traits); err != nil {
		return dnaJSONColumns{}, err
	}
	if cols.influences, err = encodeJSON(influences); err != nil {
		return dnaJSONColumns{}, err
	}
	if cols.activeFlags, err = encodeJSON(activeFlags); err != nil {
		return dnaJSONColumns{}, err
	}
	return cols, nil
}

// insertDNAProfile runs the profile insert against a plain connection or an
// open transaction.
func insertDNAProfile(ctx context.Context, db execer, profile domain.DNAProfile) error {
	if err := validateDNAProfile(profile); err != nil {
		return err
	}
	cols, err := encodeDNAColumns(profile)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
INSERT INTO dna_profiles (
	anchor_id, total_interactions, total_decisions, success_rate, risk_score,
	anomaly_count, competencies, expertise_domains, traits, influences,
	trend_direction, trend_confidence, red_flag_count, active_red_flags,
	interactions_at_last_trust_eval, first_updated_at, last_updated_at, version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		profile.AnchorID,
		profile.TotalInteractions,
		profile.TotalDecisions,
		profile.SuccessRate,
		profile.RiskScore,
		profile.AnomalyCount,
		cols.competencies,
		cols.domains,
		cols.traits,
		cols.influences,
		string(profile.TrendDirection),
		profile.TrendConfidence,
		profile.RedFlagCount,
		cols.activeFlags,
		profile.InteractionsAtLastTrustEval,
		toMillis(profile.FirstUpdatedAt),
		toMillis(profile.LastUpdatedAt),
		profile.Version,
	)
	if err != nil {
		return fmt.Errorf("put dna profile: %w", err)
	}
	return nil
}

// PutDNAProfile inserts the profile row created alongside a new anchor.
func (s *Store) PutDNAProfile(ctx context.Context, profile domain.DNAProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return insertDNAProfile(ctx, s.sqlDB, profile)
}

// UpdateDNAProfile applies a compare-and-swap update keyed on the record's
// Version, incrementing the stored version on success.
func (s *Store) UpdateDNAProfile(ctx context.Context, profile domain.DNAProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := validateDNAProfile(profile); err != nil {
		return err
	}

	cols, err := encodeDNAColumns(profile)
	if err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE dna_profiles SET
	total_interactions = ?,
	total_decisions = ?,
	success_rate = ?,
	risk_score = ?,
	anomaly_count = ?,
	competencies = ?,
	expertise_domains = ?,
	traits = ?,
	influences = ?,
	trend_direction = ?,
	trend_confidence = ?,
	red_flag_count = ?,
	active_red_flags = ?,
	interactions_at_last_trust_eval = ?,
	last_updated_at = ?,
	version = version + 1
WHERE anchor_id = ? AND version = ?
`,
		profile.TotalInteractions,
		profile.TotalDecisions,
		profile.SuccessRate,
		profile.RiskScore,
		profile.AnomalyCount,
		cols.competencies,
		cols.domains,
		cols.traits,
		cols.influences,
		string(profile.TrendDirection),
		profile.TrendConfidence,
		profile.RedFlagCount,
		cols.activeFlags,
		profile.InteractionsAtLastTrustEval,
		toMillis(profile.LastUpdatedAt),
		profile.AnchorID,
		profile.Version,
	)
	if err != nil {
		return fmt.Errorf("update dna profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update dna profile rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a stale version from a missing row.
		if _, getErr := s.GetDNAProfile(ctx, profile.AnchorID); getErr != nil {
			return getErr
		}
		return storage.ErrVersionConflict
	}
	return nil
}

// GetDNAProfile returns the profile for an anchor.
func (s *Store) GetDNAProfile(ctx context.Context, anchorID string) (domain.DNAProfile, error) {
	if err := ctx.Err(); err != nil {
		return domain.DNAProfile{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.DNAProfile{}, fmt.Errorf("storage is not configured")
	}
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return domain.DNAProfile{}, fmt.Errorf("anchor id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT anchor_id, total_interactions, total_decisions, success_rate, risk_score,
	anomaly_count, competencies, expertise_domains, traits, influences,
	trend_direction, trend_confidence, red_flag_count, active_red_flags,
	interactions_at_last_trust_eval, first_updated_at, last_updated_at, version
FROM dna_profiles WHERE anchor_id = ?
`, anchorID)

	var (
		profile        domain.DNAProfile
		competencies   string
		domains        string
		traits         string
		influences     string
		activeFlags    string
		trendDirection string
		firstUpdatedAt int64
		lastUpdatedAt  int64
	)
	err := row.Scan(
		&profile.AnchorID,
		&profile.TotalInteractions,
		&profile.TotalDecisions,
		&profile.SuccessRate,
		&profile.RiskScore,
		&profile.AnomalyCount,
		&competencies,
		&domains,
		&traits,
		&influences,
		&trendDirection,
		&profile.TrendConfidence,
		&profile.RedFlagCount,
		&activeFlags,
		&profile.InteractionsAtLastTrustEval,
		&firstUpdatedAt,
		&lastUpdatedAt,
		&profile.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DNAProfile{}, storage.ErrNotFound
		}
		return domain.DNAProfile{}, fmt.Errorf("scan dna profile: %w", err)
	}

	if err := decodeJSON(competencies, &profile.Competencies); err != nil {
		return domain.DNAProfile{}, err
	}
	if err := decodeJSON(domains, &profile.ExpertiseDomains); err != nil {
		return domain.DNAProfile{}, err
	}
	if err := decodeJSON(traits, &profile.Traits); err != nil {
		return domain.DNAProfile{}, err
	}
	if err := decodeJSON(influences, &profile.Influences); err != nil {
		return domain.DNAProfile{}, err
	}
	if err := decodeJSON(activeFlags, &profile.ActiveRedFlags); err != nil {
		return domain.DNAProfile{}, err
	}
	profile.TrendDirection = domain.Trend(trendDirection)
	profile.FirstUpdatedAt = fromMillis(firstUpdatedAt)
	profile.LastUpdatedAt = fromMillis(lastUpdatedAt)
	return profile, nil
}
