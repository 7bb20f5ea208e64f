package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
)

// PutBehavioralEvent inserts a behavioral audit snapshot.
func (s *Store) PutBehavioralEvent(ctx context.Context, event domain.BehavioralEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(event.AnchorID) == "" {
		return fmt.Errorf("anchor id is required")
	}
	if strings.TrimSpace(string(event.Kind)) == "" {
		return fmt.Errorf("event kind is required")
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	factors := event.Factors
	if factors == nil {
		factors = []string{}
	}
	factorsJSON, err := encodeJSON(factors)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO behavioral_events (
	id, anchor_id, kind, subject, previous_state, new_state,
	factors, severity, ts
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		event.ID,
		event.AnchorID,
		string(event.Kind),
		event.Subject,
		event.PreviousState,
		event.NewState,
		factorsJSON,
		event.Severity,
		toMillis(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("put behavioral event: %w", err)
	}
	return nil
}

// ListBehavioralEvents returns an anchor's behavioral events in
// chronological order.
func (s *Store) ListBehavioralEvents(ctx context.Context, anchorID string) ([]domain.BehavioralEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return nil, fmt.Errorf("anchor id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, anchor_id, kind, subject, previous_state, new_state,
	factors, severity, ts
FROM behavioral_events WHERE anchor_id = ? ORDER BY ts, id
`, anchorID)
	if err != nil {
		return nil, fmt.Errorf("list behavioral events: %w", err)
	}
	defer rows.Close()

	var events []domain.BehavioralEvent
	for rows.Next() {
		var (
			event   domain.BehavioralEvent
			kind    string
			factors string
			ts      int64
		)
		if err := rows.Scan(
			&event.ID,
			&event.AnchorID,
			&kind,
			&event.Subject,
			&event.PreviousState,
			&event.NewState,
			&factors,
			&event.Severity,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("scan behavioral event: %w", err)
		}
		event.Kind = domain.BehavioralEventKind(kind)
		if err := decodeJSON(factors, &event.Factors); err != nil {
			return nil, err
		}
		event.Timestamp = fromMillis(ts)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate behavioral events: %w", err)
	}
	return events, nil
}

// PutTrustEvolution inserts a trust evolution audit record.
func (s *Store) PutTrustEvolution(ctx context.Context, record domain.TrustEvolutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("record id is required")
	}
	if strings.TrimSpace(record.AnchorID) == "" {
		return fmt.Errorf("anchor id is required")
	}
	if record.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	factors := record.Factors
	if factors == nil {
		factors = []domain.TrustFactor{}
	}
	factorsJSON, err := encodeJSON(factors)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO trust_evolution_records (
	id, anchor_id, previous_score, new_score, previous_level, new_level,
	factors, ts
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.AnchorID,
		record.PreviousScore,
		record.NewScore,
		record.PreviousLevel,
		record.NewLevel,
		factorsJSON,
		toMillis(record.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("put trust evolution: %w", err)
	}
	return nil
}

// ListTrustEvolutions returns an anchor's trust evolution records in
// chronological order.
func (s *Store) ListTrustEvolutions(ctx context.Context, anchorID string) ([]domain.TrustEvolutionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return nil, fmt.Errorf("anchor id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, anchor_id, previous_score, new_score, previous_level, new_level,
	factors, ts
FROM trust_evolution_records WHERE anchor_id = ? ORDER BY ts, id
`, anchorID)
	if err != nil {
		return nil, fmt.Errorf("list trust evolutions: %w", err)
	}
	defer rows.Close()

	var records []domain.TrustEvolutionRecord
	for rows.Next() {
		var (
			record  domain.TrustEvolutionRecord
			factors string
			ts      int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.AnchorID,
			&record.PreviousScore,
			&record.NewScore,
			&record.PreviousLevel,
			&record.NewLevel,
			&factors,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("scan trust evolution: %w", err)
		}
		if err := decodeJSON(factors, &record.Factors); err != nil {
			return nil, err
		}
		record.Timestamp = fromMillis(ts)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trust evolutions: %w", err)
	}
	return records, nil
}
