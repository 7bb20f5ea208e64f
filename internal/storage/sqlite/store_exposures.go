package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
)

// PutExposure inserts an exposure record. Records are append-only.
func (s *Store) PutExposure(ctx context.Context, record domain.ExposureRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("exposure id is required")
	}
	if strings.TrimSpace(record.AnchorID) == "" {
		return fmt.Errorf("anchor id is required")
	}
	if strings.TrimSpace(record.Source) == "" {
		return fmt.Errorf("exposure source is required")
	}
	if record.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO exposure_records (
	id, anchor_id, source, category, interaction_type,
	sentiment, compliance, session_id, ts
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.AnchorID,
		record.Source,
		record.Category,
		record.InteractionType,
		record.Sentiment,
		record.Compliance,
		record.SessionID,
		toMillis(record.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("put exposure: %w", err)
	}
	return nil
}

// ListExposures returns an anchor's exposure records in chronological order.
func (s *Store) ListExposures(ctx context.Context, anchorID string) ([]domain.ExposureRecord, error) {
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
SELECT id, anchor_id, source, category, interaction_type,
	sentiment, compliance, session_id, ts
FROM exposure_records WHERE anchor_id = ? ORDER BY ts, id
`, anchorID)
	if err != nil {
		return nil, fmt.Errorf("list exposures: %w", err)
	}
	defer rows.Close()

	var records []domain.ExposureRecord
	for rows.Next() {
		var (
			record domain.ExposureRecord
			ts     int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.AnchorID,
			&record.Source,
			&record.Category,
			&record.InteractionType,
			&record.Sentiment,
			&record.Compliance,
			&record.SessionID,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("scan exposure: %w", err)
		}
		record.Timestamp = fromMillis(ts)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exposures: %w", err)
	}
	return records, nil
}
