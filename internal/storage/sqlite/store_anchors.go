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

func validateAnchor(anchor domain.Anchor) error {
	if strings.TrimSpace(anchor.ID) == "" {
		return fmt.Errorf("anchor id is required")
	}
	if strings.TrimSpace(anchor.Hash) == "" {
		return fmt.Errorf("anchor hash is required")
	}
	if strings.TrimSpace(string(anchor.Status)) == "" {
		return fmt.Errorf("anchor status is required")
	}
	if anchor.CreatedAt.IsZero() {
		return fmt.Errorf("created at is required")
	}
	return nil
}

// insertAnchor runs the anchor insert against a plain connection or an open
// transaction.
func insertAnchor(ctx context.Context, db execer, anchor domain.Anchor) error {
	if err := validateAnchor(anchor); err != nil {
		return err
	}

	sessions, err := encodeJSON(activeSessionsOrEmpty(anchor.ActiveSessions))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
INSERT INTO identity_anchors (
	id, anchor_hash, trust_score, trust_level, status, active_sessions,
	total_sessions, last_activity_at, created_at, updated_at, version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		anchor.ID,
		anchor.Hash,
		anchor.TrustScore,
		anchor.TrustLevel,
		string(anchor.Status),
		sessions,
		anchor.TotalSessions,
		toMillis(anchor.LastActivityAt),
		toMillis(anchor.CreatedAt),
		toMillis(anchor.UpdatedAt),
		anchor.Version,
	)
	if err != nil {
		return fmt.Errorf("put anchor: %w", err)
	}
	return nil
}

// PutAnchor inserts a new anchor row.
func (s *Store) PutAnchor(ctx context.Context, anchor domain.Anchor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return insertAnchor(ctx, s.sqlDB, anchor)
}

// CreateAnchorWithProfile inserts the anchor row and its DNA profile row in a
// single transaction. A failure on either insert leaves neither row behind,
// so an anchor can never exist without its profile.
func (s *Store) CreateAnchorWithProfile(ctx context.Context, anchor domain.Anchor, profile domain.DNAProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if anchor.ID != profile.AnchorID {
		return fmt.Errorf("profile anchor id %q does not match anchor id %q", profile.AnchorID, anchor.ID)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create anchor tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertAnchor(ctx, tx, anchor); err != nil {
		return err
	}
	if err := insertDNAProfile(ctx, tx, profile); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create anchor tx: %w", err)
	}
	return nil
}

// UpdateAnchor applies a compare-and-swap update keyed on the record's
// Version. The stored version is incremented on success; the caller's copy
// is stale afterwards and must be re-read before another update.
func (s *Store) UpdateAnchor(ctx context.Context, anchor domain.Anchor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := validateAnchor(anchor); err != nil {
		return err
	}

	sessions, err := encodeJSON(activeSessionsOrEmpty(anchor.ActiveSessions))
	if err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE identity_anchors SET
	anchor_hash = ?,
	trust_score = ?,
	trust_level = ?,
	status = ?,
	active_sessions = ?,
	total_sessions = ?,
	last_activity_at = ?,
	updated_at = ?,
	version = version + 1
WHERE id = ? AND version = ?
`,
		anchor.Hash,
		anchor.TrustScore,
		anchor.TrustLevel,
		string(anchor.Status),
		sessions,
		anchor.TotalSessions,
		toMillis(anchor.LastActivityAt),
		toMillis(anchor.UpdatedAt),
		anchor.ID,
		anchor.Version,
	)
	if err != nil {
		return fmt.Errorf("update anchor: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update anchor rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a stale version from a missing row.
		if _, getErr := s.GetAnchor(ctx, anchor.ID); getErr != nil {
			return getErr
		}
		return storage.ErrVersionConflict
	}
	return nil
}

// GetAnchor returns an anchor by global id.
func (s *Store) GetAnchor(ctx context.Context, anchorID string) (domain.Anchor, error) {
	if err := ctx.Err(); err != nil {
		return domain.Anchor{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Anchor{}, fmt.Errorf("storage is not configured")
	}
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return domain.Anchor{}, fmt.Errorf("anchor id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, anchor_hash, trust_score, trust_level, status, active_sessions,
	total_sessions, last_activity_at, created_at, updated_at, version
FROM identity_anchors WHERE id = ?
`, anchorID)
	return scanAnchorRow(row)
}

// GetAnchorByHash returns the non-retired anchor with the given anchor hash.
func (s *Store) GetAnchorByHash(ctx context.Context, anchorHash string) (domain.Anchor, error) {
	if err := ctx.Err(); err != nil {
		return domain.Anchor{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Anchor{}, fmt.Errorf("storage is not configured")
	}
	anchorHash = strings.TrimSpace(anchorHash)
	if anchorHash == "" {
		return domain.Anchor{}, fmt.Errorf("anchor hash is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, anchor_hash, trust_score, trust_level, status, active_sessions,
	total_sessions, last_activity_at, created_at, updated_at, version
FROM identity_anchors WHERE anchor_hash = ? AND status != 'retired'
`, anchorHash)
	return scanAnchorRow(row)
}

// ListAnchorIDs returns every anchor id, retired included.
func (s *Store) ListAnchorIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id FROM identity_anchors ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list anchor ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var anchorID string
		if err := rows.Scan(&anchorID); err != nil {
			return nil, fmt.Errorf("scan anchor id: %w", err)
		}
		ids = append(ids, anchorID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anchor ids: %w", err)
	}
	return ids, nil
}

func activeSessionsOrEmpty(sessions []string) []string {
	if sessions == nil {
		return []string{}
	}
	return sessions
}

func scanAnchorRow(row *sql.Row) (domain.Anchor, error) {
	var (
		anchor         domain.Anchor
		status         string
		sessionsRaw    string
		lastActivityAt int64
		createdAt      int64
		updatedAt      int64
	)
	err := row.Scan(
		&anchor.ID,
		&anchor.Hash,
		&anchor.TrustScore,
		&anchor.TrustLevel,
		&status,
		&sessionsRaw,
		&anchor.TotalSessions,
		&lastActivityAt,
		&createdAt,
		&updatedAt,
		&anchor.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Anchor{}, storage.ErrNotFound
		}
		return domain.Anchor{}, fmt.Errorf("scan anchor: %w", err)
	}

	anchor.Status = domain.Status(status)
	if err := decodeJSON(sessionsRaw, &anchor.ActiveSessions); err != nil {
		return domain.Anchor{}, err
	}
	anchor.LastActivityAt = fromMillis(lastActivityAt)
	anchor.CreatedAt = fromMillis(createdAt)
	anchor.UpdatedAt = fromMillis(updatedAt)
	return anchor, nil
}
