package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/storage"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT ||
			code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// PutBinding inserts an open binding. The partial unique index on open
// bindings enforces at most one open binding per session id.
func (s *Store) PutBinding(ctx context.Context, binding domain.SessionBinding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(binding.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(binding.AnchorID) == "" {
		return fmt.Errorf("anchor id is required")
	}
	if binding.BoundAt.IsZero() {
		return fmt.Errorf("bound at is required")
	}

	var unboundAt any
	if binding.UnboundAt != nil {
		unboundAt = toMillis(*binding.UnboundAt)
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO session_bindings (
	session_id, anchor_id, platform, bound_at, unbound_at,
	interactions, decisions, unbind_reason
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		binding.SessionID,
		binding.AnchorID,
		binding.Platform,
		toMillis(binding.BoundAt),
		unboundAt,
		binding.Interactions,
		binding.Decisions,
		binding.UnbindReason,
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrOpenBindingExists
		}
		return fmt.Errorf("put binding: %w", err)
	}
	return nil
}

// GetOpenBinding returns the open binding for a session.
func (s *Store) GetOpenBinding(ctx context.Context, sessionID string) (domain.SessionBinding, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionBinding{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.SessionBinding{}, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.SessionBinding{}, fmt.Errorf("session id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT session_id, anchor_id, platform, bound_at, unbound_at,
	interactions, decisions, unbind_reason
FROM session_bindings WHERE session_id = ? AND unbound_at IS NULL
`, sessionID)

	var (
		binding   domain.SessionBinding
		boundAt   int64
		unboundAt sql.NullInt64
	)
	err := row.Scan(
		&binding.SessionID,
		&binding.AnchorID,
		&binding.Platform,
		&boundAt,
		&unboundAt,
		&binding.Interactions,
		&binding.Decisions,
		&binding.UnbindReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SessionBinding{}, storage.ErrNotFound
		}
		return domain.SessionBinding{}, fmt.Errorf("scan binding: %w", err)
	}

	binding.BoundAt = fromMillis(boundAt)
	if unboundAt.Valid {
		value := fromMillis(unboundAt.Int64)
		binding.UnboundAt = &value
	}
	return binding, nil
}

// CloseBinding closes the open binding for the record's session, writing the
// unbind time, reason and final counters.
func (s *Store) CloseBinding(ctx context.Context, binding domain.SessionBinding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(binding.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if binding.UnboundAt == nil {
		return fmt.Errorf("unbound at is required to close a binding")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE session_bindings SET
	unbound_at = ?,
	interactions = ?,
	decisions = ?,
	unbind_reason = ?
WHERE session_id = ? AND unbound_at IS NULL
`,
		toMillis(*binding.UnboundAt),
		binding.Interactions,
		binding.Decisions,
		binding.UnbindReason,
		binding.SessionID,
	)
	if err != nil {
		return fmt.Errorf("close binding: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close binding rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
