package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/halcyonworks/anchorage/internal/ledger"
	"github.com/halcyonworks/anchorage/internal/platform/id"
	"github.com/halcyonworks/anchorage/internal/storage"
	"github.com/halcyonworks/anchorage/internal/storage/cursor"
)

// AppendEntry atomically appends a ledger entry and returns it with sequence,
// previous hash and hash set.
//
// The append is linearized per anchor: sequence allocation, the previous-hash
// read and the insert happen in one transaction, so no fork can be created
// and no partial entry is ever visible.
func (s *Store) AppendEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return ledger.Entry{}, fmt.Errorf("storage is not configured")
	}
	if err := entry.Validate(); err != nil {
		return ledger.Entry{}, err
	}

	if strings.TrimSpace(entry.ID) == "" {
		entryID, err := id.NewID()
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("generate entry id: %w", err)
		}
		entry.ID = entryID
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Timestamp = entry.Timestamp.UTC().Truncate(time.Millisecond)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_seq (anchor_id, next_seq) VALUES (?, 1)`,
		entry.AnchorID,
	); err != nil {
		return ledger.Entry{}, fmt.Errorf("init ledger seq: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT next_seq FROM ledger_seq WHERE anchor_id = ?`,
		entry.AnchorID,
	).Scan(&seq); err != nil {
		return ledger.Entry{}, fmt.Errorf("get ledger seq: %w", err)
	}
	entry.Seq = uint64(seq)

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_seq SET next_seq = next_seq + 1 WHERE anchor_id = ?`,
		entry.AnchorID,
	); err != nil {
		return ledger.Entry{}, fmt.Errorf("increment ledger seq: %w", err)
	}

	prevHash := ledger.GenesisHash
	if entry.Seq > 1 {
		if err := tx.QueryRowContext(ctx,
			`SELECT entry_hash FROM ledger_entries WHERE anchor_id = ? AND seq = ?`,
			entry.AnchorID, seq-1,
		).Scan(&prevHash); err != nil {
			return ledger.Entry{}, fmt.Errorf("load previous entry: %w", err)
		}
	}
	entry.PrevHash = prevHash

	hash, err := ledger.EntryHash(entry)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("compute entry hash: %w", err)
	}
	entry.Hash = hash

	if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_entries (
	anchor_id, seq, entry_id, session_id, event_type, payload_json,
	entry_hash, prev_hash, ts
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		entry.AnchorID,
		int64(entry.Seq),
		entry.ID,
		entry.SessionID,
		string(entry.Type),
		entry.PayloadJSON,
		entry.Hash,
		entry.PrevHash,
		toMillis(entry.Timestamp),
	); err != nil {
		return ledger.Entry{}, fmt.Errorf("append entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ledger.Entry{}, fmt.Errorf("commit: %w", err)
	}

	return entry, nil
}

// ListEntries returns an anchor's full chain in insertion order.
func (s *Store) ListEntries(ctx context.Context, anchorID string) ([]ledger.Entry, error) {
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
SELECT anchor_id, seq, entry_id, session_id, event_type, payload_json,
	entry_hash, prev_hash, ts
FROM ledger_entries WHERE anchor_id = ? ORDER BY seq
`, anchorID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListEntriesPage returns a filtered page of an anchor's entries. The filter
// is an AIP-160 expression over session_id, event_type and ts.
func (s *Store) ListEntriesPage(ctx context.Context, anchorID string, pageSize int, pageToken, filter string) (storage.EntryPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.EntryPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EntryPage{}, fmt.Errorf("storage is not configured")
	}
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return storage.EntryPage{}, fmt.Errorf("anchor id is required")
	}
	if pageSize <= 0 {
		return storage.EntryPage{}, fmt.Errorf("page size must be greater than zero")
	}

	condition, err := ParseEntryFilter(filter)
	if err != nil {
		return storage.EntryPage{}, err
	}

	filterHash := cursor.HashFilter(filter)
	var afterSeq uint64
	pageToken = strings.TrimSpace(pageToken)
	if pageToken != "" {
		decoded, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.EntryPage{}, fmt.Errorf("invalid page token: %w", err)
		}
		if decoded.FilterHash != filterHash {
			return storage.EntryPage{}, fmt.Errorf("page token does not match filter")
		}
		afterSeq = decoded.Seq
	}

	whereParts := []string{"anchor_id = ?", "seq > ?"}
	args := []any{anchorID, int64(afterSeq)}
	if condition.Clause != "" {
		whereParts = append(whereParts, condition.Clause)
		args = append(args, condition.Params...)
	}
	args = append(args, pageSize+1)

	query := fmt.Sprintf(`
SELECT anchor_id, seq, entry_id, session_id, event_type, payload_json,
	entry_hash, prev_hash, ts
FROM ledger_entries WHERE %s ORDER BY seq LIMIT ?
`, strings.Join(whereParts, " AND "))

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.EntryPage{}, fmt.Errorf("list entries page: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return storage.EntryPage{}, err
	}

	page := storage.EntryPage{Entries: entries}
	if len(entries) > pageSize {
		page.Entries = entries[:pageSize]
		token, err := cursor.Encode(cursor.Cursor{
			Seq:        page.Entries[pageSize-1].Seq,
			FilterHash: filterHash,
		})
		if err != nil {
			return storage.EntryPage{}, fmt.Errorf("encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

func collectEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	for rows.Next() {
		var (
			entry     ledger.Entry
			seq       int64
			eventType string
			ts        int64
		)
		if err := rows.Scan(
			&entry.AnchorID,
			&seq,
			&entry.ID,
			&entry.SessionID,
			&eventType,
			&entry.PayloadJSON,
			&entry.Hash,
			&entry.PrevHash,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.Seq = uint64(seq)
		entry.Type = ledger.EventType(eventType)
		entry.Timestamp = fromMillis(ts)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
