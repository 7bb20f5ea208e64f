package ledger

import (
	"fmt"

	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
)

// Verify replays an anchor's entries in insertion order and checks the hash
// chain end-to-end.
//
// Violations are fatal and never auto-repaired: the first broken link is
// reported as a LEDGER_CHAIN_BROKEN error with the offending sequence number
// in its metadata.
func Verify(entries []Entry) error {
	prevHash := GenesisHash
	for i, e := range entries {
		if e.PrevHash != prevHash {
			return apperrors.WithMetadata(
				apperrors.CodeLedgerChainBroken,
				fmt.Sprintf("entry %d prev hash mismatch: stored %q, expected %q", e.Seq, e.PrevHash, prevHash),
				map[string]string{
					"anchor_id": e.AnchorID,
					"seq":       fmt.Sprintf("%d", e.Seq),
				},
			)
		}
		recomputed, err := EntryHash(e)
		if err != nil {
			return apperrors.Wrap(
				apperrors.CodeLedgerChainBroken,
				fmt.Sprintf("recompute hash for entry %d", e.Seq),
				err,
			)
		}
		if recomputed != e.Hash {
			return apperrors.WithMetadata(
				apperrors.CodeLedgerChainBroken,
				fmt.Sprintf("entry %d hash mismatch: stored %q, recomputed %q", e.Seq, e.Hash, recomputed),
				map[string]string{
					"anchor_id": e.AnchorID,
					"seq":       fmt.Sprintf("%d", e.Seq),
				},
			)
		}
		if i > 0 && entries[i-1].AnchorID != e.AnchorID {
			return apperrors.New(
				apperrors.CodeLedgerChainBroken,
				"entries span multiple anchors",
			)
		}
		prevHash = e.Hash
	}
	return nil
}
