package maintenance

import (
	"context"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	"github.com/halcyonworks/anchorage/internal/ledger"
)

// anchorReader is the read surface the maintenance checks need.
type anchorReader interface {
	ListAnchorIDs(ctx context.Context) ([]string, error)
	GetAnchor(ctx context.Context, anchorID string) (domain.Anchor, error)
	ListEntries(ctx context.Context, anchorID string) ([]ledger.Entry, error)
}

// closableStore extends anchorReader with a Close method for resource cleanup.
type closableStore interface {
	anchorReader
	Close() error
}
