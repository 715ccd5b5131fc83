package ledgersync

import (
	"context"

	"budsjett/internal/core"
)

// Writer appends committed ledger entries to an external export target.
type Writer interface {
	Append(ctx context.Context, e core.LedgerEntry) (rowRef string, err error)
}
