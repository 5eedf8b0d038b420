package mirror

import (
	"context"
	"time"

	"conti/internal/core"
)

// Entry is one statement row appended to the mirror for every committed
// ledger mutation. Deleted transactions produce a tombstone entry; the row
// history is append-only on the mirror side.
type Entry struct {
	When         time.Time
	Kind         string
	AccountID    int64
	AccountName  string
	Type         core.TxType
	AmountCents  int64
	Date         string
	Note         string
	BalanceCents int64
}

// StatementWriter is the outbound port for the statement mirror.
type StatementWriter interface {
	AppendEntry(ctx context.Context, e Entry) (rowRef string, err error)
}
