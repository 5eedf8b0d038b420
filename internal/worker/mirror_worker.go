package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/mirror"
	"conti/internal/storage"
)

// MirrorWorker appends a statement row to the backup mirror for every journal
// event. Added and updated transactions are re-read from SQLite so the mirror
// always reflects committed state; deletions are mirrored from the event
// alone since the row is already gone.
type MirrorWorker struct {
	storage   *storage.SQLiteRepository
	writer    mirror.StatementWriter
	batchSize int
}

func NewMirrorWorker(storage *storage.SQLiteRepository, writer mirror.StatementWriter, batchSize int) *MirrorWorker {
	return &MirrorWorker{
		storage:   storage,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleJournalEvent processes a single journal event from AMQP.
func (w *MirrorWorker) HandleJournalEvent(ctx context.Context, msg *amqp.JournalEventMessage) error {
	slog.InfoContext(ctx, "Processing journal event",
		"kind", msg.Kind,
		"transaction_id", msg.TransactionID,
		"account_id", msg.AccountID)

	switch msg.Kind {
	case amqp.KindTransactionAdded, amqp.KindTransactionUpdated:
		return w.mirrorTransaction(ctx, msg.Kind, msg.TransactionID)
	case amqp.KindTransactionDeleted, amqp.KindAccountDeleted:
		return w.mirrorTombstone(ctx, msg)
	default:
		slog.WarnContext(ctx, "Unknown journal event kind, dropping", "kind", msg.Kind)
		return nil
	}
}

func (w *MirrorWorker) mirrorTransaction(ctx context.Context, kind string, id int64) error {
	t, err := w.storage.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrTransactionNotFound) {
			// Deleted between publish and consume; the delete event will cover it.
			slog.WarnContext(ctx, "Transaction gone before mirroring, skipping", "id", id)
			return nil
		}
		return fmt.Errorf("get transaction: %w", err)
	}

	acct, err := w.storage.GetAccount(ctx, t.AccountID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	ref, err := w.writer.AppendEntry(ctx, mirror.Entry{
		When:         time.Now(),
		Kind:         kind,
		AccountID:    acct.ID,
		AccountName:  acct.Name,
		Type:         t.Type,
		AmountCents:  t.AmountCents,
		Date:         t.Date.String(),
		Note:         t.Note,
		BalanceCents: acct.BalanceCents,
	})
	if err != nil {
		return fmt.Errorf("append statement entry: %w", err)
	}

	if err := w.storage.MarkMirrored(ctx, t.ID); err != nil {
		// The entry is on the mirror; worst case the catch-up pass appends a
		// duplicate row, which the statement format tolerates.
		slog.ErrorContext(ctx, "Failed to mark transaction mirrored",
			"id", t.ID, "error", err)
	}

	slog.InfoContext(ctx, "Transaction mirrored", "id", t.ID, "ref", ref)
	return nil
}

func (w *MirrorWorker) mirrorTombstone(ctx context.Context, msg *amqp.JournalEventMessage) error {
	entry := mirror.Entry{
		When:      msg.Timestamp,
		Kind:      msg.Kind,
		AccountID: msg.AccountID,
	}

	// The account survives a transaction delete; enrich the entry when it does.
	if acct, err := w.storage.GetAccount(ctx, msg.AccountID); err == nil {
		entry.AccountName = acct.Name
		entry.BalanceCents = acct.BalanceCents
	}

	if _, err := w.writer.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("append tombstone entry: %w", err)
	}
	return nil
}

// ProcessPending mirrors transactions the journal consumer missed, oldest
// first, up to the configured batch size. Called periodically and once at
// startup.
func (w *MirrorWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.ListUnmirrored(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unmirrored: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Catching up unmirrored transactions", "count", len(pending))

	for _, t := range pending {
		if err := w.mirrorTransaction(ctx, amqp.KindTransactionAdded, t.ID); err != nil {
			// Keep going; the next pass retries whatever failed.
			slog.ErrorContext(ctx, "Failed to mirror pending transaction",
				"id", t.ID, "error", err)
		}
	}
	return nil
}
