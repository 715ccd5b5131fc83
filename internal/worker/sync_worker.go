// Package worker exports committed ledger entries to the configured export
// target, driven by commit announcements with a periodic backlog scan as
// backup.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budsjett/internal/amqp"
	"budsjett/internal/core"
	"budsjett/internal/ledgersync"
	"budsjett/internal/storage"
)

type SyncWorker struct {
	storage   *storage.SQLiteRepository
	writer    ledgersync.Writer
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, writer ledgersync.Writer, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleCommitMessage exports every entry named in one commit announcement.
// A failed export returns an error so the message is redelivered; entries
// already exported by an earlier delivery are skipped.
func (w *SyncWorker) HandleCommitMessage(ctx context.Context, msg *amqp.LedgerCommittedMessage) error {
	slog.InfoContext(ctx, "Processing commit announcement",
		"user_id", msg.UserID,
		"year_month", msg.YearMonth.String(),
		"entries", len(msg.EntryIDs))

	for _, id := range msg.EntryIDs {
		entry, err := w.storage.GetLedgerEntry(ctx, id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				// The entry can be gone if the ledger was pruned between
				// commit and delivery. Nothing to export.
				slog.WarnContext(ctx, "Committed entry no longer exists, skipping", "id", id)
				continue
			}
			return fmt.Errorf("get ledger entry %s: %w", id, err)
		}
		if entry.SyncStatus == core.SyncSynced {
			continue
		}
		if err := w.exportEntry(ctx, entry); err != nil {
			return err
		}
	}

	return nil
}

// ProcessPendingEntries exports entries still marked pending. This is the
// backup path for lost commit announcements.
func (w *SyncWorker) ProcessPendingEntries(ctx context.Context) error {
	pending, err := w.storage.ListPendingSync(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending ledger entries", "count", len(pending))

	for i := range pending {
		if err := w.exportEntry(ctx, &pending[i]); err != nil {
			slog.ErrorContext(ctx, "Failed to export ledger entry",
				"id", pending[i].ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupSyncCheck drains the pending backlog at worker startup, recovering
// from announcements missed during downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.ListPendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending entries for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending ledger entries found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending ledger entries on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0
	for i := range pending {
		if err := w.exportEntry(ctx, &pending[i]); err != nil {
			slog.ErrorContext(ctx, "Failed to export ledger entry during startup",
				"id", pending[i].ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"exported", successCount,
		"errors", errorCount)

	return nil
}

func (w *SyncWorker) exportEntry(ctx context.Context, entry *core.LedgerEntry) error {
	ref, err := w.writer.Append(ctx, *entry)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, entry.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", entry.ID, "error", markErr)
		}
		return fmt.Errorf("append to export target: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, entry.ID); err != nil {
		// The export itself worked; the backlog scan will retry the mark.
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", entry.ID, "error", err)
	}

	slog.InfoContext(ctx, "Exported ledger entry",
		"id", entry.ID,
		"row_ref", ref,
		"title", entry.Title,
		"amount_minor", entry.Amount.Cents)

	return nil
}
