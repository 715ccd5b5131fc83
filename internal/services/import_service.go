// Package services orchestrates the import pipeline: staging uploaded
// statements, the review edits, and the commit into the permanent ledger.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"budsjett/internal/amqp"
	"budsjett/internal/core"
	"budsjett/internal/storage"
)

// Extractor is the gateway to the external extraction service.
type Extractor interface {
	Extract(ctx context.Context, filename string, file io.Reader, extractorID string) ([]core.RawTransaction, error)
}

// StageResult reports what staging an upload did.
type StageResult struct {
	Staged          int `json:"staged"`
	Duplicates      int `json:"duplicates"`
	FilteredByMonth int `json:"filteredByMonth"`
}

// CommitResult reports how many entries a commit wrote to the ledger.
type CommitResult struct {
	Committed int `json:"committed"`
}

// ImportService runs the staging, review and commit operations for one
// storage backend. Staging and commit are serialized per (user, month); the
// review edits rely on the storage layer's own transactions.
type ImportService struct {
	storage    *storage.SQLiteRepository
	extractor  Extractor
	amqpClient *amqp.Client

	locks monthLocks
}

func NewImportService(storage *storage.SQLiteRepository, extractor Extractor, amqpClient *amqp.Client) *ImportService {
	return &ImportService{
		storage:    storage,
		extractor:  extractor,
		amqpClient: amqpClient,
	}
}

// StageImport extracts raw transactions from an uploaded file and stages the
// ones belonging to the target month, replacing any staged rows a previous
// upload left for that month. Extraction failure aborts before any staging
// mutation.
func (s *ImportService) StageImport(ctx context.Context, userID, filename string, file io.Reader, extractorID string, target core.YearMonth) (StageResult, error) {
	var result StageResult

	if err := target.Validate(); err != nil {
		return result, err
	}

	raw, err := s.extractor.Extract(ctx, filename, file, extractorID)
	if err != nil {
		return result, err
	}

	unlock := s.locks.lock(userID, target)
	defer unlock()

	// Rows staying are the ones whose own date maps to the target month.
	// A missing or unparseable date filters the row out; rows are never
	// restaged under their natural month when it differs from the target.
	kept := make([]core.RawTransaction, 0, len(raw))
	dates := make([]time.Time, 0, len(raw))
	for _, tx := range raw {
		d, ok := tx.ParsedDate()
		if !ok || core.YearMonthFromDate(d) != target {
			result.FilteredByMonth++
			continue
		}
		kept = append(kept, tx)
		dates = append(dates, d)
	}

	ledger, err := s.storage.ListLedger(ctx, userID, target)
	if err != nil {
		return StageResult{}, fmt.Errorf("load ledger for duplicate check: %w", err)
	}

	rows := make([]core.StagedTransaction, len(kept))
	for i, tx := range kept {
		row := core.StagedTransaction{
			ID:        uuid.NewString(),
			UserID:    userID,
			YearMonth: target,
			Date:      dates[i],
			Title:     tx.Title,
			Amount:    tx.Amount,
			Source:    tx.Source,
			RawData:   tx.RawData,
			Notes:     tx.Notes,
			SortIndex: i,
		}
		if tx.IsShared != nil {
			row.IsShared = *tx.IsShared
		}
		// Only the committed ledger is consulted; rows in this same batch
		// never mark each other as duplicates.
		if match := core.FindDuplicate(target, tx.Amount, tx.Title, tx.Source, ledger); match != nil {
			row.IsDuplicate = true
			dupID := match.ID
			row.DuplicateOf = &dupID
			result.Duplicates++
		}
		rows[i] = row
	}

	if err := s.storage.ReplaceStaged(ctx, userID, target, rows); err != nil {
		return StageResult{}, fmt.Errorf("stage transactions: %w", err)
	}
	result.Staged = len(rows)

	slog.InfoContext(ctx, "Staged import",
		"user_id", userID,
		"year_month", target.String(),
		"extractor", extractorID,
		"staged", result.Staged,
		"duplicates", result.Duplicates,
		"filtered_by_month", result.FilteredByMonth)

	return result, nil
}

// ListStaged returns the staged rows for (user, month) in source-file order.
func (s *ImportService) ListStaged(ctx context.Context, userID string, ym core.YearMonth) ([]core.StagedTransaction, error) {
	if err := ym.Validate(); err != nil {
		return nil, err
	}
	return s.storage.ListStaged(ctx, userID, ym)
}

// UpdateStaged applies a partial update to one staged row, enforcing the
// settlement invariant against the row's resulting state before persisting.
func (s *ImportService) UpdateStaged(ctx context.Context, userID, stagedID string, params core.UpdateStagedParams) (*core.StagedTransaction, error) {
	if params.Empty() {
		return nil, core.ErrNoFieldsToUpdate
	}
	if params.Title != nil && strings.TrimSpace(*params.Title) == "" {
		return nil, core.ErrEmptyTitle
	}

	current, err := s.storage.GetStaged(ctx, userID, stagedID)
	if err != nil {
		return nil, err
	}

	next := *current
	if params.Amount != nil {
		next.Amount = *params.Amount
	}
	if params.CollectToMe != nil {
		next.CollectToMe = *params.CollectToMe
	}
	if params.CollectFromMe != nil {
		next.CollectFromMe = *params.CollectFromMe
	}
	if err := next.ValidateSettlement(); err != nil {
		return nil, err
	}

	return s.storage.UpdateStaged(ctx, userID, stagedID, params)
}

// DeleteStaged discards one staged row before commit.
func (s *ImportService) DeleteStaged(ctx context.Context, userID, stagedID string) error {
	return s.storage.DeleteStaged(ctx, userID, stagedID)
}

// BulkCategorize applies one category (or clears it) across a set of staged
// rows, all-or-nothing.
func (s *ImportService) BulkCategorize(ctx context.Context, userID string, stagedIDs []string, category *string) (int, error) {
	return s.storage.BulkCategorize(ctx, userID, stagedIDs, category)
}

// Commit moves every non-duplicate staged row for (user, month) into the
// ledger and clears the staging area, then announces the new entries on the
// queue. The export announcement is best-effort: the periodic pending scan
// picks up entries whose message was lost.
func (s *ImportService) Commit(ctx context.Context, userID string, ym core.YearMonth) (CommitResult, error) {
	if err := ym.Validate(); err != nil {
		return CommitResult{}, err
	}

	unlock := s.locks.lock(userID, ym)
	defer unlock()

	committed, err := s.storage.CommitMonth(ctx, userID, ym, time.Now(), uuid.NewString)
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit month: %w", err)
	}

	if len(committed) > 0 {
		s.publishCommitted(ctx, userID, ym, committed)
	}

	slog.InfoContext(ctx, "Committed staged transactions",
		"user_id", userID,
		"year_month", ym.String(),
		"committed", len(committed))

	return CommitResult{Committed: len(committed)}, nil
}

// ListLedger returns the committed entries for (user, month).
func (s *ImportService) ListLedger(ctx context.Context, userID string, ym core.YearMonth) ([]core.LedgerEntry, error) {
	if err := ym.Validate(); err != nil {
		return nil, err
	}
	return s.storage.ListLedger(ctx, userID, ym)
}

func (s *ImportService) publishCommitted(ctx context.Context, userID string, ym core.YearMonth, entryIDs []string) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping commit announcement")
		return
	}
	msg := amqp.NewLedgerCommittedMessage(userID, ym, entryIDs)
	if err := s.amqpClient.PublishLedgerCommitted(ctx, msg); err != nil {
		// The commit already succeeded; the export backlog scan recovers.
		slog.ErrorContext(ctx, "Failed to publish commit announcement",
			"user_id", userID,
			"year_month", ym.String(),
			"error", err)
	}
}

// Close releases the service's storage and queue connections.
func (s *ImportService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close import service: %v", errs)
	}
	return nil
}
