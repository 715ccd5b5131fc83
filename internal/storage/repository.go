// Package storage persists staged transactions and ledger entries in SQLite.
// The staging replace and the month commit each run inside a single database
// transaction so a crash can never leave a month half-imported or a batch
// both committed and still staged.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"budsjett/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const stagedColumns = `id, user_id, year_month, date, title, amount_minor, source, raw_data,
       category, notes, is_shared, collect_to_me, collect_from_me,
       is_duplicate, duplicate_of, sort_index`

// ReplaceStaged purges every staged row for (user, month) and inserts the
// given rows in their place, atomically. Re-processing a month always starts
// from a clean slate; repeated uploads can never accumulate staged rows.
func (r *SQLiteRepository) ReplaceStaged(ctx context.Context, userID string, ym core.YearMonth, rows []core.StagedTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin staging transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM staged_transactions WHERE user_id = ? AND year_month = ?`,
		userID, int(ym),
	); err != nil {
		return fmt.Errorf("purge staged rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO staged_transactions (`+stagedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare staged insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.ID, row.UserID, int(row.YearMonth), row.Date.Format(dateLayout),
			row.Title, row.Amount.Cents, nullString(row.Source), nullString(row.RawData),
			nullString(row.Category), nullString(row.Notes),
			boolToInt(row.IsShared), row.CollectToMe.Cents, row.CollectFromMe.Cents,
			boolToInt(row.IsDuplicate), nullString(row.DuplicateOf), row.SortIndex,
		); err != nil {
			return fmt.Errorf("insert staged row %s: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit staging transaction: %w", err)
	}
	return nil
}

// ListStaged returns the staged rows for (user, month) in source-file order.
func (r *SQLiteRepository) ListStaged(ctx context.Context, userID string, ym core.YearMonth) ([]core.StagedTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+stagedColumns+`
		FROM staged_transactions
		WHERE user_id = ? AND year_month = ?
		ORDER BY sort_index
	`, userID, int(ym))
	if err != nil {
		return nil, fmt.Errorf("list staged rows: %w", err)
	}
	defer rows.Close()

	var out []core.StagedTransaction
	for rows.Next() {
		tx, err := scanStaged(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// GetStaged returns one staged row, or core.ErrNotFound when the id does not
// exist or belongs to another user.
func (r *SQLiteRepository) GetStaged(ctx context.Context, userID, id string) (*core.StagedTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+stagedColumns+`
		FROM staged_transactions
		WHERE user_id = ? AND id = ?
	`, userID, id)

	tx, err := scanStaged(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateStaged applies a partial update to one staged row and returns the
// resulting row. Fields not present in params are left unchanged.
func (r *SQLiteRepository) UpdateStaged(ctx context.Context, userID, id string, params core.UpdateStagedParams) (*core.StagedTransaction, error) {
	if params.Empty() {
		return nil, core.ErrNoFieldsToUpdate
	}

	var sets []string
	var args []any

	if params.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *params.Title)
	}
	if params.Amount != nil {
		sets = append(sets, "amount_minor = ?")
		args = append(args, params.Amount.Cents)
	}
	if params.Date != nil {
		sets = append(sets, "date = ?")
		args = append(args, params.Date.Format(dateLayout))
	}
	if params.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *params.Notes)
	}
	if params.SetCategory {
		sets = append(sets, "category = ?")
		args = append(args, nullString(params.Category))
	}
	if params.IsShared != nil {
		sets = append(sets, "is_shared = ?")
		args = append(args, boolToInt(*params.IsShared))
	}
	if params.CollectToMe != nil {
		sets = append(sets, "collect_to_me = ?")
		args = append(args, params.CollectToMe.Cents)
	}
	if params.CollectFromMe != nil {
		sets = append(sets, "collect_from_me = ?")
		args = append(args, params.CollectFromMe.Cents)
	}

	args = append(args, userID, id)
	res, err := r.db.ExecContext(ctx,
		`UPDATE staged_transactions SET `+strings.Join(sets, ", ")+` WHERE user_id = ? AND id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update staged row: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, core.ErrNotFound
	}

	return r.GetStaged(ctx, userID, id)
}

// DeleteStaged removes one staged row outright.
func (r *SQLiteRepository) DeleteStaged(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM staged_transactions WHERE user_id = ? AND id = ?`,
		userID, id,
	)
	if err != nil {
		return fmt.Errorf("delete staged row: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// BulkCategorize sets (or clears, with a nil category) the category on the
// given staged rows. All-or-nothing: an unknown or foreign id rolls the whole
// batch back.
func (r *SQLiteRepository) BulkCategorize(ctx context.Context, userID string, ids []string, category *string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk categorize: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE staged_transactions SET category = ? WHERE user_id = ? AND id = ?`)
	if err != nil {
		return 0, fmt.Errorf("prepare bulk categorize: %w", err)
	}
	defer stmt.Close()

	updated := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, nullString(category), userID, id)
		if err != nil {
			return 0, fmt.Errorf("categorize staged row %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return 0, fmt.Errorf("staged row %s: %w", id, core.ErrNotFound)
		}
		updated++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk categorize: %w", err)
	}
	return updated, nil
}

const ledgerColumns = `id, user_id, year_month, date, title, amount_minor, source,
       category, notes, is_shared, collect_to_me, collect_from_me,
       origin, sync_status, created_at`

// CommitMonth converts every non-duplicate staged row for (user, month) into
// a ledger entry and clears the staging area, in one database transaction.
// With zero eligible rows it returns an empty slice and leaves both the
// ledger and the staging store untouched.
func (r *SQLiteRepository) CommitMonth(ctx context.Context, userID string, ym core.YearMonth, now time.Time, newID func() string) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commit transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+stagedColumns+`
		FROM staged_transactions
		WHERE user_id = ? AND year_month = ? AND is_duplicate = 0
		ORDER BY sort_index
	`, userID, int(ym))
	if err != nil {
		return nil, fmt.Errorf("read staged rows for commit: %w", err)
	}

	var staged []core.StagedTransaction
	for rows.Next() {
		s, err := scanStaged(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		staged = append(staged, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(staged) == 0 {
		return nil, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare ledger insert: %w", err)
	}
	defer stmt.Close()

	committed := make([]string, 0, len(staged))
	for _, s := range staged {
		id := newID()
		if _, err := stmt.ExecContext(ctx,
			id, userID, int(ym), s.Date.Format(dateLayout), s.Title, s.Amount.Cents,
			nullString(s.Source), nullString(s.Category), nullString(s.Notes),
			boolToInt(s.IsShared), s.CollectToMe.Cents, s.CollectFromMe.Cents,
			core.OriginImported, core.SyncPending, now.UTC(),
		); err != nil {
			return nil, fmt.Errorf("insert ledger entry for staged %s: %w", s.ID, err)
		}
		committed = append(committed, id)
	}

	// Both the committed rows and any remaining duplicates go: staged rows
	// never outlive their month's commit.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM staged_transactions WHERE user_id = ? AND year_month = ?`,
		userID, int(ym),
	); err != nil {
		return nil, fmt.Errorf("clear staging after commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return committed, nil
}

// InsertLedgerEntry writes one entry directly to the ledger. The surrounding
// application uses this for manually entered records (origin "manual");
// imported entries only ever arrive through CommitMonth.
func (r *SQLiteRepository) InsertLedgerEntry(ctx context.Context, e core.LedgerEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.UserID, int(e.YearMonth), e.Date.Format(dateLayout), e.Title, e.Amount.Cents,
		nullString(e.Source), nullString(e.Category), nullString(e.Notes),
		boolToInt(e.IsShared), e.CollectToMe.Cents, e.CollectFromMe.Cents,
		e.Origin, e.SyncStatus, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListLedger returns the committed entries for (user, month).
func (r *SQLiteRepository) ListLedger(ctx context.Context, userID string, ym core.YearMonth) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE user_id = ? AND year_month = ?
		ORDER BY date, created_at
	`, userID, int(ym))
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetLedgerEntry returns one ledger entry by id regardless of owner; the
// sync worker looks entries up from queue messages that carry no user.
func (r *SQLiteRepository) GetLedgerEntry(ctx context.Context, id string) (*core.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE id = ?
	`, id)

	e, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListPendingSync returns entries not yet exported, oldest first. Backup
// path for the worker in case queue messages are lost.
func (r *SQLiteRepository) ListPendingSync(ctx context.Context, limit int) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE sync_status = ?
		ORDER BY created_at
		LIMIT ?
	`, core.SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending sync entries: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	return r.setSyncStatus(ctx, id, core.SyncSynced)
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	return r.setSyncStatus(ctx, id, core.SyncError)
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set sync status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStaged(s scanner) (core.StagedTransaction, error) {
	var (
		tx                                       core.StagedTransaction
		ym                                       int
		dateStr                                  string
		source, rawData, category, notes, dupOf  sql.NullString
		isShared, isDuplicate                    int
	)
	err := s.Scan(
		&tx.ID, &tx.UserID, &ym, &dateStr, &tx.Title, &tx.Amount.Cents,
		&source, &rawData, &category, &notes,
		&isShared, &tx.CollectToMe.Cents, &tx.CollectFromMe.Cents,
		&isDuplicate, &dupOf, &tx.SortIndex,
	)
	if err != nil {
		return tx, err
	}

	tx.YearMonth = core.YearMonth(ym)
	tx.Date, err = time.Parse(dateLayout, dateStr)
	if err != nil {
		return tx, fmt.Errorf("parse staged date %q: %w", dateStr, err)
	}
	tx.Source = fromNullString(source)
	tx.RawData = fromNullString(rawData)
	tx.Category = fromNullString(category)
	tx.Notes = fromNullString(notes)
	tx.IsShared = isShared != 0
	tx.IsDuplicate = isDuplicate != 0
	tx.DuplicateOf = fromNullString(dupOf)
	return tx, nil
}

func scanLedger(s scanner) (core.LedgerEntry, error) {
	var (
		e                       core.LedgerEntry
		ym                      int
		dateStr                 string
		source, category, notes sql.NullString
		isShared                int
	)
	err := s.Scan(
		&e.ID, &e.UserID, &ym, &dateStr, &e.Title, &e.Amount.Cents,
		&source, &category, &notes,
		&isShared, &e.CollectToMe.Cents, &e.CollectFromMe.Cents,
		&e.Origin, &e.SyncStatus, &e.CreatedAt,
	)
	if err != nil {
		return e, err
	}

	e.YearMonth = core.YearMonth(ym)
	e.Date, err = time.Parse(dateLayout, dateStr)
	if err != nil {
		return e, fmt.Errorf("parse ledger date %q: %w", dateStr, err)
	}
	e.Source = fromNullString(source)
	e.Category = fromNullString(category)
	e.Notes = fromNullString(notes)
	e.IsShared = isShared != 0
	return e, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
