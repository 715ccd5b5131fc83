package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidYearMonth         = errors.New("invalid year-month")
	ErrEmptyTitle               = errors.New("empty title")
	ErrNotFound                 = errors.New("not found")
	ErrNegativeSettlement       = errors.New("settlement amounts must not be negative")
	ErrSettlementExceedsAmount  = errors.New("settlement amounts exceed the transaction amount")
	ErrNoFieldsToUpdate         = errors.New("no fields to update")
)

// YearMonth identifies a target month as YYYY*100+MM, e.g. 202603 for
// March 2026. Staging and committing are always scoped to one of these.
type YearMonth int

// NewYearMonth builds a YearMonth from a year and a 1-based month.
func NewYearMonth(year int, month time.Month) YearMonth {
	return YearMonth(year*100 + int(month))
}

// YearMonthFromDate maps a date to the month it naturally belongs to.
func YearMonthFromDate(t time.Time) YearMonth {
	return NewYearMonth(t.Year(), t.Month())
}

// ParseYearMonth parses the YYYYMM form, e.g. "202603".
func ParseYearMonth(s string) (YearMonth, error) {
	if len(s) != 6 {
		return 0, ErrInvalidYearMonth
	}
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, ErrInvalidYearMonth
	}
	ym := YearMonth(v)
	if err := ym.Validate(); err != nil {
		return 0, err
	}
	return ym, nil
}

func (ym YearMonth) Year() int { return int(ym) / 100 }

func (ym YearMonth) Month() time.Month { return time.Month(int(ym) % 100) }

func (ym YearMonth) Validate() error {
	y, m := ym.Year(), int(ym)%100
	if y < 1900 || y > 9999 || m < 1 || m > 12 {
		return ErrInvalidYearMonth
	}
	return nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%06d", int(ym))
}

// RawTransaction is one row as returned by the extraction service. The date
// is kept as the extractor's ISO string; rows whose date does not parse are
// filtered out during staging rather than staged under a guessed month.
type RawTransaction struct {
	Date     string  `json:"date"`
	Title    string  `json:"title"`
	Amount   Money   `json:"amount"`
	Source   *string `json:"source,omitempty"`
	Notes    *string `json:"description,omitempty"`
	IsShared *bool   `json:"isShared,omitempty"`
	RawData  *string `json:"raw_data,omitempty"`
}

// ParsedDate returns the transaction date, or ok=false when the extractor
// produced a missing or unparseable date.
func (r RawTransaction) ParsedDate() (time.Time, bool) {
	t, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// StagedTransaction is a candidate ledger row awaiting review. It belongs to
// one user and one target month, and is destroyed by deletion, by the month
// being re-imported, or by commit.
type StagedTransaction struct {
	ID     string `json:"id"`
	UserID string `json:"-"`

	YearMonth YearMonth `json:"yearMonth"`
	Date      time.Time `json:"date"`
	Title     string    `json:"title"`
	Amount    Money     `json:"amount"`
	Source    *string   `json:"source,omitempty"`
	RawData   *string   `json:"rawData,omitempty"`

	Category *string `json:"category,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	IsShared bool    `json:"isShared"`

	CollectToMe   Money `json:"collectToMe"`
	CollectFromMe Money `json:"collectFromMe"`

	IsDuplicate bool    `json:"isDuplicate"`
	DuplicateOf *string `json:"duplicateOf,omitempty"`

	// SortIndex preserves the row's position in the source file. Display
	// ordering only; dedup and commit never depend on it.
	SortIndex int `json:"sortIndex"`
}

// ValidateSettlement enforces that the per-transaction settlement balances
// never exceed the transaction's own magnitude.
func (s StagedTransaction) ValidateSettlement() error {
	if s.CollectToMe.Cents < 0 || s.CollectFromMe.Cents < 0 {
		return ErrNegativeSettlement
	}
	if s.CollectToMe.Cents+s.CollectFromMe.Cents > s.Amount.Abs() {
		return ErrSettlementExceedsAmount
	}
	return nil
}

// Ledger entry provenance markers.
const (
	OriginManual   = "manual"
	OriginImported = "imported"
)

// Ledger entry sync states for the post-commit export pipeline.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// LedgerEntry is a committed, permanent record. The import core writes these
// during commit and reads them for duplicate detection; everything else about
// the ledger belongs to the surrounding application.
type LedgerEntry struct {
	ID     string `json:"id"`
	UserID string `json:"-"`

	YearMonth YearMonth `json:"yearMonth"`
	Date      time.Time `json:"date"`
	Title     string    `json:"title"`
	Amount    Money     `json:"amount"`
	Source    *string   `json:"source,omitempty"`
	Category  *string   `json:"category,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	IsShared  bool      `json:"isShared"`

	CollectToMe   Money `json:"collectToMe"`
	CollectFromMe Money `json:"collectFromMe"`

	Origin     string    `json:"origin"`
	SyncStatus string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UpdateStagedParams carries a partial update for one staged row. Nil fields
// are left unchanged; Category carries a separate Set flag so it can be
// cleared to NULL.
type UpdateStagedParams struct {
	Title  *string
	Amount *Money
	Date   *time.Time
	Notes  *string

	Category    *string
	SetCategory bool

	IsShared      *bool
	CollectToMe   *Money
	CollectFromMe *Money
}

// Empty reports whether the update carries no changes at all.
func (p UpdateStagedParams) Empty() bool {
	return p.Title == nil && p.Amount == nil && p.Date == nil && p.Notes == nil &&
		!p.SetCategory && p.IsShared == nil && p.CollectToMe == nil && p.CollectFromMe == nil
}
