package core

import "strings"

// FindDuplicate compares a candidate against the ledger entries already
// committed for the same target month and returns the first exact match.
//
// A match requires all four of: same target month, exact amount equality in
// minor units, trimmed-title equality, and source-label equality (two missing
// sources count as equal). First match wins; ties are not scored. This is a
// deliberate exact-match heuristic: near-duplicates with an off-by-one amount
// or a reworded title are staged as new rows. Candidates are never compared
// against other staged rows, so two identical transactions inside the same
// upload both stage as non-duplicates.
func FindDuplicate(month YearMonth, amount Money, title string, source *string, ledger []LedgerEntry) *LedgerEntry {
	wantTitle := strings.TrimSpace(title)
	for i := range ledger {
		e := &ledger[i]
		if e.YearMonth != month {
			continue
		}
		if e.Amount.Cents != amount.Cents {
			continue
		}
		if strings.TrimSpace(e.Title) != wantTitle {
			continue
		}
		if !sourceEqual(e.Source, source) {
			continue
		}
		return e
	}
	return nil
}

func sourceEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
