package google

import (
	"testing"

	"budsjett/internal/core"
)

func TestYearSheetName(t *testing.T) {
	cases := []struct {
		base string
		year int
		want string
	}{
		{"Ledger", 2026, "2026 Ledger"},
		{"2025 Ledger", 2026, "2025 Ledger"},
		{"  Ledger  ", 2026, "2026 Ledger"},
		{"", 2026, ""},
	}
	for _, tc := range cases {
		if got := yearSheetName(tc.base, tc.year); got != tc.want {
			t.Errorf("yearSheetName(%q, %d) = %q, want %q", tc.base, tc.year, got, tc.want)
		}
	}
}

func TestMinorToDecimal(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{-4500, "-45.00"},
		{4500, "45.00"},
		{-5, "-0.05"},
		{0, "0.00"},
		{123456, "1234.56"},
	}
	for _, tc := range cases {
		if got := minorToDecimal(core.Money{Cents: tc.cents}); got != tc.want {
			t.Errorf("minorToDecimal(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}
