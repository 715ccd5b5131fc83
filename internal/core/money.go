// Package core holds the domain types shared by the import pipeline:
// monetary values in integer minor units, month scoping, staged and
// committed transactions, and the duplicate matching rule.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// Money is a monetary value in the currency's smallest unit (øre, cents).
// It is always an integer; the sign distinguishes expenses (negative)
// from credits (positive). Money is never stored or compared as a float.
type Money struct {
	Cents int64
}

// MarshalJSON encodes the value as a bare integer of minor units.
func (m Money) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, m.Cents, 10), nil
}

// UnmarshalJSON accepts a bare integer of minor units.
func (m *Money) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return ErrInvalidAmount
	}
	m.Cents = v
	return nil
}

// Abs returns the magnitude in minor units.
func (m Money) Abs() int64 {
	if m.Cents < 0 {
		return -m.Cents
	}
	return m.Cents
}

// IsZero reports whether the value is exactly zero.
func (m Money) IsZero() bool {
	return m.Cents == 0
}

// PersonalShare returns the half of the amount attributed to the user when
// a transaction is shared, using floor division: a shared -4501 øre gives
// a personal share of -2251, never rounded toward zero.
func (m Money) PersonalShare() int64 {
	half := m.Cents / 2
	if m.Cents%2 != 0 && m.Cents < 0 {
		half--
	}
	return half
}

// ParseDecimalToMinor converts a decimal string such as "12.34" or "-12,34"
// into minor units with half-up rounding on the third decimal place. Both
// dot and comma decimal separators are accepted.
func ParseDecimalToMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}

	// First two fractional digits, half-up rounding on the third.
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}

	cents := iv*100 + fracCents
	if neg {
		cents = -cents
	}
	return cents, nil
}
