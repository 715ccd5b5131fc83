package core

import (
	"encoding/json"
	"testing"
)

func TestParseDecimalToMinor(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-45.00", -4500, true},
		{"-0,50", -50, true},
		{"+3.10", 310, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"--1", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToMinor(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyPersonalShare(t *testing.T) {
	cases := []struct {
		cents int64
		want  int64
	}{
		{-4500, -2250},
		{-4501, -2251}, // floor, not truncate
		{4501, 2250},
		{0, 0},
		{-1, -1},
		{1, 0},
	}
	for _, tc := range cases {
		if got := (Money{Cents: tc.cents}).PersonalShare(); got != tc.want {
			t.Errorf("PersonalShare(%d) = %d, want %d", tc.cents, got, tc.want)
		}
	}
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(Money{Cents: -4500})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "-4500" {
		t.Fatalf("expected bare integer, got %s", b)
	}

	var m Money
	if err := json.Unmarshal([]byte("1200000"), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Cents != 1200000 {
		t.Fatalf("expected 1200000, got %d", m.Cents)
	}

	// Fractional minor units must be rejected, never silently rounded.
	if err := json.Unmarshal([]byte("45.5"), &m); err == nil {
		t.Fatal("expected error for fractional amount")
	}
}
