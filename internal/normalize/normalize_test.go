package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestDateFormats(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ISO", "2025-01-15", "2025-01-15"},
		{"US slashes", "01/15/2025", "2025-01-15"},
		{"US dashes", "01-15-2025", "2025-01-15"},
		{"year first slashes", "2025/01/15", "2025-01-15"},
		{"two-digit year 20xx", "01/15/25", "2025-01-15"},
		{"two-digit year 19xx", "01/15/99", "1999-01-15"},
		{"two-digit year pivot low", "03/01/49", "2049-03-01"},
		{"two-digit year pivot high", "03/01/50", "1950-03-01"},
		{"fallback with time", "2025-01-15 10:30:00", "2025-01-15"},
		{"fallback spelled month", "Jan 15, 2025", "2025-01-15"},
		{"surrounding whitespace", "  2025-01-15  ", "2025-01-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// pivot cases land in the past relative to a generous "now"
			now := time.Date(2050, 1, 1, 0, 0, 0, 0, time.UTC)
			got, err := DateAt(tt.input, now)
			if err != nil {
				t.Fatalf("DateAt(%q) returned error: %v", tt.input, err)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("DateAt(%q) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
			}
			if got.Hour() != 0 || got.Location() != time.UTC {
				t.Errorf("DateAt(%q) not truncated to UTC midnight: %s", tt.input, got)
			}
		})
	}
}

func TestDateRejections(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"garbage", "not-a-date"},
		{"impossible month", "13/45/2025"},
		{"tomorrow ISO", "2025-06-16"},
		{"tomorrow US", "06/16/2025"},
		{"next year", "2026-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DateAt(tt.input, testNow); err == nil {
				t.Errorf("DateAt(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestDateTodayAccepted(t *testing.T) {
	got, err := DateAt("2025-06-15", testNow)
	if err != nil {
		t.Fatalf("today should be accepted: %v", err)
	}
	if got.Format("2006-01-02") != "2025-06-15" {
		t.Errorf("got %s, want 2025-06-15", got.Format("2006-01-02"))
	}
}

func TestAmountEncodings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		hint  SignHint
		want  string
	}{
		{"plain positive", "50.00", SignNone, "50"},
		{"plain negative", "-50.00", SignNone, "-50"},
		{"currency symbol", "$1,234.56", SignNone, "1234.56"},
		{"euro symbol", "€99.95", SignNone, "99.95"},
		{"thousands separators", "12,345.60", SignNone, "12345.6"},
		{"parenthesized negative", "(50.00)", SignNone, "-50"},
		{"parenthesized with symbol", "($1,250.00)", SignNone, "-1250"},
		{"interior whitespace", "$ 42.00", SignNone, "42"},
		{"debit hint forces negative", "50.00", SignDebit, "-50"},
		{"debit hint on negative stays negative", "-50.00", SignDebit, "-50"},
		{"credit hint forces positive", "-50.00", SignCredit, "50"},
		{"no hint keeps parsed sign", "(50.00)", SignNone, "-50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Amount(tt.input, tt.hint)
			if err != nil {
				t.Fatalf("Amount(%q) returned error: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("Amount(%q) = %s, want %s", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestAmountRejections(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "abc"},
		{"zero", "0.00"},
		{"parenthesized zero", "(0)"},
		{"over limit", "1000000.00"},
		{"under negative limit", "-1000000.00"},
		{"parenthesized over limit", "(1,000,000.00)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Amount(tt.input, SignNone); err == nil {
				t.Errorf("Amount(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestAmountBoundary(t *testing.T) {
	got, err := Amount("999,999.99", SignNone)
	if err != nil {
		t.Fatalf("boundary amount should be accepted: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("999999.99")) {
		t.Errorf("got %s, want 999999.99", got)
	}
}

func TestParseSignHint(t *testing.T) {
	tests := []struct {
		input string
		want  SignHint
	}{
		{"credit", SignCredit},
		{"CREDIT", SignCredit},
		{" Credit ", SignCredit},
		{"debit", SignDebit},
		{"DEBIT", SignDebit},
		{"", SignNone},
		{"transfer", SignNone},
	}

	for _, tt := range tests {
		if got := ParseSignHint(tt.input); got != tt.want {
			t.Errorf("ParseSignHint(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
