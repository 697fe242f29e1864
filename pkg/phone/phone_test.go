package phone

import (
	"errors"
	"testing"
)

func TestNormalizeKnownFormats(t *testing.T) {
	n := Default()
	tests := []struct {
		in   string
		want string
	}{
		{"+91 98765 43210", "919876543210"},
		{"0987654321", "91987654321"},
		{"00447911123456", "447911123456"},
		{"+1 (415) 555-0100", "14155550100"},
		{"447911123456", "447911123456"},
		{"9876543210", "9876543210"},
		{"  +00 44 7911 123456 ", "447911123456"},
		{"12345", "12345"},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := n.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := Default()
	samples := []string{
		"+91 98765 43210", "0987654321", "00447911123456", "9876543210", "0044 7911 123456",
		"+0091 98765", "000", "0", "012", "+1-202-555-0123", "971501234567", "(020) 7946 0958",
		"98-765", "+", "0091", "00000123456789",
	}
	for _, s := range samples {
		once := n.Normalize(s)
		if twice := n.Normalize(once); twice != once {
			t.Errorf("not idempotent for %q: %q -> %q", s, once, twice)
		}
	}
}

func TestCustomCountryCodeAndPrefixes(t *testing.T) {
	n, err := New(Options{DefaultCountryCode: "+44", KnownPrefixes: []string{"44", "353"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := n.Normalize("07911 123456"); got != "447911123456" {
		t.Fatalf("trunk prefix: got %q", got)
	}
	// 91 is not in the custom table, so a long 91... number is passed through as-is anyway.
	if got := n.Normalize("919876543210"); got != "919876543210" {
		t.Fatalf("passthrough: got %q", got)
	}
	if _, err := New(Options{DefaultCountryCode: "044"}); err == nil {
		t.Fatal("expected error for country code with leading zero")
	}
}

func TestCheck(t *testing.T) {
	n := Default()
	if err := n.Check("919876543210"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.Check("12345"); !errors.Is(err, ErrAmbiguousNumber) {
		t.Fatalf("expected ErrAmbiguousNumber, got %v", err)
	}
	if err := n.Check(""); !errors.Is(err, ErrAmbiguousNumber) {
		t.Fatalf("expected ErrAmbiguousNumber for empty, got %v", err)
	}
	off, _ := New(Options{MinDigits: -1})
	if err := off.Check("123"); err != nil {
		t.Fatalf("check disabled, got %v", err)
	}
}
