// Package phone turns user-entered phone strings into the digits-only,
// country-code-prefixed form the WhatsApp Cloud API expects in "to".
//
// Rules (first match wins):
//  1. "+..." is already international: keep the digits.
//  2. "00..." carries the international dialing prefix: drop it.
//  3. Digits that already start with a known calling code and are long
//     enough (>= 10) are kept.
//  4. A single leading trunk "0" is replaced by the default country code.
//  5. Anything else passes through unchanged.
//
// The result never starts with '0' unless the input was a lone national
// number shorter than the rules can reason about; Check flags those.
package phone

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	DefaultCountryCode = "91"
	DefaultMinDigits   = 8

	// minWithCountryCode is the shortest digit string treated as already
	// carrying a known calling code.
	minWithCountryCode = 10
)

// DefaultPrefixes covers the calling codes of the larger markets.
var DefaultPrefixes = []string{
	"1", "7", "20", "27", "30", "31", "32", "33", "34", "39", "41", "44", "45", "46", "47", "49",
	"52", "55", "60", "61", "62", "63", "64", "65", "66", "81", "82", "84", "86", "90", "91", "92",
	"94", "234", "254", "880", "966", "971", "972", "974", "977",
}

var ErrAmbiguousNumber = errors.New("ambiguous phone number")

// Normalizer is immutable after New and safe for concurrent use.
type Normalizer struct {
	countryCode string
	prefixes    []string
	minDigits   int
}

type Options struct {
	DefaultCountryCode string
	KnownPrefixes      []string
	// MinDigits is the shortest canonical number Check accepts. 0 uses
	// DefaultMinDigits, negative disables the check.
	MinDigits int
}

func New(opt Options) (*Normalizer, error) {
	cc := onlyDigits(opt.DefaultCountryCode)
	if cc == "" {
		cc = DefaultCountryCode
	}
	if strings.HasPrefix(cc, "0") {
		return nil, fmt.Errorf("default country code %q must not start with 0", opt.DefaultCountryCode)
	}

	src := opt.KnownPrefixes
	if len(src) == 0 {
		src = DefaultPrefixes
	}
	prefixes := make([]string, 0, len(src))
	for _, p := range src {
		p = onlyDigits(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "0") {
			return nil, fmt.Errorf("known prefix %q must not start with 0", p)
		}
		prefixes = append(prefixes, p)
	}
	// Longest first so "971" is tried before "97"-style shorter entries.
	sort.SliceStable(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	minDigits := opt.MinDigits
	if minDigits == 0 {
		minDigits = DefaultMinDigits
	}
	return &Normalizer{countryCode: cc, prefixes: prefixes, minDigits: minDigits}, nil
}

// Default returns a Normalizer with the default table and country code.
func Default() *Normalizer {
	n, _ := New(Options{})
	return n
}

// Normalize returns a best-effort canonical digit string. It never fails.
func (n *Normalizer) Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	plus := strings.HasPrefix(trimmed, "+")
	digits := onlyDigits(trimmed)

	switch {
	case digits == "":
		return ""
	case plus:
		return strings.TrimLeft(digits, "0")
	case strings.HasPrefix(digits, "00"):
		return strings.TrimLeft(digits, "0")
	case len(digits) >= minWithCountryCode && n.hasKnownPrefix(digits):
		return digits
	case strings.HasPrefix(digits, "0"):
		return n.countryCode + digits[1:]
	default:
		return digits
	}
}

// Check reports canonical numbers too short to be addressed safely.
func (n *Normalizer) Check(canonical string) error {
	if canonical == "" {
		return fmt.Errorf("%w: no digits", ErrAmbiguousNumber)
	}
	if n.minDigits > 0 && len(canonical) < n.minDigits {
		return fmt.Errorf("%w: %q has %d digits, want at least %d", ErrAmbiguousNumber, canonical, len(canonical), n.minDigits)
	}
	return nil
}

func (n *Normalizer) CountryCode() string { return n.countryCode }

func (n *Normalizer) hasKnownPrefix(digits string) bool {
	for _, p := range n.prefixes {
		if strings.HasPrefix(digits, p) {
			return true
		}
	}
	return false
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
