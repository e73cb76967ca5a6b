package address

import (
	"regexp"
	"strings"

	"github.com/dispodojo/agent-finder/pkg/models"
)

var (
	unitRe         = regexp.MustCompile(`(?i)\s*(APT|APARTMENT|STE|SUITE|UNIT|BLDG|BUILDING|FL|FLOOR|#)\s*\S+`)
	streetNumberRe = regexp.MustCompile(`^(\d+\s+\S+(?:\s+\S+)?)`)
)

// StripUnit removes a trailing unit designator ("Apt 4B", "#12", "Suite
// 300") from an address line
func StripUnit(addr string) string {
	return strings.TrimSpace(unitRe.ReplaceAllString(addr, ""))
}

// suffixExpansions maps USPS abbreviations back to title-case full words,
// for alternate search queries against sources that index the full form
var suffixExpansions = func() map[string]string {
	m := make(map[string]string, len(streetSuffixes))
	for full, abbr := range streetSuffixes {
		m[abbr] = full[:1] + strings.ToLower(full[1:])
	}
	return m
}()

// ExpandSuffix rewrites the first abbreviated street suffix back to its
// full word ("123 Main St" becomes "123 Main Street"). Returns "" when the
// address carries no abbreviation to expand.
func ExpandSuffix(addr string) string {
	words := strings.Fields(addr)
	for i, w := range words {
		trimmed := strings.TrimRight(w, ",")
		full, ok := suffixExpansions[strings.ToUpper(trimmed)]
		if !ok || strings.EqualFold(full, trimmed) {
			continue
		}
		words[i] = full + w[len(trimmed):]
		return strings.Join(words, " ")
	}
	return ""
}

// Variants generates simplified forms of a property's address for retry
// searches: the unit-stripped address first, then just street number, street
// name, and ZIP. Returns nil when no simplification applies.
func Variants(p models.Property) []string {
	var variants []string
	addr := p.AddressLine
	if addr == "" {
		addr = p.RawAddress
	}

	stripped := StripUnit(addr)
	if stripped != "" && stripped != addr {
		parts := []string{stripped}
		for _, part := range []string{p.City, p.State, p.ZipCode} {
			if part != "" {
				parts = append(parts, part)
			}
		}
		variants = append(variants, strings.Join(parts, ", "))
	}

	if m := streetNumberRe.FindStringSubmatch(addr); m != nil && p.ZipCode != "" {
		simple := m[1] + ", " + p.ZipCode
		if !contains(variants, simple) {
			variants = append(variants, simple)
		}
	}

	return variants
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
