// Package address normalizes U.S. property addresses and cleans the
// agent/owner fields scraped alongside them. Normalization output feeds the
// cache key, so the rewrite order here is load-bearing: unit designators,
// then name prefixes, then directionals, then street suffixes.
package address

import (
	"regexp"
	"strings"
)

// streetSuffixes maps full street suffixes to their USPS abbreviations
var streetSuffixes = map[string]string{
	"STREET": "ST", "AVENUE": "AVE", "BOULEVARD": "BLVD", "DRIVE": "DR",
	"LANE": "LN", "ROAD": "RD", "COURT": "CT", "CIRCLE": "CIR",
	"PLACE": "PL", "TERRACE": "TER", "WAY": "WAY", "TRAIL": "TRL",
	"PARKWAY": "PKWY", "HIGHWAY": "HWY",
}

// directionals maps full directionals to their abbreviations
var directionals = map[string]string{
	"NORTH": "N", "SOUTH": "S", "EAST": "E", "WEST": "W",
	"NORTHEAST": "NE", "NORTHWEST": "NW", "SOUTHEAST": "SE", "SOUTHWEST": "SW",
}

// stateAbbrevs maps full U.S. state names to 2-letter codes
var stateAbbrevs = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR",
	"CALIFORNIA": "CA", "COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE",
	"FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID",
	"ILLINOIS": "IL", "INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS",
	"KENTUCKY": "KY", "LOUISIANA": "LA", "MAINE": "ME", "MARYLAND": "MD",
	"MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN", "MISSISSIPPI": "MS",
	"MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV",
	"NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ", "NEW MEXICO": "NM", "NEW YORK": "NY",
	"NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK",
	"OREGON": "OR", "PENNSYLVANIA": "PA", "RHODE ISLAND": "RI",
	"SOUTH CAROLINA": "SC", "SOUTH DAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX",
	"UTAH": "UT", "VERMONT": "VT", "VIRGINIA": "VA", "WASHINGTON": "WA",
	"WEST VIRGINIA": "WV", "WISCONSIN": "WI", "WYOMING": "WY",
	"DISTRICT OF COLUMBIA": "DC",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	suiteRe      = regexp.MustCompile(`\bSUITE\b`)
	apartmentRe  = regexp.MustCompile(`\bAPARTMENT\b`)
	buildingRe   = regexp.MustCompile(`\bBUILDING\b`)
	floorRe      = regexp.MustCompile(`\bFLOOR\b`)
	mountRe      = regexp.MustCompile(`\bMOUNT\b`)
	saintRe      = regexp.MustCompile(`\bSAINT\b`)
	fortRe       = regexp.MustCompile(`\bFORT\b`)

	directionalRes = compileWordMap(directionals)
	suffixRes      = compileWordMap(streetSuffixes)
)

type wordRewrite struct {
	re   *regexp.Regexp
	abbr string
}

func compileWordMap(m map[string]string) []wordRewrite {
	rewrites := make([]wordRewrite, 0, len(m))
	for full, abbr := range m {
		rewrites = append(rewrites, wordRewrite{
			re:   regexp.MustCompile(`\b` + full + `\b`),
			abbr: abbr,
		})
	}
	return rewrites
}

// Normalize rewrites an address into a canonical uppercase abbreviated form.
// Name prefixes (MOUNT, SAINT, FORT) are rewritten before street suffixes so
// that "SAINT" becomes "ST" without "STREET" having been consumed first.
func Normalize(address string) string {
	if address == "" {
		return ""
	}

	addr := strings.ToUpper(strings.TrimSpace(address))
	addr = whitespaceRe.ReplaceAllString(addr, " ")

	addr = strings.ReplaceAll(addr, ".", "")
	addr = strings.ReplaceAll(addr, "#", "APT ")

	// Unit designators
	addr = suiteRe.ReplaceAllString(addr, "STE")
	addr = apartmentRe.ReplaceAllString(addr, "APT")
	addr = buildingRe.ReplaceAllString(addr, "BLDG")
	addr = floorRe.ReplaceAllString(addr, "FL")

	// Name prefixes
	addr = mountRe.ReplaceAllString(addr, "MT")
	addr = saintRe.ReplaceAllString(addr, "ST")
	addr = fortRe.ReplaceAllString(addr, "FT")

	for _, rw := range directionalRes {
		addr = rw.re.ReplaceAllString(addr, rw.abbr)
	}
	for _, rw := range suffixRes {
		addr = rw.re.ReplaceAllString(addr, rw.abbr)
	}

	return addr
}

// NormalizeState converts a full state name to its 2-letter abbreviation.
// Already-abbreviated and unknown values pass through uppercased.
func NormalizeState(state string) string {
	if state == "" {
		return ""
	}
	upper := strings.ToUpper(strings.TrimSpace(state))
	if len(upper) == 2 {
		return upper
	}
	if abbr, ok := stateAbbrevs[upper]; ok {
		return abbr
	}
	return upper
}

var slugRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func slugify(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// RedfinSlug builds the hyphenated slug Redfin's autocomplete expects
func RedfinSlug(address, city, state string) string {
	parts := []string{address}
	if city != "" {
		parts = append(parts, city)
	}
	if state != "" {
		parts = append(parts, NormalizeState(state))
	}
	return slugify(strings.Join(parts, " "))
}

// RealtorPath builds a realtor.com detail-page path from address components.
// Returns "" when the components are too sparse for a direct URL: either
// city and state or a ZIP must accompany the street address.
func RealtorPath(address, city, state, zipCode string) string {
	if address == "" {
		return ""
	}
	addrSlug := slugify(address)
	st := NormalizeState(state)

	if city != "" && st != "" {
		path := "/realestateandhomes-detail/" + addrSlug + "_" + slugify(city) + "_" + st
		if zipCode != "" {
			path += "_" + zipCode
		}
		return path
	}
	if zipCode != "" {
		return "/realestateandhomes-detail/" + addrSlug + "_" + zipCode
	}
	return ""
}

// RealtorURL builds a full realtor.com property detail URL
func RealtorURL(address, city, state, zipCode string) string {
	path := RealtorPath(address, city, state, zipCode)
	if path == "" {
		return ""
	}
	return "https://www.realtor.com" + path
}
