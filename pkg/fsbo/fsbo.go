// Package fsbo aggregates for-sale-by-owner listings from five area
// scrapers. Each scraper searches a location independently; the aggregator
// fans them out concurrently and merges duplicate listings so a seller who
// posts on several sites shows up once with the union of their contact
// details.
package fsbo

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/models"
)

// Scraper searches one FSBO source for an area. A source that responds but
// carries no listings returns an empty slice and a nil error; blocks,
// transport failures, and open circuits surface as errors and the
// aggregator logs them and moves on.
type Scraper interface {
	Name() string
	SearchArea(ctx context.Context, criteria models.FSBOSearchCriteria) ([]models.FSBOListing, error)
}

// sourceDefaults carry the politeness settings per FSBO source. The
// dedicated FSBO sites tolerate more traffic than the big portals.
var sourceDefaults = map[string]config.SourceConfig{
	"fsbo.com":           {Name: "fsbo.com", Enabled: true, RequestsPerSecond: 1.0, MaxConcurrent: 3, MaxRetries: 2, TimeoutSeconds: 30},
	"forsalebyowner.com": {Name: "forsalebyowner.com", Enabled: true, RequestsPerSecond: 1.0, MaxConcurrent: 3, MaxRetries: 2, TimeoutSeconds: 30},
	"zillow_fsbo":        {Name: "zillow_fsbo", Enabled: true, RequestsPerSecond: 0.5, MaxConcurrent: 2, MaxRetries: 2, TimeoutSeconds: 30},
	"realtor_fsbo":       {Name: "realtor_fsbo", Enabled: true, RequestsPerSecond: 0.5, MaxConcurrent: 2, MaxRetries: 2, TimeoutSeconds: 45},
	"craigslist":         {Name: "craigslist", Enabled: true, RequestsPerSecond: 1.0, MaxConcurrent: 3, MaxRetries: 2, TimeoutSeconds: 30},
}

var (
	digitsRe       = regexp.MustCompile(`\d+`)
	decimalRe      = regexp.MustCompile(`[\d.]+`)
	nonDigitRe     = regexp.MustCompile(`[^\d]`)
	cityStateZipRe = regexp.MustCompile(`([^,]+),\s*([A-Z]{2})\s*(\d{5})?`)

	bedsTextRe  = regexp.MustCompile(`(?i)(\d+)\s*(?:bd|bed|BR)`)
	bathsTextRe = regexp.MustCompile(`(?i)([\d.]+)\s*(?:ba|bath|BTH)`)
	phoneTextRe = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
)

// parsePrice strips everything but digits from a price string. Returns nil
// when no digits remain.
func parsePrice(text string) *int {
	digits := nonDigitRe.ReplaceAllString(text, "")
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}

// parseIntIn extracts the first integer in a string
func parseIntIn(text string) *int {
	m := digitsRe.FindString(text)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// parseFloatIn extracts the first decimal number in a string
func parseFloatIn(text string) *float64 {
	m := decimalRe.FindString(text)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &f
}

// splitCityStateZip parses the "City, ST 85001" tail out of a raw address
func splitCityStateZip(raw string) (city, state, zip string) {
	m := cityStateZipRe.FindStringSubmatch(raw)
	if m == nil {
		return "", "", ""
	}
	return strings.TrimSpace(m[1]), m[2], m[3]
}

// searchLocation reduces the criteria location to a single searchable
// token: the first ZIP for zip lists, the location as given otherwise
func searchLocation(c models.FSBOSearchCriteria) string {
	if c.LocationType == models.LocationZip {
		if zips := c.ZipCodes(); len(zips) > 0 {
			return zips[0]
		}
	}
	return strings.TrimSpace(c.Location)
}

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }
