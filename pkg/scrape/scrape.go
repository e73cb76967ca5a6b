// Package scrape contains the per-source listing-agent scrapers. Every
// scraper implements the same contract: a miss (property not on the source,
// or a page whose markup no longer matches) is (nil, nil), so the caller can
// move on to the next source; errors are reserved for blocks, open circuits,
// and transport failures.
package scrape

import (
	"context"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dispodojo/agent-finder/pkg/models"
)

// Scraper looks up the listing agent for one property on one source
type Scraper interface {
	// Name returns the source name, matching its config key
	Name() string
	// Search returns the agent info for the property, or (nil, nil) when
	// the source has no usable listing for it
	Search(ctx context.Context, prop models.Property) (*models.AgentInfo, error)
}

// formatPrice renders a dollar amount with thousands separators
func formatPrice(n int64) string {
	if n <= 0 {
		return ""
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	b.WriteByte('$')
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// priceString renders a JSON price value: numbers get dollar formatting,
// preformatted strings pass through
func priceString(v gjson.Result) string {
	switch v.Type {
	case gjson.Number:
		return formatPrice(int64(v.Float()))
	case gjson.String:
		return v.String()
	}
	return ""
}

// firstJSON returns the first path in the parsed document that holds a
// non-empty value
func firstJSON(doc gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() && v.String() != "" {
			return v
		}
	}
	return gjson.Result{}
}
