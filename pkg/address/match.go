package address

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// matchThreshold is the minimum similarity ratio (0-100) for two agent
// names to count as the same person
const matchThreshold = 85

var nonAlphaRe = regexp.MustCompile(`[^a-zA-Z\s]`)

// designations are professional suffixes stripped before name comparison
var designations = []string{
	"jr", "sr", "iii", "ii", "iv", "pa", "gri", "crs", "abr",
	"srs", "crb", "green", "epro", "rea",
}

var designationRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(designations))
	for i, d := range designations {
		res[i] = regexp.MustCompile(`\b` + d + `\b`)
	}
	return res
}()

func normalizeNameForComparison(name string) string {
	n := strings.ToLower(strings.TrimSpace(nonAlphaRe.ReplaceAllString(name, "")))
	for _, re := range designationRes {
		n = re.ReplaceAllString(n, "")
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(n, " "))
}

// NamesMatch reports whether two agent names refer to the same person:
// exact after normalization, or Levenshtein similarity at or above the
// threshold. Bare substring containment is not enough; "Smith" listed by
// one source must not verify "Jane Smith" from another.
func NamesMatch(name1, name2 string) bool {
	if name1 == "" || name2 == "" {
		return false
	}
	n1 := normalizeNameForComparison(name1)
	n2 := normalizeNameForComparison(name2)
	if n1 == n2 {
		return true
	}
	return similarityRatio(n1, n2) >= matchThreshold
}

// similarityRatio maps Levenshtein distance onto a 0-100 scale where 100 is
// an exact match, normalized by the combined length so that a short
// insertion into a long name stays a near-match
func similarityRatio(a, b string) int {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return (total - dist) * 100 / total
}
