package address

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	nonDigitRe = regexp.MustCompile(`\D`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	dreRe      = regexp.MustCompile(`(?i)\s*DRE\s*#?\s*\d+`)
	licenseRe  = regexp.MustCompile(`(?i)\s*(?:lic|license)\s*#?\s*\d+`)

	titleCaser = cases.Title(language.AmericanEnglish)
)

// CleanPhone normalizes a phone number to (XXX) XXX-XXXX. Numbers that do
// not reduce to 10 digits (after stripping a leading 1) are returned trimmed
// but otherwise untouched.
func CleanPhone(phone string) string {
	if phone == "" {
		return ""
	}
	digits := nonDigitRe.ReplaceAllString(phone, "")
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	if len(digits) == 10 {
		return "(" + digits[:3] + ") " + digits[3:6] + "-" + digits[6:]
	}
	return strings.TrimSpace(phone)
}

// CleanEmail lowercases and validates an email address, returning "" for
// anything that does not look like one
func CleanEmail(email string) string {
	if email == "" {
		return ""
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if emailRe.MatchString(email) {
		return email
	}
	return ""
}

// CleanName strips license designations (DRE#, Lic#) from an agent name and
// title-cases the remainder
func CleanName(name string) string {
	if name == "" {
		return ""
	}
	name = strings.TrimSpace(name)
	name = dreRe.ReplaceAllString(name, "")
	name = licenseRe.ReplaceAllString(name, "")
	return strings.TrimSpace(titleCaser.String(strings.ToLower(name)))
}

// brokerageSuffixes are dropped before brokerage names are compared
var brokerageSuffixes = []string{
	"LLC", "INC", "CORP", "CORPORATION", "CO", "COMPANY",
	"GROUP", "ASSOCIATES", "REALTORS",
}

// brokerageAliases expands well-known brand initialisms when they lead the name
var brokerageAliases = []struct{ alias, full string }{
	{"KW", "KELLER WILLIAMS"},
	{"BHHS", "BERKSHIRE HATHAWAY"},
	{"CB", "COLDWELL BANKER"},
	{"C21", "CENTURY 21"},
}

var brokerageSuffixRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(brokerageSuffixes))
	for i, s := range brokerageSuffixes {
		res[i] = regexp.MustCompile(`\b` + s + `\b\.?`)
	}
	return res
}()

// NormalizeBrokerage uppercases a brokerage name, strips corporate suffixes,
// and expands leading brand initialisms (KW, BHHS, CB, C21)
func NormalizeBrokerage(name string) string {
	if name == "" {
		return ""
	}
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, re := range brokerageSuffixRes {
		n = re.ReplaceAllString(n, "")
	}
	for _, a := range brokerageAliases {
		if n == a.alias || strings.HasPrefix(n, a.alias+" ") {
			n = a.full + strings.TrimPrefix(n, a.alias)
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(n, " "))
}

// domFormats are tried in order when parsing listing dates
var domFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05.000000Z",
	"01/02/2006",
	"01-02-2006",
	"Jan 2, 2006",
}

// DaysOnMarket computes the day count between a listing date and now.
// Accepts the common date layouts plus unix timestamps in seconds or
// milliseconds; returns "" when the value cannot be parsed.
func DaysOnMarket(dateStr string) string {
	return daysOnMarketAt(dateStr, time.Now())
}

func daysOnMarketAt(dateStr string, now time.Time) string {
	if dateStr == "" {
		return ""
	}
	s := strings.TrimSpace(dateStr)
	if len(s) > 26 {
		s = s[:26]
	}
	for _, layout := range domFormats {
		if parsed, err := time.Parse(layout, s); err == nil {
			days := int(now.Sub(parsed).Hours() / 24)
			if days < 0 {
				days = 0
			}
			return strconv.Itoa(days)
		}
	}
	if ts, err := strconv.ParseInt(strings.TrimSpace(dateStr), 10, 64); err == nil {
		if ts > 1e12 {
			ts /= 1000
		}
		days := int(now.Sub(time.Unix(ts, 0)).Hours() / 24)
		if days < 0 {
			days = 0
		}
		return strconv.Itoa(days)
	}
	return ""
}
