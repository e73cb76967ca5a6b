package address

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dispodojo/agent-finder/pkg/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123 Main Street", "123 MAIN ST"},
		{"456 North Oak Avenue", "456 N OAK AVE"},
		{"789 Southwest Elm Boulevard", "789 SW ELM BLVD"},
		{"12 Mount Vernon Street", "12 MT VERNON ST"},
		{"34 Saint Charles Avenue", "34 ST CHARLES AVE"},
		{"56 Fort Worth Drive", "56 FT WORTH DR"},
		{"100 Main St. Suite 200", "100 MAIN ST STE 200"},
		{"100 Main St #4B", "100 MAIN ST APT 4B"},
		{"100 Main St Apartment 12, Floor 3", "100 MAIN ST APT 12, FL 3"},
		{"  100   Main   St  ", "100 MAIN ST"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestNormalizeOrderingSaintBeforeStreet(t *testing.T) {
	// SAINT must become ST before STREET is abbreviated, and the STREET
	// rewrite must not then mangle the result
	assert.Equal(t, "1 ST PAUL ST", Normalize("1 Saint Paul Street"))
}

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, "AZ", NormalizeState("Arizona"))
	assert.Equal(t, "AZ", NormalizeState("az"))
	assert.Equal(t, "NY", NormalizeState(" new york "))
	assert.Equal(t, "DC", NormalizeState("District of Columbia"))
	assert.Equal(t, "GUAM", NormalizeState("Guam"))
	assert.Equal(t, "", NormalizeState(""))
}

func TestURLBuilders(t *testing.T) {
	assert.Equal(t, "123-main-st-phoenix-az", RedfinSlug("123 Main St", "Phoenix", "Arizona"))
	assert.Equal(t,
		"https://www.realtor.com/realestateandhomes-detail/123-main-st_phoenix_AZ_85001",
		RealtorURL("123 Main St", "Phoenix", "Arizona", "85001"))
	assert.Equal(t,
		"https://www.realtor.com/realestateandhomes-detail/123-main-st_phoenix_AZ",
		RealtorURL("123 Main St", "Phoenix", "AZ", ""))
}

func TestCleanPhone(t *testing.T) {
	assert.Equal(t, "(555) 123-4567", CleanPhone("5551234567"))
	assert.Equal(t, "(555) 123-4567", CleanPhone("1-555-123-4567"))
	assert.Equal(t, "(555) 123-4567", CleanPhone("(555) 123.4567"))
	assert.Equal(t, "12345", CleanPhone(" 12345 "))
	assert.Equal(t, "", CleanPhone(""))
}

func TestCleanEmail(t *testing.T) {
	assert.Equal(t, "jane@kw.com", CleanEmail(" Jane@KW.com "))
	assert.Equal(t, "", CleanEmail("not-an-email"))
	assert.Equal(t, "", CleanEmail("a@b"))
	assert.Equal(t, "", CleanEmail(""))
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Jane Smith", CleanName("JANE SMITH DRE#01234567"))
	assert.Equal(t, "Jane Smith", CleanName("jane smith Lic# 98765"))
	assert.Equal(t, "Jane Smith", CleanName("  jane smith  "))
	assert.Equal(t, "", CleanName(""))
}

func TestNormalizeBrokerage(t *testing.T) {
	assert.Equal(t, "KELLER WILLIAMS REALTY", NormalizeBrokerage("KW Realty LLC"))
	assert.Equal(t, "BERKSHIRE HATHAWAY HOMESERVICES", NormalizeBrokerage("BHHS HomeServices"))
	assert.Equal(t, "ACME REALTY", NormalizeBrokerage("Acme Realty Inc"))
	assert.Equal(t, NormalizeBrokerage("Coldwell Banker Realtors"), NormalizeBrokerage("Coldwell Banker"))
}

func TestNamesMatch(t *testing.T) {
	assert.True(t, NamesMatch("Jane Smith", "jane smith"))
	assert.True(t, NamesMatch("Jane Smith Jr.", "Jane Smith"))
	assert.True(t, NamesMatch("Jane Smith, GRI", "Jane Smith"))
	assert.True(t, NamesMatch("Jane Smith", "Jane A Smith")) // middle initial
	assert.True(t, NamesMatch("Jon Smith", "John Smith"))    // one edit apart
	assert.False(t, NamesMatch("Jane Smith", "Robert Jones"))
	assert.False(t, NamesMatch("", "Jane Smith"))

	// A shared surname alone is not agreement
	assert.False(t, NamesMatch("Smith", "Jane Smith"))
	assert.False(t, NamesMatch("Jane Smith-Watson Realty Group", "Jane Smith"))
}

func TestDaysOnMarket(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "10", daysOnMarketAt("2026-08-14", now))
	assert.Equal(t, "10", daysOnMarketAt("08/14/2026", now))
	assert.Equal(t, "10", daysOnMarketAt("Aug 14, 2026", now))

	// Future dates clamp to zero
	assert.Equal(t, "0", daysOnMarketAt("2026-09-01", now))

	// Epoch seconds and milliseconds
	listed := time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "10", daysOnMarketAt(strconv.FormatInt(listed.Unix(), 10), now))
	assert.Equal(t, "10", daysOnMarketAt(strconv.FormatInt(listed.UnixMilli(), 10), now))

	assert.Equal(t, "", daysOnMarketAt("yesterday", now))
	assert.Equal(t, "", daysOnMarketAt("", now))
}

func TestVariants(t *testing.T) {
	p := models.Property{
		AddressLine: "123 Main St Apt 4B",
		City:        "Phoenix",
		State:       "AZ",
		ZipCode:     "85001",
	}
	got := Variants(p)
	assert.Equal(t, []string{
		"123 Main St, Phoenix, AZ, 85001",
		"123 Main St, 85001",
	}, got)

	// No unit and no zip means nothing to simplify
	assert.Empty(t, Variants(models.Property{AddressLine: "123 Main St"}))
}
