package fsbo

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

func testGateway(name string) *gateway.Gateway {
	cfg := config.SourceConfig{
		Name:              name,
		Enabled:           true,
		RequestsPerSecond: 1000,
		MaxConcurrent:     5,
		MaxRetries:        0,
		TimeoutSeconds:    5,
	}
	return gateway.New(cfg, &http.Client{}, reporting.Nop(), nil)
}

func testCriteria() models.FSBOSearchCriteria {
	return models.FSBOSearchCriteria{
		Location:     "Phoenix, AZ",
		LocationType: models.LocationCityState,
		RadiusMiles:  25,
	}
}

type fakeAreaScraper struct {
	name     string
	listings []models.FSBOListing
	err      error
}

func (f *fakeAreaScraper) Name() string { return f.name }

func (f *fakeAreaScraper) SearchArea(context.Context, models.FSBOSearchCriteria) ([]models.FSBOListing, error) {
	return f.listings, f.err
}

func testAggregator(scrapers ...Scraper) *Aggregator {
	return &Aggregator{
		cfg:      config.DefaultConfig(),
		logger:   reporting.Nop(),
		scrapers: scrapers,
	}
}

func TestRunMergesDuplicatesAcrossSources(t *testing.T) {
	siteA := &fakeAreaScraper{name: "fsbo.com", listings: []models.FSBOListing{{
		Address: "123 Desert Rd, Phoenix, AZ 85001",
		City:    "Phoenix",
		Phone:   "(555) 111-2222",
		Price:   intPtr(350000),
		Source:  "fsbo.com",
	}}}
	siteB := &fakeAreaScraper{name: "craigslist", listings: []models.FSBOListing{{
		Address:   "123 desert road",
		OwnerName: "John Seller",
		Email:     "john@example.com",
		Source:    "craigslist",
	}}}

	a := testAggregator(siteA, siteB)
	var events []Progress
	a.OnProgress(func(p Progress) { events = append(events, p) })

	merged, err := a.Run(context.Background(), testCriteria())
	require.NoError(t, err)
	require.Len(t, merged, 1)

	l := merged[0]
	assert.Equal(t, "John Seller", l.OwnerName)
	assert.Equal(t, "(555) 111-2222", l.Phone)
	assert.Equal(t, "john@example.com", l.Email)
	require.NotNil(t, l.Price)
	assert.Equal(t, 350000, *l.Price)
	assert.Equal(t, models.ContactComplete, l.ContactStat)
	// Scraper completion order varies, so check the provenance as a set
	assert.ElementsMatch(t, []string{"fsbo.com", "craigslist"}, strings.Split(l.Source, "+"))

	require.Len(t, events, 2)
	assert.Equal(t, "running", events[0].Status)
	last := events[1]
	assert.Equal(t, "complete", last.Status)
	assert.Equal(t, 2, last.ScrapersDone)
	assert.Equal(t, 2, last.ScrapersTotal)
	assert.Equal(t, 2, last.ListingsFound)
}

func TestRunScraperFailureDoesNotSinkOthers(t *testing.T) {
	down := &fakeAreaScraper{name: "zillow_fsbo", err: errors.New("blocked by source")}
	up := &fakeAreaScraper{name: "fsbo.com", listings: []models.FSBOListing{{
		Address: "456 Cactus Ln, Phoenix, AZ 85002",
		Source:  "fsbo.com",
	}}}

	a := testAggregator(down, up)
	merged, err := a.Run(context.Background(), testCriteria())
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "456 Cactus Ln, Phoenix, AZ 85002", merged[0].Address)
}

func TestRunDistinctAddressesStaySeparate(t *testing.T) {
	site := &fakeAreaScraper{name: "fsbo.com", listings: []models.FSBOListing{
		{Address: "123 Desert Rd, Phoenix, AZ 85001", Source: "fsbo.com"},
		{Address: "456 Cactus Ln, Phoenix, AZ 85002", Source: "fsbo.com"},
	}}

	merged, err := testAggregator(site).Run(context.Background(), testCriteria())
	require.NoError(t, err)
	assert.Len(t, merged, 2)
}

func TestDedupKey(t *testing.T) {
	// Abbreviation differences collapse to one key
	a := dedupKey(models.FSBOListing{Address: "123 Desert Road, Phoenix, AZ"}, false)
	b := dedupKey(models.FSBOListing{Address: "123 desert rd"}, false)
	assert.Equal(t, a, b)

	// A street line too short to trust falls back to the listing URL
	short := models.FSBOListing{Address: "1 A", ListingURL: "https://example.com/listing/1"}
	assert.Equal(t, "https://example.com/listing/1", dedupKey(short, false))
	short.ListingURL = ""
	assert.Equal(t, "1 A", dedupKey(short, false))

	// Locality-aware keys keep the same street line apart across towns
	phx := models.FSBOListing{Address: "123 Desert Rd", City: "Phoenix", ZipCode: "85001"}
	mesa := models.FSBOListing{Address: "123 Desert Rd", City: "Mesa", ZipCode: "85201"}
	assert.Equal(t, dedupKey(phx, false), dedupKey(mesa, false))
	assert.NotEqual(t, dedupKey(phx, true), dedupKey(mesa, true))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	site := &fakeAreaScraper{name: "fsbo.com"}
	_, err := testAggregator(site).Run(ctx, testCriteria())
	assert.ErrorIs(t, err, context.Canceled)
}
