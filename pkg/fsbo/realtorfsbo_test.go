package fsbo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
	"github.com/dispodojo/agent-finder/pkg/scrape/harvest"
)

const realtorFSBOPage = `<html><script id="__NEXT_DATA__" type="application/json">{
	"props":{"pageProps":{"searchResults":{"home_search":{"results":[
		{
			"location":{"address":{"line":"456 Cactus Ln","city":"Phoenix","state_code":"AZ","postal_code":"85002"}},
			"advertisers":[{"name":"Jane Agent","office":{"name":"Compass Realty"}}],
			"permalink":"456-Cactus-Ln_M2",
			"list_price":425000
		},
		{
			"location":{"address":{"line":"123 Desert Rd","city":"Phoenix","state_code":"AZ","postal_code":"85001"}},
			"advertisers":[{"name":"mary owner","phones":[{"number":"5553334444"}]}],
			"permalink":"123-Desert-Rd_M1",
			"list_price":"350000.0",
			"description":{"beds":3,"baths":2},
			"flags":{"is_for_sale_by_owner":true}
		}
	]}}}}
}</script></html>`

func TestRealtorFSBOSearchArea(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, realtorFSBOPage)
	}))
	defer srv.Close()

	client := harvest.NewClient(testGateway("realtor_fsbo"))
	client.SetBaseURL(srv.URL)
	s := NewRealtorFSBO(client, reporting.Nop())

	listings, err := s.SearchArea(context.Background(), testCriteria())
	require.NoError(t, err)

	// The agent-represented row is excluded; only the owner row survives
	require.Len(t, listings, 1)
	l := listings[0]
	assert.Equal(t, "123 Desert Rd, Phoenix, AZ 85001", l.Address)
	assert.Equal(t, "Mary Owner", l.OwnerName)
	assert.Equal(t, "(555) 333-4444", l.Phone)
	require.NotNil(t, l.Price)
	assert.Equal(t, 350000, *l.Price)
	require.NotNil(t, l.Beds)
	assert.Equal(t, 3, *l.Beds)
	assert.Equal(t, srv.URL+"/realestateandhomes-detail/123-Desert-Rd_M1", l.ListingURL)
	assert.Equal(t, "realtor", l.Source)
	assert.Equal(t, models.ContactPartial, l.ContactStat)
}

func TestRowToListingExclusionHeuristic(t *testing.T) {
	criteria := testCriteria()

	// Agent plus brokerage means represented
	assert.Nil(t, rowToListing(harvest.Row{
		StreetLine: "456 Cactus Ln",
		AgentName:  "Jane Agent",
		BrokerName: "Compass Realty",
	}, criteria))

	// A bare name with no brokerage is kept; for owner listings the
	// advertiser is the seller
	l := rowToListing(harvest.Row{StreetLine: "123 Desert Rd", AgentName: "Mary Owner"}, criteria)
	require.NotNil(t, l)
	assert.Equal(t, "Mary Owner", l.OwnerName)

	// The FSBO flag overrides the heuristic
	l = rowToListing(harvest.Row{
		StreetLine: "123 Desert Rd",
		AgentName:  "Mary Owner",
		BrokerName: "Owner Services LLC",
		IsFSBO:     true,
	}, criteria)
	require.NotNil(t, l)

	assert.Nil(t, rowToListing(harvest.Row{AgentName: "No Address"}, criteria))
}

func TestRowToListingFilters(t *testing.T) {
	criteria := testCriteria()
	criteria.MinBeds = intPtr(4)

	l := rowToListing(harvest.Row{StreetLine: "123 Desert Rd", Beds: "3"}, criteria)
	assert.Nil(t, l)

	// Unknown beds pass a beds filter
	l = rowToListing(harvest.Row{StreetLine: "123 Desert Rd"}, criteria)
	assert.NotNil(t, l)
}
