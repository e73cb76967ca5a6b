package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.SourceConfig{
		Name:              "homeharvest",
		Enabled:           true,
		RequestsPerSecond: 1000,
		MaxConcurrent:     5,
		MaxRetries:        1,
		TimeoutSeconds:    5,
	}
	c := NewClient(gateway.New(cfg, &http.Client{}, reporting.Nop(), nil))
	c.SetBaseURL(srv.URL)
	return c, srv
}

const searchPage = `<html><script id="__NEXT_DATA__" type="application/json">{
	"props":{"pageProps":{"searchResults":{"home_search":{"results":[
		{
			"location":{"address":{"line":"123 Main St"}},
			"advertisers":[{"name":"Bob Green","phones":[{"number":"5552223333"}],"office":{"name":"Compass"}}],
			"permalink":"123-Main-St_Phoenix_AZ_85001_M1234",
			"list_date":"2026-08-14",
			"list_price":450000,
			"description":{"days_on_market":10}
		},
		{
			"location":{"address":{"line":"456 Oak Ave"}},
			"advertisers":[{"name":"nan"}],
			"flags":{"is_for_sale_by_owner":true},
			"property_url":"https://example.com/456-oak"
		}
	]}}}}
}</script></html>`

func TestSearch(t *testing.T) {
	var gotPath string
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, searchPage)
	}))

	rows, err := c.Search(context.Background(), "123 Main St, Phoenix, AZ", ForSale)
	require.NoError(t, err)
	assert.Equal(t, "/realestateandhomes-search/123-Main-St-Phoenix-AZ", gotPath)
	require.Len(t, rows, 2)

	assert.Equal(t, "123 Main St", rows[0].StreetLine)
	assert.Equal(t, "Bob Green", rows[0].AgentName)
	assert.Equal(t, "5552223333", rows[0].AgentPhone)
	assert.Equal(t, "Compass", rows[0].BrokerName)
	assert.Equal(t, srv.URL+"/realestateandhomes-detail/123-Main-St_Phoenix_AZ_85001_M1234", rows[0].PropertyURL)
	assert.Equal(t, "2026-08-14", rows[0].ListDate)
	assert.Equal(t, "10", rows[0].DaysOnMarket)
	assert.Equal(t, "450000", rows[0].ListPrice)
	assert.False(t, rows[0].IsFSBO)

	// Pandas-style NA sentinels count as missing
	assert.Empty(t, rows[1].AgentName)
	assert.True(t, rows[1].IsFSBO)
	assert.Equal(t, "https://example.com/456-oak", rows[1].PropertyURL)
}

func TestSearchListingTypePaths(t *testing.T) {
	var paths []string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		fmt.Fprint(w, `<html></html>`)
	}))

	ctx := context.Background()
	for _, lt := range []ListingType{ForSale, Sold, Pending} {
		rows, err := c.Search(ctx, "85001", lt)
		require.NoError(t, err)
		assert.Empty(t, rows)
	}

	assert.Equal(t, []string{
		"/realestateandhomes-search/85001",
		"/realestateandhomes-search/85001/show-recently-sold",
		"/realestateandhomes-search/85001/show-pending",
	}, paths)
}

func TestSearchNotFound(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	rows, err := c.Search(context.Background(), "00000", ForSale)
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestFirstSkipsNASentinels(t *testing.T) {
	r := gjson.Parse(`{"a":"<NA>","b":"None","c":" actual "}`)
	assert.Equal(t, "actual", first(r, "a", "b", "c"))
	assert.Equal(t, "", first(r, "a", "b"))
}
