// Package harvest is a client for Realtor.com's search pages, used as the
// backend for the homeharvest agent source and the realtor FSBO scraper.
// A search returns the embedded result rows for a location; callers pick
// the row they want and decide what its fields mean.
package harvest

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/dispodojo/agent-finder/pkg/gateway"
)

// ListingType selects which listing bucket to search
type ListingType string

const (
	ForSale ListingType = "for_sale"
	Sold    ListingType = "sold"
	Pending ListingType = "pending"
)

// pathSuffix returns the search-path segment for a listing type
func (t ListingType) pathSuffix() string {
	switch t {
	case Sold:
		return "/show-recently-sold"
	case Pending:
		return "/show-pending"
	}
	return ""
}

// Row is one search result. Field names shift between page generations,
// so every field is resolved from its known aliases during parsing and
// empty means the page did not carry it.
type Row struct {
	StreetLine   string
	City         string
	State        string
	ZipCode      string
	AgentName    string
	AgentPhone   string
	AgentEmail   string
	BrokerName   string
	PropertyURL  string
	ListDate     string
	DaysOnMarket string
	ListPrice    string
	Beds         string
	Baths        string
	IsFSBO       bool
}

// Client searches Realtor.com result pages
type Client struct {
	gw      *gateway.Gateway
	baseURL string
}

// NewClient creates a harvest client on the given gateway
func NewClient(gw *gateway.Gateway) *Client {
	return &Client{gw: gw, baseURL: "https://www.realtor.com"}
}

// SetBaseURL points the client at a different host, for tests
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

var locationSlugRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Search fetches one results page for a location and returns its rows.
// A location that resolves to no results returns an empty slice, not an
// error.
func (c *Client) Search(ctx context.Context, location string, listingType ListingType) ([]Row, error) {
	slug := strings.Trim(locationSlugRe.ReplaceAllString(location, "-"), "-")
	searchURL := c.baseURL + "/realestateandhomes-search/" + slug + listingType.pathSuffix()

	resp, err := c.gw.GetWithHeaders(ctx, searchURL, nil,
		map[string]string{"Referer": c.baseURL})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, nil
	}

	return parseResults(resp.Body, c.baseURL), nil
}

// resultPaths are the locations search rows have lived at across site
// generations
var resultPaths = []string{
	"props.pageProps.searchResults.home_search.results",
	"props.pageProps.properties",
}

func parseResults(body []byte, baseURL string) []Row {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	raw := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if raw == "" {
		return nil
	}

	data := gjson.Parse(raw)
	var results gjson.Result
	for _, path := range resultPaths {
		if v := data.Get(path); v.IsArray() {
			results = v
			break
		}
	}

	var rows []Row
	results.ForEach(func(_, r gjson.Result) bool {
		rows = append(rows, parseRow(r, baseURL))
		return true
	})
	return rows
}

func parseRow(r gjson.Result, baseURL string) Row {
	row := Row{
		StreetLine: first(r,
			"location.address.line", "full_street_line", "street_address",
			"address", "address_line"),
		City:  first(r, "location.address.city", "city"),
		State: first(r, "location.address.state_code", "state_code", "state"),
		ZipCode: first(r,
			"location.address.postal_code", "zip_code", "postal_code"),
		AgentName: first(r,
			"advertisers.0.name", "agent_name", "agent", "list_agent_name"),
		AgentPhone: first(r,
			"advertisers.0.phones.0.number", "agent_phone", "list_agent_phone"),
		AgentEmail: first(r,
			"advertisers.0.email", "agent_email", "list_agent_email"),
		BrokerName: first(r,
			"advertisers.0.office.name", "broker_name", "broker", "brokerage",
			"office_name"),
		ListDate: first(r, "list_date", "listed_date", "date_listed"),
		DaysOnMarket: first(r,
			"description.days_on_market", "days_on_market", "dom", "days_on_mls"),
		ListPrice: first(r,
			"list_price", "price", "listing_price", "sale_price", "sold_price",
			"description.sold_price"),
		Beds:  first(r, "description.beds", "beds", "bedrooms"),
		Baths: first(r, "description.baths", "baths", "bathrooms"),
		IsFSBO: strings.EqualFold(first(r, "source.type", "listing_source"), "fsbo") ||
			r.Get("flags.is_for_sale_by_owner").Bool(),
	}

	if permalink := r.Get("permalink").String(); permalink != "" {
		row.PropertyURL = baseURL + "/realestateandhomes-detail/" + permalink
	} else {
		row.PropertyURL = first(r, "property_url", "url", "detail_url")
	}

	return row
}

// first returns the first alias path carrying a usable value. The sentinel
// strings pandas-style exports use for missing data count as empty.
func first(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := strings.TrimSpace(r.Get(p).String())
		switch strings.ToLower(v) {
		case "", "nan", "none", "<na>", "na", "null":
			continue
		}
		return v
	}
	return ""
}
