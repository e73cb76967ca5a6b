package scrape

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// Realtor scrapes realtor.com property pages. The pages embed their data
// as JSON in a __NEXT_DATA__ script tag; the scraper builds the detail URL
// directly from the address, falls back to the search page when the direct
// URL misses, and parses the embedded JSON either way.
type Realtor struct {
	gw      *gateway.Gateway
	logger  *reporting.Logger
	baseURL string
}

// NewRealtor creates the realtor.com scraper
func NewRealtor(gw *gateway.Gateway, logger *reporting.Logger) *Realtor {
	return &Realtor{
		gw:      gw,
		logger:  logger.WithField("scraper", "realtor"),
		baseURL: "https://www.realtor.com",
	}
}

// Name returns the source name
func (s *Realtor) Name() string { return "realtor" }

// Search tries the direct detail URL first and always falls back to the
// search page when that yields nothing
func (s *Realtor) Search(ctx context.Context, prop models.Property) (*models.AgentInfo, error) {
	addr := prop.AddressLine
	if addr == "" {
		addr = prop.RawAddress
	}

	if path := address.RealtorPath(addr, prop.City, prop.State, prop.ZipCode); path != "" {
		info, err := s.fetchAndParse(ctx, s.baseURL+path)
		if err != nil {
			return nil, err
		}
		if info != nil {
			return info, nil
		}
	}

	return s.searchAndParse(ctx, prop)
}

var realtorQueryRe = regexp.MustCompile(`[^a-zA-Z0-9\s,-]`)

func (s *Realtor) searchAndParse(ctx context.Context, prop models.Property) (*models.AgentInfo, error) {
	query := realtorQueryRe.ReplaceAllString(address.Normalize(prop.FullAddress()), "")
	query = strings.ReplaceAll(query, " ", "-")
	query = strings.ReplaceAll(query, ",", "")
	query = strings.ReplaceAll(query, "--", "-")

	resp, err := s.gw.GetWithHeaders(ctx, s.baseURL+"/realestateandhomes-search/"+query,
		nil, map[string]string{"Referer": s.baseURL})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil
	}

	href, ok := doc.Find(`a[href*="/realestateandhomes-detail/"]`).First().Attr("href")
	if !ok || href == "" {
		return nil, nil
	}
	if strings.HasPrefix(href, "/") {
		href = s.baseURL + href
	}

	return s.fetchAndParse(ctx, href)
}

func (s *Realtor) fetchAndParse(ctx context.Context, pageURL string) (*models.AgentInfo, error) {
	resp, err := s.gw.GetWithHeaders(ctx, pageURL, nil, map[string]string{"Referer": s.baseURL})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, nil
	}
	return parseRealtorPage(resp.Body), nil
}

// parseRealtorPage extracts agent info from the __NEXT_DATA__ blob. The
// property object has lived at two paths across site generations, and the
// agent at two more within it.
func parseRealtorPage(body []byte) *models.AgentInfo {
	raw := nextData(body)
	if raw == "" {
		return nil
	}
	props := gjson.Parse(raw).Get("props.pageProps")

	property := props.Get("property")
	if !property.Exists() {
		property = props.Get("initialState.propertyDetails.propertyDetails")
	}
	if !property.Exists() {
		return nil
	}

	listing := property.Get("listing")
	listAgent := listing.Get("list_agent")
	listOffice := listing.Get("list_office")

	agentName := firstJSON(listAgent, "name", "agent_name").String()
	phone := listAgent.Get("phone").String()
	if phone == "" {
		phone = listAgent.Get("phones.0.number").String()
	}
	email := listAgent.Get("email").String()
	brokerage := firstJSON(listOffice, "name", "office_name").String()

	// Newer pages only carry agent identity in the branding array
	if agentName == "" {
		property.Get("branding").ForEach(func(_, brand gjson.Result) bool {
			switch brand.Get("type").String() {
			case "Agent":
				agentName = brand.Get("name").String()
			case "Office":
				brokerage = brand.Get("name").String()
			}
			if p := brand.Get("phone").String(); p != "" {
				phone = p
			}
			return true
		})
	}

	if agentName == "" {
		return nil
	}

	description := property.Get("description")
	listDate := firstJSON(listing, "list_date").String()
	if listDate == "" {
		listDate = firstJSON(property, "description.list_date", "list_date").String()
	}
	daysOnMarket := ""
	if dom := firstJSON(description, "days_on_market"); dom.Exists() {
		daysOnMarket = dom.String()
	} else if dom := firstJSON(property, "days_on_market"); dom.Exists() {
		daysOnMarket = dom.String()
	} else if listDate != "" {
		daysOnMarket = address.DaysOnMarket(listDate)
	}

	listingPrice := priceString(firstJSON(listing, "list_price"))
	if listingPrice == "" {
		listingPrice = priceString(firstJSON(property,
			"description.list_price", "list_price", "price"))
	}

	return &models.AgentInfo{
		AgentName:    address.CleanName(agentName),
		Brokerage:    strings.TrimSpace(brokerage),
		Phone:        address.CleanPhone(phone),
		Email:        address.CleanEmail(email),
		Source:       "realtor",
		ListDate:     listDate,
		DaysOnMarket: daysOnMarket,
		ListingPrice: listingPrice,
	}
}

// nextData returns the raw JSON inside a page's __NEXT_DATA__ script tag,
// or "" when the page carries none
func nextData(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
}
