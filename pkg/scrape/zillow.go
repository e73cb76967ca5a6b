package scrape

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// Zillow scrapes Zillow property pages. An address search either redirects
// straight to the detail page or returns a results page to pick the first
// hit from; the detail page's attribution data carries the agent.
type Zillow struct {
	gw      *gateway.Gateway
	logger  *reporting.Logger
	baseURL string
}

// NewZillow creates the Zillow scraper
func NewZillow(gw *gateway.Gateway, logger *reporting.Logger) *Zillow {
	return &Zillow{
		gw:      gw,
		logger:  logger.WithField("scraper", "zillow"),
		baseURL: "https://www.zillow.com",
	}
}

// Name returns the source name
func (s *Zillow) Name() string { return "zillow" }

// Search resolves the address to a detail page and parses it
func (s *Zillow) Search(ctx context.Context, prop models.Property) (*models.AgentInfo, error) {
	detailURL, err := s.searchProperty(ctx, prop)
	if err != nil {
		return nil, err
	}
	if detailURL == "" {
		return nil, nil
	}
	return s.fetchDetailPage(ctx, detailURL)
}

func (s *Zillow) searchProperty(ctx context.Context, prop models.Property) (string, error) {
	query := address.Normalize(prop.FullAddress())
	searchURL := s.baseURL + "/homes/" + url.QueryEscape(query) + "_rb/"

	resp, err := s.gw.GetWithHeaders(ctx, searchURL, nil, map[string]string{
		"Referer": s.baseURL + "/",
		"Accept":  "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", nil
	}

	// An exact address match redirects to the detail page
	if strings.Contains(resp.URL, "/homedetails/") {
		return resp.URL, nil
	}

	if raw := nextData(resp.Body); raw != "" {
		detail := gjson.Parse(raw).
			Get("props.pageProps.searchPageState.cat1.searchResults.listResults.0.detailUrl").
			String()
		if detail != "" {
			return s.absolute(detail), nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", nil
	}
	if href, ok := doc.Find(`a[href*="/homedetails/"]`).First().Attr("href"); ok && href != "" {
		return s.absolute(href), nil
	}
	return "", nil
}

func (s *Zillow) absolute(href string) string {
	if strings.HasPrefix(href, "/") {
		return s.baseURL + href
	}
	return href
}

func (s *Zillow) fetchDetailPage(ctx context.Context, pageURL string) (*models.AgentInfo, error) {
	resp, err := s.gw.GetWithHeaders(ctx, pageURL, nil,
		map[string]string{"Referer": s.baseURL + "/"})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, nil
	}
	return parseZillowPage(resp.Body, pageURL), nil
}

// parseZillowPage extracts agent attribution from a detail page. The
// property object sometimes sits directly under pageProps and sometimes
// inside gdpClientCache, which itself is sometimes a JSON string.
func parseZillowPage(body []byte, listingURL string) *models.AgentInfo {
	var agentName, brokerage, phone string

	raw := nextData(body)
	pageProps := gjson.Parse(raw).Get("props.pageProps")
	property := pageProps.Get("property")

	if !property.Get("attributionInfo").Exists() {
		if cached := unwrapGdpCache(pageProps.Get("componentProps.gdpClientCache")); cached.Exists() {
			property = cached
		}
	}

	if attr := property.Get("attributionInfo"); attr.Exists() {
		agentName = attr.Get("agentName").String()
		phone = firstJSON(attr, "agentPhoneNumber", "brokerPhoneNumber").String()
		brokerage = attr.Get("brokerName").String()
	}

	if agentName == "" {
		if agent := property.Get("listingAgent"); agent.Exists() {
			agentName = agent.Get("name").String()
			if p := agent.Get("phone").String(); p != "" {
				phone = p
			}
		}
	}

	// Last resort: scan every embedded JSON blob for agent attribution
	if agentName == "" {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
			doc.Find(`script[type="application/json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
				blob := gjson.Parse(sel.Text())
				if name := deepFind(blob, "agentName", 10); name != "" {
					agentName = name
					phone = deepFind(blob, "agentPhoneNumber", 10)
					brokerage = deepFind(blob, "brokerName", 10)
					return false
				}
				return true
			})
		}
	}

	if agentName == "" {
		return nil
	}

	zprop := gjson.Parse(raw).Get("props.pageProps.property")
	listDate := firstJSON(zprop, "datePosted", "dateSold").String()
	daysOnMarket := ""
	if dom := firstJSON(zprop, "daysOnZillow", "timeOnZillow"); dom.Exists() {
		daysOnMarket = dom.String()
	} else if listDate != "" {
		daysOnMarket = address.DaysOnMarket(listDate)
	}

	listingPrice := priceString(firstJSON(zprop, "price", "listingPrice", "list_price"))
	if listingPrice == "" {
		listingPrice = priceString(firstJSON(property, "price"))
	}

	return &models.AgentInfo{
		AgentName:    address.CleanName(agentName),
		Brokerage:    strings.TrimSpace(brokerage),
		Phone:        address.CleanPhone(phone),
		Source:       "zillow",
		ListingURL:   listingURL,
		ListDate:     listDate,
		DaysOnMarket: daysOnMarket,
		ListingPrice: listingPrice,
	}
}

// unwrapGdpCache digs the property object out of gdpClientCache. The cache
// is keyed by GraphQL query and may arrive double-encoded as a string.
func unwrapGdpCache(cache gjson.Result) gjson.Result {
	if cache.Type == gjson.String {
		cache = gjson.Parse(cache.String())
	}
	if !cache.IsObject() {
		return gjson.Result{}
	}
	var property gjson.Result
	cache.ForEach(func(_, nested gjson.Result) bool {
		if p := nested.Get("property"); p.Exists() {
			property = p
			return false
		}
		return true
	})
	return property
}

// deepFind searches a parsed JSON value for the first non-empty occurrence
// of key, up to maxDepth levels down
func deepFind(v gjson.Result, key string, maxDepth int) string {
	if maxDepth <= 0 {
		return ""
	}
	if v.IsObject() {
		if hit := v.Get(key); hit.Exists() && hit.String() != "" {
			return hit.String()
		}
	}
	var found string
	if v.IsObject() || v.IsArray() {
		v.ForEach(func(_, child gjson.Result) bool {
			found = deepFind(child, key, maxDepth-1)
			return found == ""
		})
	}
	return found
}
