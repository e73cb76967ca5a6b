package scrape

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// Redfin scrapes Redfin's undocumented Stingray API. It is the primary
// source: three API calls per property, no HTML parsing.
//
//  1. location-autocomplete resolves the address to a property URL path
//  2. initialInfo resolves the path to a propertyId and listingId
//  3. belowTheFold carries the listing agent details
type Redfin struct {
	gw      *gateway.Gateway
	logger  *reporting.Logger
	baseURL string
}

// NewRedfin creates the Redfin scraper
func NewRedfin(gw *gateway.Gateway, logger *reporting.Logger) *Redfin {
	return &Redfin{
		gw:      gw,
		logger:  logger.WithField("scraper", "redfin"),
		baseURL: "https://www.redfin.com",
	}
}

// Name returns the source name
func (s *Redfin) Name() string { return "redfin" }

// Search runs the three-step Stingray lookup, retrying with simplified
// query variants when autocomplete finds nothing
func (s *Redfin) Search(ctx context.Context, prop models.Property) (*models.AgentInfo, error) {
	for _, query := range s.queryVariants(prop) {
		urlPath, err := s.searchProperty(ctx, query)
		if err != nil {
			return nil, err
		}
		if urlPath == "" {
			continue
		}

		propertyID, listingID, err := s.getIDs(ctx, urlPath)
		if err != nil {
			return nil, err
		}
		if propertyID == "" {
			continue
		}

		info, err := s.getAgentDetails(ctx, propertyID, listingID, urlPath)
		if err != nil {
			return nil, err
		}
		if info != nil {
			return info, nil
		}
	}
	return nil, nil
}

// queryVariants builds up to three autocomplete queries: the normalized
// address, the address with its unit stripped, and the address with its
// street suffix expanded back to the full word.
func (s *Redfin) queryVariants(prop models.Property) []string {
	variants := []string{address.Normalize(prop.FullAddress())}

	addr := prop.AddressLine
	if addr == "" {
		addr = prop.RawAddress
	}

	if stripped := address.StripUnit(addr); stripped != "" && stripped != addr {
		variant := joinAddressParts(stripped, prop)
		if !containsString(variants, variant) {
			variants = append(variants, variant)
		}
	}

	// Some listings are indexed under "Street" where the input says "St"
	if expanded := address.ExpandSuffix(addr); expanded != "" {
		variant := joinAddressParts(expanded, prop)
		if !containsString(variants, variant) {
			variants = append(variants, variant)
		}
	}

	if len(variants) > 3 {
		variants = variants[:3]
	}
	return variants
}

func (s *Redfin) searchProperty(ctx context.Context, query string) (string, error) {
	params := url.Values{
		"location": {query},
		"start":    {"0"},
		"count":    {"5"},
		"v":        {"2"},
		"al":       {"1"},
		"iss":      {"false"},
		"ooa":      {"true"},
		"mrs":      {"false"},
	}

	resp, err := s.gw.GetAPIWithHeaders(ctx, s.baseURL+"/stingray/do/location-autocomplete",
		params, map[string]string{"Referer": s.baseURL})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", nil
	}

	doc := parseStingray(resp.Body)

	if u := doc.Get("payload.exactMatch.url"); u.String() != "" {
		return u.String(), nil
	}

	// Autocomplete row type 1 is an address match
	var found string
	doc.Get("payload.sections").ForEach(func(_, section gjson.Result) bool {
		section.Get("rows").ForEach(func(_, row gjson.Result) bool {
			if row.Get("type").String() == "1" && row.Get("url").String() != "" {
				found = row.Get("url").String()
				return false
			}
			return true
		})
		return found == ""
	})
	return found, nil
}

func (s *Redfin) getIDs(ctx context.Context, urlPath string) (propertyID, listingID string, err error) {
	resp, err := s.gw.GetAPIWithHeaders(ctx, s.baseURL+"/stingray/api/home/details/initialInfo",
		url.Values{"path": {urlPath}}, map[string]string{"Referer": s.baseURL + urlPath})
	if err != nil {
		return "", "", err
	}
	if !resp.OK() {
		return "", "", nil
	}

	payload := parseStingray(resp.Body).Get("payload")
	return payload.Get("propertyId").String(), payload.Get("listingId").String(), nil
}

func (s *Redfin) getAgentDetails(ctx context.Context, propertyID, listingID, urlPath string) (*models.AgentInfo, error) {
	params := url.Values{"propertyId": {propertyID}}
	if listingID != "" {
		params.Set("listingId", listingID)
	}

	resp, err := s.gw.GetAPIWithHeaders(ctx, s.baseURL+"/stingray/api/home/details/belowTheFold",
		params, map[string]string{"Referer": s.baseURL})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, nil
	}

	payload := parseStingray(resp.Body).Get("payload")
	return s.extractAgent(payload, urlPath), nil
}

// extractAgent walks every known home of agent data in the belowTheFold
// payload. Redfin moves these around between page generations, so all the
// historical locations stay checked.
func (s *Redfin) extractAgent(payload gjson.Result, urlPath string) *models.AgentInfo {
	var agentName, brokerage, phone, listDate, daysOnMarket string

	// Most common for active listings
	if broker := payload.Get("listingBroker"); broker.Exists() {
		agentName = broker.Get("listingAgentName").String()
		brokerage = firstJSON(broker, "brokerName", "listingBrokerName").String()
		phone = firstJSON(broker, "listingAgentPhone", "brokerPhone").String()
		listDate = broker.Get("listingDate").String()
	}

	if agentName == "" {
		payload.Get("propertyHistoryInfo.events").ForEach(func(_, event gjson.Result) bool {
			if !isListingEvent(event) {
				return true
			}
			agentName = event.Get("listingAgentName").String()
			brokerage = event.Get("listingBrokerName").String()
			if listDate == "" {
				listDate = event.Get("eventDate").String()
			}
			return false
		})
	}

	// The history events carry the list date even when the agent came from
	// another section
	if listDate == "" {
		payload.Get("propertyHistoryInfo.events").ForEach(func(_, event gjson.Result) bool {
			if isListingEvent(event) {
				listDate = event.Get("eventDate").String()
				return false
			}
			return true
		})
	}

	if agentName == "" {
		main := payload.Get("mainHouseInfo")
		agentName = main.Get("listingAgentName").String()
		brokerage = main.Get("listingBrokerName").String()
	}

	if dom := firstJSON(payload.Get("mainHouseInfo"), "daysOnMarket", "timeOnRedfin"); dom.Exists() {
		daysOnMarket = dom.String()
	}

	if agentName == "" {
		pr := payload.Get("publicRecordsInfo")
		agentName = pr.Get("listingAgentName").String()
		brokerage = pr.Get("listingBrokerName").String()
	}

	if agentName == "" {
		atf := payload.Get("aboveTheFoldInfo")
		agentName = atf.Get("listingAgentName").String()
		brokerage = atf.Get("listingBrokerName").String()
		if agentName == "" {
			broker := atf.Get("listingBroker")
			agentName = broker.Get("listingAgentName").String()
			brokerage = broker.Get("brokerName").String()
		}
	}

	if agentName == "" {
		if agent := payload.Get("listingAgent"); agent.Exists() {
			agentName = firstJSON(agent, "name", "agentName").String()
			if p := agent.Get("phone").String(); p != "" {
				phone = p
			}
			if office := agent.Get("officeName").String(); office != "" {
				brokerage = office
			}
		}
	}

	if agentName == "" {
		return nil
	}

	if daysOnMarket == "" && listDate != "" {
		daysOnMarket = address.DaysOnMarket(listDate)
	}

	listingPrice := priceString(firstJSON(payload,
		"listingPrice", "price",
		"mainHouseInfo.listingPrice", "mainHouseInfo.price",
		"aboveTheFoldInfo.price", "aboveTheFoldInfo.listingPrice"))

	listingURL := ""
	if urlPath != "" {
		listingURL = s.baseURL + urlPath
	}

	return &models.AgentInfo{
		AgentName:    address.CleanName(agentName),
		Brokerage:    strings.TrimSpace(brokerage),
		Phone:        address.CleanPhone(phone),
		Source:       "redfin",
		ListingURL:   listingURL,
		ListDate:     listDate,
		DaysOnMarket: daysOnMarket,
		ListingPrice: listingPrice,
	}
}

func isListingEvent(event gjson.Result) bool {
	switch event.Get("eventType").String() {
	case "Listed", "listed", "Listing":
		return true
	}
	return false
}

// parseStingray parses a Stingray response body, stripping the "{}&&"
// anti-hijacking prefix Redfin prepends to its JSON
func parseStingray(body []byte) gjson.Result {
	text := string(body)
	text = strings.TrimPrefix(text, "{}&&")
	return gjson.Parse(text)
}

func joinAddressParts(line string, prop models.Property) string {
	parts := []string{line}
	for _, p := range []string{prop.City, prop.State, prop.ZipCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
