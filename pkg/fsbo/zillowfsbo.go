package fsbo

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// ZillowFSBO searches Zillow's owner-listed segment for an area. One
// search page carries the whole result set in its embedded JSON, so no
// detail fetches are needed.
type ZillowFSBO struct {
	gw      *gateway.Gateway
	logger  *reporting.Logger
	baseURL string
}

// NewZillowFSBO creates the Zillow FSBO scraper
func NewZillowFSBO(gw *gateway.Gateway, logger *reporting.Logger) *ZillowFSBO {
	return &ZillowFSBO{
		gw:      gw,
		logger:  logger.WithField("scraper", "zillow_fsbo"),
		baseURL: "https://www.zillow.com",
	}
}

// Name returns the source name
func (s *ZillowFSBO) Name() string { return "zillow_fsbo" }

// SearchArea fetches the FSBO search page for the location and parses the
// result array out of its page JSON
func (s *ZillowFSBO) SearchArea(ctx context.Context, criteria models.FSBOSearchCriteria) ([]models.FSBOListing, error) {
	searchURL := s.baseURL + "/homes/fsbo/" + url.QueryEscape(searchLocation(criteria)) + "_rb/"

	resp, err := s.gw.GetWithHeaders(ctx, searchURL, nil, map[string]string{
		"Referer": s.baseURL + "/",
		"Accept":  "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
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
	raw := nextDataJSON(doc)
	if raw == "" {
		s.logger.Debug("no page data in search response", "bytes", len(resp.Body))
		return nil, nil
	}

	items := findListResults(gjson.Parse(raw), 0)
	var listings []models.FSBOListing
	items.ForEach(func(_, item gjson.Result) bool {
		if listing := s.itemToListing(item, criteria); listing != nil {
			listings = append(listings, *listing)
		}
		return true
	})
	s.logger.Info("search complete", "raw", len(items.Array()), "listings", len(listings))
	return listings, nil
}

// listResultKeys are the names Zillow has used for its result arrays
var listResultKeys = map[string]bool{
	"listResults":   true,
	"list_results":  true,
	"searchResults": true,
	"mapResults":    true,
}

// findListResults hunts the page JSON for an array of property objects.
// Zillow restructures this payload often enough that a fixed path breaks,
// so any array whose members look like properties counts.
func findListResults(v gjson.Result, depth int) gjson.Result {
	if depth > 8 {
		return gjson.Result{}
	}

	if v.IsArray() {
		arr := v.Array()
		if len(arr) > 0 && arr[0].IsObject() {
			head := arr[0]
			if head.Get("zpid").Exists() || head.Get("address").Exists() || head.Get("detailUrl").Exists() {
				return v
			}
		}
		for _, item := range arr {
			if found := findListResults(item, depth+1); found.Exists() {
				return found
			}
		}
		return gjson.Result{}
	}

	if v.IsObject() {
		var found gjson.Result
		v.ForEach(func(key, val gjson.Result) bool {
			if listResultKeys[key.String()] && val.IsArray() && len(val.Array()) > 0 {
				found = val
				return false
			}
			return true
		})
		if found.Exists() {
			return found
		}
		v.ForEach(func(_, val gjson.Result) bool {
			found = findListResults(val, depth+1)
			return !found.Exists()
		})
		return found
	}

	return gjson.Result{}
}

func (s *ZillowFSBO) itemToListing(item gjson.Result, criteria models.FSBOSearchCriteria) *models.FSBOListing {
	addr := item.Get("address").String()
	if addr == "" {
		addr = item.Get("streetAddress").String()
	}
	if addr == "" {
		return nil
	}

	var price *int
	if raw := strings.TrimSpace(item.Get("price").String()); raw != "" {
		price = parsePrice(raw)
	} else if up := item.Get("unformattedPrice"); up.Exists() && up.Int() > 0 {
		price = intPtr(int(up.Int()))
	}

	var beds *int
	if v := jsonNumber(item, "beds", "bedrooms"); v.Exists() {
		beds = intPtr(int(v.Int()))
	}
	var baths *float64
	if v := jsonNumber(item, "baths", "bathrooms"); v.Exists() {
		baths = floatPtr(v.Float())
	}
	var dom *int
	if v := jsonNumber(item, "daysOnZillow", "timeOnZillow"); v.Exists() {
		dom = intPtr(int(v.Int()))
	}

	detailURL := item.Get("detailUrl").String()
	if strings.HasPrefix(detailURL, "/") {
		detailURL = s.baseURL + detailURL
	}

	// FSBO listings occasionally expose the seller's phone directly
	phone := address.CleanPhone(item.Get("hdpData.homeInfo.phone").String())

	// For owner listings the attribution name is the seller, not an agent
	ownerName := item.Get("attributionInfo.agentName").String()
	if ownerName == "" {
		ownerName = item.Get("ownerName").String()
	}
	ownerName = address.CleanName(ownerName)

	city := item.Get("city").String()
	state := item.Get("state").String()
	zip := item.Get("zipcode").String()
	if zip == "" {
		zip = item.Get("zip").String()
	}

	fullAddress := addr
	if city != "" && state != "" {
		fullAddress = strings.TrimSpace(addr + ", " + city + ", " + state + " " + zip)
	}

	var sqft *int
	if v := item.Get("livingArea"); v.Exists() && v.Int() > 0 {
		sqft = intPtr(int(v.Int()))
	}

	listing := models.FSBOListing{
		Address:      fullAddress,
		City:         city,
		State:        state,
		ZipCode:      zip,
		Price:        price,
		Beds:         beds,
		Baths:        baths,
		Sqft:         sqft,
		PropertyType: item.Get("homeType").String(),
		DaysOnMarket: dom,
		OwnerName:    ownerName,
		Phone:        phone,
		ListingURL:   detailURL,
		Source:       "zillow_fsbo",
		ScrapedAt:    time.Now().UTC(),
	}
	if !listing.MatchesFilters(criteria) {
		return nil
	}
	listing.ContactStat = listing.ComputeContactStatus()
	return &listing
}

// jsonNumber returns the first existing numeric field among the keys
func jsonNumber(v gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if hit := v.Get(k); hit.Exists() && hit.Type == gjson.Number {
			return hit
		}
	}
	return gjson.Result{}
}
