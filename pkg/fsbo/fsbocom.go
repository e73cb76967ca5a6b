package fsbo

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// FSBOCom scrapes fsbo.com, a dedicated owner-listing site. Search pages
// are paginated and link out to listing pages that carry the seller's
// contact details.
type FSBOCom struct {
	gw       *gateway.Gateway
	logger   *reporting.Logger
	baseURL  string
	maxPages int
}

// NewFSBOCom creates the fsbo.com scraper
func NewFSBOCom(gw *gateway.Gateway, logger *reporting.Logger, maxPages int) *FSBOCom {
	return &FSBOCom{
		gw:       gw,
		logger:   logger.WithField("scraper", "fsbo.com"),
		baseURL:  "https://www.fsbo.com",
		maxPages: maxPages,
	}
}

// Name returns the source name
func (s *FSBOCom) Name() string { return "fsbo.com" }

// SearchArea paginates the search results and scrapes each listing page.
// Criteria filters apply during parsing; a listing that fails one is
// dropped before it is ever returned.
func (s *FSBOCom) SearchArea(ctx context.Context, criteria models.FSBOSearchCriteria) ([]models.FSBOListing, error) {
	urls, err := s.listingURLs(ctx, criteria)
	if err != nil {
		return nil, err
	}

	var listings []models.FSBOListing
	for _, u := range urls {
		listing, err := s.scrapeListing(ctx, u, criteria)
		if err != nil {
			return listings, err
		}
		if listing != nil {
			listings = append(listings, *listing)
		}
	}
	s.logger.Info("search complete", "listings", len(listings))
	return listings, nil
}

func (s *FSBOCom) listingURLs(ctx context.Context, criteria models.FSBOSearchCriteria) ([]string, error) {
	var urls []string
	for page := 1; page <= s.maxPages; page++ {
		pageURLs, err := s.searchPage(ctx, criteria, page)
		if err != nil {
			return urls, err
		}
		if len(pageURLs) == 0 {
			break
		}
		urls = append(urls, pageURLs...)
	}
	return urls, nil
}

func (s *FSBOCom) searchPage(ctx context.Context, criteria models.FSBOSearchCriteria, page int) ([]string, error) {
	params := url.Values{"page": {strconv.Itoa(page)}}
	if criteria.LocationType == models.LocationZip {
		params.Set("zip", searchLocation(criteria))
	} else {
		city, state := criteria.CityState()
		params.Set("city", city)
		if state != "" {
			params.Set("state", state)
		}
	}
	if criteria.MinPrice != nil {
		params.Set("min_price", strconv.Itoa(*criteria.MinPrice))
	}
	if criteria.MaxPrice != nil {
		params.Set("max_price", strconv.Itoa(*criteria.MaxPrice))
	}
	if criteria.MinBeds != nil {
		params.Set("min_beds", strconv.Itoa(*criteria.MinBeds))
	}

	resp, err := s.gw.Get(ctx, s.baseURL+"/search", params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		s.logger.Debug("non-200 search page", "page", page, "status", resp.Status)
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil
	}

	links := selectFirst(doc,
		`a[href*="/listing/"]`,
		`a[href*="/property/"]`,
		`.listing-card a`,
		`.property-card a`,
		`[class*="listing"] a[href]`,
		`[class*="property"] a[href]`,
	)
	if links == nil {
		// JS-heavy render: the result set may only live in the page JSON
		if raw := nextDataJSON(doc); raw != "" {
			return harvestListingURLs(gjson.Parse(raw), s.baseURL, "/listing/", "/property/"), nil
		}
		return nil, nil
	}

	seen := map[string]struct{}{}
	var urls []string
	links.Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		urls = append(urls, absoluteURL(s.baseURL, href))
	})
	s.logger.Debug("search page scraped", "page", page, "links", len(urls))
	return urls, nil
}

func (s *FSBOCom) scrapeListing(ctx context.Context, listingURL string, criteria models.FSBOSearchCriteria) (*models.FSBOListing, error) {
	resp, err := s.gw.Get(ctx, listingURL, nil)
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
	return parseFSBOComListing(doc, listingURL, criteria), nil
}

var daysOnMarketTextRe = regexp.MustCompile(`(?i)(\d+)\s*days?\s*on\s*market`)

// parseFSBOComListing pulls a listing out of a detail page. Selectors are
// class-substring based so cosmetic markup changes keep working.
func parseFSBOComListing(doc *goquery.Document, listingURL string, criteria models.FSBOSearchCriteria) *models.FSBOListing {
	addrSel := doc.Find("h1.listing-address").First()
	if addrSel.Length() == 0 {
		addrSel = doc.Find(`[class*="address"]`).First()
	}
	if addrSel.Length() == 0 {
		addrSel = doc.Find("h1").First()
	}
	if addrSel.Length() == 0 {
		return nil
	}
	rawAddress := strings.TrimSpace(addrSel.Text())

	var price *int
	if el := doc.Find(`[class*="price"]`).First(); el.Length() > 0 {
		price = parsePrice(el.Text())
	}

	var beds *int
	var baths *float64
	if el := doc.Find(`[class*="bed"]`).First(); el.Length() > 0 {
		beds = parseIntIn(el.Text())
	}
	if el := doc.Find(`[class*="bath"]`).First(); el.Length() > 0 {
		baths = parseFloatIn(el.Text())
	}

	var dom *int
	if m := daysOnMarketTextRe.FindStringSubmatch(doc.Text()); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			dom = &n
		}
	}

	var ownerName, phone, email string
	contact := doc.Find(`[class*="contact"]`).First()
	if contact.Length() == 0 {
		contact = doc.Find(`[class*="owner"]`).First()
	}
	if contact.Length() > 0 {
		nameEl := contact.Find(`[class*="name"]`).First()
		if nameEl.Length() == 0 {
			nameEl = contact.Find("strong").First()
		}
		ownerName = address.CleanName(nameEl.Text())

		if tel := contact.Find(`[href^="tel:"]`).First(); tel.Length() > 0 {
			href, _ := tel.Attr("href")
			phone = address.CleanPhone(strings.TrimPrefix(href, "tel:"))
		} else if el := contact.Find(`[class*="phone"]`).First(); el.Length() > 0 {
			phone = address.CleanPhone(el.Text())
		}
		if mail := contact.Find(`[href^="mailto:"]`).First(); mail.Length() > 0 {
			href, _ := mail.Attr("href")
			email = address.CleanEmail(strings.TrimPrefix(href, "mailto:"))
		}
	}

	city, state, zip := splitCityStateZip(rawAddress)

	listing := models.FSBOListing{
		Address:      rawAddress,
		City:         city,
		State:        state,
		ZipCode:      zip,
		Price:        price,
		Beds:         beds,
		Baths:        baths,
		DaysOnMarket: dom,
		OwnerName:    ownerName,
		Phone:        phone,
		Email:        email,
		ListingURL:   listingURL,
		Source:       "fsbo.com",
		ScrapedAt:    time.Now().UTC(),
	}
	if !listing.MatchesFilters(criteria) {
		return nil
	}
	listing.ContactStat = listing.ComputeContactStatus()
	return &listing
}

// selectFirst returns the matches of the first selector that hits anything
func selectFirst(doc *goquery.Document, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// nextDataJSON returns the embedded Next.js page payload, or ""
func nextDataJSON(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
}

// harvestListingURLs walks the page JSON collecting strings that contain
// one of the marker path segments. Capped at 50 so a pathological payload
// cannot fan out into thousands of detail fetches.
func harvestListingURLs(data gjson.Result, baseURL string, markers ...string) []string {
	seen := map[string]struct{}{}
	var urls []string

	var walk func(v gjson.Result, depth int)
	walk = func(v gjson.Result, depth int) {
		if depth > 8 || len(urls) >= 50 {
			return
		}
		if v.Type == gjson.String {
			str := v.String()
			if len(str) >= 300 {
				return
			}
			if !strings.HasPrefix(str, "/") && !strings.HasPrefix(str, "http") {
				return
			}
			marked := false
			for _, m := range markers {
				if strings.Contains(str, m) {
					marked = true
					break
				}
			}
			if !marked {
				return
			}
			full := absoluteURL(baseURL, str)
			if _, dup := seen[full]; !dup {
				seen[full] = struct{}{}
				urls = append(urls, full)
			}
			return
		}
		if v.IsObject() || v.IsArray() {
			v.ForEach(func(_, child gjson.Result) bool {
				walk(child, depth+1)
				return len(urls) < 50
			})
		}
	}
	walk(data, 0)
	return urls
}

func absoluteURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return baseURL + href
}
