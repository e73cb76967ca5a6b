package fsbo

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// ForSaleByOwner scrapes forsalebyowner.com, the second dedicated FSBO
// site. Same search-then-detail flow as fsbo.com with its own URL scheme
// and selector set.
type ForSaleByOwner struct {
	gw       *gateway.Gateway
	logger   *reporting.Logger
	baseURL  string
	maxPages int
}

// NewForSaleByOwner creates the forsalebyowner.com scraper
func NewForSaleByOwner(gw *gateway.Gateway, logger *reporting.Logger, maxPages int) *ForSaleByOwner {
	return &ForSaleByOwner{
		gw:       gw,
		logger:   logger.WithField("scraper", "forsalebyowner.com"),
		baseURL:  "https://www.forsalebyowner.com",
		maxPages: maxPages,
	}
}

// Name returns the source name
func (s *ForSaleByOwner) Name() string { return "forsalebyowner.com" }

// SearchArea paginates the search results and scrapes each listing page
func (s *ForSaleByOwner) SearchArea(ctx context.Context, criteria models.FSBOSearchCriteria) ([]models.FSBOListing, error) {
	var urls []string
	for page := 1; page <= s.maxPages; page++ {
		pageURLs, err := s.searchPage(ctx, criteria, page)
		if err != nil {
			return nil, err
		}
		if len(pageURLs) == 0 {
			break
		}
		urls = append(urls, pageURLs...)
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

func (s *ForSaleByOwner) searchURL(criteria models.FSBOSearchCriteria, page int) string {
	if criteria.LocationType == models.LocationZip {
		return fmt.Sprintf("%s/homes/search/?zip=%s&page=%d", s.baseURL, searchLocation(criteria), page)
	}
	city, state := criteria.CityState()
	citySlug := strings.ReplaceAll(strings.ToLower(city), " ", "-")
	return fmt.Sprintf("%s/homes/for-sale/%s/%s/?page=%d", s.baseURL, strings.ToLower(state), citySlug, page)
}

func (s *ForSaleByOwner) searchPage(ctx context.Context, criteria models.FSBOSearchCriteria, page int) ([]string, error) {
	resp, err := s.gw.Get(ctx, s.searchURL(criteria, page), nil)
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
		`a[href*="/homes/"]`,
		`a[href*="/listing/"]`,
		`.property-card a`,
		`.listing-card a`,
		`[class*="property"] a[href]`,
		`[class*="listing"] a[href]`,
		`h2 a`,
		`h3 a`,
	)
	if links == nil {
		if raw := nextDataJSON(doc); raw != "" {
			return harvestListingURLs(gjson.Parse(raw), s.baseURL, "/homes/"), nil
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
	return urls, nil
}

func (s *ForSaleByOwner) scrapeListing(ctx context.Context, listingURL string, criteria models.FSBOSearchCriteria) (*models.FSBOListing, error) {
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
	return parseForSaleByOwnerListing(doc, listingURL, criteria), nil
}

func parseForSaleByOwnerListing(doc *goquery.Document, listingURL string, criteria models.FSBOSearchCriteria) *models.FSBOListing {
	addrSel := doc.Find("h1").First()
	if addrSel.Length() == 0 {
		addrSel = doc.Find(`[class*="address"]`).First()
	}
	if addrSel.Length() == 0 {
		return nil
	}
	rawAddress := strings.TrimSpace(addrSel.Text())

	var price *int
	if el := doc.Find(`[class*="price"]`).First(); el.Length() > 0 {
		price = parsePrice(el.Text())
	}

	// Beds, baths, and market time live in free text on this site
	pageText := doc.Text()
	var beds *int
	var baths *float64
	var dom *int
	if m := bedsTextRe.FindStringSubmatch(pageText); m != nil {
		beds = parseIntIn(m[1])
	}
	if m := bathsTextRe.FindStringSubmatch(pageText); m != nil {
		baths = parseFloatIn(m[1])
	}
	if m := daysOnMarketTextRe.FindStringSubmatch(pageText); m != nil {
		dom = parseIntIn(m[1])
	}

	var ownerName, phone, email string
	if tel := doc.Find(`a[href^="tel:"]`).First(); tel.Length() > 0 {
		href, _ := tel.Attr("href")
		phone = address.CleanPhone(strings.TrimPrefix(href, "tel:"))
	}
	if phone == "" {
		phone = address.CleanPhone(phoneTextRe.FindString(pageText))
	}
	if mail := doc.Find(`a[href^="mailto:"]`).First(); mail.Length() > 0 {
		href, _ := mail.Attr("href")
		email = address.CleanEmail(strings.TrimPrefix(href, "mailto:"))
	}
	nameEl := doc.Find(`[class*="seller"]`).First()
	if nameEl.Length() == 0 {
		nameEl = doc.Find(`[class*="owner-name"]`).First()
	}
	if nameEl.Length() > 0 {
		ownerName = address.CleanName(nameEl.Text())
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
		Source:       "forsalebyowner.com",
		ScrapedAt:    time.Now().UTC(),
	}
	if !listing.MatchesFilters(criteria) {
		return nil
	}
	listing.ContactStat = listing.ComputeContactStatus()
	return &listing
}
