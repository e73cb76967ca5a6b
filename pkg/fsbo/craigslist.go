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

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// Craigslist scrapes the "real estate - by owner" section of the regional
// Craigslist site covering the search area.
//
// Contact notes: phones are mined from the post body text. Craigslist
// relays seller email through anonymized addresses, and those relays are
// never collected; a post without a phone stays anonymous.
type Craigslist struct {
	gw       *gateway.Gateway
	logger   *reporting.Logger
	maxPages int

	// host rewrites the area subdomain to a fixed host, for tests
	host string
}

// NewCraigslist creates the Craigslist scraper
func NewCraigslist(gw *gateway.Gateway, logger *reporting.Logger, maxPages int) *Craigslist {
	return &Craigslist{
		gw:       gw,
		logger:   logger.WithField("scraper", "craigslist"),
		maxPages: maxPages,
	}
}

// Name returns the source name
func (s *Craigslist) Name() string { return "craigslist" }

// craigslistAreas maps lowercase city names to Craigslist subdomains.
// Craigslist has no search API across regions, so the area has to be
// resolved before anything can be fetched.
var craigslistAreas = map[string]string{
	"albuquerque":      "albuquerque",
	"atlanta":          "atlanta",
	"austin":           "austin",
	"baltimore":        "baltimore",
	"birmingham":       "bham",
	"boise":            "boise",
	"boston":           "boston",
	"buffalo":          "buffalo",
	"charlotte":        "charlotte",
	"chicago":          "chicago",
	"cincinnati":       "cincinnati",
	"cleveland":        "cleveland",
	"columbus":         "columbus",
	"dallas":           "dallas",
	"denver":           "denver",
	"detroit":          "detroit",
	"el paso":          "elpaso",
	"fort worth":       "dallas",
	"fresno":           "fresno",
	"houston":          "houston",
	"indianapolis":     "indianapolis",
	"jacksonville":     "jacksonville",
	"kansas city":      "kansascity",
	"las vegas":        "lasvegas",
	"los angeles":      "losangeles",
	"louisville":       "louisville",
	"memphis":          "memphis",
	"mesa":             "phoenix",
	"miami":            "miami",
	"milwaukee":        "milwaukee",
	"minneapolis":      "minneapolis",
	"nashville":        "nashville",
	"new orleans":      "neworleans",
	"new york":         "newyork",
	"oakland":          "sfbay",
	"oklahoma city":    "oklahomacity",
	"omaha":            "omaha",
	"orlando":          "orlando",
	"philadelphia":     "philadelphia",
	"phoenix":          "phoenix",
	"pittsburgh":       "pittsburgh",
	"portland":         "portland",
	"raleigh":          "raleigh",
	"richmond":         "richmond",
	"sacramento":       "sacramento",
	"salt lake city":   "saltlakecity",
	"san antonio":      "sanantonio",
	"san diego":        "sandiego",
	"san francisco":    "sfbay",
	"san jose":         "sfbay",
	"scottsdale":       "phoenix",
	"seattle":          "seattle",
	"st louis":         "stlouis",
	"st. louis":        "stlouis",
	"tampa":            "tampa",
	"tempe":            "phoenix",
	"tucson":           "tucson",
	"tulsa":            "tulsa",
	"virginia beach":   "norfolk",
	"washington":       "washingtondc",
	"washington dc":    "washingtondc",
	"washington, d.c.": "washingtondc",
}

var trailingStateRe = regexp.MustCompile(`\s+[a-z]{2}$`)

// resolveArea maps the criteria location to a Craigslist subdomain, or ""
// when no region covers it
func resolveArea(criteria models.FSBOSearchCriteria) string {
	location := strings.ToLower(strings.TrimSpace(criteria.Location))
	city := strings.TrimSpace(strings.Split(location, ",")[0])
	city = strings.TrimSpace(trailingStateRe.ReplaceAllString(city, ""))

	for _, candidate := range []string{location, city} {
		if area, ok := craigslistAreas[candidate]; ok {
			return area
		}
	}

	if len(city) > 3 {
		for key, area := range craigslistAreas {
			if strings.HasPrefix(key, city) || strings.HasPrefix(city, key) {
				return area
			}
		}
	}
	return ""
}

// SearchArea resolves the region and walks its by-owner listings. An
// unmapped location is a silent miss, not an error.
func (s *Craigslist) SearchArea(ctx context.Context, criteria models.FSBOSearchCriteria) ([]models.FSBOListing, error) {
	area := resolveArea(criteria)
	if area == "" {
		s.logger.Info("no region mapped for location", "location", criteria.Location)
		return nil, nil
	}

	base := s.host
	if base == "" {
		base = "https://" + area + ".craigslist.org"
	}

	var listings []models.FSBOListing
	for page := 0; page < s.maxPages; page++ {
		// 120 posts per results page
		params := url.Values{"s": {strconv.Itoa(page * 120)}}
		if criteria.LocationType == models.LocationZip {
			params.Set("query", searchLocation(criteria))
		}

		resp, err := s.gw.Get(ctx, base+"/search/reo", params)
		if err != nil {
			return listings, err
		}
		if !resp.OK() {
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			break
		}
		posts := postLinks(doc, base)
		if len(posts) == 0 {
			break
		}

		for _, post := range posts {
			if criteria.MaxDaysOnMarket != nil && !post.date.IsZero() {
				if daysSince(post.date) > *criteria.MaxDaysOnMarket {
					continue
				}
			}
			listing, err := s.scrapePost(ctx, post, criteria)
			if err != nil {
				return listings, err
			}
			if listing != nil {
				listings = append(listings, *listing)
			}
		}
	}
	s.logger.Info("search complete", "area", area, "listings", len(listings))
	return listings, nil
}

type craigslistPost struct {
	url  string
	date time.Time
}

// postLinks extracts post URLs and dates from a results page, trying the
// markup of each site generation from newest to oldest
func postLinks(doc *goquery.Document, base string) []craigslistPost {
	items := selectFirst(doc,
		"li.cl-search-result",
		"li.result-row",
		".cl-search-view-mode-list li",
	)
	if items == nil {
		return nil
	}

	var posts []craigslistPost
	items.Each(func(_ int, item *goquery.Selection) {
		a := item.Find("a.cl-app-anchor").First()
		if a.Length() == 0 {
			a = item.Find("a.result-title").First()
		}
		if a.Length() == 0 {
			a = item.Find(`a[href*="/d/"]`).First()
		}
		if a.Length() == 0 {
			a = item.Find("a").First()
		}
		href, _ := a.Attr("href")
		if href == "" {
			return
		}

		var posted time.Time
		dateEl := item.Find("time").First()
		if dateEl.Length() == 0 {
			dateEl = item.Find(".result-date").First()
		}
		if dateEl.Length() == 0 {
			dateEl = item.Find("[datetime]").First()
		}
		if dateEl.Length() > 0 {
			dt, _ := dateEl.Attr("datetime")
			if dt == "" {
				dt, _ = dateEl.Attr("title")
			}
			posted = parsePostDate(dt)
		}

		posts = append(posts, craigslistPost{url: absoluteURL(base, href), date: posted})
	})
	return posts
}

var postDateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parsePostDate(dt string) time.Time {
	dt = strings.TrimSpace(dt)
	if len(dt) > 19 {
		dt = dt[:19]
	}
	for _, layout := range postDateLayouts {
		if t, err := time.Parse(layout, dt); err == nil {
			return t
		}
	}
	return time.Time{}
}

func daysSince(t time.Time) int {
	d := int(time.Since(t).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Craigslist) scrapePost(ctx context.Context, post craigslistPost, criteria models.FSBOSearchCriteria) (*models.FSBOListing, error) {
	resp, err := s.gw.Get(ctx, post.url, nil)
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
	return parseCraigslistPost(doc, post, criteria), nil
}

var clPriceRe = regexp.MustCompile(`\$\s*([\d,]+)`)

func parseCraigslistPost(doc *goquery.Document, post craigslistPost, criteria models.FSBOSearchCriteria) *models.FSBOListing {
	title := strings.TrimSpace(doc.Find("#titletextonly").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1.postingtitle").First().Text())
	}
	body := strings.TrimSpace(doc.Find("#postingbody").First().Text())
	if body == "" {
		body = strings.TrimSpace(doc.Find(".postingbody").First().Text())
	}
	fullText := title + " " + body

	var price *int
	if m := clPriceRe.FindStringSubmatch(fullText); m != nil {
		price = parsePrice(m[1])
	}

	var beds *int
	var baths *float64
	if m := bedsTextRe.FindStringSubmatch(fullText); m != nil {
		beds = parseIntIn(m[1])
	}
	if m := bathsTextRe.FindStringSubmatch(fullText); m != nil {
		baths = parseFloatIn(m[1])
	}

	var dom *int
	if !post.date.IsZero() {
		dom = intPtr(daysSince(post.date))
	}

	phone := address.CleanPhone(phoneTextRe.FindString(body))

	rawAddress := strings.TrimSpace(doc.Find(".mapaddress").First().Text())
	if rawAddress == "" {
		rawAddress = strings.TrimSpace(doc.Find("[data-latitude]").First().Text())
	}
	if rawAddress == "" {
		rawAddress = title
	}

	listing := models.FSBOListing{
		Address:      rawAddress,
		Price:        price,
		Beds:         beds,
		Baths:        baths,
		DaysOnMarket: dom,
		Phone:        phone,
		ListingURL:   post.url,
		Source:       "craigslist",
		ScrapedAt:    time.Now().UTC(),
	}
	if !listing.MatchesFilters(criteria) {
		return nil
	}
	if phone != "" {
		listing.ContactStat = models.ContactPhoneOnly
	} else {
		listing.ContactStat = models.ContactAnonymous
	}
	return &listing
}
