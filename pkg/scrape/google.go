package scrape

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// Google is the last-resort source: a Custom Search API query for the
// address, mined with regexes over the result snippets. Quality is well
// below the listing sites, and the free tier allows 100 queries a day, so
// it only runs when everything else came back empty.
type Google struct {
	gw      *gateway.Gateway
	logger  *reporting.Logger
	apiKey  string
	cseID   string
	baseURL string
}

// NewGoogle creates the Google Custom Search scraper
func NewGoogle(gw *gateway.Gateway, logger *reporting.Logger, apiKey, cseID string) *Google {
	return &Google{
		gw:      gw,
		logger:  logger.WithField("scraper", "google_search"),
		apiKey:  apiKey,
		cseID:   cseID,
		baseURL: "https://www.googleapis.com/customsearch/v1",
	}
}

// Name returns the source name
func (s *Google) Name() string { return "google_search" }

// Configured reports whether API credentials are present
func (s *Google) Configured() bool {
	return s.apiKey != "" && s.cseID != ""
}

var (
	snippetPhoneRe = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	snippetEmailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	snippetNameRes = []*regexp.Regexp{
		regexp.MustCompile(`[Ll]isted?\s+by\s+([A-Z][a-z]+\s+[A-Z][a-z]+)`),
		regexp.MustCompile(`[Ll]isting\s+[Aa]gent:?\s*([A-Z][a-z]+\s+[A-Z][a-z]+)`),
		regexp.MustCompile(`[Aa]gent:?\s*([A-Z][a-z]+\s+[A-Z][a-z]+)`),
	}
	snippetBrokerRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:courtesy of|brokered by|offered by)\s+(.+?)(?:\.|,|$)`),
		regexp.MustCompile(`(?i)([A-Z][a-zA-Z\s]+(?:Realty|Real Estate|Properties|Group|Associates|Brokers))`),
	}

	listingSites = []string{"redfin.com", "realtor.com", "zillow.com"}
)

// Search runs one CSE query for the address and mines the snippets
func (s *Google) Search(ctx context.Context, prop models.Property) (*models.AgentInfo, error) {
	if !s.Configured() {
		return nil, nil
	}

	query := `"` + address.Normalize(prop.FullAddress()) + `" listing agent real estate`
	params := url.Values{
		"key": {s.apiKey},
		"cx":  {s.cseID},
		"q":   {query},
		"num": {"5"},
	}

	resp, err := s.gw.GetAPI(ctx, s.baseURL, params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, nil
	}

	return parseSnippets(gjson.ParseBytes(resp.Body).Get("items")), nil
}

// parseSnippets mines result snippets for agent, contact, and brokerage
// fragments. The first hit for each field wins across all results; a
// listing-site link becomes the listing URL.
func parseSnippets(items gjson.Result) *models.AgentInfo {
	var agentName, brokerage, phone, email, listingURL string

	items.ForEach(func(_, item gjson.Result) bool {
		snippet := item.Get("snippet").String()
		link := item.Get("link").String()

		for _, site := range listingSites {
			if strings.Contains(link, site) {
				listingURL = link
				break
			}
		}

		if phone == "" {
			phone = snippetPhoneRe.FindString(snippet)
		}
		if email == "" {
			email = snippetEmailRe.FindString(snippet)
		}
		if agentName == "" {
			for _, re := range snippetNameRes {
				if m := re.FindStringSubmatch(snippet); m != nil {
					agentName = m[1]
					break
				}
			}
		}
		if brokerage == "" {
			for _, re := range snippetBrokerRes {
				if m := re.FindStringSubmatch(snippet); m != nil {
					brokerage = strings.TrimSpace(m[1])
					break
				}
			}
		}
		return true
	})

	if agentName == "" {
		return nil
	}

	return &models.AgentInfo{
		AgentName:  address.CleanName(agentName),
		Brokerage:  brokerage,
		Phone:      address.CleanPhone(phone),
		Email:      address.CleanEmail(email),
		Source:     "google_search",
		ListingURL: listingURL,
	}
}
