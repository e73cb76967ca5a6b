package fsbo

import (
	"context"
	"strings"
	"time"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
	"github.com/dispodojo/agent-finder/pkg/scrape/harvest"
)

// RealtorFSBO searches Realtor.com result pages for owner listings. The
// portal mixes agent and owner listings, so rows that clearly name a
// professional agent with a brokerage are excluded; what remains is
// likely FSBO.
type RealtorFSBO struct {
	client *harvest.Client
	logger *reporting.Logger
}

// NewRealtorFSBO creates the Realtor.com FSBO scraper on a shared harvest
// client
func NewRealtorFSBO(client *harvest.Client, logger *reporting.Logger) *RealtorFSBO {
	return &RealtorFSBO{
		client: client,
		logger: logger.WithField("scraper", "realtor_fsbo"),
	}
}

// Name returns the source name
func (s *RealtorFSBO) Name() string { return "realtor_fsbo" }

// SearchArea runs one area search and keeps the rows without agent
// representation
func (s *RealtorFSBO) SearchArea(ctx context.Context, criteria models.FSBOSearchCriteria) ([]models.FSBOListing, error) {
	rows, err := s.client.Search(ctx, searchLocation(criteria), harvest.ForSale)
	if err != nil {
		return nil, err
	}

	var listings []models.FSBOListing
	for _, row := range rows {
		if listing := rowToListing(row, criteria); listing != nil {
			listings = append(listings, *listing)
		}
	}
	s.logger.Info("search complete", "rows", len(rows), "listings", len(listings))
	return listings, nil
}

func rowToListing(row harvest.Row, criteria models.FSBOSearchCriteria) *models.FSBOListing {
	// A named agent together with a brokerage means the listing is
	// represented; skip it unless the source itself flags it as FSBO
	if !row.IsFSBO && len(row.AgentName) > 3 && len(row.BrokerName) > 3 {
		return nil
	}
	if row.StreetLine == "" {
		return nil
	}

	// Prices arrive as "450000", "450000.0", or "$450,000" depending on
	// the page generation
	var price *int
	if f := parseFloatIn(strings.ReplaceAll(row.ListPrice, ",", "")); f != nil {
		price = intPtr(int(*f))
	}
	beds := parseIntIn(row.Beds)
	baths := parseFloatIn(row.Baths)
	dom := parseIntIn(row.DaysOnMarket)

	fullAddress := row.StreetLine
	if row.City != "" || row.State != "" {
		fullAddress = strings.TrimRight(strings.TrimSpace(
			row.StreetLine+", "+row.City+", "+row.State+" "+row.ZipCode), ",")
	}

	listing := models.FSBOListing{
		Address:      fullAddress,
		City:         row.City,
		State:        row.State,
		ZipCode:      row.ZipCode,
		Price:        price,
		Beds:         beds,
		Baths:        baths,
		DaysOnMarket: dom,
		OwnerName:    address.CleanName(row.AgentName),
		Phone:        address.CleanPhone(row.AgentPhone),
		Email:        address.CleanEmail(row.AgentEmail),
		ListingURL:   row.PropertyURL,
		Source:       "realtor",
		ScrapedAt:    time.Now().UTC(),
	}
	if !listing.MatchesFilters(criteria) {
		return nil
	}
	listing.ContactStat = listing.ComputeContactStatus()
	return &listing
}
