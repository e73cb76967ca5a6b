package scrape

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
	"github.com/dispodojo/agent-finder/pkg/scrape/harvest"
)

// HomeHarvest is the secondary source. It searches Realtor.com result
// pages through the harvest client and picks the row matching the target
// address. Active listings are sometimes filed under sold or pending, so
// all three buckets get tried in order.
type HomeHarvest struct {
	client *harvest.Client
	logger *reporting.Logger
}

// NewHomeHarvest creates the HomeHarvest scraper
func NewHomeHarvest(client *harvest.Client, logger *reporting.Logger) *HomeHarvest {
	return &HomeHarvest{
		client: client,
		logger: logger.WithField("scraper", "homeharvest"),
	}
}

// Name returns the source name
func (s *HomeHarvest) Name() string { return "homeharvest" }

var harvestListingTypes = []harvest.ListingType{
	harvest.ForSale, harvest.Sold, harvest.Pending,
}

// Search queries each listing bucket until a matching row yields an agent
func (s *HomeHarvest) Search(ctx context.Context, prop models.Property) (*models.AgentInfo, error) {
	location := address.Normalize(prop.FullAddress())

	for _, listingType := range harvestListingTypes {
		rows, err := s.client.Search(ctx, location, listingType)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}

		row := bestMatch(rows, prop)
		if row == nil {
			continue
		}
		if info := agentFromRow(*row); info != nil {
			return info, nil
		}
	}
	return nil, nil
}

var leadingNumberRe = regexp.MustCompile(`^\d+`)

// bestMatch picks the result row for the target address: normalized
// substring match either way, then street-number prefix, then a sole row.
func bestMatch(rows []harvest.Row, prop models.Property) *harvest.Row {
	addr := prop.AddressLine
	if addr == "" {
		addr = prop.RawAddress
	}
	target := address.Normalize(addr)
	if target == "" {
		target = address.Normalize(prop.RawAddress)
	}

	for i, row := range rows {
		rowAddr := address.Normalize(row.StreetLine)
		if rowAddr == "" {
			continue
		}
		if strings.Contains(rowAddr, target) || strings.Contains(target, rowAddr) {
			return &rows[i]
		}
	}

	if num := leadingNumberRe.FindString(target); num != "" {
		for i, row := range rows {
			if strings.HasPrefix(strings.TrimSpace(row.StreetLine), num) {
				return &rows[i]
			}
		}
	}

	if len(rows) == 1 {
		return &rows[0]
	}
	return nil
}

func agentFromRow(row harvest.Row) *models.AgentInfo {
	if row.AgentName == "" {
		return nil
	}

	daysOnMarket := row.DaysOnMarket
	if daysOnMarket == "" && row.ListDate != "" {
		daysOnMarket = address.DaysOnMarket(row.ListDate)
	}

	listingPrice := row.ListPrice
	if listingPrice != "" {
		if f, err := strconv.ParseFloat(listingPrice, 64); err == nil {
			listingPrice = formatPrice(int64(f))
		}
	}

	return &models.AgentInfo{
		AgentName:    address.CleanName(row.AgentName),
		Brokerage:    strings.TrimSpace(row.BrokerName),
		Phone:        address.CleanPhone(row.AgentPhone),
		Email:        address.CleanEmail(row.AgentEmail),
		Source:       "homeharvest",
		ListingURL:   row.PropertyURL,
		ListDate:     row.ListDate,
		DaysOnMarket: daysOnMarket,
		ListingPrice: listingPrice,
	}
}
