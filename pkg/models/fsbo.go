package models

import "time"

// ContactStatus classifies how reachable an FSBO seller is
type ContactStatus string

const (
	ContactComplete  ContactStatus = "complete"
	ContactPartial   ContactStatus = "partial"
	ContactPhoneOnly ContactStatus = "phone_only"
	ContactAnonymous ContactStatus = "anonymous"
	ContactNone      ContactStatus = "none"
)

// LocationType tells the scrapers how to interpret the location string
type LocationType string

const (
	LocationZip       LocationType = "zip"
	LocationCityState LocationType = "city_state"
)

// FSBOSearchCriteria are the search parameters submitted by the user.
// Location is either a comma-separated ZIP list ("85001,85002") or a
// "City, ST" pair, disambiguated by LocationType.
type FSBOSearchCriteria struct {
	Location        string       `json:"location"`
	LocationType    LocationType `json:"location_type"`
	RadiusMiles     int          `json:"radius_miles"`
	MinPrice        *int         `json:"min_price,omitempty"`
	MaxPrice        *int         `json:"max_price,omitempty"`
	MinBeds         *int         `json:"min_beds,omitempty"`
	MinBaths        *float64     `json:"min_baths,omitempty"`
	PropertyType    string       `json:"property_type,omitempty"`
	MaxDaysOnMarket *int         `json:"max_days_on_market,omitempty"`
}

// ZipCodes returns the individual ZIP codes when LocationType is zip
func (c FSBOSearchCriteria) ZipCodes() []string {
	if c.LocationType != LocationZip {
		return nil
	}
	var zips []string
	for _, z := range splitTrim(c.Location, ",") {
		if z != "" {
			zips = append(zips, z)
		}
	}
	return zips
}

// CityState splits a "City, ST" location into its two halves
func (c FSBOSearchCriteria) CityState() (city, state string) {
	parts := splitTrim(c.Location, ",")
	if len(parts) > 0 {
		city = parts[0]
	}
	if len(parts) > 1 {
		state = parts[1]
	}
	return city, state
}

// FSBOListing is a single for-sale-by-owner listing
type FSBOListing struct {
	Address      string        `json:"address"`
	City         string        `json:"city"`
	State        string        `json:"state"`
	ZipCode      string        `json:"zip_code"`
	Price        *int          `json:"price,omitempty"`
	Beds         *int          `json:"beds,omitempty"`
	Baths        *float64      `json:"baths,omitempty"`
	Sqft         *int          `json:"sqft,omitempty"`
	PropertyType string        `json:"property_type,omitempty"`
	DaysOnMarket *int          `json:"days_on_market,omitempty"`
	OwnerName    string        `json:"owner_name,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	Email        string        `json:"email,omitempty"`
	ListingURL   string        `json:"listing_url"`
	Source       string        `json:"source"`
	ContactStat  ContactStatus `json:"contact_status"`
	ScrapedAt    time.Time     `json:"scraped_at"`
}

// ComputeContactStatus derives the contact status from the populated fields
func (l FSBOListing) ComputeContactStatus() ContactStatus {
	hasName := trimmedNonEmpty(l.OwnerName)
	hasPhone := trimmedNonEmpty(l.Phone)
	hasEmail := trimmedNonEmpty(l.Email)
	switch {
	case hasName && hasPhone && hasEmail:
		return ContactComplete
	case hasName && (hasPhone || hasEmail):
		return ContactPartial
	case hasPhone && !hasEmail:
		return ContactPhoneOnly
	}
	return ContactNone
}

// Merge fills empty fields of the receiver from other and recomputes the
// contact status. Populated receiver fields always win. Source becomes
// "a+b" when other contributed a source, same as AgentInfo.Merge, so a
// deduplicated listing keeps the provenance of every site it came from.
func (l FSBOListing) Merge(other FSBOListing) FSBOListing {
	merged := l
	merged.OwnerName = firstNonEmpty(l.OwnerName, other.OwnerName)
	merged.Phone = firstNonEmpty(l.Phone, other.Phone)
	merged.Email = firstNonEmpty(l.Email, other.Email)
	if merged.Price == nil {
		merged.Price = other.Price
	}
	if merged.Beds == nil {
		merged.Beds = other.Beds
	}
	if merged.Baths == nil {
		merged.Baths = other.Baths
	}
	if merged.Sqft == nil {
		merged.Sqft = other.Sqft
	}
	if merged.DaysOnMarket == nil {
		merged.DaysOnMarket = other.DaysOnMarket
	}
	if other.Source != "" {
		merged.Source = l.Source + "+" + other.Source
	}
	merged.ContactStat = merged.ComputeContactStatus()
	return merged
}

// MatchesFilters reports whether a listing passes the numeric criteria.
// A listing with an unknown value for a filtered field is kept.
func (l FSBOListing) MatchesFilters(c FSBOSearchCriteria) bool {
	if c.MinPrice != nil && l.Price != nil && *l.Price < *c.MinPrice {
		return false
	}
	if c.MaxPrice != nil && l.Price != nil && *l.Price > *c.MaxPrice {
		return false
	}
	if c.MinBeds != nil && l.Beds != nil && *l.Beds < *c.MinBeds {
		return false
	}
	if c.MinBaths != nil && l.Baths != nil && *l.Baths < *c.MinBaths {
		return false
	}
	if c.MaxDaysOnMarket != nil && l.DaysOnMarket != nil && *l.DaysOnMarket > *c.MaxDaysOnMarket {
		return false
	}
	return true
}
