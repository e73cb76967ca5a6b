package models

import "strings"

// LookupStatus represents the outcome of an agent lookup for one property
type LookupStatus string

const (
	// StatusFound means the agent name plus at least one contact field was found
	StatusFound LookupStatus = "found"
	// StatusPartial means the agent name was found but no contact info
	StatusPartial LookupStatus = "partial"
	// StatusNotFound means every source came back empty
	StatusNotFound LookupStatus = "not_found"
	// StatusError means the lookup failed with an error
	StatusError LookupStatus = "error"
	// StatusCached means the result was served from the local cache
	StatusCached LookupStatus = "cached"
	// StatusPending means the lookup has not run yet
	StatusPending LookupStatus = "pending"
)

// Property is a single property address to look up
type Property struct {
	RawAddress  string `json:"raw_address"`
	AddressLine string `json:"address_line,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	ZipCode     string `json:"zip_code,omitempty"`

	// RowIndex is the position in the input file, used to merge results
	// back onto the original rows
	RowIndex int `json:"row_index"`
}

// FullAddress returns the comma-joined address components, falling back to
// the raw address when no components were parsed
func (p Property) FullAddress() string {
	parts := make([]string, 0, 4)
	for _, part := range []string{p.AddressLine, p.City, p.State, p.ZipCode} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(p.RawAddress)
	}
	return strings.TrimSpace(strings.Join(parts, ", "))
}

// AgentInfo is the listing agent information found for a property
type AgentInfo struct {
	AgentName    string `json:"agent_name,omitempty"`
	Brokerage    string `json:"brokerage,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Source       string `json:"source,omitempty"`
	ListingURL   string `json:"listing_url,omitempty"`
	ListDate     string `json:"list_date,omitempty"`
	DaysOnMarket string `json:"days_on_market,omitempty"`
	ListingPrice string `json:"listing_price,omitempty"`
}

// HasContactInfo reports whether a phone or email is present
func (a AgentInfo) HasContactInfo() bool {
	return a.Phone != "" || a.Email != ""
}

// IsComplete reports whether both a name and a contact field are present
func (a AgentInfo) IsComplete() bool {
	return a.AgentName != "" && a.HasContactInfo()
}

// Merge fills empty fields of the receiver from other. Populated receiver
// fields always win. Source becomes "a+b" when other contributed a source.
func (a AgentInfo) Merge(other AgentInfo) AgentInfo {
	merged := AgentInfo{
		AgentName:    firstNonEmpty(a.AgentName, other.AgentName),
		Brokerage:    firstNonEmpty(a.Brokerage, other.Brokerage),
		Phone:        firstNonEmpty(a.Phone, other.Phone),
		Email:        firstNonEmpty(a.Email, other.Email),
		Source:       a.Source,
		ListingURL:   firstNonEmpty(a.ListingURL, other.ListingURL),
		ListDate:     firstNonEmpty(a.ListDate, other.ListDate),
		DaysOnMarket: firstNonEmpty(a.DaysOnMarket, other.DaysOnMarket),
		ListingPrice: firstNonEmpty(a.ListingPrice, other.ListingPrice),
	}
	if other.Source != "" {
		merged.Source = a.Source + "+" + other.Source
	}
	return merged
}

// ScrapeResult is the outcome of a lookup attempt for a single property
type ScrapeResult struct {
	Property       Property     `json:"property"`
	AgentInfo      *AgentInfo   `json:"agent_info,omitempty"`
	Status         LookupStatus `json:"status"`
	SourcesTried   []string     `json:"sources_tried,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	Confidence     float64      `json:"confidence"`
	Verified       bool         `json:"verified"`
	SourcesMatched []string     `json:"sources_matched,omitempty"`
}

// Found reports whether the result carries usable agent data
func (r ScrapeResult) Found() bool {
	switch r.Status {
	case StatusFound, StatusPartial, StatusCached:
		return true
	}
	return false
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func trimmedNonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}
