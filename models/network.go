// Package models defines data structures for the scraper.
package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// CompanySeparator joins multiple operating companies in flat outputs.
const CompanySeparator = "; "

// Company lists the operators of a network. The API reports either a single
// string or an array of strings; null decodes to an empty, non-nil value so
// that a present-but-null field can be told apart from an absent one.
type Company []string

// UnmarshalJSON accepts a string, an array of strings, or null. Any other
// literal is kept verbatim as a single name.
func (c *Company) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = Company{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*c = Company{name}
		return nil
	case len(data) > 0 && data[0] == '[':
		var names []*string
		if err := json.Unmarshal(data, &names); err != nil {
			return err
		}
		out := make(Company, 0, len(names))
		for _, name := range names {
			if name != nil {
				out = append(out, *name)
			}
		}
		*c = out
		return nil
	default:
		*c = Company{string(data)}
		return nil
	}
}

// MarshalJSON emits a bare string for a single company.
func (c Company) MarshalJSON() ([]byte, error) {
	if len(c) == 1 {
		return json.Marshal(c[0])
	}
	return json.Marshal([]string(c))
}

// String joins the company names with CompanySeparator.
func (c Company) String() string {
	return strings.Join(c, CompanySeparator)
}

// CSVCell flattens c into one cell. Names are joined with CompanySeparator
// unless a name is empty, contains the separator or starts with "[", in
// which case the cell holds a JSON array so ParseCompany can restore it.
func (c Company) CSVCell() string {
	for _, name := range c {
		if name == "" || strings.Contains(name, CompanySeparator) || strings.HasPrefix(name, "[") {
			data, err := json.Marshal([]string(c))
			if err != nil {
				return c.String()
			}
			return string(data)
		}
	}
	return c.String()
}

// ParseCompany reverses CSVCell.
func ParseCompany(s string) Company {
	if s == "" {
		return Company{}
	}
	if strings.HasPrefix(s, "[") {
		var names []string
		if err := json.Unmarshal([]byte(s), &names); err == nil && names != nil {
			return Company(names)
		}
	}
	return Company(strings.Split(s, CompanySeparator))
}

// Location is the geographic part of a network record.
type Location struct {
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Network is one entry of the /v2/networks listing.
type Network struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Href     string    `json:"href"`
	Company  Company   `json:"company"`
	Location *Location `json:"location"`
}

// Country returns the network's country code, or "" without a location.
func (n Network) Country() string {
	if n.Location == nil {
		return ""
	}
	return n.Location.Country
}

// NetworkListing is the body of GET /v2/networks.
type NetworkListing struct {
	Networks []Network `json:"networks"`
}

// Station is one docking point. Counts are kept raw because providers
// report them as numbers, numeric strings, or garbage.
type Station struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	EmptySlots json.RawMessage `json:"empty_slots"`
	FreeBikes  json.RawMessage `json:"free_bikes"`
}

// NetworkDetail is the body of GET <href>.
type NetworkDetail struct {
	Network *struct {
		ID       string    `json:"id"`
		Stations []Station `json:"stations"`
	} `json:"network"`
}

// NetworkSummary is one row of the result table.
type NetworkSummary struct {
	Country     string  `csv:"country" json:"country"`
	City        string  `csv:"city" json:"city"`
	Company     Company `csv:"company" json:"company"`
	Name        string  `csv:"name" json:"name"`
	ID          string  `csv:"id" json:"id"`
	APIEndpoint string  `csv:"api_endpoint" json:"api_endpoint"`
	Stations    int     `csv:"n_stations" json:"n_stations"`
	EmptySlots  int     `csv:"n_empty_slots" json:"n_empty_slots"`
	Bikes       int     `csv:"n_bikes" json:"n_bikes"`
	TotalSlots  int     `csv:"total_slots" json:"total_slots"`
}

// NewNetworkSummary builds a row and derives TotalSlots.
func NewNetworkSummary(country, city string, company Company, name, id, endpoint string, stations, emptySlots, bikes int) NetworkSummary {
	return NetworkSummary{
		Country:     country,
		City:        city,
		Company:     company,
		Name:        name,
		ID:          id,
		APIEndpoint: endpoint,
		Stations:    stations,
		EmptySlots:  emptySlots,
		Bikes:       bikes,
		TotalSlots:  emptySlots + bikes,
	}
}

// ScrapeResult holds the overall result of a scrape run.
type ScrapeResult struct {
	Country      string
	Rows         []NetworkSummary
	StartTime    time.Time
	EndTime      time.Time
	ListingSize  int
	MatchedCount int
	SkippedIDs   []string
	// ValidationErrors counts rows rejected by the result table, by kind.
	ValidationErrors map[string]int
	RequestCount     int
	RetryCount       int
	CacheHits        int
}
