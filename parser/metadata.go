package parser

import (
	"strings"

	"github.com/aluiziolira/citybike-scraper/models"
)

// Metadata holds the identity fields of one network.
type Metadata struct {
	Country     string
	City        string
	Company     models.Company
	Name        string
	ID          string
	APIEndpoint string
}

// ExtractMetadata projects a listing record onto its identity fields. The
// detail endpoint is apiHost followed by the record's href.
func ExtractMetadata(n models.Network, apiHost string) (Metadata, error) {
	missing := func(field string) error {
		return &MalformedRecordError{ID: n.ID, Field: field}
	}

	switch {
	case strings.TrimSpace(n.ID) == "":
		return Metadata{}, missing("id")
	case strings.TrimSpace(n.Name) == "":
		return Metadata{}, missing("name")
	case strings.TrimSpace(n.Href) == "":
		return Metadata{}, missing("href")
	case n.Company == nil:
		return Metadata{}, missing("company")
	case n.Location == nil:
		return Metadata{}, missing("location")
	case strings.TrimSpace(n.Location.City) == "":
		return Metadata{}, missing("location.city")
	case strings.TrimSpace(n.Location.Country) == "":
		return Metadata{}, missing("location.country")
	}

	return Metadata{
		Country:     n.Location.Country,
		City:        n.Location.City,
		Company:     n.Company,
		Name:        n.Name,
		ID:          n.ID,
		APIEndpoint: DetailEndpoint(apiHost, n.Href),
	}, nil
}

// DetailEndpoint joins the API host and a network href.
func DetailEndpoint(apiHost, href string) string {
	host := strings.TrimSuffix(apiHost, "/")
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return host + href
}

// Summary combines metadata and station counts into a result row.
func Summary(meta Metadata, counts Counts) models.NetworkSummary {
	return models.NewNetworkSummary(
		meta.Country,
		meta.City,
		meta.Company,
		meta.Name,
		meta.ID,
		meta.APIEndpoint,
		counts.Stations,
		counts.EmptySlots,
		counts.Bikes,
	)
}
