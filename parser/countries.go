package parser

import (
	"slices"

	"github.com/aluiziolira/citybike-scraper/models"
)

// CountryCodes returns the distinct, non-empty country codes of networks in
// ascending order.
func CountryCodes(networks []models.Network) []string {
	seen := make(map[string]struct{}, 64)
	codes := make([]string, 0, 64)
	for _, n := range networks {
		code := n.Country()
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}
