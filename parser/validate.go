package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/citybike-scraper/models"
)

// ValidateSummary checks a row before it enters the result table.
func ValidateSummary(s *models.NetworkSummary) error {
	if s == nil {
		return fmt.Errorf("summary is nil")
	}
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("summary missing id")
	}
	if s.Stations < 0 || s.EmptySlots < 0 || s.Bikes < 0 {
		return fmt.Errorf("summary %s has negative counts", s.ID)
	}
	if s.TotalSlots != s.EmptySlots+s.Bikes {
		return fmt.Errorf("summary %s total slots %d != %d + %d", s.ID, s.TotalSlots, s.EmptySlots, s.Bikes)
	}
	return nil
}
