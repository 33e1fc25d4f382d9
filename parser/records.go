// Package parser turns citybik.es payloads into network summaries.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aluiziolira/citybike-scraper/models"
)

// ErrMalformedRecord matches every MalformedRecordError.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError reports a network record or detail payload that is
// missing a required field or cannot be decoded.
type MalformedRecordError struct {
	ID    string
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	id := e.ID
	if id == "" {
		id = "<unknown>"
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed record %s: %s: %v", id, e.Field, e.Err)
	}
	return fmt.Sprintf("malformed record %s: missing %s", id, e.Field)
}

func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// ParseListing decodes the body of GET /v2/networks.
func ParseListing(body []byte) ([]models.Network, error) {
	var listing models.NetworkListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode network listing: %w", err)
	}
	if listing.Networks == nil {
		return nil, fmt.Errorf("decode network listing: %w", &MalformedRecordError{Field: "networks"})
	}
	return listing.Networks, nil
}

// ParseDetail decodes a network detail body. A payload without a
// network.stations array is malformed.
func ParseDetail(id string, body []byte) (models.NetworkDetail, error) {
	var detail models.NetworkDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return models.NetworkDetail{}, &MalformedRecordError{ID: id, Field: "network", Err: err}
	}
	if detail.Network == nil {
		return models.NetworkDetail{}, &MalformedRecordError{ID: id, Field: "network"}
	}
	if detail.Network.Stations == nil {
		return models.NetworkDetail{}, &MalformedRecordError{ID: id, Field: "network.stations"}
	}
	return detail, nil
}
