package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrEmptyStreetName is returned when a search is attempted without a street name.
var ErrEmptyStreetName = eris.New("search: street name is required")

// SearchCriteria is the user-supplied partial address for one search.
type SearchCriteria struct {
	StreetNumber string `json:"street_number,omitempty" validate:"omitempty,max=16"`
	StreetName   string `json:"street_name" validate:"required,max=128"`
	TaxYear      int    `json:"tax_year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
}

// Validate checks the caller contract: the street name must be non-blank.
func (c SearchCriteria) Validate() error {
	if strings.TrimSpace(c.StreetName) == "" {
		return ErrEmptyStreetName
	}
	return nil
}

// HasStreetNumber reports whether the optional number clause applies.
func (c SearchCriteria) HasStreetNumber() bool {
	return strings.TrimSpace(c.StreetNumber) != ""
}

// String renders the criteria for logs and history listings.
func (c SearchCriteria) String() string {
	s := strings.TrimSpace(c.StreetName)
	if c.HasStreetNumber() {
		s = strings.TrimSpace(c.StreetNumber) + " " + s
	}
	return s
}

// RequestDescriptor is a fully resolved request for one jurisdiction.
type RequestDescriptor struct {
	JurisdictionID string `json:"jurisdiction_id"`
	URL            string `json:"url"`
}

// RawResponse is the outcome of a single endpoint call: either a body or an
// error describing why the call failed.
type RawResponse struct {
	JurisdictionID string
	URL            string
	StatusCode     int
	Body           []byte
	Err            error
	Elapsed        time.Duration
}

// Failed reports whether the call produced no usable body.
func (r RawResponse) Failed() bool {
	return r.Err != nil
}
