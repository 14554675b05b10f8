package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-cli/internal/model"
)

// ErrNoDetailTemplate is returned when a jurisdiction has no detail lookup URL.
var ErrNoDetailTemplate = eris.New("query: jurisdiction has no detail template")

// Encode URL-encodes a user value and collapses any run of internal
// whitespace into a single encoded separator.
func Encode(v string) string {
	fields := strings.Fields(v)
	for i, f := range fields {
		fields[i] = url.QueryEscape(f)
	}
	return strings.Join(fields, "%20")
}

// ValidateSearchTemplate checks that a search template parses and references
// the street name.
func ValidateSearchTemplate(raw string) error {
	t, err := Parse(raw)
	if err != nil {
		return err
	}
	if !t.Required(StreetName) {
		return eris.Errorf("query: search template must reference {%s} outside optional clauses: %q", StreetName, raw)
	}
	return nil
}

// ValidateDetailTemplate checks that a detail template parses and references
// the property id.
func ValidateDetailTemplate(raw string) error {
	t, err := Parse(raw)
	if err != nil {
		return err
	}
	if !t.Required(PropertyID) {
		return eris.Errorf("query: detail template must reference {%s}: %q", PropertyID, raw)
	}
	return nil
}

// Build resolves the search request for one jurisdiction. It is pure; the
// only failure it reports for a valid catalog entry is an empty street name.
func Build(c model.SearchCriteria, j model.Jurisdiction) (model.RequestDescriptor, error) {
	if err := c.Validate(); err != nil {
		return model.RequestDescriptor{}, err
	}

	t, err := Parse(j.QueryTemplate)
	if err != nil {
		return model.RequestDescriptor{}, eris.Wrapf(err, "query: jurisdiction %s", j.ID)
	}

	values := map[string]string{
		StreetName:   Encode(c.StreetName),
		StreetNumber: Encode(c.StreetNumber),
	}
	if c.TaxYear > 0 {
		values[TaxYear] = strconv.Itoa(c.TaxYear)
	}

	u, err := t.Execute(values)
	if err != nil {
		return model.RequestDescriptor{}, eris.Wrapf(err, "query: jurisdiction %s", j.ID)
	}
	return model.RequestDescriptor{JurisdictionID: j.ID, URL: u}, nil
}

// BuildAll resolves requests for every jurisdiction, preserving order.
func BuildAll(c model.SearchCriteria, js []model.Jurisdiction) ([]model.RequestDescriptor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	out := make([]model.RequestDescriptor, 0, len(js))
	for _, j := range js {
		d, err := Build(c, j)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// DetailURL resolves the single-record lookup URL for a jurisdiction.
func DetailURL(j model.Jurisdiction, propertyID string) (string, error) {
	if j.DetailTemplate == "" {
		return "", eris.Wrapf(ErrNoDetailTemplate, "jurisdiction %s", j.ID)
	}
	t, err := Parse(j.DetailTemplate)
	if err != nil {
		return "", eris.Wrapf(err, "query: jurisdiction %s", j.ID)
	}
	return t.Execute(map[string]string{PropertyID: Encode(propertyID)})
}
