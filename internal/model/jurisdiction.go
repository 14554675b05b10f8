package model

// Jurisdiction is one independent record-source endpoint, typically a county
// appraisal district. Entries are loaded once from the catalog file and never
// mutated afterwards.
type Jurisdiction struct {
	ID string `json:"id" yaml:"id"`

	// QueryTemplate is the search URL with named placeholders, e.g.
	// "https://esearch.example.org/search/SearchResults?keywords=[StreetNumber%3A{street_number}%20]StreetName%3A{street_name}".
	QueryTemplate string `json:"query_template" yaml:"search"`

	// DetailTemplate is the optional single-record lookup URL with a
	// {property_id} placeholder.
	DetailTemplate string `json:"detail_template,omitempty" yaml:"detail,omitempty"`
}
