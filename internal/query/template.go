package query

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Placeholder names understood by templates.
const (
	StreetNumber = "street_number"
	StreetName   = "street_name"
	TaxYear      = "tax_year"
	PropertyID   = "property_id"
)

var knownPlaceholders = []string{StreetNumber, StreetName, TaxYear, PropertyID}

// ErrMissingValue is returned when a required placeholder has no value.
var ErrMissingValue = eris.New("query: missing value for required placeholder")

type segment struct {
	literal     string
	placeholder string
	optional    []segment
	isOptional  bool
}

// Template is a parsed URL template.
type Template struct {
	raw      string
	segments []segment
}

// Parse compiles a template. Placeholders are written {name}; an optional
// clause is written [ ... ] and may not be nested.
func Parse(raw string) (*Template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, eris.New("query: empty template")
	}

	var (
		top      []segment
		clause   []segment
		inClause bool
		lit      strings.Builder
	)

	flush := func() {
		if lit.Len() == 0 {
			return
		}
		s := segment{literal: lit.String()}
		if inClause {
			clause = append(clause, s)
		} else {
			top = append(top, s)
		}
		lit.Reset()
	}

	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; c {
		case '{':
			end := strings.IndexByte(raw[i:], '}')
			if end < 0 {
				return nil, eris.Errorf("query: unterminated placeholder at offset %d in %q", i, raw)
			}
			name := raw[i+1 : i+end]
			if !slices.Contains(knownPlaceholders, name) {
				return nil, eris.Errorf("query: unknown placeholder {%s} in %q", name, raw)
			}
			flush()
			s := segment{placeholder: name}
			if inClause {
				clause = append(clause, s)
			} else {
				top = append(top, s)
			}
			i += end
		case '}':
			return nil, eris.Errorf("query: unexpected '}' at offset %d in %q", i, raw)
		case '[':
			if inClause {
				return nil, eris.Errorf("query: nested optional clause at offset %d in %q", i, raw)
			}
			flush()
			inClause = true
		case ']':
			if !inClause {
				return nil, eris.Errorf("query: unexpected ']' at offset %d in %q", i, raw)
			}
			flush()
			top = append(top, segment{isOptional: true, optional: clause})
			clause = nil
			inClause = false
		default:
			lit.WriteByte(c)
		}
	}
	if inClause {
		return nil, eris.Errorf("query: unterminated optional clause in %q", raw)
	}
	flush()

	return &Template{raw: raw, segments: top}, nil
}

// String returns the template source.
func (t *Template) String() string {
	return t.raw
}

// Has reports whether the template references the named placeholder anywhere.
func (t *Template) Has(name string) bool {
	for _, s := range t.segments {
		if s.placeholder == name {
			return true
		}
		for _, o := range s.optional {
			if o.placeholder == name {
				return true
			}
		}
	}
	return false
}

// Required reports whether the placeholder appears outside any optional clause.
func (t *Template) Required(name string) bool {
	for _, s := range t.segments {
		if s.placeholder == name {
			return true
		}
	}
	return false
}

// Execute substitutes values, which must already be URL-encoded. Optional
// clauses whose placeholders are all non-empty are kept; any other optional
// clause is omitted. A required placeholder without a value is an error.
func (t *Template) Execute(values map[string]string) (string, error) {
	var b strings.Builder
	for _, s := range t.segments {
		switch {
		case s.isOptional:
			if !clauseComplete(s.optional, values) {
				continue
			}
			for _, o := range s.optional {
				if o.placeholder != "" {
					b.WriteString(values[o.placeholder])
				} else {
					b.WriteString(o.literal)
				}
			}
		case s.placeholder != "":
			v := values[s.placeholder]
			if v == "" {
				return "", eris.Wrapf(ErrMissingValue, "{%s}", s.placeholder)
			}
			b.WriteString(v)
		default:
			b.WriteString(s.literal)
		}
	}
	return b.String(), nil
}

func clauseComplete(clause []segment, values map[string]string) bool {
	for _, s := range clause {
		if s.placeholder != "" && values[s.placeholder] == "" {
			return false
		}
	}
	return true
}
