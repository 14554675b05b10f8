package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/parcel-cli/internal/model"
)

// Load reads a catalog file. The file is a single mapping from jurisdiction
// id to either a search template string or an object with "search" and
// optional "detail" templates. JSON files are accepted as well since JSON is
// valid YAML. Mapping order in the file is the dispatch order.
//
//	travis:
//	  search: "https://.../SearchResults?keywords=[StreetNumber%3A{street_number}%20]StreetName%3A{street_name}"
//	  detail: "https://.../SearchResults?keywords=PropertyId%3A{property_id}"
//	harris: "https://.../search?street={street_name}[&number={street_number}]"
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: %s", path)
	}
	return c, nil
}

// Parse decodes catalog file contents.
func Parse(data []byte) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, ErrEmptyCatalog
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, eris.Errorf("catalog: expected a mapping at line %d", root.Line)
	}

	entries := make([]model.Jurisdiction, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		j := model.Jurisdiction{ID: keyNode.Value}

		switch valNode.Kind {
		case yaml.ScalarNode:
			j.QueryTemplate = valNode.Value
		case yaml.MappingNode:
			var v struct {
				Search string `yaml:"search"`
				Detail string `yaml:"detail"`
			}
			if err := valNode.Decode(&v); err != nil {
				return nil, eris.Wrapf(err, "catalog: jurisdiction %q", j.ID)
			}
			j.QueryTemplate = v.Search
			j.DetailTemplate = v.Detail
		default:
			return nil, eris.Errorf("catalog: jurisdiction %q at line %d must be a string or mapping", j.ID, valNode.Line)
		}
		entries = append(entries, j)
	}

	return New(entries)
}
