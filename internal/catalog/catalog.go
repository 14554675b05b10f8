// Package catalog holds the immutable set of jurisdiction endpoints a search
// fans out to. Order is significant: searches dispatch jurisdictions in the
// order they appear in the catalog file.
package catalog

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/query"
)

// ErrEmptyCatalog is returned when a catalog has no jurisdictions.
var ErrEmptyCatalog = eris.New("catalog: no jurisdictions configured")

// Catalog maps jurisdiction ids to endpoints. It is safe for concurrent use
// because it is never mutated after construction.
type Catalog struct {
	entries []model.Jurisdiction
	index   map[string]int
}

// New validates the entries and builds a catalog in the given order.
func New(entries []model.Jurisdiction) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		entries: make([]model.Jurisdiction, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, j := range entries {
		if j.ID == "" {
			return nil, eris.New("catalog: jurisdiction with empty id")
		}
		if _, dup := c.index[j.ID]; dup {
			return nil, eris.Errorf("catalog: duplicate jurisdiction %q", j.ID)
		}
		if err := query.ValidateSearchTemplate(j.QueryTemplate); err != nil {
			return nil, eris.Wrapf(err, "catalog: jurisdiction %q", j.ID)
		}
		if j.DetailTemplate != "" {
			if err := query.ValidateDetailTemplate(j.DetailTemplate); err != nil {
				return nil, eris.Wrapf(err, "catalog: jurisdiction %q", j.ID)
			}
		}
		c.index[j.ID] = len(c.entries)
		c.entries = append(c.entries, j)
	}
	return c, nil
}

// Len returns the number of jurisdictions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Get returns a jurisdiction by id.
func (c *Catalog) Get(id string) (model.Jurisdiction, error) {
	i, ok := c.index[id]
	if !ok {
		return model.Jurisdiction{}, eris.Errorf("catalog: unknown jurisdiction %q", id)
	}
	return c.entries[i], nil
}

// All returns every jurisdiction in catalog order.
func (c *Catalog) All() []model.Jurisdiction {
	out := make([]model.Jurisdiction, len(c.entries))
	copy(out, c.entries)
	return out
}

// IDs returns every jurisdiction id in catalog order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.entries))
	for i, j := range c.entries {
		out[i] = j.ID
	}
	return out
}

// Select returns a sub-catalog restricted to the named jurisdictions. The
// result keeps catalog order, not the order of ids. An empty ids list
// returns the receiver.
func (c *Catalog) Select(ids []string) (*Catalog, error) {
	if len(ids) == 0 {
		return c, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.index[id]; !ok {
			return nil, eris.Errorf("catalog: unknown jurisdiction %q", id)
		}
		want[id] = true
	}
	var picked []model.Jurisdiction
	for _, j := range c.entries {
		if want[j.ID] {
			picked = append(picked, j)
		}
	}
	return New(picked)
}
