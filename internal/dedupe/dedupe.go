// Package dedupe accumulates Results across groups without duplicating any
// (jurisdiction, record) pair. Results whose record id is unknown cannot be
// compared and are always kept.
package dedupe

import "github.com/sells-group/parcel-cli/internal/model"

// Set is an ordered, duplicate-free collection of Results. The zero value is
// an empty set. A Set is never modified in place; Merge returns a new one.
type Set struct {
	results []model.Result
	seen    map[model.Key]struct{}
}

// Merge returns existing followed by every incoming Result whose key is not
// already present. Existing order is preserved and new entries keep their
// incoming order. Neither argument is modified.
func Merge(existing Set, incoming []model.Result) Set {
	out := Set{
		results: make([]model.Result, len(existing.results), len(existing.results)+len(incoming)),
		seen:    make(map[model.Key]struct{}, len(existing.seen)+len(incoming)),
	}
	copy(out.results, existing.results)
	for k := range existing.seen {
		out.seen[k] = struct{}{}
	}

	for _, r := range incoming {
		if !r.Identified() {
			out.results = append(out.results, r)
			continue
		}
		k := r.Key()
		if _, dup := out.seen[k]; dup {
			continue
		}
		out.seen[k] = struct{}{}
		out.results = append(out.results, r)
	}
	return out
}

// Len returns the number of Results.
func (s Set) Len() int {
	return len(s.results)
}

// Results returns a copy of the Results in accumulation order.
func (s Set) Results() []model.Result {
	out := make([]model.Result, len(s.results))
	copy(out, s.results)
	return out
}

// Contains reports whether an identified key is present.
func (s Set) Contains(k model.Key) bool {
	_, ok := s.seen[k]
	return ok
}
