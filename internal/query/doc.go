// Package query turns search criteria and a jurisdiction's URL template into
// a resolved request. Templates use named placeholders ({street_name}) and
// optional clauses ([...]) that are dropped entirely when any placeholder
// inside them has no value, so endpoints never receive a dangling empty
// filter such as "StreetNumber:".
package query
