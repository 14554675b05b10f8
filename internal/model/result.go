package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

const (
	// UnknownRecordID stands in for a source record id the endpoint omitted.
	// Results carrying it are never deduplicated against each other.
	UnknownRecordID = "unknown"

	// UnknownAddress is displayed when the endpoint omitted the situs address.
	UnknownAddress = "Unknown Address"
)

// Key is the identity of a Result.
type Key struct {
	JurisdictionID string
	SourceRecordID string
}

// Result is the canonical, deduplication-ready record produced from a raw
// endpoint response.
type Result struct {
	JurisdictionID string `json:"jurisdiction_id"`
	SourceRecordID string `json:"source_record_id"`
	DisplayAddress string `json:"display_address"`
}

// Key returns the identity key of the result.
func (r Result) Key() Key {
	return Key{JurisdictionID: r.JurisdictionID, SourceRecordID: r.SourceRecordID}
}

// Identified reports whether the result carries a real source record id.
func (r Result) Identified() bool {
	return r.SourceRecordID != "" && r.SourceRecordID != UnknownRecordID
}

// ListKey returns a composite identifier suitable for list-rendering keys.
func (r Result) ListKey() string {
	return r.JurisdictionID + "_" + r.SourceRecordID
}

// ParseListKey splits a key produced by ListKey back into jurisdiction and
// source record id. Jurisdiction ids may contain underscores, so the split
// happens on the last one.
func ParseListKey(s string) (Key, error) {
	i := strings.LastIndex(s, "_")
	if i <= 0 || i == len(s)-1 {
		return Key{}, eris.Errorf("model: malformed list key %q", s)
	}
	return Key{JurisdictionID: s[:i], SourceRecordID: s[i+1:]}, nil
}
