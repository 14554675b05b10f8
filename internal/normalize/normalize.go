// Package normalize converts raw jurisdiction responses into canonical
// Results. It never fails: anything it cannot understand yields no Results.
package normalize

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sells-group/parcel-cli/internal/model"
)

// Field paths inside a jurisdiction response body.
const (
	ResultsPath    = "resultsList"
	PropertyIDPath = "propertyId"
	AddressPath    = "address"
)

// Normalize extracts Results from a response. Failed responses, bodies that
// are not JSON objects, and bodies without a results array all produce an
// empty slice. Every Result is stamped with jurisdictionID.
func Normalize(resp model.RawResponse, jurisdictionID string) []model.Result {
	if resp.Failed() || len(resp.Body) == 0 || !gjson.ValidBytes(resp.Body) {
		return nil
	}

	list := gjson.GetBytes(resp.Body, ResultsPath)
	if !list.IsArray() {
		return nil
	}

	var out []model.Result
	list.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			return true
		}
		out = append(out, model.Result{
			JurisdictionID: jurisdictionID,
			SourceRecordID: recordID(entry.Get(PropertyIDPath)),
			DisplayAddress: address(entry.Get(AddressPath)),
		})
		return true
	})
	return out
}

// recordID accepts string and numeric ids; numbers keep their literal form so
// 00123 style ids sent as strings and 123 sent as numbers stay distinct. A
// numeric zero is a placeholder, not an id.
func recordID(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		if s := strings.TrimSpace(v.Str); s != "" {
			return s
		}
	case gjson.Number:
		if v.Num != 0 {
			return v.Raw
		}
	}
	return model.UnknownRecordID
}

func address(v gjson.Result) string {
	if v.Type == gjson.String {
		if s := strings.Join(strings.Fields(v.Str), " "); s != "" {
			return s
		}
	}
	return model.UnknownAddress
}
