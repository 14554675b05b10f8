package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-cli/internal/model"
)

func r(j, id, addr string) model.Result {
	return model.Result{JurisdictionID: j, SourceRecordID: id, DisplayAddress: addr}
}

func TestMerge_ZeroValue(t *testing.T) {
	var s Set
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Results())

	s = Merge(s, nil)
	assert.Equal(t, 0, s.Len())
}

func TestMerge_DropsDuplicates(t *testing.T) {
	s := Merge(Set{}, []model.Result{
		r("A", "123", "1 MAIN ST"),
		r("A", "123", "1 MAIN STREET"),
		r("B", "123", "1 MAIN ST"),
	})

	assert.Equal(t, []model.Result{
		r("A", "123", "1 MAIN ST"),
		r("B", "123", "1 MAIN ST"),
	}, s.Results())
	assert.True(t, s.Contains(model.Key{JurisdictionID: "A", SourceRecordID: "123"}))
	assert.False(t, s.Contains(model.Key{JurisdictionID: "C", SourceRecordID: "123"}))
}

func TestMerge_PreservesOrderAcrossGroups(t *testing.T) {
	s := Merge(Set{}, []model.Result{r("A", "1", ""), r("A", "2", "")})
	s = Merge(s, []model.Result{r("B", "9", ""), r("A", "1", ""), r("B", "3", "")})

	assert.Equal(t, []model.Result{
		r("A", "1", ""), r("A", "2", ""), r("B", "9", ""), r("B", "3", ""),
	}, s.Results())
}

func TestMerge_UnknownAlwaysAppended(t *testing.T) {
	u := r("A", model.UnknownRecordID, model.UnknownAddress)
	s := Merge(Set{}, []model.Result{u, u})
	s = Merge(s, []model.Result{u})
	assert.Equal(t, 3, s.Len())
}

func TestMerge_Idempotent(t *testing.T) {
	batch := []model.Result{r("A", "1", "x"), r("B", "2", "y"), r("A", "1", "z")}
	once := Merge(Set{}, batch)
	twice := Merge(once, batch)
	assert.Equal(t, once.Results(), twice.Results())
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := Merge(Set{}, []model.Result{r("A", "1", "")})
	incoming := []model.Result{r("A", "2", "")}

	next := Merge(base, incoming)

	require.Equal(t, 1, base.Len())
	assert.False(t, base.Contains(model.Key{JurisdictionID: "A", SourceRecordID: "2"}))
	assert.Equal(t, 2, next.Len())
	assert.Equal(t, []model.Result{r("A", "2", "")}, incoming)
}

func TestResults_ReturnsCopy(t *testing.T) {
	s := Merge(Set{}, []model.Result{r("A", "1", "x")})
	got := s.Results()
	got[0].DisplayAddress = "changed"
	assert.Equal(t, "x", s.Results()[0].DisplayAddress)
}
