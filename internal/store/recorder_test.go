package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-cli/internal/catalog"
	"github.com/sells-group/parcel-cli/internal/dispatch"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/session"
	"github.com/sells-group/parcel-cli/internal/transport"
)

func TestRecorder_RecordsTerminalOutcome(t *testing.T) {
	st := newTestSQLiteStore(t)

	cat, err := catalog.New([]model.Jurisdiction{
		{ID: "A", QueryTemplate: "http://a.test/?q={street_name}"},
		{ID: "B", QueryTemplate: "http://b.test/?q={street_name}"},
	})
	require.NoError(t, err)

	client := transport.ClientFunc(func(_ context.Context, d model.RequestDescriptor) model.RawResponse {
		if d.JurisdictionID == "B" {
			return model.RawResponse{Err: &transport.FetchError{Cause: transport.CauseStatus, StatusCode: 500}}
		}
		return model.RawResponse{Body: []byte(`{"resultsList":[{"propertyId":"123","address":"1 MAIN ST"}]}`)}
	})
	d, err := dispatch.New(client, dispatch.Options{GroupSize: 1, Timeout: time.Second}, nil)
	require.NoError(t, err)

	rec := NewRecorder(st)
	s, err := session.New(model.SearchCriteria{StreetName: "Main"}, cat, d, rec)
	require.NoError(t, err)

	rec.Begin(context.Background(), "cli", s)
	require.NoError(t, s.Run(context.Background()))

	got, err := st.GetSearch(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Equal(t, "completed", got.State)
	assert.Equal(t, "cli", got.ConsumerID)
	assert.Equal(t, 2, got.Jurisdictions)
	assert.Equal(t, 2, got.Groups)
	assert.Equal(t, 1, got.Failures)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "A", got.Results[0].JurisdictionID)
}

func TestRecorder_IgnoresGroupSnapshots(t *testing.T) {
	st := newTestSQLiteStore(t)
	rec := NewRecorder(st)

	// A non-terminal snapshot for an unknown id must not touch the store.
	rec.Deliver(session.Snapshot{SessionID: "missing", Kind: session.EventSnapshot})

	runs, err := st.ListSearches(context.Background(), SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
