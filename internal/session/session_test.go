package session

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-cli/internal/catalog"
	"github.com/sells-group/parcel-cli/internal/dispatch"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/transport"
)

func newCatalog(t *testing.T, ids ...string) *catalog.Catalog {
	t.Helper()
	entries := make([]model.Jurisdiction, len(ids))
	for i, id := range ids {
		entries[i] = model.Jurisdiction{
			ID:            id,
			QueryTemplate: "http://" + id + ".test/search?q=[{street_number}%20]{street_name}",
		}
	}
	c, err := catalog.New(entries)
	require.NoError(t, err)
	return c
}

func numbered(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("j%02d", i)
	}
	return out
}

func newDispatcher(t *testing.T, client transport.Client, groupSize int, timeout time.Duration) *dispatch.Dispatcher {
	t.Helper()
	d, err := dispatch.New(client, dispatch.Options{GroupSize: groupSize, Timeout: timeout}, nil)
	require.NoError(t, err)
	return d
}

// oneRecordClient answers every jurisdiction with a single record whose id
// is the jurisdiction id.
func oneRecordClient() transport.Client {
	return transport.ClientFunc(func(_ context.Context, d model.RequestDescriptor) model.RawResponse {
		u, _ := url.Parse(d.URL)
		body := fmt.Sprintf(`{"resultsList":[{"propertyId":%q,"address":"1 MAIN ST"}]}`, u.Hostname())
		return model.RawResponse{StatusCode: 200, Body: []byte(body)}
	})
}

func TestNew_EmptyStreetName(t *testing.T) {
	var calls atomic.Int32
	client := transport.ClientFunc(func(context.Context, model.RequestDescriptor) model.RawResponse {
		calls.Add(1)
		return model.RawResponse{}
	})

	_, err := New(model.SearchCriteria{StreetNumber: "12", StreetName: "  "}, newCatalog(t, "A"), newDispatcher(t, client, 15, time.Second), nil)
	assert.ErrorIs(t, err, model.ErrEmptyStreetName)
	assert.Zero(t, calls.Load())
}

func TestNew_EmptyCatalog(t *testing.T) {
	_, err := New(model.SearchCriteria{StreetName: "Main"}, nil, newDispatcher(t, oneRecordClient(), 15, time.Second), nil)
	assert.ErrorIs(t, err, catalog.ErrEmptyCatalog)
}

func TestRun_ExampleAB(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	client := transport.ClientFunc(func(_ context.Context, d model.RequestDescriptor) model.RawResponse {
		if d.JurisdictionID == "B" {
			<-block
		}
		return model.RawResponse{StatusCode: 200, Body: []byte(`{"resultsList":[{"propertyId":"123","address":"1 MAIN ST"}]}`)}
	})

	var sink Collector
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, "A", "B"), newDispatcher(t, client, 2, 50*time.Millisecond), &sink)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, StateCompleted, s.State())
	snaps := sink.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, EventSnapshot, snaps[0].Kind)
	assert.Equal(t, 1, snaps[0].Failures)

	final := snaps[1]
	assert.Equal(t, EventCompleted, final.Kind)
	assert.Equal(t, StateCompleted, final.State)
	require.Len(t, final.Results, 1)
	assert.Equal(t, model.Key{JurisdictionID: "A", SourceRecordID: "123"}, final.Results[0].Key())
}

func TestRun_FortyJurisdictions(t *testing.T) {
	var sink Collector
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, numbered(40)...), newDispatcher(t, oneRecordClient(), 15, time.Second), &sink)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	snaps := sink.Snapshots()
	require.Len(t, snaps, 4)
	for i, want := range []int{15, 30, 40} {
		assert.Equal(t, EventSnapshot, snaps[i].Kind)
		assert.Equal(t, i+1, snaps[i].Group)
		assert.Equal(t, 3, snaps[i].TotalGroups)
		assert.Len(t, snaps[i].Results, want)
	}
	assert.Equal(t, 10, snaps[2].Added)
	assert.Equal(t, EventCompleted, snaps[3].Kind)
	assert.Len(t, snaps[3].Results, 40)

	// Earlier snapshots are unaffected by later merges.
	assert.Len(t, snaps[0].Results, 15)
	assert.Equal(t, "j00", snaps[0].Results[0].JurisdictionID)
}

func TestRun_NoDuplicateKeys(t *testing.T) {
	client := transport.ClientFunc(func(context.Context, model.RequestDescriptor) model.RawResponse {
		return model.RawResponse{Body: []byte(`{"resultsList":[{"propertyId":"1"},{"propertyId":"1"},{"propertyId":2},{}]}`)}
	})

	var sink Collector
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, "A", "B", "C"), newDispatcher(t, client, 2, time.Second), &sink)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	final, ok := sink.Last()
	require.True(t, ok)
	seen := map[model.Key]bool{}
	unknown := 0
	for _, r := range final.Results {
		if !r.Identified() {
			unknown++
			continue
		}
		assert.False(t, seen[r.Key()], "duplicate %v", r.Key())
		seen[r.Key()] = true
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, 3, unknown)
}

func TestRun_ZeroResultsCompletes(t *testing.T) {
	client := transport.ClientFunc(func(context.Context, model.RequestDescriptor) model.RawResponse {
		return model.RawResponse{Err: &transport.FetchError{Cause: transport.CauseNetwork}}
	})

	var sink Collector
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, "A"), newDispatcher(t, client, 1, time.Second), &sink)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	final, _ := sink.Last()
	assert.Equal(t, EventCompleted, final.Kind)
	assert.NotNil(t, final.Results)
	assert.Empty(t, final.Results)
}

func TestCancel_AfterFirstGroup(t *testing.T) {
	var dispatched atomic.Int32
	client := transport.ClientFunc(func(ctx context.Context, d model.RequestDescriptor) model.RawResponse {
		dispatched.Add(1)
		return oneRecordClient().Get(ctx, d)
	})

	var s *Session
	var sink Collector
	cancelling := SinkFunc(func(snap Snapshot) {
		sink.Deliver(snap)
		if snap.Kind == EventSnapshot && snap.Group == 1 {
			assert.True(t, s.Cancel())
		}
	})

	var err error
	s, err = New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, numbered(6)...), newDispatcher(t, client, 2, time.Second), cancelling)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, int32(2), dispatched.Load())

	snaps := sink.Snapshots()
	require.Len(t, snaps, 2)
	final := snaps[1]
	assert.Equal(t, EventCancelled, final.Kind)
	require.Len(t, final.Results, 2)
	assert.Equal(t, "j00", final.Results[0].JurisdictionID)
	assert.Equal(t, "j01", final.Results[1].JurisdictionID)

	assert.False(t, s.Cancel(), "cancel is a no-op once terminal")
}

func TestCancel_DuringGroupDiscardsInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	client := transport.ClientFunc(func(_ context.Context, d model.RequestDescriptor) model.RawResponse {
		close(entered)
		<-release
		return model.RawResponse{Body: []byte(`{"resultsList":[{"propertyId":"1"}]}`)}
	})

	var sink Collector
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, "A", "B"), newDispatcher(t, client, 1, time.Second), &sink)
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()

	<-entered
	require.True(t, s.Cancel())
	close(release)
	require.NoError(t, <-runErr)

	snaps := sink.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, EventCancelled, snaps[0].Kind)
	assert.Empty(t, snaps[0].Results)
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := transport.ClientFunc(func(c context.Context, d model.RequestDescriptor) model.RawResponse {
		cancel()
		return oneRecordClient().Get(c, d)
	})

	var sink Collector
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, numbered(4)...), newDispatcher(t, client, 2, time.Second), &sink)
	require.NoError(t, err)
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, StateCancelled, s.State())
	snaps := sink.Snapshots()
	require.Len(t, snaps, 1, "the group in flight at cancellation is discarded")
	assert.Equal(t, EventCancelled, snaps[0].Kind)
	assert.Empty(t, snaps[0].Results)
	assert.Zero(t, snaps[0].Group)
}

func TestRun_ContextCancelledBetweenGroups(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sink Collector
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, numbered(6)...), newDispatcher(t, oneRecordClient(), 2, time.Second),
		SinkFunc(func(snap Snapshot) {
			sink.Deliver(snap)
			if snap.Kind == EventSnapshot && snap.Group == 1 {
				cancel()
			}
		}))
	require.NoError(t, err)
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, StateCancelled, s.State())
	snaps := sink.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, EventSnapshot, snaps[0].Kind)
	assert.Equal(t, EventCancelled, snaps[1].Kind)
	assert.Equal(t, snaps[0].Results, snaps[1].Results)
}

func TestRun_ContextCancelledAfterLastGroupCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sink Collector
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, numbered(4)...), newDispatcher(t, oneRecordClient(), 2, time.Second),
		SinkFunc(func(snap Snapshot) {
			sink.Deliver(snap)
			if snap.Kind == EventSnapshot && snap.Group == snap.TotalGroups {
				cancel()
			}
		}))
	require.NoError(t, err)
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, StateCompleted, s.State())
	final, ok := sink.Last()
	require.True(t, ok)
	assert.Equal(t, EventCompleted, final.Kind)
	assert.Len(t, final.Results, 4)
}

func TestRun_NeverReused(t *testing.T) {
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, "A"), newDispatcher(t, oneRecordClient(), 1, time.Second), nil)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))
	assert.ErrorIs(t, s.Run(context.Background()), ErrSessionClosed)

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestCancel_BeforeRun(t *testing.T) {
	var sink Collector
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, "A"), newDispatcher(t, oneRecordClient(), 1, time.Second), &sink)
	require.NoError(t, err)

	assert.True(t, s.Cancel())
	<-s.Done()
	assert.ErrorIs(t, s.Run(context.Background()), ErrSessionClosed)

	snaps := sink.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, EventCancelled, snaps[0].Kind)
}

func TestWithID(t *testing.T) {
	s, err := New(model.SearchCriteria{StreetName: "Main"}, newCatalog(t, "A"), newDispatcher(t, oneRecordClient(), 1, time.Second), nil, WithID("fixed"))
	require.NoError(t, err)
	assert.Equal(t, "fixed", s.ID())
	assert.Equal(t, StateIdle, s.State())
}

func TestTee(t *testing.T) {
	var a, b Collector
	sink := Tee(&a, nil, &b)
	sink.Deliver(Snapshot{Kind: EventCompleted})
	assert.Len(t, a.Snapshots(), 1)
	assert.Len(t, b.Snapshots(), 1)
}
