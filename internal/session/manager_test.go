package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/transport"
)

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not finish", s.ID())
	}
}

func TestManager_SupersedesPriorSession(t *testing.T) {
	release := make(chan struct{})
	client := transport.ClientFunc(func(ctx context.Context, d model.RequestDescriptor) model.RawResponse {
		<-release
		return oneRecordClient().Get(ctx, d)
	})
	m := NewManager(newCatalog(t, numbered(4)...), newDispatcher(t, client, 2, 5*time.Second))

	var first, second Collector
	s1, err := m.Start(context.Background(), "user-1", model.SearchCriteria{StreetName: "Main"}, &first)
	require.NoError(t, err)

	s2, err := m.Start(context.Background(), "user-1", model.SearchCriteria{StreetName: "Elm"}, &second)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, s1.State())

	active, ok := m.Active("user-1")
	require.True(t, ok)
	assert.Same(t, s2, active)

	close(release)
	waitDone(t, s1)
	waitDone(t, s2)

	snaps := first.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, EventCancelled, snaps[0].Kind)

	last, _ := second.Last()
	assert.Equal(t, EventCompleted, last.Kind)
	assert.Len(t, last.Results, 4)

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestManager_InvalidSearchKeepsPrior(t *testing.T) {
	release := make(chan struct{})
	client := transport.ClientFunc(func(ctx context.Context, d model.RequestDescriptor) model.RawResponse {
		<-release
		return oneRecordClient().Get(ctx, d)
	})
	m := NewManager(newCatalog(t, "A"), newDispatcher(t, client, 1, 5*time.Second))

	s1, err := m.Start(context.Background(), "user-1", model.SearchCriteria{StreetName: "Main"}, nil)
	require.NoError(t, err)

	_, err = m.Start(context.Background(), "user-1", model.SearchCriteria{}, nil)
	assert.ErrorIs(t, err, model.ErrEmptyStreetName)
	require.Eventually(t, func() bool { return s1.State() == StateRunning }, time.Second, 5*time.Millisecond)

	close(release)
	waitDone(t, s1)
	assert.Equal(t, StateCompleted, s1.State())
}

func TestManager_ConsumersIndependent(t *testing.T) {
	m := NewManager(newCatalog(t, "A"), newDispatcher(t, oneRecordClient(), 1, time.Second))

	var a, b Collector
	s1, err := m.Start(context.Background(), "a", model.SearchCriteria{StreetName: "Main"}, &a)
	require.NoError(t, err)
	s2, err := m.Start(context.Background(), "b", model.SearchCriteria{StreetName: "Main"}, &b)
	require.NoError(t, err)

	waitDone(t, s1)
	waitDone(t, s2)
	assert.Equal(t, StateCompleted, s1.State())
	assert.Equal(t, StateCompleted, s2.State())
}

func TestManager_CancelAndShutdown(t *testing.T) {
	release := make(chan struct{})
	client := transport.ClientFunc(func(ctx context.Context, d model.RequestDescriptor) model.RawResponse {
		<-release
		return oneRecordClient().Get(ctx, d)
	})
	m := NewManager(newCatalog(t, numbered(3)...), newDispatcher(t, client, 1, 5*time.Second))

	s1, err := m.Start(context.Background(), "a", model.SearchCriteria{StreetName: "Main"}, nil)
	require.NoError(t, err)
	s2, err := m.Start(context.Background(), "b", model.SearchCriteria{StreetName: "Main"}, nil)
	require.NoError(t, err)

	assert.True(t, m.Cancel("a"))
	assert.False(t, m.Cancel("nobody"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdown := make(chan error, 1)
	go func() { shutdown <- m.Shutdown(ctx) }()

	require.Eventually(t, func() bool { return s2.State() == StateCancelled }, time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-shutdown)

	assert.Equal(t, StateCancelled, s1.State())
	assert.Equal(t, StateCancelled, s2.State())
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := NewManager(newCatalog(t, numbered(2)...), newDispatcher(t, oneRecordClient(), 1, time.Second))
	require.NoError(t, m.Shutdown(context.Background()))

	var sink Collector
	s, err := m.Start(context.Background(), "late", model.SearchCriteria{StreetName: "Main"}, &sink)
	require.ErrorIs(t, err, ErrShuttingDown)
	assert.Nil(t, s)
	assert.Zero(t, m.Len())
	assert.Empty(t, sink.Snapshots())
}
