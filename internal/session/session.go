// Package session runs one federated search from start to a terminal state
// and streams immutable snapshots of the accumulated results to a Sink.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/catalog"
	"github.com/sells-group/parcel-cli/internal/dedupe"
	"github.com/sells-group/parcel-cli/internal/dispatch"
	"github.com/sells-group/parcel-cli/internal/metrics"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/normalize"
	"github.com/sells-group/parcel-cli/internal/query"
)

// ErrSessionClosed is returned by Run on a session that already ran or was
// cancelled before it started. Sessions are never reused.
var ErrSessionClosed = eris.New("session: already started or finished")

// Option configures a Session.
type Option func(*Session)

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

type event struct {
	snap Snapshot
	ack  chan struct{}
}

// Session is a single search over a catalog. All methods are safe for
// concurrent use.
type Session struct {
	id          string
	criteria    model.SearchCriteria
	descriptors []model.RequestDescriptor
	dispatcher  *dispatch.Dispatcher
	sink        Sink
	metrics     *metrics.Metrics
	log         *zap.Logger

	// Owned by the Run goroutine.
	acc dedupe.Set

	mu          sync.Mutex
	state       State
	delivered   []model.Result
	failures    int
	groups      int
	totalGroups int

	events    chan event
	startOnce sync.Once
	done      chan struct{}
}

// New validates the search and resolves one request per jurisdiction. All
// configuration errors surface here, before anything is dispatched. A nil
// sink discards snapshots.
func New(criteria model.SearchCriteria, cat *catalog.Catalog, d *dispatch.Dispatcher, sink Sink, opts ...Option) (*Session, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	if cat.Len() == 0 {
		return nil, catalog.ErrEmptyCatalog
	}
	if d == nil {
		return nil, eris.New("session: dispatcher is required")
	}

	descriptors, err := query.BuildAll(criteria, cat.All())
	if err != nil {
		return nil, eris.Wrap(err, "session: build requests")
	}
	if sink == nil {
		sink = SinkFunc(func(Snapshot) {})
	}

	groups := d.GroupCount(len(descriptors))
	s := &Session{
		id:          uuid.NewString(),
		criteria:    criteria,
		descriptors: descriptors,
		dispatcher:  d,
		sink:        sink,
		state:       StateIdle,
		totalGroups: groups,
		// Every group snapshot plus one terminal event fits without blocking.
		events: make(chan event, groups+1),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = zap.L().With(zap.String("component", "session"), zap.String("session_id", s.id))
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Criteria returns the search criteria.
func (s *Session) Criteria() model.SearchCriteria {
	return s.criteria
}

// Jurisdictions returns how many jurisdictions the session queries.
func (s *Session) Jurisdictions() int {
	return len(s.descriptors)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the terminal event has been delivered.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run dispatches every group and blocks until the terminal event has been
// delivered. Cancelling ctx ends the session as cancelled. Run may be called
// once.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateRunning
	s.mu.Unlock()

	start := time.Now()
	s.log.Info("search started",
		zap.String("criteria", s.criteria.String()),
		zap.Int("jurisdictions", len(s.descriptors)),
		zap.Int("groups", s.totalGroups),
	)

	sum := s.dispatcher.Run(ctx, s.descriptors, s.settle)

	// The dispatcher only stops early on cancellation; a context cancelled
	// after the last group settled still completes.
	s.mu.Lock()
	if s.state == StateRunning {
		final := StateCompleted
		if sum.Stopped {
			final = StateCancelled
		}
		s.finishLocked(final, s.delivered)
	}
	final := s.state
	s.mu.Unlock()

	<-s.done

	s.log.Info("search finished",
		zap.String("state", string(final)),
		zap.Int("results", s.acc.Len()),
		zap.Int("groups_dispatched", sum.Groups),
		zap.Int("failed_requests", sum.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Cancel stops the session at the next group boundary and delivers a
// cancelled event carrying the last delivered results. In-flight requests
// drain but their results are discarded. Cancel reports whether this call
// cancelled the session; it is a no-op once the session is terminal.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.finishLocked(StateCancelled, s.delivered)
	return true
}

// settle runs on the Run goroutine after each group barrier.
func (s *Session) settle(ctx context.Context, g dispatch.SettledGroup) bool {
	var incoming []model.Result
	for i, resp := range g.Responses {
		incoming = append(incoming, normalize.Normalize(resp, g.Descriptors[i].JurisdictionID)...)
	}

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	// A group that settles after cancellation is discarded.
	if ctx.Err() != nil {
		s.finishLocked(StateCancelled, s.delivered)
		s.mu.Unlock()
		return false
	}
	before := s.acc.Len()
	s.acc = dedupe.Merge(s.acc, incoming)
	s.failures += g.Failures()
	s.groups = g.Index + 1
	results := s.acc.Results()
	s.delivered = results
	ack := s.enqueueLocked(Snapshot{
		SessionID:   s.id,
		Kind:        EventSnapshot,
		State:       StateRunning,
		Criteria:    s.criteria,
		Group:       g.Index + 1,
		TotalGroups: g.Total,
		Added:       s.acc.Len() - before,
		Failures:    s.failures,
		Results:     results,
	})
	s.mu.Unlock()

	// Waiting for delivery keeps snapshots in lockstep with groups, so a
	// Cancel issued from the sink is seen before the next group starts.
	<-ack

	s.mu.Lock()
	running := s.state == StateRunning
	s.mu.Unlock()
	return running && ctx.Err() == nil
}

func (s *Session) finishLocked(final State, results []model.Result) {
	s.state = final
	kind := EventCompleted
	if final == StateCancelled {
		kind = EventCancelled
	}
	s.enqueueLocked(Snapshot{
		SessionID:   s.id,
		Kind:        kind,
		State:       final,
		Criteria:    s.criteria,
		Group:       s.groups,
		TotalGroups: s.totalGroups,
		Failures:    s.failures,
		Results:     results,
	})
	s.metrics.IncrementSession(string(final), len(results))
}

// enqueueLocked hands a snapshot to the delivery goroutine. The channel is
// sized for every event a session can produce, so it never blocks.
func (s *Session) enqueueLocked(snap Snapshot) chan struct{} {
	s.startOnce.Do(func() { go s.deliver() })
	if snap.Results == nil {
		snap.Results = []model.Result{}
	}
	ev := event{snap: snap, ack: make(chan struct{})}
	s.events <- ev
	return ev.ack
}

func (s *Session) deliver() {
	defer close(s.done)
	for ev := range s.events {
		s.sink.Deliver(ev.snap)
		close(ev.ack)
		if ev.snap.Terminal() {
			return
		}
	}
}
