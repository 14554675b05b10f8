package session

import (
	"sync"

	"github.com/sells-group/parcel-cli/internal/model"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// EventKind distinguishes per-group snapshots from terminal events.
type EventKind string

const (
	EventSnapshot  EventKind = "snapshot"
	EventCompleted EventKind = "completed"
	EventCancelled EventKind = "cancelled"
)

// Snapshot is an immutable view of a session's accumulated results. Results
// always holds the full accumulated list; the last Added entries are the ones
// the latest group contributed. Group is the number of groups delivered so
// far, counting from 1.
type Snapshot struct {
	SessionID   string               `json:"session_id"`
	Kind        EventKind            `json:"kind"`
	State       State                `json:"state"`
	Criteria    model.SearchCriteria `json:"criteria"`
	Group       int                  `json:"group"`
	TotalGroups int                  `json:"total_groups"`
	Added       int                  `json:"added"`
	Failures    int                  `json:"failures"`
	Results     []model.Result       `json:"results"`
}

// Terminal reports whether this is the last event of the session.
func (s Snapshot) Terminal() bool {
	return s.Kind != EventSnapshot
}

// Sink receives snapshots in order, one at a time, from a single goroutine.
// Deliver may call Session.Cancel.
type Sink interface {
	Deliver(Snapshot)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Snapshot)

// Deliver calls f.
func (f SinkFunc) Deliver(s Snapshot) {
	f(s)
}

type teeSink []Sink

func (t teeSink) Deliver(s Snapshot) {
	for _, sink := range t {
		sink.Deliver(s)
	}
}

// Tee delivers every snapshot to each non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	var out teeSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Collector is a Sink that keeps every snapshot it receives.
type Collector struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

// Deliver records s.
func (c *Collector) Deliver(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, s)
}

// Snapshots returns every snapshot received so far.
func (c *Collector) Snapshots() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Snapshot, len(c.snapshots))
	copy(out, c.snapshots)
	return out
}

// Last returns the most recent snapshot, if any.
func (c *Collector) Last() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snapshots) == 0 {
		return Snapshot{}, false
	}
	return c.snapshots[len(c.snapshots)-1], true
}
