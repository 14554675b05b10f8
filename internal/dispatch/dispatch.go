// Package dispatch fans resolved requests out in fixed-size groups. Members
// of a group run concurrently; groups run strictly one after another, and a
// group settles only when every member has answered or timed out.
package dispatch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parcel-cli/internal/metrics"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/transport"
)

// Defaults applied by config when nothing is set.
const (
	DefaultGroupSize = 15
	DefaultTimeout   = 10 * time.Second
)

var (
	// ErrInvalidGroupSize is returned for a group size below one.
	ErrInvalidGroupSize = eris.New("dispatch: group size must be at least 1")
	// ErrInvalidTimeout is returned for a non-positive request timeout.
	ErrInvalidTimeout = eris.New("dispatch: request timeout must be positive")
)

// Options configures a Dispatcher.
type Options struct {
	GroupSize int
	Timeout   time.Duration
}

// SettledGroup is one group after its barrier. Responses align with
// Descriptors by index.
type SettledGroup struct {
	Index       int
	Total       int
	Descriptors []model.RequestDescriptor
	Responses   []model.RawResponse
	Elapsed     time.Duration
}

// Failures counts members that produced no usable body.
func (g SettledGroup) Failures() int {
	n := 0
	for _, r := range g.Responses {
		if r.Failed() {
			n++
		}
	}
	return n
}

// SettleFunc receives each settled group. Returning false stops dispatch
// before the next group.
type SettleFunc func(ctx context.Context, g SettledGroup) bool

// Summary describes a finished Run.
type Summary struct {
	Groups     int
	Dispatched int
	Failed     int
	Stopped    bool
	Elapsed    time.Duration
}

// Dispatcher runs groups of requests against a Client.
type Dispatcher struct {
	client  transport.Client
	opts    Options
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New validates opts and creates a Dispatcher. m may be nil.
func New(client transport.Client, opts Options, m *metrics.Metrics) (*Dispatcher, error) {
	if client == nil {
		return nil, eris.New("dispatch: client is required")
	}
	if opts.GroupSize < 1 {
		return nil, eris.Wrapf(ErrInvalidGroupSize, "got %d", opts.GroupSize)
	}
	if opts.Timeout <= 0 {
		return nil, eris.Wrapf(ErrInvalidTimeout, "got %s", opts.Timeout)
	}
	return &Dispatcher{
		client:  client,
		opts:    opts,
		metrics: m,
		log:     zap.L().With(zap.String("component", "dispatch")),
	}, nil
}

// Options returns the dispatcher configuration.
func (d *Dispatcher) Options() Options {
	return d.opts
}

// GroupCount returns how many groups n descriptors split into.
func (d *Dispatcher) GroupCount(n int) int {
	return (n + d.opts.GroupSize - 1) / d.opts.GroupSize
}

// Partition splits descriptors into consecutive groups of at most size,
// preserving order. The final group holds the remainder.
func Partition(ds []model.RequestDescriptor, size int) [][]model.RequestDescriptor {
	if size < 1 || len(ds) == 0 {
		return nil
	}
	groups := make([][]model.RequestDescriptor, 0, (len(ds)+size-1)/size)
	for start := 0; start < len(ds); start += size {
		end := min(start+size, len(ds))
		groups = append(groups, ds[start:end:end])
	}
	return groups
}

// Run dispatches every group in order, calling onSettled after each barrier.
// Cancelling ctx or returning false from onSettled stops before the next
// group; requests already in flight always run to completion or timeout.
func (d *Dispatcher) Run(ctx context.Context, ds []model.RequestDescriptor, onSettled SettleFunc) Summary {
	start := time.Now()
	groups := Partition(ds, d.opts.GroupSize)
	sum := Summary{}

	for i, members := range groups {
		if ctx.Err() != nil {
			sum.Stopped = true
			break
		}

		g := d.runGroup(ctx, i, len(groups), members)
		sum.Groups++
		sum.Dispatched += len(members)
		sum.Failed += g.Failures()
		d.metrics.ObserveGroup(g.Elapsed)

		d.log.Debug("group settled",
			zap.Int("group", i+1),
			zap.Int("of", len(groups)),
			zap.Int("members", len(members)),
			zap.Int("failed", g.Failures()),
			zap.Duration("elapsed", g.Elapsed),
		)

		if onSettled != nil && !onSettled(ctx, g) {
			sum.Stopped = i < len(groups)-1
			break
		}
	}

	sum.Elapsed = time.Since(start)
	return sum
}

func (d *Dispatcher) runGroup(ctx context.Context, index, total int, members []model.RequestDescriptor) SettledGroup {
	start := time.Now()
	responses := make([]model.RawResponse, len(members))

	// Member failures are carried in RawResponse.Err, so the group never
	// short-circuits and Wait is a pure all-settle barrier.
	var eg errgroup.Group
	for i, desc := range members {
		eg.Go(func() error {
			responses[i] = d.call(ctx, desc)
			return nil
		})
	}
	_ = eg.Wait()

	return SettledGroup{
		Index:       index,
		Total:       total,
		Descriptors: members,
		Responses:   responses,
		Elapsed:     time.Since(start),
	}
}

// call enforces the per-request timeout itself, so a client that ignores its
// context still cannot hold the group barrier past the deadline. Session
// cancellation is stripped from the request context: in-flight calls drain.
func (d *Dispatcher) call(ctx context.Context, desc model.RequestDescriptor) model.RawResponse {
	start := time.Now()
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.Timeout)
	defer cancel()

	ch := make(chan model.RawResponse, 1)
	go func() {
		ch <- d.client.Get(reqCtx, desc)
	}()

	var resp model.RawResponse
	select {
	case resp = <-ch:
	case <-reqCtx.Done():
		resp = transport.Failure(desc, transport.CauseTimeout,
			eris.Wrapf(context.DeadlineExceeded, "no response within %s", d.opts.Timeout))
	}
	resp.JurisdictionID = desc.JurisdictionID
	resp.URL = desc.URL
	resp.Elapsed = time.Since(start)

	outcome := "ok"
	if resp.Failed() {
		cause := transport.CauseOf(resp.Err)
		outcome = string(cause)
		d.log.Warn("endpoint failed",
			zap.String("jurisdiction", desc.JurisdictionID),
			zap.String("url", desc.URL),
			zap.String("cause", outcome),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", resp.Elapsed),
			zap.Error(resp.Err),
		)
	}
	d.metrics.ObserveRequest(desc.JurisdictionID, outcome, resp.Elapsed)
	return resp
}
