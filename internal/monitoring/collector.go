// Package monitoring summarizes recent search activity for operators.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-cli/internal/resilience"
	"github.com/sells-group/parcel-cli/internal/store"
)

// maxScan bounds how many history rows one collection reads.
const maxScan = 10000

// Stats is a point-in-time view of search history.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Running   int `json:"running"`

	// CancelRate is cancelled / (completed + cancelled).
	CancelRate float64 `json:"cancel_rate"`

	AvgResults  float64       `json:"avg_results"`
	AvgFailures float64       `json:"avg_failures"`
	AvgDuration time.Duration `json:"avg_duration"`

	// OpenCircuits lists jurisdictions currently failing fast.
	OpenCircuits []string `json:"open_circuits"`

	Since       time.Time `json:"since"`
	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers Stats from history and, when set, the circuit breakers.
type Collector struct {
	store    store.Store
	breakers *resilience.Breakers
	now      func() time.Time
}

// NewCollector creates a collector. breakers may be nil.
func NewCollector(st store.Store, breakers *resilience.Breakers) *Collector {
	return &Collector{store: st, breakers: breakers, now: time.Now}
}

// Collect summarizes searches started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookback time.Duration) (*Stats, error) {
	now := c.now().UTC()
	stats := &Stats{
		Since:        now.Add(-lookback),
		CollectedAt:  now,
		OpenCircuits: []string{},
	}

	runs, err := c.store.ListSearches(ctx, store.SearchFilter{
		StartedAfter: stats.Since,
		Limit:        maxScan,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list searches")
	}

	stats.Total = len(runs)
	var (
		results, failures, finished int
		totalDur                    time.Duration
	)
	for _, r := range runs {
		switch r.State {
		case "completed":
			stats.Completed++
		case "cancelled":
			stats.Cancelled++
		case "running":
			stats.Running++
		}
		if r.Finished() {
			finished++
			totalDur += r.Duration()
			results += r.ResultCount
			failures += r.Failures
		}
	}

	if terminal := stats.Completed + stats.Cancelled; terminal > 0 {
		stats.CancelRate = float64(stats.Cancelled) / float64(terminal)
	}
	if finished > 0 {
		stats.AvgResults = float64(results) / float64(finished)
		stats.AvgFailures = float64(failures) / float64(finished)
		stats.AvgDuration = totalDur / time.Duration(finished)
	}

	if c.breakers != nil {
		if open := c.breakers.Open(); open != nil {
			stats.OpenCircuits = open
		}
	}
	return stats, nil
}
