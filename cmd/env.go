package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/catalog"
	"github.com/sells-group/parcel-cli/internal/config"
	"github.com/sells-group/parcel-cli/internal/dispatch"
	"github.com/sells-group/parcel-cli/internal/metrics"
	"github.com/sells-group/parcel-cli/internal/resilience"
	"github.com/sells-group/parcel-cli/internal/store"
	"github.com/sells-group/parcel-cli/internal/transport"
)

// searchEnv holds everything the search and serve commands need to run
// sessions.
type searchEnv struct {
	Catalog    *catalog.Catalog
	Breakers   *resilience.Breakers
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry
	Store      store.Store // nil when history is disabled
}

// Close releases resources held by the environment.
func (e *searchEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initSearchEnv loads the catalog and wires the transport, breakers, metrics
// and dispatcher from c. When withHistory is set the store is opened and
// migrated. Callers should defer env.Close().
func initSearchEnv(ctx context.Context, c *config.Config, withHistory bool) (*searchEnv, error) {
	cat, err := catalog.Load(c.Catalog.Path)
	if err != nil {
		return nil, err
	}

	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		FailureThreshold: c.Circuit.FailureThreshold,
		ResetTimeout:     c.Circuit.ResetTimeout(),
		ShouldTrip:       resilience.IsTransient,
	})
	client := transport.NewHTTPClient(transport.HTTPOptions{
		UserAgent:     c.Search.UserAgent,
		HostRateLimit: c.Search.HostRateLimit,
		Breakers:      breakers,
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	d, err := dispatch.New(client, dispatch.Options{
		GroupSize: c.Search.GroupSize,
		Timeout:   c.Search.Timeout(),
	}, m)
	if err != nil {
		return nil, err
	}

	env := &searchEnv{
		Catalog:    cat,
		Breakers:   breakers,
		Dispatcher: d,
		Metrics:    m,
		Registry:   reg,
	}

	if withHistory {
		st, err := initStore(ctx, c)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	zap.L().Debug("search environment ready",
		zap.Int("jurisdictions", cat.Len()),
		zap.Int("group_size", c.Search.GroupSize),
		zap.Duration("timeout", c.Search.Timeout()),
		zap.Bool("history", withHistory),
	)
	return env, nil
}

// initStore opens and migrates the history store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
