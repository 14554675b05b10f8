// Package store persists search history so completed and cancelled searches
// can be listed and revisited. SQLite serves a single workstation; Postgres
// serves a shared deployment of the HTTP API.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-cli/internal/model"
)

// ErrNotFound is returned when a search id does not exist.
var ErrNotFound = eris.New("store: search not found")

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SearchFilter specifies criteria for listing searches.
type SearchFilter struct {
	State      string `json:"state,omitempty"`
	ConsumerID string `json:"consumer_id,omitempty"`
	StreetName string `json:"street_name,omitempty"`

	// StartedAfter, when set, keeps searches started at or after it.
	StartedAfter time.Time `json:"started_after,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func (f SearchFilter) limit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

// Outcome is the terminal state of a search as recorded in history.
type Outcome struct {
	State    string
	Groups   int
	Failures int
	Results  []model.Result
}

// Store defines the persistence interface for search history.
type Store interface {
	CreateSearch(ctx context.Context, run model.SearchRun) (*model.SearchRun, error)
	FinishSearch(ctx context.Context, id string, outcome Outcome) error
	GetSearch(ctx context.Context, id string) (*model.SearchRun, error)
	ListSearches(ctx context.Context, filter SearchFilter) ([]model.SearchRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the history store named by driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "":
		return NewSQLite(dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
}
