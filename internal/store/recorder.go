package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/session"
)

// Recorder is a session sink that writes the terminal outcome of a search to
// history. History is best effort: write failures are logged, never surfaced
// to the search.
type Recorder struct {
	store   Store
	timeout time.Duration
}

// NewRecorder creates a Recorder writing to st.
func NewRecorder(st Store) *Recorder {
	return &Recorder{store: st, timeout: 5 * time.Second}
}

// Begin inserts the running record for a session before it starts.
func (r *Recorder) Begin(ctx context.Context, consumerID string, s *session.Session) {
	_, err := r.store.CreateSearch(ctx, model.SearchRun{
		ID:            s.ID(),
		ConsumerID:    consumerID,
		Criteria:      s.Criteria(),
		Jurisdictions: s.Jurisdictions(),
	})
	if err != nil {
		zap.L().Warn("history: create search failed", zap.String("session_id", s.ID()), zap.Error(err))
	}
}

// Deliver records terminal snapshots and ignores the rest.
func (r *Recorder) Deliver(snap session.Snapshot) {
	if !snap.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.store.FinishSearch(ctx, snap.SessionID, Outcome{
		State:    string(snap.State),
		Groups:   snap.Group,
		Failures: snap.Failures,
		Results:  snap.Results,
	})
	if err != nil {
		zap.L().Warn("history: finish search failed", zap.String("session_id", snap.SessionID), zap.Error(err))
	}
}

