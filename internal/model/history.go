package model

import "time"

// SearchRun is the persisted history record of one search session.
type SearchRun struct {
	ID            string         `json:"id"`
	ConsumerID    string         `json:"consumer_id,omitempty"`
	Criteria      SearchCriteria `json:"criteria"`
	State         string         `json:"state"`
	Jurisdictions int            `json:"jurisdictions"`
	Groups        int            `json:"groups"`
	Failures      int            `json:"failures"`
	ResultCount   int            `json:"result_count"`
	Results       []Result       `json:"results,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
}

// Finished reports whether the run reached a terminal state.
func (r SearchRun) Finished() bool {
	return r.FinishedAt != nil
}

// Duration returns how long the run took, or zero while it is still running.
func (r SearchRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
