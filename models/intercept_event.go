package models

import (
	"database/sql"
	"time"
)

// Outcomes recorded for an interceptor run.
const (
	OutcomeApplied = "applied"
	OutcomeFailed  = "failed"
)

// InterceptEvent is one interceptor execution against one response.
type InterceptEvent struct {
	ID             int64          `json:"id" readOnly:"true"`
	ResponseID     string         `json:"response_id" example:"3f1c2a4e-7d1b-4f0e-9a43-2b7f8e1d9c55"`
	Timestamp      time.Time      `json:"timestamp"`
	URL            string         `json:"url" example:"https://stackoverflow.com/questions"`
	InterceptorID  string         `json:"interceptor_id" example:"stackexchange-remove-hot-network-questions"`
	Outcome        string         `json:"outcome" enum:"applied,failed"`
	Error          sql.NullString `json:"error,omitempty"`
	DurationMicros int64          `json:"duration_us"`
}

// InterceptEventFilters narrows an event listing.
type InterceptEventFilters struct {
	InterceptorID string
	Outcome       string
	Limit         int
}
