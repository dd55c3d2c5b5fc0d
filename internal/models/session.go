package models

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of a scraping session.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// SessionCounts are the progress counters of one run. They only ever grow.
type SessionCounts struct {
	QueriesPlanned      int `json:"queries_planned"`
	QueriesDone         int `json:"queries_done"`
	QueryFailures       int `json:"query_failures"`
	URLsFound           int `json:"urls_found"`
	PostingsExtracted   int `json:"postings_extracted"`
	ExtractionFailures  int `json:"extraction_failures"`
	DuplicatesObserved  int `json:"duplicates_observed"`
	UniqueAfterDedup    int `json:"unique_after_dedup"`
	JobsPersisted       int `json:"jobs_persisted"`
	PersistenceFailures int `json:"persistence_failures"`
}

// ScrapingSession records one end-to-end run.
type ScrapingSession struct {
	ID             string          `json:"id"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
	Status         SessionStatus   `json:"status"`
	Counts         SessionCounts   `json:"counts"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ConfigSnapshot json.RawMessage `json:"config_snapshot,omitempty"`
}

// Clone copies the session including its pointer and byte fields.
func (s ScrapingSession) Clone() ScrapingSession {
	if s.EndTime != nil {
		end := *s.EndTime
		s.EndTime = &end
	}
	if s.ConfigSnapshot != nil {
		s.ConfigSnapshot = append(json.RawMessage(nil), s.ConfigSnapshot...)
	}
	return s
}

// Duration is the elapsed time of the session as of now (or its end).
func (s ScrapingSession) Duration(now time.Time) time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}
