package models

import "time"

// RawPosting is what a site extractor pulls out of one page, before any cleanup.
type RawPosting struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Company      string    `json:"company"`
	Location     string    `json:"location"`
	SalaryText   string    `json:"salary_text,omitempty"`
	Description  string    `json:"description,omitempty"`
	ContractType string    `json:"contract_type,omitempty"` // full-time, part-time, contract, freelance
	Source       string    `json:"source"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// SalaryRange is a yearly amount range parsed from free text.
type SalaryRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency,omitempty"`
}

// NormalizedJob is a RawPosting with canonical fields derived from it.
// Salary is nil when the raw text could not be parsed.
type NormalizedJob struct {
	RawPosting
	Salary            *SalaryRange `json:"salary,omitempty"`
	CanonicalLocation string       `json:"canonical_location"`
	DedupKey          string       `json:"dedup_key"`
	Remote            bool         `json:"remote"`
}

// Subscores holds the per-component scores, each in [0,100].
type Subscores struct {
	Skills   float64 `json:"skills"`
	Salary   float64 `json:"salary"`
	Location float64 `json:"location"`
	Remote   float64 `json:"remote"`
}

// ScoredJob is the stored, queryable result of the pipeline.
type ScoredJob struct {
	NormalizedJob
	MatchScore float64   `json:"match_score"`
	Subscores  Subscores `json:"subscores"`
	SessionID  string    `json:"session_id,omitempty"`
}

// Contract type constants
const (
	JobTypeFullTime  = "full-time"
	JobTypePartTime  = "part-time"
	JobTypeContract  = "contract"
	JobTypeFreelance = "freelance"
)
