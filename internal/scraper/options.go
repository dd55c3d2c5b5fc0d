package scraper

import (
	"context"
	"time"
)

// Options bounds and paces one run.
type Options struct {
	MaxQueries         int
	MaxResultsPerQuery int
	MaxJobsTotal       int

	// SearchURL is a template with {query} and {offset} placeholders.
	SearchURL      string
	ResultsPerPage int
	SearchTimeout  time.Duration
	PageDelay      time.Duration
	QueryDelay     time.Duration
	QueryJitter    time.Duration
	RotateIdentity bool

	ExtractionWorkers int
	FetchTimeout      time.Duration
	Retry             RetryConfig

	// SessionFlushEvery persists the session after that many processed URLs.
	SessionFlushEvery int
	SalaryTolerance   float64
}

// RetryConfig defines retry behavior for page fetches.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultSearchURL queries Google, ten results per page.
const DefaultSearchURL = "https://www.google.com/search?q={query}&start={offset}&hl=fr"

// DefaultOptions mirrors the defaults of the configuration file.
func DefaultOptions() Options {
	return Options{
		MaxQueries:         15,
		MaxResultsPerQuery: 20,
		MaxJobsTotal:       200,
		SearchURL:          DefaultSearchURL,
		ResultsPerPage:     10,
		SearchTimeout:      20 * time.Second,
		PageDelay:          3 * time.Second,
		QueryDelay:         5 * time.Second,
		QueryJitter:        5 * time.Second,
		RotateIdentity:     true,
		ExtractionWorkers:  4,
		FetchTimeout:       15 * time.Second,
		Retry: RetryConfig{
			MaxRetries:    2,
			InitialDelay:  1 * time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
		},
		SessionFlushEvery: 10,
		SalaryTolerance:   0.10,
	}
}

// backoff calculates the exponential backoff delay before a retry attempt.
func (r RetryConfig) backoff(attempt int) time.Duration {
	delay := float64(r.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.BackoffFactor
	}
	if d := time.Duration(delay); r.MaxDelay > 0 && d > r.MaxDelay {
		return r.MaxDelay
	}
	return time.Duration(delay)
}

// Clock is the time source of the pipeline. Tests inject a fake one.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// sleep waits d on the clock, returning early with the context's error.
func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
