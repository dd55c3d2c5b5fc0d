package models

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientFetch marks a recoverable network condition for one query or URL.
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrBlocked means the remote side refused the automated client.
	ErrBlocked = fmt.Errorf("blocked by remote: %w", ErrTransientFetch)
	// ErrNoResults means a search query produced no candidate links.
	ErrNoResults = fmt.Errorf("no results: %w", ErrTransientFetch)
	// ErrBrowserUnavailable is fatal to a run: search cannot proceed at all.
	ErrBrowserUnavailable = errors.New("browser automation unavailable")
	// ErrRunInProgress is returned when a run already owns the browser.
	ErrRunInProgress = errors.New("a scraping run is already in progress")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// ConfigError is the only error that reaches a caller synchronously.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// FetchError is a failed page load. It always matches ErrTransientFetch.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrTransientFetch }

// ExtractionError is a single posting that could not be parsed.
type ExtractionError struct {
	URL       string
	Extractor string
	Reason    string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %s", e.URL, e.Extractor, e.Reason)
}

// PersistenceError is a failed write of one record.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
