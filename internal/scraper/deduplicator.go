package scraper

import (
	"sync"

	"jobhound/internal/models"
	"jobhound/internal/normalize"
)

// Deduplicator collapses postings sharing a dedup key within one run.
// The first job seen for a key is the one kept.
type Deduplicator struct {
	seenJobs map[string]string // dedup key -> URL of the first-seen job
	mu       sync.Mutex
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		seenJobs: make(map[string]string),
	}
}

// Observe records the job and reports whether it is the first one with its key.
// Observing the same URL twice is not a duplicate.
func (d *Deduplicator) Observe(job models.NormalizedJob) bool {
	hash := d.generateJobHash(job)

	d.mu.Lock()
	defer d.mu.Unlock()

	if first, ok := d.seenJobs[hash]; ok {
		return first == job.URL
	}
	d.seenJobs[hash] = job.URL
	return true
}

// SeenCount returns the number of distinct keys seen.
func (d *Deduplicator) SeenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.seenJobs)
}

// generateJobHash uses the normalizer's key, computing it when absent.
func (d *Deduplicator) generateJobHash(job models.NormalizedJob) string {
	if job.DedupKey != "" {
		return job.DedupKey
	}
	return normalize.DedupKey(job.Title, job.Company, job.Location)
}
