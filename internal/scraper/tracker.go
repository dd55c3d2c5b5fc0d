package scraper

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"jobhound/internal/models"
)

// Tracker owns the session of one run. Readers get a consistent snapshot
// without locking; writers serialize and publish a fresh immutable copy.
type Tracker struct {
	mu    sync.Mutex
	cur   atomic.Pointer[models.ScrapingSession]
	clock Clock
}

// NewTracker starts a session in the Running state.
func NewTracker(id string, snapshot json.RawMessage, clock Clock) *Tracker {
	t := &Tracker{clock: clock}
	t.cur.Store(&models.ScrapingSession{
		ID:             id,
		StartTime:      clock.Now(),
		Status:         models.StatusRunning,
		ConfigSnapshot: append(json.RawMessage(nil), snapshot...),
	})
	return t
}

// Snapshot returns a point-in-time copy of the session.
func (t *Tracker) Snapshot() models.ScrapingSession {
	return t.cur.Load().Clone()
}

// Update applies fn to a copy of the counters and publishes it.
// Updates after the terminal transition are dropped.
func (t *Tracker) Update(fn func(c *models.SessionCounts)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.cur.Load()
	if old.Status.Terminal() {
		return
	}
	next := *old
	fn(&next.Counts)
	t.cur.Store(&next)
}

// Finish moves the session to a terminal status, setting end_time in the same
// snapshot. Only the first call has an effect.
func (t *Tracker) Finish(status models.SessionStatus, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.cur.Load()
	if old.Status.Terminal() || !status.Terminal() {
		return false
	}
	next := *old
	end := t.clock.Now()
	next.Status = status
	next.EndTime = &end
	next.ErrorMessage = message
	t.cur.Store(&next)
	return true
}
