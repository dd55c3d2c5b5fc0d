package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jobhound/internal/models"
	"jobhound/internal/storage"
)

// Messages recorded on cancelled sessions.
const (
	MsgCancelledByRequest = "cancelled by request"
	MsgCancelledShutdown  = "cancelled: shutting down"
)

// How many finished runs are kept in memory for status queries.
const retainedRuns = 32

// Run is one in-process execution of the pipeline.
type Run struct {
	ID       string
	criteria models.SearchCriteria
	profile  models.UserProfile
	tracker  *Tracker
	dedup    *Deduplicator

	// stopCtx is done once the run is cancelled or the manager shuts down.
	stopCtx   context.Context
	stop      context.CancelFunc
	requested atomic.Bool
	done      chan struct{}
}

func (r *Run) stopped() bool {
	return r.stopCtx.Err() != nil
}

// StatusReport is what a status poller sees.
type StatusReport struct {
	SessionID      string               `json:"session_id"`
	Status         models.SessionStatus `json:"status"`
	Counts         models.SessionCounts `json:"counts"`
	ElapsedSeconds float64              `json:"elapsed_seconds"`
	ErrorMessage   string               `json:"error_message,omitempty"`
	StartTime      time.Time            `json:"start_time"`
	EndTime        *time.Time           `json:"end_time,omitempty"`
}

// Manager starts, observes and cancels runs. At most one run is active at a
// time because the search browser is a single shared instance.
type Manager struct {
	pipeline *Pipeline
	store    storage.Store
	clock    Clock
	logger   *slog.Logger
	baseCtx  context.Context
	newID    func() string

	mu     sync.Mutex
	active *Run
	runs   map[string]*Run
	order  []string
}

// NewManager creates a manager. Cancelling ctx cancels any active run.
func NewManager(ctx context.Context, p *Pipeline, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pipeline: p,
		store:    p.store,
		clock:    p.clock,
		logger:   logger,
		baseCtx:  ctx,
		newID:    uuid.NewString,
		runs:     make(map[string]*Run),
	}
}

type configSnapshot struct {
	Criteria models.SearchCriteria `json:"criteria"`
	Profile  models.UserProfile    `json:"profile"`
}

// StartRun validates the inputs and launches a run in the background.
// Invalid inputs return a *models.ConfigError before anything is recorded.
func (m *Manager) StartRun(ctx context.Context, criteria models.SearchCriteria, profile models.UserProfile) (string, error) {
	criteria = criteria.Clone()
	profile = profile.Clone()
	if _, err := m.pipeline.Planner().Plan(criteria); err != nil {
		return "", err
	}
	snapshot, err := json.Marshal(configSnapshot{Criteria: criteria, Profile: profile})
	if err != nil {
		return "", fmt.Errorf("encoding config snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return "", models.ErrRunInProgress
	}

	id := m.newID()
	stopCtx, stop := context.WithCancel(m.baseCtx)
	run := &Run{
		ID:       id,
		criteria: criteria,
		profile:  profile,
		tracker:  NewTracker(id, snapshot, m.clock),
		dedup:    NewDeduplicator(),
		stopCtx:  stopCtx,
		stop:     stop,
		done:     make(chan struct{}),
	}

	initial := run.tracker.Snapshot()
	if err := m.store.RecordSession(ctx, &initial); err != nil {
		m.logger.Warn("recording session failed", "session", id, "error", err)
	}

	m.active = run
	m.runs[id] = run
	m.order = append(m.order, id)
	m.pruneLocked()

	go m.execute(run)
	return id, nil
}

func (m *Manager) execute(run *Run) {
	defer close(run.done)
	defer run.stop()

	status, message := models.StatusCompleted, ""
	if err := m.runSafely(run); err != nil {
		status, message = models.StatusFailed, err.Error()
	} else if run.stopped() {
		status, message = models.StatusCancelled, MsgCancelledShutdown
		if run.requested.Load() {
			message = MsgCancelledByRequest
		}
	}

	run.tracker.Finish(status, message)
	m.pipeline.flush(m.baseCtx, run)

	snap := run.tracker.Snapshot()
	m.logger.Info("run finished",
		"session", run.ID,
		"status", snap.Status,
		"duration", snap.Duration(m.clock.Now()).Round(time.Second),
		"urls_found", snap.Counts.URLsFound,
		"jobs_persisted", snap.Counts.JobsPersisted,
		"duplicates", snap.Counts.DuplicatesObserved,
		"distinct_postings", run.dedup.SeenCount(),
		"error", snap.ErrorMessage,
	)

	m.mu.Lock()
	if m.active == run {
		m.active = nil
	}
	m.mu.Unlock()
}

// runSafely turns a panic anywhere in the run into a failure.
func (m *Manager) runSafely(run *Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("run panicked", "session", run.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return m.pipeline.Run(m.baseCtx, run)
}

// pruneLocked forgets the oldest finished runs beyond the retention limit.
func (m *Manager) pruneLocked() {
	for len(m.order) > retainedRuns {
		id := m.order[0]
		if r := m.runs[id]; r != nil && r == m.active {
			return
		}
		delete(m.runs, id)
		m.order = m.order[1:]
	}
}

func (m *Manager) lookup(id string) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

// Status reports live progress for in-process runs and falls back to the store
// for older sessions.
func (m *Manager) Status(ctx context.Context, id string) (StatusReport, error) {
	if run := m.lookup(id); run != nil {
		return m.report(run.tracker.Snapshot()), nil
	}
	sess, err := m.store.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return StatusReport{}, models.ErrSessionNotFound
	}
	if err != nil {
		return StatusReport{}, err
	}
	return m.report(*sess), nil
}

func (m *Manager) report(s models.ScrapingSession) StatusReport {
	return StatusReport{
		SessionID:      s.ID,
		Status:         s.Status,
		Counts:         s.Counts,
		ElapsedSeconds: s.Duration(m.clock.Now()).Seconds(),
		ErrorMessage:   s.ErrorMessage,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
	}
}

// Cancel requests a cooperative stop. It is a no-op for finished sessions.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	if run := m.lookup(id); run != nil {
		if !run.tracker.Snapshot().Status.Terminal() {
			run.requested.Store(true)
			run.stop()
			m.logger.Info("cancellation requested", "session", id)
		}
		return nil
	}
	if _, err := m.store.GetSession(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.ErrSessionNotFound
		}
		return err
	}
	return nil
}

// Wait blocks until the run ends or ctx is done, and returns the final session.
func (m *Manager) Wait(ctx context.Context, id string) (models.ScrapingSession, error) {
	run := m.lookup(id)
	if run == nil {
		sess, err := m.store.GetSession(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return models.ScrapingSession{}, models.ErrSessionNotFound
		}
		if err != nil {
			return models.ScrapingSession{}, err
		}
		return *sess, nil
	}
	select {
	case <-run.done:
		return run.tracker.Snapshot(), nil
	case <-ctx.Done():
		return run.tracker.Snapshot(), ctx.Err()
	}
}

// Active returns the id of the running session, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.ID, true
}

// Shutdown cancels the active run and waits for it to finalize.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	run := m.active
	m.mu.Unlock()
	if run == nil {
		return nil
	}
	run.stop()
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
