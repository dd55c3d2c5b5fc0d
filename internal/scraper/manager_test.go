package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhound/internal/models"
	"jobhound/internal/storage"
)

const (
	urlA = "https://www.jobs.ch/en/vacancies/detail/a/"
	urlB = "https://www.jobs.ch/en/vacancies/detail/b/"
	urlC = "https://careers.beta.example/jobs/c"
)

var (
	testCriteria = models.SearchCriteria{
		Keywords:  []string{"go developer"},
		Locations: []string{"Genève"},
		SalaryMin: 80000,
		SalaryMax: 120000,
	}
	testProfile = models.UserProfile{Skills: []string{"go", "docker"}}
)

type harness struct {
	manager *Manager
	browser *fakeBrowser
	fetcher *fakeFetcher
	store   *storage.SQLiteStore
	clock   *fakeClock
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		browser: &fakeBrowser{results: func(query string, page int) ([]string, error) {
			if page > 0 {
				return nil, nil
			}
			return []string{urlA, urlB, "/search?q=next", urlC, "https://example.com/blog/post"}, nil
		}},
		fetcher: &fakeFetcher{pages: map[string]string{
			urlA: jobPage("Go Developer", "Acme"),
			urlB: jobPage("Go Developer", "Acme"),
			urlC: jobPage("Backend Engineer", "Beta"),
		}},
		store: testStore(t),
		clock: newFakeClock(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPipeline(opts, Deps{
		Browser:  h.browser,
		Fetcher:  h.fetcher,
		Registry: testRegistry(t),
		Store:    h.store,
		Clock:    h.clock,
		Logger:   logger,
	})
	t.Cleanup(p.Close)
	h.manager = NewManager(context.Background(), p, logger)
	return h
}

func (h *harness) run(t *testing.T) models.ScrapingSession {
	t.Helper()
	id, err := h.manager.StartRun(context.Background(), testCriteria, testProfile)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := h.manager.Wait(ctx, id)
	require.NoError(t, err)
	return sess
}

func TestManager_RunCompletes(t *testing.T) {
	h := newHarness(t, testOptions())

	sess := h.run(t)

	assert.Equal(t, models.StatusCompleted, sess.Status)
	require.NotNil(t, sess.EndTime)
	assert.Empty(t, sess.ErrorMessage)
	assert.Equal(t, models.SessionCounts{
		QueriesPlanned:     1,
		QueriesDone:        1,
		URLsFound:          3,
		PostingsExtracted:  3,
		DuplicatesObserved: 1,
		UniqueAfterDedup:   2,
		JobsPersisted:      2,
	}, sess.Counts)
	assert.Equal(t, 2, h.manager.lookup(sess.ID).dedup.SeenCount())

	page, err := h.store.QueryJobs(context.Background(), storage.JobQuery{})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	urls := []string{page.Jobs[0].URL, page.Jobs[1].URL}
	assert.ElementsMatch(t, []string{urlA, urlC}, urls, "first-seen duplicate is kept")
	for _, j := range page.Jobs {
		assert.Equal(t, sess.ID, j.SessionID)
		assert.InDelta(t, 50.0, j.Subscores.Salary, 0.001, "no salary on the page")
	}

	stored, err := h.store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, sess.Counts, stored.Counts)
	assert.Contains(t, string(stored.ConfigSnapshot), `"go developer"`)
}

func TestManager_QueryFailuresAreSoft(t *testing.T) {
	opts := testOptions()
	h := newHarness(t, opts)
	h.browser.results = func(query string, page int) ([]string, error) {
		switch {
		case page > 0:
			return nil, nil
		case query == `"go developer" "Genève"`:
			return nil, &models.FetchError{URL: "search", Err: context.DeadlineExceeded}
		case query == `"go developer" "Lausanne"`:
			return nil, &models.FetchError{URL: "search", StatusCode: 429, Err: errors.New("too many requests")}
		case query == `"go developer" "Zürich"`:
			return []string{"https://example.com/blog/post"}, nil
		}
		return []string{urlC}, nil
	}

	criteria := testCriteria
	criteria.Locations = []string{"Genève", "Lausanne", "Zürich", "Bern"}
	id, err := h.manager.StartRun(context.Background(), criteria, testProfile)
	require.NoError(t, err)
	sess, err := h.manager.Wait(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, sess.Status)
	assert.Equal(t, 4, sess.Counts.QueriesPlanned)
	assert.Equal(t, 4, sess.Counts.QueriesDone)
	assert.Equal(t, 3, sess.Counts.QueryFailures)
	assert.Equal(t, 1, sess.Counts.URLsFound)
	assert.Equal(t, 1, sess.Counts.JobsPersisted)
}

func TestManager_PacesAndRotatesBetweenQueries(t *testing.T) {
	opts := testOptions()
	opts.QueryDelay = 5 * time.Second
	opts.QueryJitter = time.Second
	opts.PageDelay = 0
	opts.RotateIdentity = true
	h := newHarness(t, opts)

	criteria := testCriteria
	criteria.Locations = []string{"Genève", "Lausanne", "Bern"}
	id, err := h.manager.StartRun(context.Background(), criteria, testProfile)
	require.NoError(t, err)
	_, err = h.manager.Wait(context.Background(), id)
	require.NoError(t, err)

	var pacing []time.Duration
	for _, d := range h.clock.Delays() {
		if d >= 5*time.Second {
			pacing = append(pacing, d)
		}
	}
	require.Len(t, pacing, 2, "no delay before the first query")
	for _, d := range pacing {
		assert.Less(t, d, 6*time.Second)
	}
	assert.Equal(t, 2, h.browser.rotations)
}

func TestManager_CancelMidExtraction(t *testing.T) {
	h := newHarness(t, testOptions())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.fetcher.hook = func(string) {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	id, err := h.manager.StartRun(context.Background(), testCriteria, testProfile)
	require.NoError(t, err)

	<-started
	require.NoError(t, h.manager.Cancel(context.Background(), id))
	require.NoError(t, h.manager.Cancel(context.Background(), id), "cancel is idempotent")
	close(release)

	sess, err := h.manager.Wait(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, sess.Status)
	assert.Equal(t, MsgCancelledByRequest, sess.ErrorMessage)
	require.NotNil(t, sess.EndTime)
	assert.Equal(t, 3, sess.Counts.URLsFound)
	assert.Equal(t, 1, sess.Counts.PostingsExtracted, "in-flight task finishes")
	assert.Equal(t, 1, sess.Counts.JobsPersisted)
	assert.Len(t, h.fetcher.Calls(), 1, "no task starts after cancellation")

	page, err := h.store.QueryJobs(context.Background(), storage.JobQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "partial results stay queryable")

	stored, err := h.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)

	require.NoError(t, h.manager.Cancel(context.Background(), id), "cancel after the end is a no-op")
	report, err := h.manager.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, report.Status)
}

func TestManager_RejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, testOptions())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.fetcher.hook = func(string) {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	id, err := h.manager.StartRun(context.Background(), testCriteria, testProfile)
	require.NoError(t, err)
	<-started

	active, ok := h.manager.Active()
	assert.True(t, ok)
	assert.Equal(t, id, active)

	_, err = h.manager.StartRun(context.Background(), testCriteria, testProfile)
	assert.ErrorIs(t, err, models.ErrRunInProgress)

	report, err := h.manager.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, report.Status)
	assert.Nil(t, report.EndTime)

	close(release)
	sess, err := h.manager.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, sess.Status)

	_, ok = h.manager.Active()
	assert.False(t, ok)
}

func TestManager_ConfigErrorHasNoSideEffects(t *testing.T) {
	h := newHarness(t, testOptions())

	_, err := h.manager.StartRun(context.Background(), models.SearchCriteria{Locations: []string{"Genève"}}, testProfile)
	var cfgErr *models.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "search.keywords", cfgErr.Field)

	_, err = h.manager.StartRun(context.Background(), models.SearchCriteria{Keywords: []string{"go"}, Locations: []string{" "}}, testProfile)
	require.True(t, errors.As(err, &cfgErr))

	sessions, err := h.store.ListSessions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Empty(t, h.browser.Visited())
}

func TestManager_BrowserUnavailableFailsRun(t *testing.T) {
	h := newHarness(t, testOptions())
	h.browser.results = func(string, int) ([]string, error) {
		return nil, models.ErrBrowserUnavailable
	}

	sess := h.run(t)

	assert.Equal(t, models.StatusFailed, sess.Status)
	assert.Contains(t, sess.ErrorMessage, "browser automation unavailable")
	require.NotNil(t, sess.EndTime)
}

func TestManager_PanicFailsRun(t *testing.T) {
	h := newHarness(t, testOptions())
	h.fetcher.hook = func(u string) {
		if u == urlC {
			panic("boom")
		}
	}

	sess := h.run(t)

	assert.Equal(t, models.StatusFailed, sess.Status)
	assert.Contains(t, sess.ErrorMessage, "boom")
}

func TestManager_ExtractionFailuresAreSoft(t *testing.T) {
	opts := testOptions()
	opts.Retry.MaxRetries = 2
	h := newHarness(t, opts)
	h.fetcher.errs = map[string]error{
		urlA: &models.FetchError{URL: urlA, StatusCode: 404, Err: errors.New("not found")},
		urlC: &models.FetchError{URL: urlC, StatusCode: 503, Err: errors.New("unavailable")},
	}

	sess := h.run(t)

	assert.Equal(t, models.StatusCompleted, sess.Status)
	assert.Equal(t, 2, sess.Counts.ExtractionFailures)
	assert.Equal(t, 1, sess.Counts.PostingsExtracted)
	assert.Equal(t, 1, sess.Counts.JobsPersisted)

	calls := map[string]int{}
	for _, u := range h.fetcher.Calls() {
		calls[u]++
	}
	assert.Equal(t, 1, calls[urlA], "client errors are not retried")
	assert.Equal(t, 3, calls[urlC], "server errors are retried")
}

func TestManager_RerunUpsertsByURL(t *testing.T) {
	h := newHarness(t, testOptions())

	first := h.run(t)
	second := h.run(t)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Counts.JobsPersisted)

	page, err := h.store.QueryJobs(context.Background(), storage.JobQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	for _, j := range page.Jobs {
		assert.Equal(t, second.ID, j.SessionID)
	}

	sessions, err := h.store.ListSessions(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestManager_UnknownSession(t *testing.T) {
	h := newHarness(t, testOptions())

	_, err := h.manager.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	assert.ErrorIs(t, h.manager.Cancel(context.Background(), "nope"), models.ErrSessionNotFound)
	_, err = h.manager.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestManager_ShutdownCancelsActiveRun(t *testing.T) {
	h := newHarness(t, testOptions())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.fetcher.hook = func(string) {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	id, err := h.manager.StartRun(context.Background(), testCriteria, testProfile)
	require.NoError(t, err)
	<-started

	done := make(chan error, 1)
	go func() { done <- h.manager.Shutdown(context.Background()) }()
	close(release)
	require.NoError(t, <-done)

	sess, err := h.manager.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, sess.Status)
	assert.Equal(t, MsgCancelledShutdown, sess.ErrorMessage)
}
