package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhound/internal/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testJob(url, key string, score float64, discovered time.Time) *models.ScoredJob {
	return &models.ScoredJob{
		NormalizedJob: models.NormalizedJob{
			RawPosting: models.RawPosting{
				URL:          url,
				Title:        "Développeur Go",
				Company:      "Acme",
				Location:     "Genève",
				SalaryText:   "100'000 CHF",
				Source:       "indeed",
				DiscoveredAt: discovered,
			},
			Salary:            &models.SalaryRange{Min: 100000, Max: 100000, Currency: "CHF"},
			CanonicalLocation: "geneve",
			DedupKey:          key,
		},
		MatchScore: score,
		Subscores:  models.Subscores{Skills: 50, Salary: 100, Location: 100, Remote: 0},
		SessionID:  "s1",
	}
}

func TestOpenSQLite_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "jobs.db")

	s1, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = s1.UpsertJob(context.Background(), testJob("https://a.example/jobs/1", "k1", 50, time.Now()))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	var versions int
	require.NoError(t, s2.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&versions))
	assert.Equal(t, 1, versions)

	page, err := s2.QueryJobs(context.Background(), JobQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestSQLiteStore_UpsertByURL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	outcome, err := s.UpsertJob(ctx, testJob("https://a.example/jobs/1", "k1", 40, now))
	require.NoError(t, err)
	assert.Equal(t, UpsertInserted, outcome)

	updated := testJob("https://a.example/jobs/1", "k1", 75.5, now)
	updated.Salary = nil
	outcome, err = s.UpsertJob(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, outcome)

	page, err := s.QueryJobs(ctx, JobQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	got := page.Jobs[0]
	assert.Equal(t, 75.5, got.MatchScore)
	assert.Nil(t, got.Salary)
	assert.Equal(t, "Développeur Go", got.Title)
	assert.Equal(t, models.Subscores{Skills: 50, Salary: 100, Location: 100}, got.Subscores)
	assert.True(t, got.DiscoveredAt.Equal(now))
}

func TestSQLiteStore_AliasesShareDedupKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.UpsertJob(ctx, testJob("https://a.example/jobs/1", "same", 60, now))
	require.NoError(t, err)

	outcome, err := s.UpsertJob(ctx, testJob("https://b.example/offre/9", "same", 60, now))
	require.NoError(t, err)
	assert.Equal(t, UpsertAliased, outcome)

	outcome, err = s.UpsertJob(ctx, testJob("https://b.example/offre/9", "same", 60, now))
	require.NoError(t, err)
	assert.Equal(t, UpsertAliased, outcome)

	aliases, err := s.Aliases(ctx, "https://a.example/jobs/1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b.example/offre/9"}, aliases)

	page, err := s.QueryJobs(ctx, JobQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestSQLiteStore_QueryJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	jobs := []*models.ScoredJob{
		testJob("https://a.example/jobs/1", "k1", 90, base),
		testJob("https://a.example/jobs/2", "k2", 30, base.Add(time.Hour)),
		testJob("https://a.example/jobs/3", "k3", 60, base.Add(2*time.Hour)),
	}
	jobs[1].Source = "linkedin"
	jobs[2].Location = "Lausanne"
	jobs[2].CanonicalLocation = "lausanne"
	for _, j := range jobs {
		_, err := s.UpsertJob(ctx, j)
		require.NoError(t, err)
	}

	urls := func(p *JobPage) []string {
		var out []string
		for _, j := range p.Jobs {
			out = append(out, j.URL)
		}
		return out
	}

	page, err := s.QueryJobs(ctx, JobQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/jobs/1", "https://a.example/jobs/3", "https://a.example/jobs/2"}, urls(page))

	page, err = s.QueryJobs(ctx, JobQuery{Sort: SortByDate})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/jobs/3", "https://a.example/jobs/2", "https://a.example/jobs/1"}, urls(page))

	page, err = s.QueryJobs(ctx, JobQuery{MinScore: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.QueryJobs(ctx, JobQuery{Source: "LinkedIn"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/jobs/2"}, urls(page))

	page, err = s.QueryJobs(ctx, JobQuery{Location: "laus"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/jobs/3"}, urls(page))

	page, err = s.QueryJobs(ctx, JobQuery{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, []string{"https://a.example/jobs/2"}, urls(page))
}

func TestSQLiteStore_Sessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := s.GetSession(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	sess := &models.ScrapingSession{
		ID:             "s1",
		StartTime:      start,
		Status:         models.StatusRunning,
		ConfigSnapshot: json.RawMessage(`{"criteria":{"keywords":["go"]}}`),
	}
	require.NoError(t, s.RecordSession(ctx, sess))

	end := start.Add(30 * time.Minute)
	sess.Status = models.StatusCancelled
	sess.EndTime = &end
	sess.ErrorMessage = "cancelled by request"
	sess.Counts = models.SessionCounts{QueriesPlanned: 4, QueriesDone: 2, URLsFound: 7, JobsPersisted: 3}
	require.NoError(t, s.RecordSession(ctx, sess))

	require.NoError(t, s.RecordSession(ctx, &models.ScrapingSession{ID: "s2", StartTime: end, Status: models.StatusRunning}))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(end))
	assert.Equal(t, sess.Counts, got.Counts)
	assert.Equal(t, "cancelled by request", got.ErrorMessage)
	assert.JSONEq(t, `{"criteria":{"keywords":["go"]}}`, string(got.ConfigSnapshot))

	list, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].ID)
	assert.Equal(t, "s1", list[1].ID)
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalJobs)
	assert.Empty(t, empty.TopCompanies)
	assert.Empty(t, empty.Sources)

	for _, j := range statsFixture() {
		outcome, err := s.UpsertJob(ctx, j)
		require.NoError(t, err)
		require.Equal(t, UpsertInserted, outcome)
	}

	got, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantStats, got)
}
