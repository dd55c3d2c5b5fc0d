package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"

	supabase "github.com/nedpals/supabase-go"

	"jobhound/internal/models"
)

// SupabaseStore persists jobs and sessions through the nedpals/supabase-go SDK.
// PostgREST filtering is limited to equality here; QueryJobs filters in memory.
type SupabaseStore struct {
	client *supabase.Client
	now    func() time.Time
}

// supabaseJob is the row shape of the "jobs" table.
type supabaseJob struct {
	URL               string           `json:"url"`
	Title             string           `json:"title"`
	Company           string           `json:"company"`
	Location          string           `json:"location"`
	CanonicalLocation string           `json:"canonical_location"`
	SalaryText        string           `json:"salary_text"`
	SalaryMin         *float64         `json:"salary_min"`
	SalaryMax         *float64         `json:"salary_max"`
	SalaryCurrency    string           `json:"salary_currency"`
	Description       string           `json:"description"`
	ContractType      string           `json:"contract_type"`
	Source            string           `json:"source"`
	Remote            bool             `json:"remote"`
	DedupKey          string           `json:"dedup_key"`
	MatchScore        float64          `json:"match_score"`
	Subscores         models.Subscores `json:"subscores"`
	SessionID         string           `json:"session_id"`
	DiscoveredAt      time.Time        `json:"discovered_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

type supabaseAlias struct {
	URL          string    `json:"url"`
	JobURL       string    `json:"job_url"`
	Source       string    `json:"source"`
	SessionID    string    `json:"session_id"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// NewSupabaseStore creates a SupabaseStore. It reads SUPABASE_URL and SUPABASE_KEY
// from environment variables if empty values are provided.
func NewSupabaseStore(supabaseURL, supabaseKey string) (*SupabaseStore, error) {
	if supabaseURL == "" {
		supabaseURL = os.Getenv("SUPABASE_URL")
	}
	if supabaseKey == "" {
		supabaseKey = os.Getenv("SUPABASE_KEY")
	}
	if supabaseURL == "" || supabaseKey == "" {
		return nil, fmt.Errorf("supabase URL and key must be provided via config or SUPABASE_URL / SUPABASE_KEY env vars")
	}

	client := supabase.CreateClient(supabaseURL, supabaseKey)
	return &SupabaseStore{client: client, now: time.Now}, nil
}

func (s *SupabaseStore) UpsertJob(_ context.Context, job *models.ScoredJob) (UpsertOutcome, error) {
	row := toSupabaseJob(job, s.now())
	fail := func(err error) (UpsertOutcome, error) {
		return 0, &models.PersistenceError{Op: "upsert job", Key: job.URL, Err: err}
	}

	var existing []supabaseJob
	if err := s.client.DB.From("jobs").Select("url").Eq("url", job.URL).Execute(&existing); err != nil {
		return fail(err)
	}
	if len(existing) > 0 {
		var updated []supabaseJob
		if err := s.client.DB.From("jobs").Update(row).Eq("url", job.URL).Execute(&updated); err != nil {
			return fail(err)
		}
		return UpsertUpdated, nil
	}

	var aliases []supabaseAlias
	if err := s.client.DB.From("job_aliases").Select("url").Eq("url", job.URL).Execute(&aliases); err != nil {
		return fail(err)
	}
	if len(aliases) > 0 {
		return UpsertAliased, nil
	}

	var sameKey []supabaseJob
	if err := s.client.DB.From("jobs").Select("url").Eq("dedup_key", job.DedupKey).Execute(&sameKey); err != nil {
		return fail(err)
	}
	if len(sameKey) > 0 {
		alias := supabaseAlias{URL: job.URL, JobURL: sameKey[0].URL, Source: job.Source, SessionID: job.SessionID, DiscoveredAt: row.DiscoveredAt}
		var inserted []supabaseAlias
		if err := s.client.DB.From("job_aliases").Insert(alias).Execute(&inserted); err != nil {
			return fail(err)
		}
		return UpsertAliased, nil
	}

	var inserted []supabaseJob
	if err := s.client.DB.From("jobs").Insert(row).Execute(&inserted); err != nil {
		return fail(err)
	}
	return UpsertInserted, nil
}

func (s *SupabaseStore) QueryJobs(_ context.Context, q JobQuery) (*JobPage, error) {
	jobs, err := s.allJobs("*")
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	return applyQuery(jobs, q), nil
}

// Stats aggregates in memory over the columns it needs.
func (s *SupabaseStore) Stats(_ context.Context) (*JobStats, error) {
	jobs, err := s.allJobs("company,source,match_score")
	if err != nil {
		return nil, fmt.Errorf("aggregating jobs: %w", err)
	}
	return jobStats(jobs), nil
}

func (s *SupabaseStore) allJobs(columns string) ([]models.ScoredJob, error) {
	var rows []supabaseJob
	if err := s.client.DB.From("jobs").Select(columns).Execute(&rows); err != nil {
		return nil, err
	}
	jobs := make([]models.ScoredJob, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toScoredJob())
	}
	return jobs, nil
}

// supabaseSession is the row shape of the "scraping_sessions" table.
type supabaseSession struct {
	ID             string               `json:"id"`
	StartTime      time.Time            `json:"start_time"`
	EndTime        *time.Time           `json:"end_time"`
	Status         models.SessionStatus `json:"status"`
	Counts         models.SessionCounts `json:"counts"`
	ErrorMessage   string               `json:"error_message"`
	ConfigSnapshot json.RawMessage      `json:"config_snapshot,omitempty"`
}

func (s *SupabaseStore) RecordSession(_ context.Context, sess *models.ScrapingSession) error {
	row := supabaseSession(*sess)
	fail := func(err error) error {
		return &models.PersistenceError{Op: "record session", Key: sess.ID, Err: err}
	}

	var existing []supabaseSession
	if err := s.client.DB.From("scraping_sessions").Select("id").Eq("id", sess.ID).Execute(&existing); err != nil {
		return fail(err)
	}
	var out []supabaseSession
	if len(existing) > 0 {
		if err := s.client.DB.From("scraping_sessions").Update(row).Eq("id", sess.ID).Execute(&out); err != nil {
			return fail(err)
		}
		return nil
	}
	if err := s.client.DB.From("scraping_sessions").Insert(row).Execute(&out); err != nil {
		return fail(err)
	}
	return nil
}

func (s *SupabaseStore) GetSession(_ context.Context, id string) (*models.ScrapingSession, error) {
	var rows []supabaseSession
	if err := s.client.DB.From("scraping_sessions").Select("*").Eq("id", id).Execute(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	sess := models.ScrapingSession(rows[0])
	return &sess, nil
}

func (s *SupabaseStore) ListSessions(_ context.Context, limit int) ([]models.ScrapingSession, error) {
	var rows []supabaseSession
	if err := s.client.DB.From("scraping_sessions").Select("*").Execute(&rows); err != nil {
		return nil, err
	}
	sessions := make([]models.ScrapingSession, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, models.ScrapingSession(r))
	}
	return latestSessions(sessions, limit), nil
}

// Close is a no-op: the SDK holds no persistent connection.
func (s *SupabaseStore) Close() error { return nil }

func toSupabaseJob(job *models.ScoredJob, now time.Time) supabaseJob {
	row := supabaseJob{
		URL:               job.URL,
		Title:             job.Title,
		Company:           job.Company,
		Location:          job.Location,
		CanonicalLocation: job.CanonicalLocation,
		SalaryText:        job.SalaryText,
		Description:       job.Description,
		ContractType:      job.ContractType,
		Source:            job.Source,
		Remote:            job.Remote,
		DedupKey:          job.DedupKey,
		MatchScore:        job.MatchScore,
		Subscores:         job.Subscores,
		SessionID:         job.SessionID,
		DiscoveredAt:      job.DiscoveredAt,
		UpdatedAt:         now,
	}
	if row.DiscoveredAt.IsZero() {
		row.DiscoveredAt = now
	}
	if job.Salary != nil {
		row.SalaryMin = &job.Salary.Min
		row.SalaryMax = &job.Salary.Max
		row.SalaryCurrency = job.Salary.Currency
	}
	return row
}

func (r supabaseJob) toScoredJob() models.ScoredJob {
	j := models.ScoredJob{
		NormalizedJob: models.NormalizedJob{
			RawPosting: models.RawPosting{
				URL:          r.URL,
				Title:        r.Title,
				Company:      r.Company,
				Location:     r.Location,
				SalaryText:   r.SalaryText,
				Description:  r.Description,
				ContractType: r.ContractType,
				Source:       r.Source,
				DiscoveredAt: r.DiscoveredAt,
			},
			CanonicalLocation: r.CanonicalLocation,
			DedupKey:          r.DedupKey,
			Remote:            r.Remote,
		},
		MatchScore: r.MatchScore,
		Subscores:  r.Subscores,
		SessionID:  r.SessionID,
	}
	if r.SalaryMin != nil && r.SalaryMax != nil {
		j.Salary = &models.SalaryRange{Min: *r.SalaryMin, Max: *r.SalaryMax, Currency: r.SalaryCurrency}
	}
	return j
}

// latestSessions sorts newest first and truncates to limit (20 when unset).
func latestSessions(sessions []models.ScrapingSession, limit int) []models.ScrapingSession {
	if limit <= 0 {
		limit = 20
	}
	slices.SortFunc(sessions, func(a, b models.ScrapingSession) int {
		return b.StartTime.Compare(a.StartTime)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions
}
