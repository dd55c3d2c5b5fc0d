package storage

import (
	"context"
	"errors"
	"fmt"

	"jobhound/internal/models"
)

// UpsertOutcome says what an UpsertJob call did.
type UpsertOutcome int

const (
	// UpsertInserted stored a URL that was never seen before.
	UpsertInserted UpsertOutcome = iota + 1
	// UpsertUpdated refreshed the record already stored for the URL.
	UpsertUpdated
	// UpsertAliased kept the URL as an alias of an earlier record with the same dedup key.
	UpsertAliased
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	case UpsertAliased:
		return "aliased"
	}
	return "unknown"
}

// Sort orders for QueryJobs.
const (
	SortByScore = "score"
	SortByDate  = "date"
)

// DefaultPerPage is used when a query does not set PerPage.
const DefaultPerPage = 50

// JobQuery filters, sorts and pages stored jobs. Zero values mean "no filter".
type JobQuery struct {
	MinScore float64
	Source   string
	Location string // case-insensitive substring of the raw or canonical location
	Sort     string // SortByScore (default) or SortByDate
	Page     int    // 1-based
	PerPage  int
}

// JobPage is one page of query results.
type JobPage struct {
	Jobs    []models.ScoredJob `json:"jobs"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
	Total   int                `json:"total"`
}

// TopCompaniesLimit caps JobStats.TopCompanies.
const TopCompaniesLimit = 10

// NamedCount is a group name with its number of jobs.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// JobStats summarizes the stored jobs. Empty company or source values are not
// counted as a company or source.
type JobStats struct {
	TotalJobs       int          `json:"total_jobs"`
	AverageScore    float64      `json:"avg_score"`
	UniqueCompanies int          `json:"unique_companies"`
	UniqueSources   int          `json:"unique_sources"`
	TopCompanies    []NamedCount `json:"top_companies"`
	Sources         []NamedCount `json:"sources"`
}

// ErrNotFound is returned for unknown ids.
var ErrNotFound = errors.New("not found")

// Store persists scored jobs and scraping sessions.
//
// URL is the identity of a job: UpsertJob inserts unseen URLs and updates known
// ones. A new URL whose dedup key already belongs to a stored job is kept as an
// alias of that job instead of a second record.
type Store interface {
	UpsertJob(ctx context.Context, job *models.ScoredJob) (UpsertOutcome, error)
	QueryJobs(ctx context.Context, q JobQuery) (*JobPage, error)
	RecordSession(ctx context.Context, s *models.ScrapingSession) error
	GetSession(ctx context.Context, id string) (*models.ScrapingSession, error)
	ListSessions(ctx context.Context, limit int) ([]models.ScrapingSession, error)
	Stats(ctx context.Context) (*JobStats, error)
	Close() error
}

// Normalize fills defaults and clamps paging values.
func (q JobQuery) Normalize() JobQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > 500 {
		q.PerPage = 500
	}
	if q.Sort != SortByDate {
		q.Sort = SortByScore
	}
	return q
}

// Offset is the number of rows skipped before the requested page.
func (q JobQuery) Offset() int {
	return (q.Page - 1) * q.PerPage
}

// Backend drivers selectable in configuration.
const (
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
	DriverMongo    = "mongo"
)

// Options selects and configures a backend.
type Options struct {
	Driver        string
	Path          string
	SupabaseURL   string
	SupabaseKey   string
	MongoURI      string
	MongoDatabase string
}

// Open builds the configured backend. An empty driver means SQLite.
func Open(o Options) (Store, error) {
	switch o.Driver {
	case "", DriverSQLite:
		return OpenSQLite(o.Path)
	case DriverSupabase:
		return NewSupabaseStore(o.SupabaseURL, o.SupabaseKey)
	case DriverMongo:
		return NewMongoStore(o.MongoURI, o.MongoDatabase)
	}
	return nil, fmt.Errorf("unknown database driver %q", o.Driver)
}
