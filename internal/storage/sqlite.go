package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"jobhound/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is the default, embedded Store.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database file at path and runs pending migrations.
// Pass ":memory:" for an in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: avoids "database is locked" and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL", "PRAGMA foreign_keys = ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that are not yet recorded in schema_version.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// UpsertJob stores the job by URL, or records it as an alias of an earlier job
// sharing its dedup key.
func (s *SQLiteStore) UpsertJob(ctx context.Context, job *models.ScoredJob) (outcome UpsertOutcome, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &models.PersistenceError{Op: "upsert job", Key: job.URL, Err: err}
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			err = &models.PersistenceError{Op: "upsert job", Key: job.URL, Err: err}
		}
	}()

	now := formatTime(s.now())
	subscores, err := json.Marshal(job.Subscores)
	if err != nil {
		return 0, err
	}
	var salaryMin, salaryMax sql.NullFloat64
	var currency string
	if job.Salary != nil {
		salaryMin = sql.NullFloat64{Float64: job.Salary.Min, Valid: true}
		salaryMax = sql.NullFloat64{Float64: job.Salary.Max, Valid: true}
		currency = job.Salary.Currency
	}

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE url = ?", job.URL).Scan(&exists); err != nil {
		return 0, err
	}

	if exists > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET title = ?, company = ?, location = ?, canonical_location = ?, salary_text = ?,
				salary_min = ?, salary_max = ?, salary_currency = ?, description = ?, contract_type = ?,
				source = ?, remote = ?, dedup_key = ?, match_score = ?, subscores = ?, session_id = ?,
				updated_at = ?
			WHERE url = ?`,
			job.Title, job.Company, job.Location, job.CanonicalLocation, job.SalaryText,
			salaryMin, salaryMax, currency, job.Description, job.ContractType,
			job.Source, job.Remote, job.DedupKey, job.MatchScore, string(subscores), job.SessionID,
			now, job.URL,
		)
		if err != nil {
			return 0, err
		}
		return UpsertUpdated, tx.Commit()
	}

	var aliased int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_aliases WHERE url = ?", job.URL).Scan(&aliased); err != nil {
		return 0, err
	}
	if aliased > 0 {
		return UpsertAliased, tx.Commit()
	}

	var primary string
	err = tx.QueryRowContext(ctx, "SELECT url FROM jobs WHERE dedup_key = ? ORDER BY created_at ASC LIMIT 1", job.DedupKey).Scan(&primary)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO job_aliases (url, job_url, source, session_id, discovered_at)
			VALUES (?, ?, ?, ?, ?)`,
			job.URL, primary, job.Source, job.SessionID, formatTime(job.DiscoveredAt),
		)
		if err != nil {
			return 0, err
		}
		return UpsertAliased, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return 0, err
	}

	discovered := job.DiscoveredAt
	if discovered.IsZero() {
		discovered = s.now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (url, title, company, location, canonical_location, salary_text,
			salary_min, salary_max, salary_currency, description, contract_type, source, remote,
			dedup_key, match_score, subscores, session_id, discovered_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.URL, job.Title, job.Company, job.Location, job.CanonicalLocation, job.SalaryText,
		salaryMin, salaryMax, currency, job.Description, job.ContractType, job.Source, job.Remote,
		job.DedupKey, job.MatchScore, string(subscores), job.SessionID, formatTime(discovered), now, now,
	)
	if err != nil {
		return 0, err
	}
	return UpsertInserted, tx.Commit()
}

const jobColumns = `url, title, company, location, canonical_location, salary_text, salary_min, salary_max,
	salary_currency, description, contract_type, source, remote, dedup_key, match_score, subscores,
	session_id, discovered_at`

// QueryJobs filters and pages jobs in SQL.
func (s *SQLiteStore) QueryJobs(ctx context.Context, q JobQuery) (*JobPage, error) {
	q = q.Normalize()

	where := []string{"match_score >= ?"}
	args := []any{q.MinScore}
	if q.Source != "" {
		where = append(where, "lower(source) = lower(?)")
		args = append(args, q.Source)
	}
	if q.Location != "" {
		where = append(where, "(instr(lower(location), lower(?)) > 0 OR instr(canonical_location, lower(?)) > 0)")
		args = append(args, q.Location, q.Location)
	}
	clause := strings.Join(where, " AND ")

	page := &JobPage{Page: q.Page, PerPage: q.PerPage, Jobs: []models.ScoredJob{}}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE "+clause, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}

	order := "match_score DESC, discovered_at DESC"
	if q.Sort == SortByDate {
		order = "discovered_at DESC, match_score DESC"
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE "+clause+" ORDER BY "+order+" LIMIT ? OFFSET ?",
		append(args, q.PerPage, q.Offset())...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		page.Jobs = append(page.Jobs, job)
	}
	return page, rows.Err()
}

// Stats aggregates the jobs table.
func (s *SQLiteStore) Stats(ctx context.Context) (*JobStats, error) {
	st := &JobStats{}
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(match_score),
		COUNT(DISTINCT NULLIF(company, '')), COUNT(DISTINCT NULLIF(source, '')) FROM jobs`).
		Scan(&st.TotalJobs, &avg, &st.UniqueCompanies, &st.UniqueSources)
	if err != nil {
		return nil, fmt.Errorf("aggregating jobs: %w", err)
	}
	st.AverageScore = roundScore(avg.Float64)

	if st.TopCompanies, err = s.groupCounts(ctx, "company", TopCompaniesLimit); err != nil {
		return nil, err
	}
	if st.Sources, err = s.groupCounts(ctx, "source", -1); err != nil {
		return nil, err
	}
	return st, nil
}

// groupCounts counts jobs per value of column. A negative limit means no limit.
func (s *SQLiteStore) groupCounts(ctx context.Context, column string, limit int) ([]NamedCount, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) AS n FROM jobs WHERE "+column+" != '' GROUP BY "+column+
			" ORDER BY n DESC, "+column+" LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("counting jobs by %s: %w", column, err)
	}
	defer rows.Close()

	counts := []NamedCount{}
	for rows.Next() {
		var c NamedCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Aliases returns the alias URLs recorded for a stored job.
func (s *SQLiteStore) Aliases(ctx context.Context, jobURL string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url FROM job_aliases WHERE job_url = ? ORDER BY discovered_at", jobURL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func scanJob(rows *sql.Rows) (models.ScoredJob, error) {
	var (
		j                    models.ScoredJob
		salaryMin, salaryMax sql.NullFloat64
		currency, subscores  string
		discovered           string
	)
	err := rows.Scan(&j.URL, &j.Title, &j.Company, &j.Location, &j.CanonicalLocation, &j.SalaryText,
		&salaryMin, &salaryMax, &currency, &j.Description, &j.ContractType, &j.Source, &j.Remote,
		&j.DedupKey, &j.MatchScore, &subscores, &j.SessionID, &discovered)
	if err != nil {
		return j, fmt.Errorf("scanning job: %w", err)
	}
	if salaryMin.Valid && salaryMax.Valid {
		j.Salary = &models.SalaryRange{Min: salaryMin.Float64, Max: salaryMax.Float64, Currency: currency}
	}
	if err := json.Unmarshal([]byte(subscores), &j.Subscores); err != nil {
		return j, fmt.Errorf("decoding subscores of %s: %w", j.URL, err)
	}
	if j.DiscoveredAt, err = parseTime(discovered); err != nil {
		return j, err
	}
	return j, nil
}

// RecordSession upserts the session by id.
func (s *SQLiteStore) RecordSession(ctx context.Context, sess *models.ScrapingSession) error {
	counts, err := json.Marshal(sess.Counts)
	if err != nil {
		return err
	}
	var end sql.NullString
	if sess.EndTime != nil {
		end = sql.NullString{String: formatTime(*sess.EndTime), Valid: true}
	}
	var snapshot sql.NullString
	if len(sess.ConfigSnapshot) > 0 {
		snapshot = sql.NullString{String: string(sess.ConfigSnapshot), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scraping_sessions (id, start_time, end_time, status, counts, error_message, config_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			end_time = excluded.end_time,
			status = excluded.status,
			counts = excluded.counts,
			error_message = excluded.error_message`,
		sess.ID, formatTime(sess.StartTime), end, string(sess.Status), string(counts), sess.ErrorMessage, snapshot,
	)
	if err != nil {
		return &models.PersistenceError{Op: "record session", Key: sess.ID, Err: err}
	}
	return nil
}

const sessionColumns = "id, start_time, end_time, status, counts, error_message, config_snapshot"

// GetSession returns ErrNotFound for unknown ids.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.ScrapingSession, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM scraping_sessions WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	sess, err := scanSession(rows)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns the most recent sessions first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]models.ScrapingSession, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM scraping_sessions ORDER BY start_time DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.ScrapingSession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSession(rows *sql.Rows) (models.ScrapingSession, error) {
	var (
		sess          models.ScrapingSession
		start, status string
		counts        string
		end, snapshot sql.NullString
	)
	if err := rows.Scan(&sess.ID, &start, &end, &status, &counts, &sess.ErrorMessage, &snapshot); err != nil {
		return sess, fmt.Errorf("scanning session: %w", err)
	}
	sess.Status = models.SessionStatus(status)

	var err error
	if sess.StartTime, err = parseTime(start); err != nil {
		return sess, err
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return sess, err
		}
		sess.EndTime = &t
	}
	if err := json.Unmarshal([]byte(counts), &sess.Counts); err != nil {
		return sess, fmt.Errorf("decoding counts of session %s: %w", sess.ID, err)
	}
	if snapshot.Valid {
		sess.ConfigSnapshot = json.RawMessage(snapshot.String)
	}
	return sess, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}
