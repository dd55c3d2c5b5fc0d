package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhound/internal/config"
	"jobhound/internal/models"
	"jobhound/internal/scraper/sources"
	"jobhound/internal/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSourcesCommand(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")

	out, err := execute(t, "sources", "--config", missing)
	require.NoError(t, err)
	assert.Contains(t, out, "- jobs.ch: enabled (extractor: jobsch")
	assert.Contains(t, out, "Extractor kinds: generic, glassdoor")

	out, err = execute(t, "sources", "--config", missing, "-o", "json")
	require.NoError(t, err)
	var sites []sources.SiteConfig
	require.NoError(t, json.Unmarshal([]byte(out), &sites))
	assert.Len(t, sites, len(sources.DefaultSites()))
}

func TestConfigWriteAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "config", "--write", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Default configuration written")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Search.Keywords, cfg.Search.Keywords)

	t.Setenv("SUPABASE_KEY", "super-secret-value")
	out, err = execute(t, "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Keywords:")
	assert.NotContains(t, out, "super-secret-value")
}

func TestJobsAndSessionsCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	t.Setenv("JOBHOUND_DB_PATH", dbPath)

	store, err := storage.OpenSQLite(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = store.UpsertJob(ctx, &models.ScoredJob{
		NormalizedJob: models.NormalizedJob{
			RawPosting: models.RawPosting{
				URL: "https://www.jobs.ch/en/vacancies/detail/1/", Title: "Go Developer", Company: "Acme",
				Location: "Genève", Source: "jobs.ch", DiscoveredAt: time.Now().UTC(),
			},
			DedupKey: "k1",
		},
		MatchScore: 77.5,
	})
	require.NoError(t, err)
	require.NoError(t, store.RecordSession(ctx, &models.ScrapingSession{
		ID: "s-1", StartTime: time.Now().UTC(), Status: models.StatusCompleted,
	}))
	require.NoError(t, store.Close())

	cfgPath := filepath.Join(t.TempDir(), "missing.json")

	out, err := execute(t, "jobs", "--config", cfgPath, "--min-score", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "77.5")
	assert.Contains(t, out, "Go Developer")

	out, err = execute(t, "jobs", "--config", cfgPath, "--min-score", "90")
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs found.")

	_, err = execute(t, "jobs", "--config", cfgPath, "--sort", "salary")
	assert.Error(t, err)

	out, err = execute(t, "stats", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Jobs: 1  Average score: 77.5  Companies: 1  Sources: 1")
	assert.Contains(t, out, "TOP COMPANIES")

	out, err = execute(t, "stats", "--config", cfgPath, "-o", "json")
	require.NoError(t, err)
	var stats storage.JobStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, []storage.NamedCount{{Name: "jobs.ch", Count: 1}}, stats.Sources)

	out, err = execute(t, "sessions", "--config", cfgPath, "-o", "json")
	require.NoError(t, err)
	var sessions []models.ScrapingSession
	require.NoError(t, json.Unmarshal([]byte(out), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-1", sessions[0].ID)
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, "sources", "--config", filepath.Join(t.TempDir(), "x.yaml"), "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"search":{"keywords":[]}}`), 0o644))

	_, err := execute(t, "run", "--config", path)
	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "search.keywords", cfgErr.Field)
}
