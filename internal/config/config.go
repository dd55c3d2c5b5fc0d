package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"jobhound/internal/models"
	"jobhound/internal/normalize"
	"jobhound/internal/scraper"
	"jobhound/internal/scraper/sources"
	"jobhound/internal/storage"
)

// MaxExtractionWorkers caps the extraction pool.
const MaxExtractionWorkers = 16

// Config holds the application configuration
type Config struct {
	Server          ServerConfig          `json:"server" yaml:"server"`
	Database        DatabaseConfig        `json:"database" yaml:"database"`
	Search          models.SearchCriteria `json:"search" yaml:"search"`
	Profile         models.UserProfile    `json:"profile" yaml:"profile"`
	Scraper         ScraperConfig         `json:"scraper" yaml:"scraper"`
	Sites           []sources.SiteConfig  `json:"sites" yaml:"sites"`
	LocationAliases map[string]string     `json:"location_aliases,omitempty" yaml:"location_aliases"`
	Monitoring      MonitoringConfig      `json:"monitoring" yaml:"monitoring"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the result store.
type DatabaseConfig struct {
	Driver        string `json:"driver" yaml:"driver"`
	Path          string `json:"path" yaml:"path"`
	SupabaseURL   string `json:"supabase_url,omitempty" yaml:"supabase_url"`
	SupabaseKey   string `json:"supabase_key,omitempty" yaml:"supabase_key"`
	MongoURI      string `json:"mongo_uri,omitempty" yaml:"mongo_uri"`
	MongoDatabase string `json:"mongo_database,omitempty" yaml:"mongo_database"`
}

// ScraperConfig bounds and paces runs.
type ScraperConfig struct {
	MaxQueries         int           `json:"max_queries" yaml:"max_queries"`
	MaxResultsPerQuery int           `json:"max_results_per_query" yaml:"max_results_per_query"`
	MaxJobsTotal       int           `json:"max_jobs_total" yaml:"max_jobs_total"`
	SearchURL          string        `json:"search_url" yaml:"search_url"`
	ResultsPerPage     int           `json:"results_per_page" yaml:"results_per_page"`
	SearchTimeout      time.Duration `json:"search_timeout" yaml:"search_timeout"`
	PageDelay          time.Duration `json:"page_delay" yaml:"page_delay"`
	QueryDelay         time.Duration `json:"query_delay" yaml:"query_delay"`
	QueryJitter        time.Duration `json:"query_jitter" yaml:"query_jitter"`
	RotateIdentity     bool          `json:"rotate_identity" yaml:"rotate_identity"`
	UserAgent          string        `json:"user_agent" yaml:"user_agent"`
	RespectRobots      bool          `json:"respect_robots" yaml:"respect_robots"`
	ExtractionWorkers  int           `json:"extraction_workers" yaml:"extraction_workers"`
	RequestTimeout     time.Duration `json:"request_timeout" yaml:"request_timeout"`
	RetryAttempts      int           `json:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay         time.Duration `json:"retry_delay" yaml:"retry_delay"`
	MaxRetryDelay      time.Duration `json:"max_retry_delay" yaml:"max_retry_delay"`
	SessionFlushEvery  int           `json:"session_flush_every" yaml:"session_flush_every"`
	SalaryTolerance    float64       `json:"salary_tolerance" yaml:"salary_tolerance"`
	// Schedule is a cron spec for periodic runs in the daemon. Empty disables it.
	Schedule string `json:"schedule,omitempty" yaml:"schedule"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	LogLevel string `json:"log_level" yaml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	opts := scraper.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:        storage.DriverSQLite,
			Path:          "data/jobhound.db",
			MongoDatabase: "jobhound",
		},
		Search: models.SearchCriteria{
			Keywords:   []string{"développeur go", "golang developer"},
			Locations:  []string{"Genève", "Lausanne"},
			SalaryMin:  80000,
			SalaryMax:  120000,
			RemoteOK:   true,
			Exclusions: []string{"stage", "alternance"},
		},
		Profile: models.UserProfile{
			Skills:          []string{"go", "docker", "kubernetes", "postgresql"},
			ExperienceYears: 5,
		},
		Scraper: ScraperConfig{
			MaxQueries:         opts.MaxQueries,
			MaxResultsPerQuery: opts.MaxResultsPerQuery,
			MaxJobsTotal:       opts.MaxJobsTotal,
			SearchURL:          opts.SearchURL,
			ResultsPerPage:     opts.ResultsPerPage,
			SearchTimeout:      opts.SearchTimeout,
			PageDelay:          opts.PageDelay,
			QueryDelay:         opts.QueryDelay,
			QueryJitter:        opts.QueryJitter,
			RotateIdentity:     opts.RotateIdentity,
			UserAgent:          "jobhound/1.0 (+https://github.com/jobhound)",
			ExtractionWorkers:  opts.ExtractionWorkers,
			RequestTimeout:     opts.FetchTimeout,
			RetryAttempts:      opts.Retry.MaxRetries,
			RetryDelay:         opts.Retry.InitialDelay,
			MaxRetryDelay:      opts.Retry.MaxDelay,
			SessionFlushEvery:  opts.SessionFlushEvery,
			SalaryTolerance:    opts.SalaryTolerance,
		},
		Sites: sources.DefaultSites(),
		Monitoring: MonitoringConfig{
			LogLevel: "info",
			LogFile:  "logs/scraper.log",
		},
	}
}

// LoadConfig loads configuration from a YAML or JSON file. A missing file
// yields the defaults. Empty secrets are filled from the environment.
func LoadConfig(filename string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	data, err := os.ReadFile(filename)
	switch {
	case os.IsNotExist(err):
		config.applyEnv()
		return config, nil
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnv()
	return config, nil
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

func (c *Config) applyEnv() {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&c.Database.SupabaseURL, "SUPABASE_URL")
	fill(&c.Database.SupabaseKey, "SUPABASE_KEY")
	fill(&c.Database.MongoURI, "MONGO_URI")
	if p := os.Getenv("JOBHOUND_DB_PATH"); p != "" {
		c.Database.Path = p
	}
}

// SaveConfig saves configuration to a JSON or YAML file, by extension.
func (c *Config) SaveConfig(filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if isYAML(filename) {
		encoder := yaml.NewEncoder(file)
		encoder.SetIndent(2)
		if err := encoder.Encode(c); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return encoder.Close()
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration. Errors are *models.ConfigError.
func (c *Config) Validate() error {
	if err := c.Search.Validate(); err != nil {
		return err
	}

	s := c.Scraper
	positive := []struct {
		field string
		value int
	}{
		{"scraper.max_queries", s.MaxQueries},
		{"scraper.max_results_per_query", s.MaxResultsPerQuery},
		{"scraper.max_jobs_total", s.MaxJobsTotal},
		{"scraper.extraction_workers", s.ExtractionWorkers},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return invalid(p.field, "must be positive")
		}
	}
	if s.ExtractionWorkers > MaxExtractionWorkers {
		return invalid("scraper.extraction_workers", fmt.Sprintf("must be at most %d", MaxExtractionWorkers))
	}
	if s.RetryAttempts < 0 {
		return invalid("scraper.retry_attempts", "cannot be negative")
	}
	delays := []struct {
		field string
		value time.Duration
	}{
		{"scraper.page_delay", s.PageDelay},
		{"scraper.query_delay", s.QueryDelay},
		{"scraper.query_jitter", s.QueryJitter},
		{"scraper.retry_delay", s.RetryDelay},
		{"scraper.search_timeout", s.SearchTimeout},
		{"scraper.request_timeout", s.RequestTimeout},
	}
	for _, d := range delays {
		if d.value < 0 {
			return invalid(d.field, "cannot be negative")
		}
	}
	if s.SalaryTolerance < 0 {
		return invalid("scraper.salary_tolerance", "cannot be negative")
	}
	if s.SearchURL != "" && !strings.Contains(s.SearchURL, "{query}") {
		return invalid("scraper.search_url", "must contain the {query} placeholder")
	}
	if s.Schedule != "" {
		if _, err := cron.ParseStandard(s.Schedule); err != nil {
			return invalid("scraper.schedule", err.Error())
		}
	}

	// Validate the site registry
	if _, err := sources.NewRegistry(c.Sites); err != nil {
		return err
	}

	switch c.Database.Driver {
	case "", storage.DriverSQLite:
		if c.Database.Path == "" {
			return invalid("database.path", "sqlite path is required")
		}
	case storage.DriverSupabase:
		if c.Database.SupabaseURL == "" {
			return invalid("database.supabase_url", "supabase URL is required")
		}
		if c.Database.SupabaseKey == "" {
			return invalid("database.supabase_key", "supabase key is required")
		}
	case storage.DriverMongo:
		if c.Database.MongoURI == "" {
			return invalid("database.mongo_uri", "mongo URI is required")
		}
	default:
		return invalid("database.driver", fmt.Sprintf("unknown driver %q", c.Database.Driver))
	}

	if _, err := parseLevel(c.Monitoring.LogLevel); err != nil {
		return invalid("monitoring.log_level", err.Error())
	}
	return nil
}

func invalid(field, reason string) error {
	return &models.ConfigError{Field: field, Reason: reason}
}

// Criteria returns the search criteria of a run.
func (c *Config) Criteria() models.SearchCriteria {
	return c.Search.Clone()
}

// UserProfile returns the profile jobs are scored against.
func (c *Config) UserProfile() models.UserProfile {
	return c.Profile.Clone()
}

// Registry builds the site registry.
func (c *Config) Registry() (*sources.Registry, error) {
	return sources.NewRegistry(c.Sites)
}

// Normalizer applies the configured location aliases on top of the built-in ones.
func (c *Config) Normalizer() *normalize.Normalizer {
	return normalize.New(c.LocationAliases)
}

// ScraperOptions converts the scraper section into pipeline options.
func (c *Config) ScraperOptions() scraper.Options {
	s := c.Scraper
	return scraper.Options{
		MaxQueries:         s.MaxQueries,
		MaxResultsPerQuery: s.MaxResultsPerQuery,
		MaxJobsTotal:       s.MaxJobsTotal,
		SearchURL:          s.SearchURL,
		ResultsPerPage:     s.ResultsPerPage,
		SearchTimeout:      s.SearchTimeout,
		PageDelay:          s.PageDelay,
		QueryDelay:         s.QueryDelay,
		QueryJitter:        s.QueryJitter,
		RotateIdentity:     s.RotateIdentity,
		ExtractionWorkers:  s.ExtractionWorkers,
		FetchTimeout:       s.RequestTimeout,
		Retry: scraper.RetryConfig{
			MaxRetries:    s.RetryAttempts,
			InitialDelay:  s.RetryDelay,
			MaxDelay:      s.MaxRetryDelay,
			BackoffFactor: 2.0,
		},
		SessionFlushEvery: s.SessionFlushEvery,
		SalaryTolerance:   s.SalaryTolerance,
	}
}

// StorageOptions selects the configured result store.
func (c *Config) StorageOptions() storage.Options {
	d := c.Database
	return storage.Options{
		Driver:        d.Driver,
		Path:          d.Path,
		SupabaseURL:   d.SupabaseURL,
		SupabaseKey:   d.SupabaseKey,
		MongoURI:      d.MongoURI,
		MongoDatabase: d.MongoDatabase,
	}
}

// LogLevel parses monitoring.log_level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Monitoring.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(s))
	return level, err
}

// Masked returns a copy safe for display, with credentials hidden.
func (c *Config) Masked() *Config {
	cp := *c
	mask := func(s string) string {
		if len(s) <= 4 {
			return strings.Repeat("*", len(s))
		}
		return s[:4] + strings.Repeat("*", 8)
	}
	cp.Database.SupabaseKey = mask(cp.Database.SupabaseKey)
	cp.Database.MongoURI = mask(cp.Database.MongoURI)
	return &cp
}
