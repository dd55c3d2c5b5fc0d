package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jobhound/internal/browser"
	"jobhound/internal/config"
	"jobhound/internal/scraper"
	"jobhound/internal/scraper/sources"
	"jobhound/internal/storage"
	"jobhound/pkg/httpclient"
)

// --- run ---

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		interval time.Duration
		top      int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one discovery-and-scoring pass and print the best matches",
		Long: `Run one discovery-and-scoring pass with the configured search and profile.

Progress is printed until the run ends. Ctrl-C cancels the run; jobs saved so
far are kept.

Examples:
  scraper-cli run
  scraper-cli run --top 20 --config config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cmd.OutOrStdout(), cfg, opts, interval, top)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "progress refresh interval")
	cmd.Flags().IntVar(&top, "top", 10, "number of best matches to print")
	return cmd
}

func runOnce(parent context.Context, w io.Writer, cfg *config.Config, opts *rootOptions, interval time.Duration, top int) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, closeLog := setupLogger(cfg, opts.verbose)
	defer closeLog()

	store, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	var fetchOpts []httpclient.Option
	if cfg.Scraper.RespectRobots {
		fetchOpts = append(fetchOpts, httpclient.WithRobots())
	}
	searchBrowser := browser.NewColly("")
	defer searchBrowser.Close()

	pipeline := scraper.NewPipeline(cfg.ScraperOptions(), scraper.Deps{
		Browser:    searchBrowser,
		Fetcher:    httpclient.NewHttpClient(cfg.Scraper.RequestTimeout, cfg.Scraper.UserAgent, fetchOpts...),
		Registry:   registry,
		Store:      store,
		Normalizer: cfg.Normalizer(),
		Logger:     logger,
	})
	defer pipeline.Close()

	// The run outlives ctx so that Ctrl-C turns into a recorded cancellation.
	manager := scraper.NewManager(context.WithoutCancel(ctx), pipeline, logger)
	id, err := manager.StartRun(ctx, cfg.Criteria(), cfg.UserProfile())
	if err != nil {
		return err
	}
	if opts.output == "console" {
		fmt.Fprintf(w, "Started session %s\n", id)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.Wait(context.Background(), id)
	}()

wait:
	for {
		select {
		case <-done:
			break wait
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "cancelling run...")
			manager.Cancel(context.Background(), id)
			<-done
			break wait
		case <-ticker.C:
			if opts.output == "console" {
				if report, err := manager.Status(context.Background(), id); err == nil {
					printProgress(w, report)
				}
			}
		}
	}

	sess, err := manager.Wait(context.Background(), id)
	if err != nil {
		return err
	}
	page, err := store.QueryJobs(context.Background(), storage.JobQuery{PerPage: top})
	if err != nil {
		return err
	}

	if opts.output == "json" {
		return outputJSON(w, map[string]any{"session": sess, "top_jobs": page.Jobs})
	}
	printSession(w, sess)
	fmt.Fprintln(w)
	printJobs(w, page.Jobs)
	return nil
}

func setupLogger(cfg *config.Config, verbose bool) (*slog.Logger, func() error) {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	return config.SetupLogger(cfg.Monitoring.LogFile, level)
}

// --- jobs ---

func newJobsCmd(opts *rootOptions) *cobra.Command {
	var query storage.JobQuery
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List stored jobs by score or date",
		Long: `List stored jobs by score or date.

Examples:
  scraper-cli jobs --min-score 60
  scraper-cli jobs --location geneve --sort date --page 2
  scraper-cli jobs --source jobs.ch -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if query.Sort != storage.SortByScore && query.Sort != storage.SortByDate {
				return fmt.Errorf("--sort must be %q or %q", storage.SortByScore, storage.SortByDate)
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := storage.Open(cfg.StorageOptions())
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}
			defer store.Close()

			page, err := store.QueryJobs(cmd.Context(), query)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.output == "json" {
				return outputJSON(w, page)
			}
			printJobs(w, page.Jobs)
			fmt.Fprintf(w, "\nPage %d, %d of %d jobs\n", page.Page, len(page.Jobs), page.Total)
			return nil
		},
	}
	cmd.Flags().Float64Var(&query.MinScore, "min-score", 0, "minimum match score (0-100)")
	cmd.Flags().StringVar(&query.Source, "source", "", "only jobs from this site")
	cmd.Flags().StringVar(&query.Location, "location", "", "location substring")
	cmd.Flags().StringVar(&query.Sort, "sort", storage.SortByScore, "sort order: score or date")
	cmd.Flags().IntVar(&query.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&query.PerPage, "per-page", 20, "jobs per page")
	return cmd
}

// --- sessions ---

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show the history of runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := storage.Open(cfg.StorageOptions())
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}
			defer store.Close()

			sessions, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return outputJSON(cmd.OutOrStdout(), sessions)
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions")
	return cmd
}

// --- stats ---

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize stored jobs by company and source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := storage.Open(cfg.StorageOptions())
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return outputJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

// --- config ---

func newConfigCmd(opts *rootOptions) *cobra.Command {
	var write string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration, or write the defaults",
		Long: `Show the effective configuration with credentials masked.

Examples:
  scraper-cli config
  scraper-cli config --write config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if write != "" {
				if err := config.DefaultConfig().SaveConfig(write); err != nil {
					return err
				}
				fmt.Fprintf(w, "Default configuration written to %s\n", filepath.Clean(write))
				return nil
			}

			cfg, err := config.LoadConfig(opts.configFile)
			if err != nil {
				return err
			}
			masked := cfg.Masked()
			if opts.output == "json" {
				return outputJSON(w, masked)
			}
			fmt.Fprintln(w, "Current Configuration:")
			fmt.Fprintf(w, "Keywords: %v\n", masked.Search.Keywords)
			fmt.Fprintf(w, "Locations: %v\n", masked.Search.Locations)
			fmt.Fprintf(w, "Salary: %.0f - %.0f\n", masked.Search.SalaryMin, masked.Search.SalaryMax)
			fmt.Fprintf(w, "Skills: %v\n", masked.Profile.Skills)
			fmt.Fprintf(w, "Database: %s\n", masked.Database.Driver)
			fmt.Fprintf(w, "Database Key: %s\n", masked.Database.SupabaseKey)
			fmt.Fprintf(w, "Max queries: %d, results per query: %d, jobs per run: %d\n",
				masked.Scraper.MaxQueries, masked.Scraper.MaxResultsPerQuery, masked.Scraper.MaxJobsTotal)
			fmt.Fprintf(w, "Extraction workers: %d\n", masked.Scraper.ExtractionWorkers)
			if masked.Scraper.Schedule != "" {
				fmt.Fprintf(w, "Schedule: %s\n", masked.Scraper.Schedule)
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(w, "Validation: %v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&write, "write", "", "write the default configuration to this path")
	return cmd
}

// --- sources ---

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the site registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configFile)
			if err != nil {
				return err
			}
			registry, err := cfg.Registry()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			sites := registry.Sites()
			if opts.output == "json" {
				return outputJSON(w, sites)
			}
			fmt.Fprintln(w, "Available Job Sources:")
			for _, s := range sites {
				status := "disabled"
				if s.Enabled {
					status = "enabled"
				}
				fmt.Fprintf(w, "- %s: %s (extractor: %s, rate limit: %d/min, search: %v)\n",
					s.Name, status, s.Extractor, s.RateLimit, s.SearchDomains)
			}
			fmt.Fprintf(w, "\nExtractor kinds: %s\n", strings.Join(sources.Kinds(), ", "))
			return nil
		},
	}
}
