package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"jobhound/internal/api"
	"jobhound/internal/browser"
	"jobhound/internal/config"
	"jobhound/internal/scraper"
	"jobhound/internal/storage"
	"jobhound/pkg/httpclient"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file (yaml or json)")
	runNow := flag.Bool("run-now", false, "start a run immediately")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	logger, closeLog := config.SetupLogger(cfg.Monitoring.LogFile, cfg.LogLevel())
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg, logger, *runNow); err != nil {
		logger.Error("scraper stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, runNow bool) error {
	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	fetcher := httpclient.NewHttpClient(cfg.Scraper.RequestTimeout, cfg.Scraper.UserAgent, fetchOpts...)

	searchBrowser := browser.NewColly("")
	defer searchBrowser.Close()

	pipeline := scraper.NewPipeline(cfg.ScraperOptions(), scraper.Deps{
		Browser:    searchBrowser,
		Fetcher:    fetcher,
		Registry:   registry,
		Store:      store,
		Normalizer: cfg.Normalizer(),
		Logger:     logger,
	})
	defer pipeline.Close()

	manager := scraper.NewManager(ctx, pipeline, logger)

	startRun := func(trigger string) {
		if id, active := manager.Active(); active {
			logger.Info("skipping run, another one is active", "trigger", trigger, "session", id)
			return
		}
		id, err := manager.StartRun(ctx, cfg.Criteria(), cfg.UserProfile())
		if err != nil {
			logger.Warn("starting run failed", "trigger", trigger, "error", err)
			return
		}
		logger.Info("run started", "trigger", trigger, "session", id)
	}

	// Start scheduled runs if a schedule is configured
	if cfg.Scraper.Schedule != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.Scraper.Schedule, func() { startRun("schedule") }); err != nil {
			return fmt.Errorf("scheduling runs: %w", err)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
		logger.Info("scheduled runs enabled", "schedule", cfg.Scraper.Schedule)
	}

	if runNow {
		startRun("startup")
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewHandler(api.Deps{
			Runs:     manager,
			Store:    store,
			Criteria: cfg.Criteria(),
			Profile:  cfg.UserProfile(),
			Logger:   logger,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("active run did not finish in time", "error", err)
	}

	logger.Info("jobhound shutdown complete")
	return nil
}
