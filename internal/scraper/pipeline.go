package scraper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"jobhound/internal/models"
	"jobhound/internal/normalize"
	"jobhound/internal/scoring"
	"jobhound/internal/scraper/sources"
	"jobhound/internal/storage"
)

// PageFetcher loads job pages for extraction. It must be safe for concurrent use.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Pipeline runs the discovery-and-scoring stages of a run: query planning,
// serialized search resolution, then a bounded extraction pool that
// normalizes, deduplicates, scores and stores each posting.
type Pipeline struct {
	opts       Options
	browser    Browser
	fetcher    PageFetcher
	registry   *sources.Registry
	normalizer *normalize.Normalizer
	scorer     *scoring.Engine
	store      storage.Store
	limiter    *RateLimiter
	clock      Clock
	logger     *slog.Logger
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Browser    Browser
	Fetcher    PageFetcher
	Registry   *sources.Registry
	Store      storage.Store
	Normalizer *normalize.Normalizer // optional
	Clock      Clock                 // optional
	Logger     *slog.Logger          // optional
}

// NewPipeline creates a pipeline. Zero option values fall back to DefaultOptions.
func NewPipeline(opts Options, deps Deps) *Pipeline {
	def := DefaultOptions()
	if opts.MaxQueries <= 0 {
		opts.MaxQueries = def.MaxQueries
	}
	if opts.MaxResultsPerQuery <= 0 {
		opts.MaxResultsPerQuery = def.MaxResultsPerQuery
	}
	if opts.MaxJobsTotal <= 0 {
		opts.MaxJobsTotal = def.MaxJobsTotal
	}
	if opts.ExtractionWorkers <= 0 {
		opts.ExtractionWorkers = def.ExtractionWorkers
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = def.SearchTimeout
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New(nil)
	}
	if deps.Clock == nil {
		deps.Clock = RealClock
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{
		opts:       opts,
		browser:    deps.Browser,
		fetcher:    deps.Fetcher,
		registry:   deps.Registry,
		normalizer: deps.Normalizer,
		scorer:     scoring.NewEngine(opts.SalaryTolerance, deps.Normalizer),
		store:      deps.Store,
		limiter:    NewRateLimiter(deps.Clock),
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Planner returns the query planner for the registry's enabled sites.
func (p *Pipeline) Planner() *Planner {
	return NewPlanner(p.opts.MaxQueries, p.registry.SearchDomains())
}

// Close lifts the rate limits.
func (p *Pipeline) Close() {
	p.limiter.Stop()
}

// Run drives one run to the end of its work. Soft failures are tallied on the
// run's session; the returned error is only set for conditions that fail the run.
// Cancellation is not an error: Run returns early with what was done.
func (p *Pipeline) Run(ctx context.Context, run *Run) error {
	logger := p.logger.With("session", run.ID)

	queries, err := p.Planner().Plan(run.criteria)
	if err != nil {
		return err
	}
	planned := Count(queries)
	run.tracker.Update(func(c *models.SessionCounts) { c.QueriesPlanned = planned })
	p.flush(ctx, run)
	logger.Info("run started", "queries_planned", planned)

	urls, err := p.resolve(run, queries, logger)
	if err != nil {
		return err
	}
	logger.Info("search finished", "candidate_urls", len(urls), "cancelled", run.stopped())

	return p.extract(ctx, run, urls, logger)
}

// resolve runs the queries one at a time and collects the capped candidate set.
func (p *Pipeline) resolve(run *Run, queries iter.Seq[string], logger *slog.Logger) ([]string, error) {
	resolver := NewResolver(p.browser, p.registry.IsJobURL, p.opts, p.clock)
	pacer := NewPacer(p.clock, p.opts.QueryDelay, p.opts.QueryJitter)
	candidates := newCandidateSet(p.opts.MaxJobsTotal)

	n := 0
	for query := range queries {
		if run.stopped() {
			break
		}
		if err := pacer.Wait(run.stopCtx); err != nil {
			break
		}
		if n > 0 && p.opts.RotateIdentity {
			p.browser.RotateIdentity()
		}
		n++

		links, err := resolver.Resolve(run.stopCtx, query)
		if err != nil {
			if errors.Is(err, models.ErrBrowserUnavailable) {
				return nil, err
			}
			if run.stopped() {
				break
			}
			run.tracker.Update(func(c *models.SessionCounts) {
				c.QueriesDone++
				c.QueryFailures++
			})
			logger.Warn("query failed", "query", query, "error", err)
			continue
		}

		added := 0
		for _, link := range links {
			if candidates.Add(link) {
				added++
			}
		}
		run.tracker.Update(func(c *models.SessionCounts) {
			c.QueriesDone++
			c.URLsFound += added
		})
		logger.Debug("query resolved", "query", query, "links", len(links), "new", added)

		if candidates.Full() {
			logger.Info("candidate cap reached", "max_jobs_total", p.opts.MaxJobsTotal)
			break
		}
	}
	return candidates.URLs(), nil
}

// extract processes candidate URLs with a bounded worker pool. No task is
// dispatched once the run is stopped; in-flight tasks finish on their own timeouts.
func (p *Pipeline) extract(ctx context.Context, run *Run, urls []string, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.ExtractionWorkers)

	var processed atomic.Int64
	for _, u := range urls {
		if run.stopped() {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic while processing %s: %v", u, r)
				}
			}()
			if run.stopped() {
				return nil
			}
			if p.process(ctx, gctx, run, u, logger) {
				if n := processed.Add(1); p.opts.SessionFlushEvery > 0 && n%int64(p.opts.SessionFlushEvery) == 0 {
					p.flush(ctx, run)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// process takes one URL through fetch, extraction, normalization, dedup,
// scoring and storage. It reports false when the task never started.
func (p *Pipeline) process(ctx, fetchCtx context.Context, run *Run, url string, logger *slog.Logger) bool {
	site := p.registry.SiteFor(url)
	if err := p.limiter.Wait(run.stopCtx, site, p.registry.RateLimitFor(url)); err != nil {
		return false
	}
	failed := func(msg string, err error) {
		run.tracker.Update(func(c *models.SessionCounts) { c.ExtractionFailures++ })
		logger.Warn(msg, "url", url, "site", site, "error", err)
	}

	html, err := p.fetch(fetchCtx, url)
	if err != nil {
		failed("fetch failed", err)
		return true
	}

	raw, err := p.registry.Extract(sources.Page{URL: url, HTML: html}, p.clock.Now())
	if err != nil {
		failed("extraction failed", err)
		return true
	}

	job := p.normalizer.Normalize(*raw)
	run.tracker.Update(func(c *models.SessionCounts) { c.PostingsExtracted++ })

	if !run.dedup.Observe(job) {
		run.tracker.Update(func(c *models.SessionCounts) { c.DuplicatesObserved++ })
		logger.Debug("duplicate posting", "url", url, "dedup_key", job.DedupKey)
		return true
	}

	scored := p.scorer.Score(job, run.profile, run.criteria)
	scored.SessionID = run.ID

	outcome, err := p.store.UpsertJob(context.WithoutCancel(ctx), &scored)
	switch {
	case err != nil:
		run.tracker.Update(func(c *models.SessionCounts) {
			c.UniqueAfterDedup++
			c.PersistenceFailures++
		})
		logger.Warn("persisting job failed", "url", url, "error", err)
	case outcome == storage.UpsertAliased:
		run.tracker.Update(func(c *models.SessionCounts) { c.DuplicatesObserved++ })
		logger.Debug("stored as alias", "url", url, "dedup_key", job.DedupKey)
	default:
		run.tracker.Update(func(c *models.SessionCounts) {
			c.UniqueAfterDedup++
			c.JobsPersisted++
		})
		logger.Debug("job stored", "url", url, "score", scored.MatchScore, "outcome", outcome.String())
	}
	return true
}

// fetch loads a page with per-attempt timeouts and backoff between retries.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.opts.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.clock, p.opts.Retry.backoff(attempt)); err != nil {
				return "", err
			}
		}

		fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
		html, err := p.fetcher.Fetch(fctx, url)
		cancel()
		if err == nil {
			return html, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

// retryable excludes client errors other than 429.
func retryable(err error) bool {
	var fe *models.FetchError
	if errors.As(err, &fe) && fe.StatusCode >= 400 && fe.StatusCode < 500 {
		return fe.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// flush persists the current snapshot. Failures are logged, never fatal.
func (p *Pipeline) flush(ctx context.Context, run *Run) {
	snap := run.tracker.Snapshot()
	if err := p.store.RecordSession(context.WithoutCancel(ctx), &snap); err != nil {
		p.logger.Warn("recording session failed", "session", run.ID, "error", err)
	}
}
