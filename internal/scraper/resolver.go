package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jobhound/internal/models"
)

// Browser is the single-instance automation capability used for search.
// Implementations need not be safe for concurrent navigation.
type Browser interface {
	// Navigate loads url and returns the page content. Failures are
	// *models.FetchError, or ErrBrowserUnavailable when the browser is gone.
	Navigate(ctx context.Context, url string, timeout time.Duration) (string, error)
	// CurrentResultLinks lists the outbound links of the last loaded page.
	CurrentResultLinks() []string
	// RotateIdentity switches the client identity for subsequent navigations.
	RotateIdentity()
}

var blockedMarkers = []string{
	"unusual traffic",
	"trafic exceptionnel",
	"/sorry/index",
	"g-recaptcha",
	"captcha-form",
	"id=\"captcha\"",
}

// Resolver turns one search query into candidate job URLs.
type Resolver struct {
	browser    Browser
	isJobURL   func(string) bool
	searchURL  string
	perPage    int
	maxResults int
	timeout    time.Duration
	pageDelay  time.Duration
	clock      Clock
}

// NewResolver creates a resolver. isJobURL filters result links.
func NewResolver(b Browser, isJobURL func(string) bool, opts Options, clock Clock) *Resolver {
	perPage := opts.ResultsPerPage
	if perPage <= 0 {
		perPage = 10
	}
	searchURL := opts.SearchURL
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &Resolver{
		browser:    b,
		isJobURL:   isJobURL,
		searchURL:  searchURL,
		perPage:    perPage,
		maxResults: max(opts.MaxResultsPerQuery, 1),
		timeout:    opts.SearchTimeout,
		pageDelay:  opts.PageDelay,
		clock:      clock,
	}
}

// Resolve paginates through the results of query until the per-query cap, a page
// without new links, or a failed page after the first. It returns ErrBlocked or
// ErrNoResults (both transient) when nothing usable came back.
func (r *Resolver) Resolve(ctx context.Context, query string) ([]string, error) {
	seen := make(map[string]struct{})
	var links []string

	for page := 0; len(links) < r.maxResults; page++ {
		if page > 0 {
			if err := sleep(ctx, r.clock, r.pageDelay); err != nil {
				break
			}
		}

		target := r.pageURL(query, page)
		content, err := r.browser.Navigate(ctx, target, r.timeout)
		if err == nil && isBlocked(content) {
			err = fmt.Errorf("%w: captcha on %s", models.ErrBlocked, target)
		}
		if err != nil {
			if page == 0 {
				return nil, classifyNavError(ctx, target, err)
			}
			break
		}

		added := 0
		for _, raw := range r.browser.CurrentResultLinks() {
			u := unwrapResultLink(raw, target)
			if u == "" || !r.isJobURL(u) {
				continue
			}
			key := NormalizeURL(u)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			links = append(links, u)
			added++
			if len(links) >= r.maxResults {
				break
			}
		}
		if added == 0 {
			break
		}
	}

	if len(links) == 0 {
		return nil, fmt.Errorf("%w for %q", models.ErrNoResults, query)
	}
	return links, nil
}

func (r *Resolver) pageURL(query string, page int) string {
	return strings.NewReplacer(
		"{query}", url.QueryEscape(query),
		"{offset}", strconv.Itoa(page*r.perPage),
	).Replace(r.searchURL)
}

func isBlocked(content string) bool {
	lower := strings.ToLower(content)
	for _, m := range blockedMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func classifyNavError(ctx context.Context, target string, err error) error {
	switch {
	case errors.Is(err, models.ErrBrowserUnavailable):
		return err
	case isStatus(err, http.StatusForbidden, http.StatusTooManyRequests):
		return fmt.Errorf("%w: %v", models.ErrBlocked, err)
	case errors.Is(err, models.ErrTransientFetch):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return &models.FetchError{URL: target, Err: err}
}

func isStatus(err error, codes ...int) bool {
	var fe *models.FetchError
	if !errors.As(err, &fe) {
		return false
	}
	for _, c := range codes {
		if fe.StatusCode == c {
			return true
		}
	}
	return false
}

// unwrapResultLink resolves a result href against the search page and strips
// search-engine redirect wrappers (/url?q=, /l/?uddg=).
func unwrapResultLink(href, base string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	u, err := baseURL.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	q := u.Query()
	if u.Path == "/url" {
		for _, key := range []string{"q", "url"} {
			if inner := absURL(q.Get(key)); inner != nil {
				u = inner
				break
			}
		}
	} else if inner := absURL(q.Get("uddg")); inner != nil {
		u = inner
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == baseURL.Host {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func absURL(raw string) *url.URL {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return nil
	}
	return u
}

// NormalizeURL is the identity of a candidate URL: lower-cased host without
// "www.", no fragment, no trailing slash.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Fragment = ""
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// candidateSet is the ordered, capped set of URLs found across all queries.
type candidateSet struct {
	max  int
	seen map[string]struct{}
	urls []string
}

func newCandidateSet(limit int) *candidateSet {
	return &candidateSet{max: limit, seen: make(map[string]struct{})}
}

// Add keeps u if it is new and the cap is not reached. First discovered wins.
func (c *candidateSet) Add(u string) bool {
	if c.Full() {
		return false
	}
	key := NormalizeURL(u)
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	c.urls = append(c.urls, u)
	return true
}

func (c *candidateSet) Full() bool {
	return c.max > 0 && len(c.urls) >= c.max
}

func (c *candidateSet) URLs() []string {
	return c.urls
}
