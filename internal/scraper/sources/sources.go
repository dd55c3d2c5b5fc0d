// Package sources routes job pages to site-specific extractors.
package sources

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"jobhound/internal/models"
)

// Page is a fetched job page.
type Page struct {
	URL  string
	HTML string
}

// Extractor turns one page into a raw posting.
type Extractor interface {
	Name() string
	Extract(page Page) (*models.RawPosting, error)
}

// SiteConfig is one entry of the site registry.
type SiteConfig struct {
	Name          string   `json:"name" yaml:"name"`
	Pattern       string   `json:"pattern" yaml:"pattern"`
	Extractor     string   `json:"extractor" yaml:"extractor"`
	SearchDomains []string `json:"search_domains,omitempty" yaml:"search_domains,omitempty"`
	RateLimit     int      `json:"rate_limit" yaml:"rate_limit"` // requests per minute
	Enabled       bool     `json:"enabled" yaml:"enabled"`
}

// Site is a compiled registry entry.
type Site struct {
	SiteConfig
	pattern   *regexp.Regexp
	extractor Extractor
}

// DefaultRateLimit applies to sites without an explicit limit and to unmatched hosts.
const DefaultRateLimit = 30

var extractorKinds = map[string]func() Extractor{
	"indeed":    NewIndeed,
	"linkedin":  NewLinkedIn,
	"wttj":      NewWTTJ,
	"glassdoor": NewGlassdoor,
	"jobsch":    NewJobsCH,
	"generic":   NewGeneric,
}

// Kinds lists the extractor kinds a site entry may name.
func Kinds() []string {
	kinds := make([]string, 0, len(extractorKinds))
	for k := range extractorKinds {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Job boards that are recognized as job URLs even without a registry entry.
var knownJobDomains = []string{
	"monster.fr", "monster.com", "monster.ch",
	"apec.fr", "pole-emploi.fr", "francetravail.fr",
	"cadremploi.fr", "regionsjob.com", "meteojob.com",
	"jobup.ch", "jobscout24.ch", "stepstone.de",
}

var jobPathMarkers = []string{
	"/job", "/emploi", "/offre", "/career", "/careers",
	"/recrutement", "/postes", "/jobs", "/opportunites", "/stellen",
}

// DefaultSites is the built-in registry.
func DefaultSites() []SiteConfig {
	return []SiteConfig{
		{Name: "indeed", Pattern: `(^|\.)indeed\.[a-z.]+$`, Extractor: "indeed", SearchDomains: []string{"indeed.fr", "ch.indeed.com"}, RateLimit: 20, Enabled: true},
		{Name: "linkedin", Pattern: `(^|\.)linkedin\.com$`, Extractor: "linkedin", SearchDomains: []string{"linkedin.com/jobs"}, RateLimit: 10, Enabled: true},
		{Name: "welcometothejungle", Pattern: `(^|\.)welcometothejungle\.com$`, Extractor: "wttj", SearchDomains: []string{"welcometothejungle.com"}, RateLimit: 30, Enabled: true},
		{Name: "glassdoor", Pattern: `(^|\.)glassdoor\.[a-z.]+$`, Extractor: "glassdoor", RateLimit: 10, Enabled: true},
		{Name: "jobs.ch", Pattern: `(^|\.)jobs\.ch$`, Extractor: "jobsch", SearchDomains: []string{"jobs.ch"}, RateLimit: 30, Enabled: true},
	}
}

// Registry selects an extractor by matching a URL's host against site patterns.
// It is immutable after construction.
type Registry struct {
	sites   []*Site
	generic Extractor
}

// NewRegistry compiles the site entries. Invalid patterns or unknown kinds are config errors.
func NewRegistry(configs []SiteConfig) (*Registry, error) {
	r := &Registry{generic: NewGeneric()}
	for i, cfg := range configs {
		field := fmt.Sprintf("sites[%d]", i)
		if strings.TrimSpace(cfg.Name) == "" {
			return nil, &models.ConfigError{Field: field + ".name", Reason: "must not be empty"}
		}
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil || cfg.Pattern == "" {
			return nil, &models.ConfigError{Field: field + ".pattern", Reason: fmt.Sprintf("invalid pattern %q", cfg.Pattern)}
		}
		newExtractor, ok := extractorKinds[cfg.Extractor]
		if !ok {
			return nil, &models.ConfigError{Field: field + ".extractor", Reason: fmt.Sprintf("unknown extractor %q (known: %s)", cfg.Extractor, strings.Join(Kinds(), ", "))}
		}
		if cfg.RateLimit <= 0 {
			cfg.RateLimit = DefaultRateLimit
		}
		r.sites = append(r.sites, &Site{SiteConfig: cfg, pattern: re, extractor: newExtractor()})
	}
	return r, nil
}

// Sites returns the registry entries in match order.
func (r *Registry) Sites() []SiteConfig {
	out := make([]SiteConfig, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s.SiteConfig)
	}
	return out
}

// SearchDomains returns the site-restriction domains of all enabled sites, in registry order.
func (r *Registry) SearchDomains() []string {
	var out []string
	for _, s := range r.sites {
		if s.Enabled {
			out = append(out, s.SearchDomains...)
		}
	}
	return out
}

// Match returns the first enabled site whose pattern matches the URL's host.
func (r *Registry) Match(rawURL string) (*Site, bool) {
	host := hostOf(rawURL)
	if host == "" {
		return nil, false
	}
	for _, s := range r.sites {
		if s.Enabled && s.pattern.MatchString(host) {
			return s, true
		}
	}
	return nil, false
}

// SiteFor names the source of a URL: the matching site or the bare host.
func (r *Registry) SiteFor(rawURL string) string {
	if s, ok := r.Match(rawURL); ok {
		return s.Name
	}
	return hostOf(rawURL)
}

// RateLimitFor returns the requests-per-minute budget for a URL's site.
func (r *Registry) RateLimitFor(rawURL string) int {
	if s, ok := r.Match(rawURL); ok {
		return s.RateLimit
	}
	return DefaultRateLimit
}

// IsJobURL reports whether a search result link plausibly points at a job posting.
func (r *Registry) IsJobURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if _, ok := r.Match(rawURL); ok {
		return true
	}
	host := hostOf(rawURL)
	for _, d := range knownJobDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	path := strings.ToLower(u.Path)
	for _, marker := range jobPathMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// Extract routes the page to its site extractor, or the generic one.
// The returned posting always carries the page URL and the site name as source.
func (r *Registry) Extract(page Page, now time.Time) (*models.RawPosting, error) {
	ex := r.generic
	if s, ok := r.Match(page.URL); ok {
		ex = s.extractor
	}
	posting, err := ex.Extract(page)
	if err != nil {
		return nil, err
	}
	posting.URL = page.URL
	posting.Source = r.SiteFor(page.URL)
	posting.DiscoveredAt = now
	return posting, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
