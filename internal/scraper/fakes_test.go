package scraper

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jobhound/internal/scraper/sources"
	"jobhound/internal/storage"
)

// fakeClock never sleeps: After fires immediately and records the delay.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// fakeBrowser serves scripted result pages keyed by query and page index.
type fakeBrowser struct {
	mu        sync.Mutex
	results   func(query string, page int) ([]string, error)
	current   []string
	visited   []string
	rotations int
}

func (b *fakeBrowser) Navigate(_ context.Context, target string, _ time.Duration) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	query := u.Query().Get("q")
	offset, _ := strconv.Atoi(u.Query().Get("start"))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.visited = append(b.visited, query+"#"+strconv.Itoa(offset/10))
	links, err := b.results(query, offset/10)
	if err != nil {
		b.current = nil
		return "", err
	}
	b.current = links
	return "<html><body>results</body></html>", nil
}

func (b *fakeBrowser) CurrentResultLinks() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.current...)
}

func (b *fakeBrowser) RotateIdentity() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rotations++
}

func (b *fakeBrowser) Visited() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.visited...)
}

// fakeFetcher serves HTML by URL. hook runs before each fetch.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	hook  func(url string)
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, u)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(u)
	}
	if err, ok := f.errs[u]; ok {
		return "", err
	}
	if html, ok := f.pages[u]; ok {
		return html, nil
	}
	return "<html><body><p>gone</p></body></html>", nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testRegistry(t *testing.T) *sources.Registry {
	t.Helper()
	r, err := sources.NewRegistry([]sources.SiteConfig{
		{Name: "jobs.ch", Pattern: `(^|\.)jobs\.ch$`, Extractor: "jobsch", RateLimit: 600, Enabled: true},
	})
	require.NoError(t, err)
	return r
}

func testStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ExtractionWorkers = 1
	opts.SessionFlushEvery = 1
	return opts
}

func jobPage(title, company string) string {
	return "<html><head><title>" + title + "</title></head><body><h1>" + title +
		"</h1><p>Company: " + company + "</p><p>We use Go and Docker.</p></body></html>"
}
