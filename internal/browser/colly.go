// Package browser provides the search-page automation used to resolve queries.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly"
	"github.com/gocolly/colly/extensions"

	"jobhound/internal/models"
)

// DefaultUserAgent is sent until the identity is first rotated.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// CollyBrowser drives search result pages with a colly collector. It keeps the
// state of the last loaded page and serializes navigations.
type CollyBrowser struct {
	mu     sync.Mutex
	base   *colly.Collector
	links  []string
	rotate bool
	closed bool
}

// NewColly creates a browser. An empty userAgent uses DefaultUserAgent.
func NewColly(userAgent string) *CollyBrowser {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	return &CollyBrowser{base: c}
}

// Navigate loads target and returns its body. The collector has no context
// support, so ctx is honored before the request starts and timeout bounds it.
func (b *CollyBrowser) Navigate(ctx context.Context, target string, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", models.ErrBrowserUnavailable
	}

	c := b.base.Clone()
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}
	if b.rotate {
		extensions.RandomUserAgent(c)
	}

	var (
		body   string
		status int
		links  []string
		reqErr error
	)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if b.rotate {
			b.base.UserAgent = r.Headers.Get("User-Agent")
			b.rotate = false
		}
	})
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if href := strings.TrimSpace(e.Attr("href")); href != "" {
			links = append(links, href)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	err := c.Visit(target)
	if err == nil {
		err = reqErr
	}
	if cerr := ctx.Err(); cerr != nil {
		return "", cerr
	}
	if err != nil {
		b.links = nil
		return "", &models.FetchError{URL: target, StatusCode: status, Err: err}
	}
	if status >= http.StatusBadRequest {
		b.links = nil
		return "", &models.FetchError{URL: target, StatusCode: status, Err: fmt.Errorf("unexpected status %d", status)}
	}

	b.links = links
	return body, nil
}

// CurrentResultLinks returns the hrefs of the last page, in document order.
func (b *CollyBrowser) CurrentResultLinks() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.links...)
}

// RotateIdentity picks a fresh random user agent for the next navigation,
// kept until the following rotation.
func (b *CollyBrowser) RotateIdentity() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rotate = true
}

// UserAgent is the identity currently presented.
func (b *CollyBrowser) UserAgent() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base.UserAgent
}

// Close makes every later navigation fail with ErrBrowserUnavailable.
func (b *CollyBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.links = nil
	return nil
}
