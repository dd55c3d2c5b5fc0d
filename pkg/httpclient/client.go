package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"

	"jobhound/internal/models"
)

// Maximum number of body bytes read from a job page.
const maxBodySize = 5 << 20

type HttpClient struct {
	client    *http.Client
	userAgent string

	respectRobots bool
	mu            sync.Mutex
	robots        map[string]*robotstxt.Group // per scheme://host, nil when unavailable
}

// Option configures an HttpClient.
type Option func(*HttpClient)

// WithRobots makes Fetch refuse paths disallowed by the host's robots.txt.
func WithRobots() Option {
	return func(h *HttpClient) { h.respectRobots = true }
}

func NewHttpClient(timeout time.Duration, userAgent string, opts ...Option) *HttpClient {
	h := &HttpClient{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		robots:    make(map[string]*robotstxt.Group),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HttpClient) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.8")
	return h.client.Do(req)
}

// Fetch returns the page body decoded to UTF-8. Transport failures and
// error statuses are *models.FetchError.
func (h *HttpClient) Fetch(ctx context.Context, rawURL string) (string, error) {
	if h.respectRobots && !h.allowed(ctx, rawURL) {
		return "", &models.FetchError{URL: rawURL, StatusCode: http.StatusForbidden, Err: fmt.Errorf("disallowed by robots.txt")}
	}

	resp, err := h.Get(ctx, rawURL)
	if err != nil {
		return "", &models.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &models.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		body = resp.Body
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBodySize))
	if err != nil {
		return "", &models.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}
	return string(data), nil
}

// allowed consults the cached robots.txt group of the URL's host. Hosts whose
// robots.txt cannot be loaded are allowed.
func (h *HttpClient) allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	origin := u.Scheme + "://" + u.Host

	h.mu.Lock()
	group, cached := h.robots[origin]
	h.mu.Unlock()

	if !cached {
		group = h.loadRobots(ctx, origin)
		h.mu.Lock()
		h.robots[origin] = group
		h.mu.Unlock()
	}
	if group == nil {
		return true
	}
	return group.Test(u.EscapedPath())
}

func (h *HttpClient) loadRobots(ctx context.Context, origin string) *robotstxt.Group {
	resp, err := h.Get(ctx, origin+"/robots.txt")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(h.userAgent)
}
