package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pricescout/backend/internal/domain"
)

const (
	// maxBodySize caps how much of a result page is read
	maxBodySize = 2 << 20

	defaultRequestsPerSecond = 1.0
	defaultBurst             = 2
	defaultHTTPTimeout       = 30 * time.Second
)

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// blockMarkers appear on captcha, consent and anomaly pages served instead of results
var blockMarkers = []string{
	"unusual traffic",
	"g-recaptcha",
	"captcha-form",
	"/sorry/index",
	"anomaly-modal",
	"detected unusual",
}

// ClientConfig configures the shared HTTP client of one adapter
type ClientConfig struct {
	UserAgent         string
	AcceptLanguage    string
	RequestsPerSecond float64
	Burst             int
}

// Client is a paced HTTP client. Each adapter owns one, so a provider never
// sends faster than its token bucket allows; waiting for a token counts
// against the caller's deadline.
type Client struct {
	httpClient     *http.Client
	userAgent      string
	acceptLanguage string
	rateLimiter    *rate.Limiter
}

// Page is a downloaded response body with the URL it was finally served from
type Page struct {
	Body []byte
	URL  *url.URL
}

// NewClient creates a paced client
func NewClient(cfg ClientConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		userAgent:      ua,
		acceptLanguage: cfg.AcceptLanguage,
		rateLimiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Get fetches rawURL with params appended to its query
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values, accept string) (*Page, error) {
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.do(req)
}

// PostForm submits form to rawURL
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// do waits for a token, executes req and classifies the response status
func (c *Client) do(req *http.Request) (*Page, error) {
	ctx := req.Context()
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for request slot: %v", domain.ErrProviderTimeout, err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	if c.acceptLanguage != "" {
		req.Header.Set("Accept-Language", c.acceptLanguage)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: reading body: %v", domain.ErrProviderFailure, err)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	return &Page{Body: body, URL: resp.Request.URL}, nil
}

// classifyStatus maps an HTTP status to a provider error
func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return domain.ErrProviderRateLimited
	case status == http.StatusForbidden || status == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: status %d", domain.ErrProviderBlocked, status)
	default:
		return fmt.Errorf("%w: status %d", domain.ErrProviderFailure, status)
	}
}

// looksBlocked reports whether a page is a captcha or anomaly page
func looksBlocked(page *Page) bool {
	if page.URL != nil && strings.HasPrefix(page.URL.Path, "/sorry/") {
		return true
	}
	lower := bytes.ToLower(page.Body)
	for _, marker := range blockMarkers {
		if bytes.Contains(lower, []byte(marker)) {
			return true
		}
	}
	return false
}

// finish turns parsed candidates into a provider result. A page without
// candidates is a block when it carries a block marker and empty otherwise.
func finish(candidates []domain.Candidate, page *Page) (*domain.ProviderResult, error) {
	if len(candidates) == 0 {
		if looksBlocked(page) {
			return nil, domain.ErrProviderBlocked
		}
		return nil, domain.ErrEmptyResult
	}
	return &domain.ProviderResult{Candidates: candidates}, nil
}

// storeFromURL returns the host of rawURL without a leading www.
func storeFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// resolve makes href absolute against base
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
