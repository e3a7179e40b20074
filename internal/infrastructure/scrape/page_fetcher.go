package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"

	"github.com/pricescout/backend/internal/domain"
)

const (
	maxPageSize   = 4 << 20
	robotsTimeout = 5 * time.Second
)

// PageFetcher downloads product pages for enrichment. robots.txt is read once
// per host and the matching group is kept for the life of the fetcher.
type PageFetcher struct {
	userAgent string
	client    *http.Client
	cache     map[string]*robotstxt.Group
	mu        sync.RWMutex
}

// NewPageFetcher creates a fetcher identifying itself as userAgent
func NewPageFetcher(userAgent string, timeout time.Duration) *PageFetcher {
	return &PageFetcher{
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		cache:     make(map[string]*robotstxt.Group),
	}
}

// FetchPage returns the markup of pageURL, or domain.ErrPageDisallowed when
// the host's robots.txt forbids it
func (f *PageFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid page url %q", pageURL)
	}

	if !f.allowed(ctx, u) {
		return "", fmt.Errorf("%w: %s", domain.ErrPageDisallowed, pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return string(body), nil
}

// allowed tests u against the cached robots group of its host. A host whose
// robots.txt cannot be read is treated as allowing everything.
func (f *PageFetcher) allowed(ctx context.Context, u *url.URL) bool {
	host := strings.ToLower(u.Host)

	f.mu.RLock()
	group, exists := f.cache[host]
	f.mu.RUnlock()

	if !exists {
		group = f.fetchRobots(ctx, u.Scheme, host)

		// a cancelled caller says nothing about the host
		if ctx.Err() == nil {
			f.mu.Lock()
			f.cache[host] = group
			f.mu.Unlock()
		}
	}

	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (f *PageFetcher) fetchRobots(ctx context.Context, scheme, host string) *robotstxt.Group {
	ctx, cancel := context.WithTimeout(ctx, robotsTimeout)
	defer cancel()

	robotsURL := scheme + "://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("host", host).Msg("robots.txt fetch failed, allowing host")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		log.Warn().Err(err).Str("host", host).Msg("robots.txt unparseable, allowing host")
		return nil
	}
	return data.FindGroup(f.userAgent)
}

// CachedHosts reports how many hosts have a cached robots decision
func (f *PageFetcher) CachedHosts() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}
