package search

import (
	"fmt"

	"github.com/pricescout/backend/internal/domain"
)

// Provider names used in the priority order
const (
	NameDuckDuckGo = "duckduckgo"
	NameGoogle     = "google"
	NameBing       = "bing"
	NameSearXNG    = "searxng"
)

// Names lists every provider this package can build
func Names() []string {
	return []string{NameDuckDuckGo, NameGoogle, NameBing, NameSearXNG}
}

// ProviderSettings holds the per-provider endpoint and pacing
type ProviderSettings struct {
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
}

// Options configures every adapter built by NewProviders
type Options struct {
	UserAgent  string
	NumResults int
	Region     string // DuckDuckGo kl, e.g. il-he
	Country    string // Google gl
	Language   string // Google hl, Accept-Language, SearXNG language
	Providers  map[string]ProviderSettings
}

// NewProvider builds the adapter called name
func NewProvider(name string, opts Options) (domain.SearchProvider, error) {
	settings := opts.Providers[name]
	client := NewClient(ClientConfig{
		UserAgent:         opts.UserAgent,
		AcceptLanguage:    acceptLanguage(opts.Language),
		RequestsPerSecond: settings.RequestsPerSecond,
		Burst:             settings.Burst,
	})

	switch name {
	case NameDuckDuckGo:
		return NewDuckDuckGo(client, settings.BaseURL, opts.Region, opts.NumResults), nil
	case NameGoogle:
		return NewGoogle(client, settings.BaseURL, opts.Country, opts.Language, opts.NumResults), nil
	case NameBing:
		return NewBing(client, settings.BaseURL, opts.NumResults), nil
	case NameSearXNG:
		if settings.BaseURL == "" {
			return nil, fmt.Errorf("%w: searxng requires a base_url", domain.ErrUnknownProvider)
		}
		return NewSearXNG(client, settings.BaseURL, opts.Language, opts.NumResults), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, name)
	}
}

// NewProviders builds the adapters named in order, each with its own paced client
func NewProviders(order []string, opts Options) ([]domain.SearchProvider, error) {
	providers := make([]domain.SearchProvider, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true

		p, err := NewProvider(name, opts)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func acceptLanguage(language string) string {
	if language == "" || language == "en" {
		return "en;q=0.9"
	}
	return language + ",en;q=0.5"
}
