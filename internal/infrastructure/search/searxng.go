package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pricescout/backend/internal/domain"
)

// searxngResponse models the relevant portion of the SearXNG JSON response
type searxngResponse struct {
	Results []struct {
		Title        string `json:"title"`
		URL          string `json:"url"`
		Content      string `json:"content"`
		Engine       string `json:"engine"`
		ImgSrc       string `json:"img_src"`
		ThumbnailSrc string `json:"thumbnail_src"`
	} `json:"results"`
}

// SearXNG queries a self-hosted SearXNG instance through its JSON API
type SearXNG struct {
	client      *Client
	instanceURL string
	language    string
	numResults  int
}

// NewSearXNG creates the adapter for the instance at instanceURL
func NewSearXNG(client *Client, instanceURL, language string, numResults int) *SearXNG {
	return &SearXNG{
		client:      client,
		instanceURL: strings.TrimRight(instanceURL, "/"),
		language:    language,
		numResults:  numResults,
	}
}

func (s *SearXNG) Name() string { return NameSearXNG }

func (s *SearXNG) Attempt(ctx context.Context, query string, queryType domain.QueryType) (*domain.ProviderResult, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("pageno", "1")
	if s.language != "" {
		params.Set("language", s.language)
	}
	switch queryType {
	case domain.QueryTypeImage:
		params.Set("q", query)
		params.Set("categories", "images")
	case domain.QueryTypeShopping:
		params.Set("q", query+" price")
	default:
		params.Set("q", query)
	}

	page, err := s.client.Get(ctx, s.instanceURL+"/search", params, "application/json")
	if err != nil {
		return nil, err
	}

	var resp searxngResponse
	if err := json.Unmarshal(page.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProviderFailure, err)
	}

	candidates := make([]domain.Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		if s.numResults > 0 && len(candidates) >= s.numResults {
			break
		}
		image := r.ImgSrc
		if image == "" {
			image = r.ThumbnailSrc
		}
		candidates = append(candidates, domain.Candidate{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Content,
			Store:    storeFromURL(r.URL),
			ImageURL: image,
		})
	}

	log.Debug().Str("provider", NameSearXNG).Int("results", len(candidates)).Msg("searxng search completed")
	return finish(candidates, page)
}
