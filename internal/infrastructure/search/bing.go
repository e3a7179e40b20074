package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pricescout/backend/internal/domain"
)

const bingBaseURL = "https://www.bing.com"

// Bing scrapes the Bing result page. Like DuckDuckGo it has no usable
// shopping vertical without JavaScript, so shopping adds price terms.
type Bing struct {
	client     *Client
	baseURL    string
	numResults int
}

// NewBing creates the adapter; an empty baseURL uses www.bing.com
func NewBing(client *Client, baseURL string, numResults int) *Bing {
	if baseURL == "" {
		baseURL = bingBaseURL
	}
	return &Bing{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		numResults: numResults,
	}
}

func (b *Bing) Name() string { return NameBing }

func (b *Bing) Attempt(ctx context.Context, query string, queryType domain.QueryType) (*domain.ProviderResult, error) {
	params := url.Values{}
	endpoint := b.baseURL + "/search"
	switch queryType {
	case domain.QueryTypeImage:
		endpoint = b.baseURL + "/images/search"
		params.Set("q", query)
		params.Set("first", "1")
	case domain.QueryTypeShopping:
		params.Set("q", query+" buy price מחיר")
	default:
		params.Set("q", query)
	}
	if b.numResults > 0 {
		params.Set("count", strconv.Itoa(b.numResults))
	}

	page, err := b.client.Get(ctx, endpoint, params, "")
	if err != nil {
		return nil, err
	}
	root, err := parseHTML(page.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse results: %v", domain.ErrProviderFailure, err)
	}

	var candidates []domain.Candidate
	if queryType == domain.QueryTypeImage {
		candidates = parseBingImages(root, b.numResults)
	} else {
		candidates = parseBingResults(root, b.numResults)
	}
	log.Debug().Str("provider", NameBing).Str("type", string(queryType)).Int("results", len(candidates)).Msg("parsed result page")
	return finish(candidates, page)
}

func parseBingResults(root *html.Node, limit int) []domain.Candidate {
	var candidates []domain.Candidate
	for _, result := range findAll(root, byClass("b_algo")) {
		if limit > 0 && len(candidates) >= limit {
			break
		}
		heading := findFirst(result, byTag(atom.H2))
		if heading == nil {
			continue
		}
		link := findFirst(heading, byTag(atom.A))
		if link == nil {
			continue
		}
		href := attr(link, "href")

		snippet := ""
		if caption := findFirst(result, byClass("b_caption")); caption != nil {
			snippet = textOf(findFirst(caption, byTag(atom.P)))
		}

		candidates = append(candidates, domain.Candidate{
			Title:   textOf(link),
			URL:     href,
			Snippet: snippet,
			Store:   storeFromURL(href),
		})
	}
	return candidates
}

// bingImageMeta is the JSON carried in the m attribute of an image tile
type bingImageMeta struct {
	Title     string `json:"t"`
	MediaURL  string `json:"murl"`
	PageURL   string `json:"purl"`
	Thumbnail string `json:"turl"`
	Desc      string `json:"desc"`
}

func parseBingImages(root *html.Node, limit int) []domain.Candidate {
	var candidates []domain.Candidate
	for _, tile := range findAll(root, byClass("iusc", "mimg")) {
		if limit > 0 && len(candidates) >= limit {
			break
		}

		var meta bingImageMeta
		if err := json.Unmarshal([]byte(attr(tile, "m")), &meta); err == nil && meta.MediaURL != "" {
			candidates = append(candidates, domain.Candidate{
				Title:    meta.Title,
				URL:      meta.PageURL,
				Snippet:  meta.Desc,
				Store:    storeFromURL(meta.PageURL),
				ImageURL: meta.MediaURL,
			})
			continue
		}

		img := tile
		if tile.DataAtom != atom.Img {
			img = findFirst(tile, byTag(atom.Img))
		}
		if src := attr(img, "src"); src != "" {
			candidates = append(candidates, domain.Candidate{
				Title:    attr(img, "alt"),
				ImageURL: src,
			})
		}
	}
	return candidates
}
