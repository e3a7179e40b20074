package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pricescout/backend/internal/domain"
)

const (
	duckDuckGoHTMLURL = "https://html.duckduckgo.com/html/"
	duckDuckGoAPIURL  = "https://api.duckduckgo.com/"
)

// DuckDuckGo scrapes the DuckDuckGo HTML endpoint. It has no shopping
// vertical, so shopping queries carry price terms.
type DuckDuckGo struct {
	client     *Client
	htmlURL    string
	apiURL     string
	region     string
	numResults int
}

// NewDuckDuckGo creates the adapter. An empty baseURL uses the public
// endpoints; a custom one serves both /html/ and the instant-answer API.
func NewDuckDuckGo(client *Client, baseURL, region string, numResults int) *DuckDuckGo {
	d := &DuckDuckGo{
		client:     client,
		htmlURL:    duckDuckGoHTMLURL,
		apiURL:     duckDuckGoAPIURL,
		region:     region,
		numResults: numResults,
	}
	if baseURL != "" {
		base := strings.TrimRight(baseURL, "/")
		d.htmlURL = base + "/html/"
		d.apiURL = base + "/"
	}
	return d
}

func (d *DuckDuckGo) Name() string { return NameDuckDuckGo }

func (d *DuckDuckGo) Attempt(ctx context.Context, query string, queryType domain.QueryType) (*domain.ProviderResult, error) {
	switch queryType {
	case domain.QueryTypeImage:
		return d.images(ctx, query)
	case domain.QueryTypeShopping:
		return d.web(ctx, query+" price buy מחיר")
	default:
		return d.web(ctx, query)
	}
}

func (d *DuckDuckGo) web(ctx context.Context, query string) (*domain.ProviderResult, error) {
	form := url.Values{}
	form.Set("q", query)
	if d.region != "" {
		form.Set("kl", d.region)
	}

	page, err := d.client.PostForm(ctx, d.htmlURL, form)
	if err != nil {
		return nil, err
	}
	root, err := parseHTML(page.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse results: %v", domain.ErrProviderFailure, err)
	}

	candidates := parseDuckDuckGoResults(root, d.numResults)
	log.Debug().Str("provider", NameDuckDuckGo).Int("results", len(candidates)).Msg("parsed result page")
	return finish(candidates, page)
}

func parseDuckDuckGoResults(root *html.Node, limit int) []domain.Candidate {
	var candidates []domain.Candidate
	for _, result := range findAll(root, byClass("result")) {
		if limit > 0 && len(candidates) >= limit {
			break
		}
		if hasClass(result, "result--ad") {
			continue
		}

		title := findFirst(result, byClass("result__a"), byTag(atom.A))
		if title == nil {
			continue
		}
		link := unwrapDuckDuckGoURL(attr(title, "href"))
		if link == "" {
			continue
		}

		candidates = append(candidates, domain.Candidate{
			Title:   textOf(title),
			URL:     link,
			Snippet: textOf(findFirst(result, byClass("result__snippet"))),
			Store:   storeFromURL(link),
		})
	}
	return candidates
}

// unwrapDuckDuckGoURL extracts the target of a //duckduckgo.com/l/?uddg= redirect
func unwrapDuckDuckGoURL(href string) string {
	if !strings.Contains(href, "uddg=") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// duckDuckGoAnswer is the relevant part of the instant-answer API response
type duckDuckGoAnswer struct {
	Heading        string `json:"Heading"`
	Image          string `json:"Image"`
	AbstractURL    string `json:"AbstractURL"`
	AbstractSource string `json:"AbstractSource"`
	RelatedTopics  []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
		Icon     struct {
			URL string `json:"URL"`
		} `json:"Icon"`
	} `json:"RelatedTopics"`
}

func (d *DuckDuckGo) images(ctx context.Context, query string) (*domain.ProviderResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	page, err := d.client.Get(ctx, d.apiURL, params, "application/json")
	if err != nil {
		return nil, err
	}

	var answer duckDuckGoAnswer
	if err := json.Unmarshal(page.Body, &answer); err != nil {
		return nil, fmt.Errorf("%w: decode answer: %v", domain.ErrProviderFailure, err)
	}

	var candidates []domain.Candidate
	if answer.Image != "" {
		title := answer.Heading
		if title == "" {
			title = query
		}
		candidates = append(candidates, domain.Candidate{
			Title:    title,
			URL:      answer.AbstractURL,
			Store:    answer.AbstractSource,
			ImageURL: answer.Image,
		})
	}
	for _, topic := range answer.RelatedTopics {
		if d.numResults > 0 && len(candidates) >= d.numResults {
			break
		}
		if topic.Icon.URL == "" {
			continue
		}
		title := topic.Text
		if r := []rune(title); len(r) > 100 {
			title = string(r[:100])
		}
		candidates = append(candidates, domain.Candidate{
			Title:    title,
			URL:      topic.FirstURL,
			Store:    storeFromURL(topic.FirstURL),
			ImageURL: topic.Icon.URL,
		})
	}
	return finish(candidates, page)
}
