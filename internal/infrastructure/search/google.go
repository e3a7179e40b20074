package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pricescout/backend/internal/domain"
)

const googleBaseURL = "https://www.google.com"

// Google scrapes the Google result page. Shopping uses the tbm=shop vertical,
// which carries a price and merchant per item.
type Google struct {
	client     *Client
	baseURL    string
	country    string
	language   string
	numResults int
}

// NewGoogle creates the adapter; an empty baseURL uses www.google.com
func NewGoogle(client *Client, baseURL, country, language string, numResults int) *Google {
	if baseURL == "" {
		baseURL = googleBaseURL
	}
	return &Google{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		country:    country,
		language:   language,
		numResults: numResults,
	}
}

func (g *Google) Name() string { return NameGoogle }

func (g *Google) Attempt(ctx context.Context, query string, queryType domain.QueryType) (*domain.ProviderResult, error) {
	params := url.Values{}
	params.Set("q", query)
	if g.language != "" {
		params.Set("hl", g.language)
	}
	if g.country != "" {
		params.Set("gl", g.country)
	}
	switch queryType {
	case domain.QueryTypeShopping:
		params.Set("tbm", "shop")
	case domain.QueryTypeImage:
		params.Set("tbm", "isch")
	default:
		params.Set("num", strconv.Itoa(min(g.numResults+5, 30)))
	}

	page, err := g.client.Get(ctx, g.baseURL+"/search", params, "")
	if err != nil {
		return nil, err
	}
	if page.URL != nil && strings.HasPrefix(page.URL.Path, "/sorry/") {
		return nil, domain.ErrProviderBlocked
	}
	root, err := parseHTML(page.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse results: %v", domain.ErrProviderFailure, err)
	}

	var candidates []domain.Candidate
	switch queryType {
	case domain.QueryTypeShopping:
		candidates = parseGoogleShopping(root, page.URL, g.numResults)
	case domain.QueryTypeImage:
		candidates = parseGoogleImages(root, page.URL, g.numResults)
	default:
		candidates = parseGoogleResults(root, g.numResults)
	}
	log.Debug().Str("provider", NameGoogle).Str("type", string(queryType)).Int("results", len(candidates)).Msg("parsed result page")
	return finish(candidates, page)
}

func parseGoogleResults(root *html.Node, limit int) []domain.Candidate {
	external := func(n *html.Node) bool {
		href := attr(n, "href")
		return n.DataAtom == atom.A && strings.HasPrefix(href, "http") && !strings.Contains(href, "google.com")
	}

	var candidates []domain.Candidate
	for _, selector := range []matcher{byTagClass(atom.Div, "g"), byAttr("data-sokoban-container"), byClass("tF2Cxc")} {
		for _, result := range findAll(root, selector) {
			if limit > 0 && len(candidates) >= limit {
				break
			}
			link := findFirst(result, external)
			title := findFirst(result, byTag(atom.H3))
			if link == nil || title == nil {
				continue
			}
			href := attr(link, "href")
			candidates = append(candidates, domain.Candidate{
				Title:   textOf(title),
				URL:     href,
				Snippet: textOf(findFirst(result, byClass("VwiC3b", "st", "s"))),
				Store:   storeFromURL(href),
			})
		}
		if len(candidates) > 0 {
			break
		}
	}
	return candidates
}

func parseGoogleShopping(root *html.Node, base *url.URL, limit int) []domain.Candidate {
	item := func(n *html.Node) bool {
		return hasClass(n, "sh-dgr__content") || hasClass(n, "sh-dlr__list-result") || hasAttr(n, "data-docid")
	}

	var candidates []domain.Candidate
	for _, result := range findAll(root, item) {
		if limit > 0 && len(candidates) >= limit {
			break
		}
		title := findFirst(result, byClass("tAxDx", "Xjkr3b"), byTag(atom.H3, atom.H4))
		if title == nil {
			continue
		}

		priceText := ""
		if price := findFirst(result, byClass("a8Pemb", "HRLxBb"), byAttr("data-price")); price != nil {
			priceText = textOf(price)
			if priceText == "" {
				priceText = attr(price, "data-price")
			}
		}

		link := unwrapGoogleURL(resolve(base, attr(findFirst(result, byTag(atom.A)), "href")))
		store := textOf(findFirst(result, byClass("aULzUe", "IuHnof")))
		if store == "" {
			store = storeFromURL(link)
		}

		candidates = append(candidates, domain.Candidate{
			Title:     textOf(title),
			URL:       link,
			PriceText: priceText,
			Store:     store,
			ImageURL:  attr(findFirst(result, byTag(atom.Img)), "src"),
		})
	}
	return candidates
}

func parseGoogleImages(root *html.Node, base *url.URL, limit int) []domain.Candidate {
	image := func(n *html.Node) bool {
		return n.DataAtom == atom.Img && (hasAttr(n, "data-src") || hasClass(n, "rg_i"))
	}

	var candidates []domain.Candidate
	for _, img := range findAll(root, image) {
		if limit > 0 && len(candidates) >= limit {
			break
		}
		src := attr(img, "data-src")
		if src == "" {
			src = attr(img, "src")
		}
		if src == "" || strings.HasPrefix(src, "data:") {
			continue
		}

		link := ""
		if a := ancestor(img, byTag(atom.A)); a != nil {
			link = unwrapGoogleURL(resolve(base, attr(a, "href")))
		}
		candidates = append(candidates, domain.Candidate{
			Title:    attr(img, "alt"),
			URL:      link,
			Store:    storeFromURL(link),
			ImageURL: src,
		})
	}
	return candidates
}

// unwrapGoogleURL extracts the target of a google.com/url?q= redirect
func unwrapGoogleURL(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Path != "/url" {
		return link
	}
	for _, key := range []string{"q", "url"} {
		if target := u.Query().Get(key); target != "" {
			return target
		}
	}
	return link
}
