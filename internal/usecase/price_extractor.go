package usecase

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pricescout/backend/internal/domain"
)

// amountExpr is a number with optional thousands/decimal separators
const amountExpr = `\d[\d.,]*`

var (
	markupPattern = regexp.MustCompile(`<[a-zA-Z][^>]*>`)

	// Symbol or code before or after the amount
	symbolBeforePattern = regexp.MustCompile(`(NZ\$|A\$|C\$|US\$|\$|₪|€|£|¥|₹|₽)\s?(` + amountExpr + `)`)
	symbolAfterPattern  = regexp.MustCompile(`(` + amountExpr + `)\s?(₪|€|£|¥|₹|₽|\$)`)
	codeBeforePattern   = regexp.MustCompile(`(?i)\b(ILS|NIS|USD|EUR|GBP|JPY|INR|RUB|SEK|CHF|AUD|CAD|NZD)\s?(` + amountExpr + `)`)
	codeAfterPattern    = regexp.MustCompile(`(?i)(` + amountExpr + `)\s?(ILS|NIS|USD|EUR|GBP|JPY|INR|RUB|SEK|CHF|AUD|CAD|NZD)\b`)
	hebrewAfterPattern  = regexp.MustCompile(`(` + amountExpr + `)\s?(ש״ח|ש"ח|שקלים|שקל|שח)`)

	// Number next to a price keyword, currency taken from context
	proximityPattern = regexp.MustCompile(`(?i)(?:price|cost|only|now|sale|from|מחיר|במחיר|רק|החל מ-?)\s*:?\s*(` + amountExpr + `)`)

	freeShippingPattern   = regexp.MustCompile(`(?i)free\s+(?:shipping|delivery)|משלוח\s+חינם|משלוח\s+חינמי`)
	shippingPricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:shipping|delivery|משלוח)\s*:?\s*\+?\s*((?:NZ\$|A\$|C\$|\$|₪|€|£)?\s?` + amountExpr + `(?:\s?(?:₪|€|£|\$|ש״ח|ש"ח|שח))?)`),
		regexp.MustCompile(`(?i)\+\s*((?:\$|₪|€|£)?\s?` + amountExpr + `(?:\s?(?:₪|€|£|\$|ש״ח|ש"ח|שח))?)\s*(?:shipping|delivery|משלוח)`),
	}

	outOfStockPattern = regexp.MustCompile(`(?i)out\s+of\s+stock|sold\s+out|currently\s+unavailable|אזל\s+מהמלאי|אזל|לא\s+במלאי|אין\s+במלאי|לא\s+זמין`)
	inStockPattern    = regexp.MustCompile(`(?i)in\s+stock|available\s+now|במלאי|זמין\s+במלאי|זמין`)
)

// currencyCodeAliases maps non-ISO codes seen in the wild to ISO codes
var currencyCodeAliases = map[string]string{"NIS": "ILS"}

// span is a byte range in the visible text
type span struct{ start, end int }

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// priceMatch is a strategy hit before it becomes an observation
type priceMatch struct {
	value        decimal.Decimal
	currency     string
	availability domain.Availability
	pos          int
}

// fragmentView is a fragment prepared once for all strategies
type fragmentView struct {
	text          string
	root          *html.Node
	shippingSpans []span
}

type extractionStrategy struct {
	name domain.Strategy
	run  func(e *PriceExtractor, v *fragmentView) []priceMatch
}

// PriceExtractor finds prices in raw fragments.
// Strategies are tried in confidence order and the first one producing
// any prices for a fragment wins.
type PriceExtractor struct {
	parser     *PriceParser
	strategies []extractionStrategy
	now        func() time.Time
}

// NewPriceExtractor creates an extractor around a parser
func NewPriceExtractor(parser *PriceParser) *PriceExtractor {
	return &PriceExtractor{
		parser: parser,
		strategies: []extractionStrategy{
			{name: domain.StrategyStructured, run: (*PriceExtractor).structuredPrices},
			{name: domain.StrategyPattern, run: (*PriceExtractor).patternPrices},
			{name: domain.StrategyProximity, run: (*PriceExtractor).proximityPrices},
		},
		now: time.Now,
	}
}

// Parser returns the underlying price parser
func (e *PriceExtractor) Parser() *PriceParser {
	return e.parser
}

// ExtractText extracts prices from a bare string
func (e *PriceExtractor) ExtractText(text string) []domain.PriceObservation {
	return e.Extract(domain.Fragment{Text: text})
}

// Extract returns the price observations found in a fragment. Fragments
// without prices yield an empty slice, never an error.
func (e *PriceExtractor) Extract(frag domain.Fragment) []domain.PriceObservation {
	v := e.prepare(frag)
	if v.text == "" && v.root == nil {
		return nil
	}

	shipping := e.shippingCost(v)
	fallbackAvailability := detectAvailability(v.text)

	for _, strategy := range e.strategies {
		matches := strategy.run(e, v)
		if len(matches) == 0 {
			continue
		}

		observedAt := e.now().UTC()
		observations := make([]domain.PriceObservation, 0, len(matches))
		seen := make(map[string]bool, len(matches))
		for _, m := range matches {
			key := m.value.String() + "|" + m.currency
			if seen[key] {
				continue
			}
			seen[key] = true

			availability := m.availability
			if availability == "" || availability == domain.AvailabilityUnknown {
				availability = fallbackAvailability
			}
			observations = append(observations, domain.PriceObservation{
				Amount:       m.value,
				Currency:     m.currency,
				ShippingCost: shipping,
				Availability: availability,
				SourceURL:    frag.SourceURL,
				StoreName:    frag.StoreName,
				Title:        frag.Title,
				ObservedAt:   observedAt,
				Strategy:     strategy.name,
			})
		}

		log.Debug().
			Str("strategy", string(strategy.name)).
			Int("count", len(observations)).
			Str("source", frag.SourceURL).
			Msg("extracted prices")
		return observations
	}
	return nil
}

// prepare parses markup once and computes the visible text and shipping spans
func (e *PriceExtractor) prepare(frag domain.Fragment) *fragmentView {
	markup := frag.Markup
	text := frag.Text
	if markup == "" && markupPattern.MatchString(text) {
		markup, text = text, ""
	}

	v := &fragmentView{}
	if markup != "" {
		root, err := html.Parse(strings.NewReader(markup))
		if err == nil {
			v.root = root
			visible := visibleText(root)
			if text == "" {
				text = visible
			} else {
				text = text + " " + visible
			}
		}
	}
	v.text = strings.Join(strings.Fields(text), " ")

	if m := freeShippingPattern.FindStringIndex(v.text); m != nil {
		v.shippingSpans = append(v.shippingSpans, span{m[0], m[1]})
	}
	for _, re := range shippingPricePatterns {
		for _, m := range re.FindAllStringSubmatchIndex(v.text, -1) {
			v.shippingSpans = append(v.shippingSpans, span{m[0], m[1]})
		}
	}
	return v
}

// shippingCost returns zero for free shipping, the parsed cost, or nil when unknown
func (e *PriceExtractor) shippingCost(v *fragmentView) *decimal.Decimal {
	if freeShippingPattern.MatchString(v.text) {
		zero := decimal.Zero
		return &zero
	}
	for _, re := range shippingPricePatterns {
		m := re.FindStringSubmatch(v.text)
		if m == nil {
			continue
		}
		parsed, err := e.parser.Parse(m[1], "")
		if err != nil {
			continue
		}
		return &parsed.Value
	}
	return nil
}

func (v *fragmentView) inShipping(s span) bool {
	for _, sh := range v.shippingSpans {
		if sh.overlaps(s) {
			return true
		}
	}
	return false
}

// detectAvailability checks negative phrases first since "לא במלאי" contains "במלאי"
func detectAvailability(text string) domain.Availability {
	switch {
	case outOfStockPattern.MatchString(text):
		return domain.AvailabilityOutOfStock
	case inStockPattern.MatchString(text):
		return domain.AvailabilityInStock
	default:
		return domain.AvailabilityUnknown
	}
}

// patternPrices matches amounts anchored by a currency symbol or code
func (e *PriceExtractor) patternPrices(v *fragmentView) []priceMatch {
	type anchored struct {
		re          *regexp.Regexp
		amountGroup int
		unitGroup   int
	}
	patterns := []anchored{
		{symbolBeforePattern, 2, 1},
		{codeBeforePattern, 2, 1},
		{hebrewAfterPattern, 1, 2},
		{symbolAfterPattern, 1, 2},
		{codeAfterPattern, 1, 2},
	}

	var accepted []span
	var matches []priceMatch
	for _, p := range patterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(v.text, -1) {
			s := span{idx[0], idx[1]}
			if v.inShipping(s) || overlapsAny(accepted, s) {
				continue
			}
			unit := v.text[idx[2*p.unitGroup]:idx[2*p.unitGroup+1]]
			currency := unitCurrency(unit)
			if currency == "" {
				continue
			}
			value, _, err := e.parser.ParseAmount(v.text[idx[2*p.amountGroup]:idx[2*p.amountGroup+1]])
			if err != nil {
				continue
			}
			accepted = append(accepted, s)
			matches = append(matches, priceMatch{value: value, currency: currency, pos: s.start})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })
	return matches
}

// proximityPrices matches numbers following a price keyword
func (e *PriceExtractor) proximityPrices(v *fragmentView) []priceMatch {
	currency := DetectCurrency(v.text)
	if currency == "" {
		currency = e.parser.DefaultCurrency()
	}

	var matches []priceMatch
	for _, idx := range proximityPattern.FindAllStringSubmatchIndex(v.text, -1) {
		s := span{idx[0], idx[1]}
		if v.inShipping(s) {
			continue
		}
		value, _, err := e.parser.ParseAmount(v.text[idx[2]:idx[3]])
		if err != nil {
			continue
		}
		matches = append(matches, priceMatch{value: value, currency: currency, pos: s.start})
	}
	return matches
}

func overlapsAny(spans []span, s span) bool {
	for _, o := range spans {
		if o.overlaps(s) {
			return true
		}
	}
	return false
}

// unitCurrency maps a matched symbol, code or Hebrew word to an ISO code
func unitCurrency(unit string) string {
	upper := strings.ToUpper(strings.TrimSpace(unit))
	if alias, ok := currencyCodeAliases[upper]; ok {
		return alias
	}
	if domain.IsRecognizedCurrency(upper) {
		return upper
	}
	switch unit {
	case "שקלים", "שקל", "שח":
		return "ILS"
	case "US$":
		return "USD"
	}
	return DetectCurrency(unit)
}

// structuredPrices reads JSON-LD, microdata and OpenGraph price data
func (e *PriceExtractor) structuredPrices(v *fragmentView) []priceMatch {
	if v.root == nil {
		return nil
	}

	var matches []priceMatch
	var microPrice, microCurrency, microAvailability string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Script && strings.EqualFold(attr(n, "type"), "application/ld+json"):
				if n.FirstChild != nil {
					matches = append(matches, e.jsonLDPrices(n.FirstChild.Data)...)
				}
			case n.DataAtom == atom.Meta:
				e.metaPrice(n, &matches)
			}

			switch attr(n, "itemprop") {
			case "price":
				if microPrice == "" {
					microPrice = firstNonEmpty(attr(n, "content"), nodeText(n))
				}
			case "priceCurrency":
				if microCurrency == "" {
					microCurrency = firstNonEmpty(attr(n, "content"), nodeText(n))
				}
			case "availability":
				if microAvailability == "" {
					microAvailability = firstNonEmpty(attr(n, "href"), attr(n, "content"), nodeText(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(v.root)

	if microPrice != "" {
		if m, ok := e.structuredMatch(microPrice, microCurrency, microAvailability); ok {
			matches = append(matches, m)
		}
	}
	return matches
}

// metaPrice handles og:price:amount and product:price:amount tags
func (e *PriceExtractor) metaPrice(n *html.Node, matches *[]priceMatch) {
	prop := firstNonEmpty(attr(n, "property"), attr(n, "name"))
	if prop != "og:price:amount" && prop != "product:price:amount" {
		return
	}
	prefix := strings.TrimSuffix(prop, "amount")
	currency := ""
	for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
		if s.DataAtom == atom.Meta && firstNonEmpty(attr(s, "property"), attr(s, "name")) == prefix+"currency" {
			currency = attr(s, "content")
			break
		}
	}
	if m, ok := e.structuredMatch(attr(n, "content"), currency, ""); ok {
		*matches = append(*matches, m)
	}
}

// jsonLDPrices walks a JSON-LD document for Product offers
func (e *PriceExtractor) jsonLDPrices(raw string) []priceMatch {
	var doc any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &doc); err != nil {
		log.Debug().Err(err).Msg("skipping malformed JSON-LD block")
		return nil
	}

	var matches []priceMatch
	var visit func(node any)
	visit = func(node any) {
		switch t := node.(type) {
		case []any:
			for _, item := range t {
				visit(item)
			}
		case map[string]any:
			if graph, ok := t["@graph"]; ok {
				visit(graph)
			}
			switch {
			case hasType(t, "Product"):
				if offers, ok := t["offers"]; ok {
					visit(offers)
				}
			case hasType(t, "Offer"), hasType(t, "AggregateOffer"):
				price := jsonString(t["price"])
				if price == "" {
					price = jsonString(t["lowPrice"])
				}
				if m, ok := e.structuredMatch(price, jsonString(t["priceCurrency"]), jsonString(t["availability"])); ok {
					matches = append(matches, m)
				}
				if nested, ok := t["offers"]; ok {
					visit(nested)
				}
			}
		}
	}
	visit(doc)
	return matches
}

// structuredMatch converts machine-readable price fields into a match
func (e *PriceExtractor) structuredMatch(price, currency, availability string) (priceMatch, bool) {
	price = strings.TrimSpace(price)
	if price == "" {
		return priceMatch{}, false
	}

	value, err := decimal.NewFromString(price)
	if err != nil {
		parsed, perr := e.parser.Parse(price, currency)
		if perr != nil {
			return priceMatch{}, false
		}
		value = parsed.Value
		if currency == "" {
			currency = parsed.Currency
		}
	} else if err := e.parser.checkRange(value); err != nil {
		return priceMatch{}, false
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = e.parser.DefaultCurrency()
	}
	if alias, ok := currencyCodeAliases[currency]; ok {
		currency = alias
	}
	if !domain.IsRecognizedCurrency(currency) {
		return priceMatch{}, false
	}

	return priceMatch{
		value:        value,
		currency:     currency,
		availability: schemaAvailability(availability),
	}, true
}

// schemaAvailability maps schema.org availability URLs to Availability
func schemaAvailability(s string) domain.Availability {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "outofstock"), strings.Contains(lower, "soldout"), strings.Contains(lower, "discontinued"):
		return domain.AvailabilityOutOfStock
	case strings.Contains(lower, "instock"), strings.Contains(lower, "limitedavailability"), strings.Contains(lower, "onlineonly"):
		return domain.AvailabilityInStock
	default:
		return domain.AvailabilityUnknown
	}
}

func hasType(obj map[string]any, want string) bool {
	switch t := obj["@type"].(type) {
	case string:
		return t == want || strings.HasSuffix(t, "/"+want)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func jsonString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// nodeText concatenates the text under n
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// visibleText returns the document text without script and style contents
func visibleText(root *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Head:
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return b.String()
}
