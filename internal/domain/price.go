package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// recognizedCurrencies are the ISO codes a PriceObservation may carry
var recognizedCurrencies = map[string]bool{
	"ILS": true, "USD": true, "EUR": true, "GBP": true, "JPY": true, "INR": true,
	"RUB": true, "SEK": true, "CHF": true, "AUD": true, "CAD": true, "NZD": true,
}

// IsRecognizedCurrency reports whether code is an accepted 3-letter currency code
func IsRecognizedCurrency(code string) bool {
	return recognizedCurrencies[strings.ToUpper(code)]
}

// QueryType selects which kind of search a provider runs
type QueryType string

const (
	QueryTypeWeb      QueryType = "web"
	QueryTypeShopping QueryType = "shopping"
	QueryTypeImage    QueryType = "image"
)

// ParseQueryType maps caller input to a QueryType. Empty input defaults to shopping.
func ParseQueryType(s string) (QueryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shopping":
		return QueryTypeShopping, nil
	case "web", "search":
		return QueryTypeWeb, nil
	case "image", "images":
		return QueryTypeImage, nil
	default:
		return "", ErrUnsupportedQueryType
	}
}

// Availability is the stock state reported next to a price
type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityUnknown    Availability = "unknown"
)

// Strategy records which extraction strategy produced an observation
type Strategy string

const (
	StrategyStructured Strategy = "structured" // JSON-LD, microdata, OpenGraph
	StrategyPattern    Strategy = "pattern"    // currency symbol/code patterns
	StrategyProximity  Strategy = "proximity"  // number next to a price keyword
)

// Confidence returns the relative confidence of a strategy, higher is better
func (s Strategy) Confidence() float64 {
	switch s {
	case StrategyStructured:
		return 0.95
	case StrategyPattern:
		return 0.6
	case StrategyProximity:
		return 0.3
	default:
		return 0
	}
}

// PriceObservation is one structured price found for a product
type PriceObservation struct {
	Amount       decimal.Decimal  `json:"amount"`
	Currency     string           `json:"currency"`
	ShippingCost *decimal.Decimal `json:"shippingCost,omitempty"`
	Availability Availability     `json:"availability"`
	SourceURL    string           `json:"sourceUrl,omitempty"`
	StoreName    string           `json:"storeName,omitempty"`
	Title        string           `json:"title,omitempty"`
	ObservedAt   time.Time        `json:"observedAt"`
	Strategy     Strategy         `json:"strategy"`
	Relevance    float64          `json:"relevance"`
}

// TotalCost returns amount plus shipping when shipping is known
func (o PriceObservation) TotalCost() decimal.Decimal {
	if o.ShippingCost == nil {
		return o.Amount
	}
	return o.Amount.Add(*o.ShippingCost)
}

// Fragment is a piece of raw text or markup handed to the price extractor
type Fragment struct {
	Text      string
	Markup    string
	SourceURL string
	StoreName string
	Title     string
}

// Candidate is one raw search hit returned by a provider
type Candidate struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet,omitempty"`
	PriceText string `json:"priceText,omitempty"`
	Store     string `json:"store,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// IsEmpty reports whether the candidate carries no usable text
func (c Candidate) IsEmpty() bool {
	return strings.TrimSpace(c.Title) == "" &&
		strings.TrimSpace(c.Snippet) == "" &&
		strings.TrimSpace(c.PriceText) == ""
}

// ProviderResult is the raw output of one provider attempt
type ProviderResult struct {
	Provider   string        `json:"provider"`
	Candidates []Candidate   `json:"candidates"`
	Attempt    int           `json:"attempt"`
	Duration   time.Duration `json:"duration"`
}

// Usable reports whether at least one candidate is non-empty
func (r *ProviderResult) Usable() bool {
	if r == nil {
		return false
	}
	for _, c := range r.Candidates {
		if !c.IsEmpty() {
			return true
		}
	}
	return false
}

// NormalizedProduct is the output of name normalization
type NormalizedProduct struct {
	Key      string   `json:"key"`
	Brand    string   `json:"brand,omitempty"`
	Model    string   `json:"model,omitempty"`
	Tokens   []string `json:"tokens"`
	Original string   `json:"original"`
}

// SearchRequest represents an inbound price search
type SearchRequest struct {
	Query     string    `json:"query" binding:"required"`
	Type      QueryType `json:"type,omitempty"`
	Providers []string  `json:"providers,omitempty"`
	NoCache   bool      `json:"noCache,omitempty"`
}

// PriceSummary holds statistics over the dominant currency of a result set
type PriceSummary struct {
	Currency   string          `json:"currency"`
	Min        decimal.Decimal `json:"min"`
	Max        decimal.Decimal `json:"max"`
	Average    decimal.Decimal `json:"average"`
	Median     decimal.Decimal `json:"median"`
	SampleSize int             `json:"sampleSize"`

	// Best and Worst are the cheapest and dearest offers in Currency
	Best             *PriceObservation `json:"best,omitempty"`
	Worst            *PriceObservation `json:"worst,omitempty"`
	PotentialSavings decimal.Decimal   `json:"potentialSavings"`
}

// ProductSpecs are technical attributes detected in a product title.
// Raw lists every detected attribute as "kind: value".
type ProductSpecs struct {
	Memory    string   `json:"memory,omitempty"`
	Storage   string   `json:"storage,omitempty"`
	Display   string   `json:"display,omitempty"`
	Processor string   `json:"processor,omitempty"`
	Color     string   `json:"color,omitempty"`
	Size      string   `json:"size,omitempty"`
	Raw       []string `json:"raw"`
}

// CostBreakdown is the full purchase cost of a single offer
type CostBreakdown struct {
	BasePrice       decimal.Decimal            `json:"basePrice"`
	Discount        decimal.Decimal            `json:"discount"`
	DiscountedPrice decimal.Decimal            `json:"discountedPrice"`
	Shipping        decimal.Decimal            `json:"shipping"`
	Tax             decimal.Decimal            `json:"tax"`
	Fees            map[string]decimal.Decimal `json:"fees,omitempty"`
	AdditionalFees  decimal.Decimal            `json:"additionalFees"`
	Total           decimal.Decimal            `json:"total"`
	Currency        string                     `json:"currency"`
}

// SearchResponse is the result of one pipeline invocation
type SearchResponse struct {
	Query         string             `json:"query"`
	NormalizedKey string             `json:"normalizedKey"`
	Fingerprint   string             `json:"fingerprint"`
	Type          QueryType          `json:"type"`
	Observations  []PriceObservation `json:"observations"`
	Summary       *PriceSummary      `json:"summary,omitempty"`
	Provider      string             `json:"provider,omitempty"`
	Source        string             `json:"source"` // "live" or "cache"
	Exhausted     bool               `json:"exhausted"`
	CachedAt      *time.Time         `json:"cachedAt,omitempty"`
	ExpiresAt     *time.Time         `json:"expiresAt,omitempty"`
}

// Empty reports whether the response carries no observations
func (r *SearchResponse) Empty() bool {
	return r == nil || len(r.Observations) == 0
}
