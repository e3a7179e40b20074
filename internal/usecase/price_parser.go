package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pricescout/backend/internal/domain"
)

// Number formats recognized by the parser
const (
	LocaleUS = "us" // 1,234.56
	LocaleEU = "eu" // 1.234,56
)

// DefaultMaxAmount is the sanity ceiling above which a parsed price is dropped
const DefaultMaxAmount = 1000000

// currencySymbol maps a symbol or word to its ISO code.
// Longer symbols come first so "NZ$" wins over "$". Bare Hebrew words like
// "שקל" are left to the amount patterns since they occur inside other words.
type currencySymbol struct {
	symbol string
	code   string
}

var currencySymbols = []currencySymbol{
	{"ש״ח", "ILS"}, {`ש"ח`, "ILS"},
	{"₪", "ILS"}, {"nis", "ILS"}, {"shekels", "ILS"}, {"shekel", "ILS"},
	{"nz$", "NZD"}, {"a$", "AUD"}, {"c$", "CAD"},
	{"$", "USD"}, {"€", "EUR"}, {"£", "GBP"}, {"¥", "JPY"}, {"₹", "INR"}, {"₽", "RUB"},
}

var (
	currencyCodePattern = regexp.MustCompile(`(?i)\b(ILS|USD|EUR|GBP|JPY|INR|RUB|SEK|CHF|AUD|CAD|NZD)\b`)
	numericRunPattern   = regexp.MustCompile(`\d[\d.,]*`)
	canonicalNumber     = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// ParsedPrice is a single parsed price string
type ParsedPrice struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
	Original string          `json:"original"`
	Locale   string          `json:"locale"`
}

// PriceParser turns price strings into decimals with a currency
type PriceParser struct {
	defaultCurrency string
	maxAmount       decimal.Decimal
}

// NewPriceParser creates a parser. An empty default currency falls back to ILS.
func NewPriceParser(defaultCurrency string, maxAmount float64) *PriceParser {
	if defaultCurrency == "" {
		defaultCurrency = "ILS"
	}
	if maxAmount <= 0 {
		maxAmount = DefaultMaxAmount
	}
	return &PriceParser{
		defaultCurrency: strings.ToUpper(defaultCurrency),
		maxAmount:       decimal.NewFromFloat(maxAmount),
	}
}

// DefaultCurrency returns the currency used when none is detected
func (p *PriceParser) DefaultCurrency() string {
	return p.defaultCurrency
}

// Parse parses a price string such as "₪1,234.56" or "1.234,56 €".
// The hint, when a recognized code, overrides detection.
func (p *PriceParser) Parse(text, currencyHint string) (*ParsedPrice, error) {
	original := strings.TrimSpace(text)
	if original == "" {
		return nil, fmt.Errorf("%w: empty input", domain.ErrMalformedPrice)
	}

	currency := strings.ToUpper(strings.TrimSpace(currencyHint))
	if currency == "" {
		currency = DetectCurrency(original)
	}
	if currency == "" {
		currency = p.defaultCurrency
	}
	if !domain.IsRecognizedCurrency(currency) {
		return nil, fmt.Errorf("%w: unrecognized currency %q", domain.ErrMalformedPrice, currency)
	}

	numeric := numericRunPattern.FindString(original)
	value, locale, err := p.ParseAmount(numeric)
	if err != nil {
		return nil, err
	}

	return &ParsedPrice{
		Value:    value,
		Currency: currency,
		Original: original,
		Locale:   locale,
	}, nil
}

// ParseAmount parses a bare number using separator heuristics and applies the sanity range
func (p *PriceParser) ParseAmount(numeric string) (decimal.Decimal, string, error) {
	numeric = strings.TrimRight(strings.TrimSpace(numeric), ".,")
	if numeric == "" {
		return decimal.Zero, "", fmt.Errorf("%w: no digits", domain.ErrMalformedPrice)
	}

	locale := detectLocale(numeric)
	var cleaned string
	if locale == LocaleEU {
		cleaned = strings.ReplaceAll(numeric, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(numeric, ",", "")
	}

	if !canonicalNumber.MatchString(cleaned) {
		return decimal.Zero, locale, fmt.Errorf("%w: %q", domain.ErrMalformedPrice, numeric)
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, locale, fmt.Errorf("%w: %v", domain.ErrMalformedPrice, err)
	}
	if err := p.checkRange(value); err != nil {
		return decimal.Zero, locale, err
	}
	return value, locale, nil
}

// checkRange drops zero, negative and implausibly large values
func (p *PriceParser) checkRange(value decimal.Decimal) error {
	if !value.IsPositive() {
		return fmt.Errorf("%w: non-positive amount %s", domain.ErrMalformedPrice, value)
	}
	if value.GreaterThan(p.maxAmount) {
		return fmt.Errorf("%w: amount %s above ceiling %s", domain.ErrMalformedPrice, value, p.maxAmount)
	}
	return nil
}

// DetectCurrency returns the ISO code of the first currency symbol or code found, or ""
func DetectCurrency(text string) string {
	lower := strings.ToLower(text)
	for _, cs := range currencySymbols {
		if strings.Contains(lower, cs.symbol) {
			if isWordSymbol(cs.symbol) && !containsWord(lower, cs.symbol) {
				continue
			}
			return cs.code
		}
	}
	if m := currencyCodePattern.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// isWordSymbol reports whether a symbol is made of ASCII letters and needs word boundaries
func isWordSymbol(symbol string) bool {
	for _, r := range symbol {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func containsWord(text, word string) bool {
	for i := 0; ; {
		idx := strings.Index(text[i:], word)
		if idx < 0 {
			return false
		}
		start := i + idx
		end := start + len(word)
		before := start == 0 || !isASCIILetter(text[start-1])
		after := end == len(text) || !isASCIILetter(text[end])
		if before && after {
			return true
		}
		i = end
	}
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// detectLocale guesses the separator convention from the number itself
func detectLocale(numeric string) string {
	commas := strings.Count(numeric, ",")
	dots := strings.Count(numeric, ".")

	switch {
	case commas == 0 && dots <= 1:
		return LocaleUS
	case commas == 0:
		// 1.234.567
		return LocaleEU
	case dots == 0 && commas == 1:
		// "1,50" is a decimal comma, "1,234" a thousands group
		if parts := strings.Split(numeric, ","); len(parts[1]) == 2 {
			return LocaleEU
		}
		return LocaleUS
	case dots == 0:
		return LocaleUS
	}

	if strings.LastIndex(numeric, ".") > strings.LastIndex(numeric, ",") {
		return LocaleUS
	}
	return LocaleEU
}
