package usecase

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pricescout/backend/internal/domain"
)

// Compiled regex patterns for name normalization
var (
	// Matches alphanumeric model numbers like "s24", "wh1000xm5", "v15", "xps13"
	modelNumberPattern = regexp.MustCompile(`^[a-z]{1,6}\d{1,5}[a-z0-9]*$`)

	// Matches tokens that look like model numbers but are capacities or sizes
	capacityTokenPattern = regexp.MustCompile(`^\d+(?:gb|tb|mb|mm|cm|inch|in|hz|w|mah|k)$`)

	digitsPattern = regexp.MustCompile(`^\d{1,4}$`)
)

// knownBrands maps each brand to the product lines that imply it
var knownBrands = map[string][]string{
	"apple":     {"iphone", "ipad", "macbook", "airpods", "imac"},
	"samsung":   {"galaxy"},
	"google":    {"pixel", "chromecast"},
	"microsoft": {"surface", "xbox"},
	"sony":      {"playstation", "ps5", "ps4", "xperia", "bravia"},
	"lg":        {},
	"dell":      {"xps", "inspiron", "latitude", "alienware"},
	"hp":        {"pavilion", "spectre", "omen"},
	"lenovo":    {"thinkpad", "ideapad", "legion"},
	"asus":      {"zenbook", "vivobook", "rog"},
	"acer":      {"predator", "aspire", "nitro"},
	"xiaomi":    {"redmi", "poco"},
	"huawei":    {"mate"},
	"oneplus":   {"nord"},
	"oppo":      {"reno"},
	"nike":      {"jordan", "dunk"},
	"adidas":    {"ultraboost", "yeezy"},
	"dyson":     {"airwrap"},
	"bose":      {"quietcomfort", "soundlink"},
	"jbl":       {},
	"nintendo":  {},
}

// modelVariantWords extend a model name ("iphone 15 pro max")
var modelVariantWords = map[string]bool{
	"pro": true, "max": true, "plus": true, "mini": true, "ultra": true,
	"fe": true, "air": true, "lite": true, "se": true, "edge": true,
}

// stopWords are dropped before keys are built (English and Hebrew)
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"of": true, "with": true, "by": true, "from": true, "is": true,
	"new": true, "brand": true, "original": true, "authentic": true,
	"genuine": true, "official": true, "sealed": true,
	"את": true, "של": true, "על": true, "עם": true, "או": true,
	"גם": true, "רק": true, "חדש": true, "מקורי": true,
}

// Apostrophes join their neighbours ("levi's" -> "levis"); every other
// non-alphanumeric rune separates tokens
const joinerRunes = "'’`"

// Matches a letters-only model prefix that may have been split off its number ("wh" in "wh-1000xm5")
var modelPrefixPattern = regexp.MustCompile(`^[a-z]{1,6}$`)

// NameNormalizer canonicalizes free-text product names into stable keys.
// It is stateless after construction and safe for concurrent use.
type NameNormalizer struct {
	brands      map[string]bool
	lineToBrand map[string]string
	lines       []string
}

// NewNameNormalizer creates a normalizer with the built-in brand table
func NewNameNormalizer() *NameNormalizer {
	n := &NameNormalizer{
		brands:      make(map[string]bool, len(knownBrands)),
		lineToBrand: make(map[string]string),
	}
	for brand, lines := range knownBrands {
		n.brands[brand] = true
		for _, line := range lines {
			n.lineToBrand[line] = brand
			n.lines = append(n.lines, line)
		}
	}
	// Longest line first so prefix matching is deterministic
	sort.Slice(n.lines, func(i, j int) bool {
		if len(n.lines[i]) != len(n.lines[j]) {
			return len(n.lines[i]) > len(n.lines[j])
		}
		return n.lines[i] < n.lines[j]
	})
	return n
}

// Normalize runs the full pipeline and returns the key with its parts.
// Unknown brands degrade to a plain normalized string.
func (n *NameNormalizer) Normalize(name string) domain.NormalizedProduct {
	tokens := n.tokenize(name)
	result := domain.NormalizedProduct{Original: name, Tokens: tokens}
	if len(tokens) == 0 {
		return result
	}

	brandIdx, brand := n.detectBrand(tokens)
	if brand == "" {
		result.Key = strings.Join(tokens, " ")
		return result
	}

	consumed := make([]bool, len(tokens))
	if brandIdx >= 0 {
		consumed[brandIdx] = true
	}
	model := n.detectModel(tokens, consumed)

	var remaining []string
	for i, tok := range tokens {
		if !consumed[i] {
			remaining = append(remaining, tok)
		}
	}
	sort.Strings(remaining)

	parts := []string{brand}
	if model != "" {
		parts = append(parts, model)
	}
	if len(remaining) > 0 {
		parts = append(parts, strings.Join(remaining, " "))
	}

	result.Brand = brand
	result.Model = model
	result.Key = strings.Join(parts, "|")

	log.Debug().Str("input", name).Str("key", result.Key).Msg("normalized product name")
	return result
}

// Key returns only the normalized key
func (n *NameNormalizer) Key(name string) string {
	return n.Normalize(name).Key
}

// SearchText returns the query text sent to providers: trimmed with whitespace collapsed
func (n *NameNormalizer) SearchText(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// tokenize lowercases, strips diacritics and punctuation, collapses whitespace and drops stop words
func (n *NameNormalizer) tokenize(name string) []string {
	// Step 1: lowercase
	s := strings.ToLower(name)

	// Step 2: strip diacritics (decompose, drop combining marks, recompose)
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(folder, s); err == nil {
		s = folded
	}

	// Step 3: punctuation separates tokens
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case strings.ContainsRune(joinerRunes, r):
		default:
			b.WriteRune(' ')
		}
	}

	// Step 4: collapse whitespace, drop stop words and split variant compounds
	var tokens []string
	for _, f := range strings.Fields(b.String()) {
		if stopWords[f] {
			continue
		}
		tokens = append(tokens, splitVariants(f)...)
	}

	// Step 5: rejoin model numbers regardless of how the input split them
	return n.joinModelParts(tokens)
}

// joinModelParts merges a letters-only prefix with a following number
// ("wh" "1000xm5" -> "wh1000xm5", "iphone" "15" -> "iphone15"), so the same
// model written with a hyphen, slash, space or nothing yields one token
func (n *NameNormalizer) joinModelParts(tokens []string) []string {
	out := tokens[:0]
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if i+1 < len(tokens) && n.isModelPrefix(tok) {
			next := tokens[i+1]
			if next[0] >= '0' && next[0] <= '9' && !capacityTokenPattern.MatchString(next) && isModelNumber(tok+next) {
				out = append(out, tok+next)
				i++
				continue
			}
		}
		out = append(out, tok)
	}
	return out
}

func (n *NameNormalizer) isModelPrefix(tok string) bool {
	return modelPrefixPattern.MatchString(tok) && !n.brands[tok] && !modelVariantWords[tok]
}

// splitVariants splits a token made only of variant words ("promax" -> "pro", "max").
// Any other token is returned as is.
func splitVariants(tok string) []string {
	if modelVariantWords[tok] {
		return []string{tok}
	}
	if parts := variantParts(tok); len(parts) > 1 {
		return parts
	}
	return []string{tok}
}

func variantParts(s string) []string {
	if s == "" {
		return []string{}
	}
	for end := len(s); end > 0; end-- {
		if !modelVariantWords[s[:end]] {
			continue
		}
		if rest := variantParts(s[end:]); rest != nil {
			return append([]string{s[:end]}, rest...)
		}
	}
	return nil
}

// detectBrand returns the index of an explicit brand token (or -1) and the brand.
// A product line token ("iphone") implies its brand when none is named.
func (n *NameNormalizer) detectBrand(tokens []string) (int, string) {
	for i, tok := range tokens {
		if n.brands[tok] {
			return i, tok
		}
	}
	for _, tok := range tokens {
		if line := n.matchLine(tok); line != "" {
			return -1, n.lineToBrand[line]
		}
	}
	return -1, ""
}

// matchLine returns the product line a token starts with ("iphone15" -> "iphone")
func (n *NameNormalizer) matchLine(tok string) string {
	if _, ok := n.lineToBrand[tok]; ok {
		return tok
	}
	for _, line := range n.lines {
		if strings.HasPrefix(tok, line) && len(tok) > len(line) {
			if rest := tok[len(line):]; rest[0] >= '0' && rest[0] <= '9' {
				return line
			}
		}
	}
	return ""
}

// detectModel builds the model string and marks its tokens as consumed
func (n *NameNormalizer) detectModel(tokens []string, consumed []bool) string {
	start := -1
	for i, tok := range tokens {
		if !consumed[i] && n.matchLine(tok) != "" {
			start = i
			break
		}
	}
	if start < 0 {
		for i, tok := range tokens {
			if !consumed[i] && isModelNumber(tok) {
				start = i
				break
			}
		}
	}
	if start < 0 {
		return ""
	}

	var model strings.Builder
	model.WriteString(tokens[start])
	consumed[start] = true

	for i := start + 1; i < len(tokens); i++ {
		tok := tokens[i]
		first := i == start+1
		switch {
		case modelVariantWords[tok]:
		case first && (digitsPattern.MatchString(tok) || isModelNumber(tok)):
		default:
			return model.String()
		}
		model.WriteString(tok)
		consumed[i] = true
	}
	return model.String()
}

func isModelNumber(tok string) bool {
	return modelNumberPattern.MatchString(tok) && !capacityTokenPattern.MatchString(tok)
}
