package usecase

import (
	"sort"
	"strings"

	"github.com/pricescout/backend/internal/domain"
)

// Scoring weights and bonuses
const (
	productCoverageWeight = 0.60 // Share of query tokens found in the title
	titleCoverageWeight   = 0.20 // Share of title tokens found in the query
	jaccardWeight         = 0.20
	fuzzyWeightFactor     = 0.8  // Fuzzy matches get 80% of an exact match
	brandMatchBonus       = 0.15 // Query brand appears in the title
	modelMatchBonus       = 0.10 // Query model appears in the title
)

// RelevanceConfig holds configuration for the relevance scorer
type RelevanceConfig struct {
	MinRelevance        float64
	MaxObservations     int
	EnableFuzzyMatching bool
	FuzzyEditDistance   int
}

// RelevanceScorer scores observations by how well their source title matches the query
type RelevanceScorer struct {
	normalizer          *NameNormalizer
	minRelevance        float64
	maxObservations     int
	enableFuzzyMatching bool
	fuzzyEditDistance   int
}

// NewRelevanceScorer creates a scorer with the given configuration
func NewRelevanceScorer(normalizer *NameNormalizer, config RelevanceConfig) *RelevanceScorer {
	fuzzyDist := config.FuzzyEditDistance
	if fuzzyDist <= 0 {
		fuzzyDist = 1
	}
	return &RelevanceScorer{
		normalizer:          normalizer,
		minRelevance:        config.MinRelevance,
		maxObservations:     config.MaxObservations,
		enableFuzzyMatching: config.EnableFuzzyMatching,
		fuzzyEditDistance:   fuzzyDist,
	}
}

// Score computes the similarity between the normalized query and a title.
// Returns a value in [0, 1] and the matched tokens.
func (s *RelevanceScorer) Score(product domain.NormalizedProduct, title string) (float64, []string) {
	queryTokens := product.Tokens
	titleTokens := s.normalizer.tokenize(title)
	if len(queryTokens) == 0 || len(titleTokens) == 0 {
		return 0, nil
	}

	matched, matchedTokens := s.weightedIntersection(queryTokens, titleTokens)
	productCoverage := matched / float64(len(queryTokens))

	titleMatched, _ := findIntersection(titleTokens, queryTokens)
	titleCoverage := float64(titleMatched) / float64(len(uniqueTokens(titleTokens)))

	exact, _ := findIntersection(queryTokens, titleTokens)
	jaccard := float64(exact) / float64(findUnion(queryTokens, titleTokens))

	score := productCoverage*productCoverageWeight + titleCoverage*titleCoverageWeight + jaccard*jaccardWeight

	// A product line in the title ("iPhone") implies its brand
	if _, brand := s.normalizer.detectBrand(titleTokens); product.Brand != "" && brand == product.Brand {
		score += brandMatchBonus
	}
	if product.Model != "" && strings.Contains(strings.Join(titleTokens, ""), product.Model) {
		score += modelMatchBonus
	}

	if score > 1 {
		score = 1
	}
	return score, matchedTokens
}

// Rank scores observations, drops those below the minimum relevance and
// orders them by strategy confidence, relevance and amount.
func (s *RelevanceScorer) Rank(product domain.NormalizedProduct, observations []domain.PriceObservation) []domain.PriceObservation {
	ranked := make([]domain.PriceObservation, 0, len(observations))
	for _, obs := range observations {
		if obs.Title != "" {
			obs.Relevance, _ = s.Score(product, obs.Title)
		}
		if obs.Relevance < s.minRelevance {
			continue
		}
		ranked = append(ranked, obs)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ca, cb := a.Strategy.Confidence(), b.Strategy.Confidence(); ca != cb {
			return ca > cb
		}
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		return a.Amount.LessThan(b.Amount)
	})

	if s.maxObservations > 0 && len(ranked) > s.maxObservations {
		ranked = ranked[:s.maxObservations]
	}
	return ranked
}

// weightedIntersection counts exact matches as 1 and fuzzy matches as fuzzyWeightFactor
func (s *RelevanceScorer) weightedIntersection(queryTokens, titleTokens []string) (float64, []string) {
	titleSet := make(map[string]bool, len(titleTokens))
	for _, t := range titleTokens {
		titleSet[t] = true
	}

	var total float64
	var matched []string
	for _, q := range queryTokens {
		if titleSet[q] {
			total++
			matched = append(matched, q)
			continue
		}
		if !s.enableFuzzyMatching {
			continue
		}
		for _, t := range titleTokens {
			if fuzzyTokenMatch(q, t, s.fuzzyEditDistance) {
				total += fuzzyWeightFactor
				matched = append(matched, q)
				break
			}
		}
	}
	return total, matched
}

func uniqueTokens(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// fuzzyTokenMatch checks if two tokens are similar within the edit distance threshold
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	// Only apply fuzzy matching to tokens >= 4 chars to avoid false positives
	if len(token1) < 4 || len(token2) < 4 {
		return false
	}

	lenDiff := len(token1) - len(token2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}

	return levenshteinDistance(token1, token2) <= threshold
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// Two rows instead of the full matrix
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}

// findIntersection returns the count of common tokens and the list of matched tokens
func findIntersection(tokens1, tokens2 []string) (int, []string) {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}

	var matched []string
	seen := make(map[string]bool)
	for _, t := range tokens2 {
		if set[t] && !seen[t] {
			matched = append(matched, t)
			seen[t] = true
		}
	}

	return len(matched), matched
}

// findUnion returns the count of unique tokens across both sets
func findUnion(tokens1, tokens2 []string) int {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}
	for _, t := range tokens2 {
		set[t] = true
	}
	return len(set)
}
