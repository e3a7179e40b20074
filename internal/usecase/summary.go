package usecase

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pricescout/backend/internal/domain"
)

// Summarize computes statistics over the most frequent currency of the
// observations. It returns nil for an empty set.
func Summarize(observations []domain.PriceObservation) *domain.PriceSummary {
	if len(observations) == 0 {
		return nil
	}

	byCurrency := make(map[string][]domain.PriceObservation)
	for _, obs := range observations {
		byCurrency[obs.Currency] = append(byCurrency[obs.Currency], obs)
	}

	// Most frequent currency, ties broken alphabetically
	currency := ""
	for c, group := range byCurrency {
		if currency == "" || len(group) > len(byCurrency[currency]) ||
			(len(group) == len(byCurrency[currency]) && c < currency) {
			currency = c
		}
	}

	group := byCurrency[currency]
	// Stable keeps the earlier (more relevant) offer first among equal amounts
	sort.SliceStable(group, func(i, j int) bool { return group[i].Amount.LessThan(group[j].Amount) })

	n := len(group)
	amounts := make([]decimal.Decimal, n)
	for i, obs := range group {
		amounts[i] = obs.Amount
	}

	var median decimal.Decimal
	if n%2 == 1 {
		median = amounts[n/2]
	} else {
		median = amounts[n/2-1].Add(amounts[n/2]).Div(decimal.NewFromInt(2))
	}

	best, worst := group[0], group[n-1]
	return &domain.PriceSummary{
		Currency:         currency,
		Min:              amounts[0],
		Max:              amounts[n-1],
		Average:          decimal.Avg(amounts[0], amounts[1:]...).Round(2),
		Median:           median.Round(2),
		SampleSize:       n,
		Best:             &best,
		Worst:            &worst,
		PotentialSavings: amounts[n-1].Sub(amounts[0]),
	}
}
