package usecase

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricescout/backend/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTotalCost(t *testing.T) {
	tests := []struct {
		name           string
		in             CostInput
		wantDiscount   string
		wantDiscounted string
		wantTax        string
		wantFees       string
		wantTotal      string
		wantCurrency   string
	}{
		{
			name: "discount then tax on the discounted price",
			in: CostInput{
				BasePrice:       dec("1000"),
				Shipping:        dec("50"),
				TaxRate:         dec("0.17"),
				DiscountPercent: dec("10"),
				Fees:            map[string]decimal.Decimal{"handling": dec("20")},
				Currency:        "ILS",
			},
			wantDiscount:   "100",
			wantDiscounted: "900",
			wantTax:        "153",
			wantFees:       "20",
			wantTotal:      "1123",
			wantCurrency:   "ILS",
		},
		{
			name: "discount above 100 is clamped",
			in: CostInput{
				BasePrice:       dec("200"),
				Shipping:        dec("10"),
				TaxRate:         dec("0.17"),
				DiscountPercent: dec("150"),
				Currency:        "EUR",
			},
			wantDiscount:   "200",
			wantDiscounted: "0",
			wantTax:        "0",
			wantFees:       "0",
			wantTotal:      "10",
			wantCurrency:   "EUR",
		},
		{
			name: "negative discount is ignored",
			in: CostInput{
				BasePrice:       dec("80"),
				DiscountPercent: dec("-5"),
				Currency:        "GBP",
			},
			wantDiscount:   "0",
			wantDiscounted: "80",
			wantTax:        "0",
			wantFees:       "0",
			wantTotal:      "80",
			wantCurrency:   "GBP",
		},
		{
			name: "tax rounds to cents and currency is upper cased",
			in: CostInput{
				BasePrice: dec("19.99"),
				TaxRate:   dec("0.17"),
				Fees:      map[string]decimal.Decimal{"customs": dec("4.5"), "handling": dec("0.5")},
				Currency:  "usd",
			},
			wantDiscount:   "0",
			wantDiscounted: "19.99",
			wantTax:        "3.4",
			wantFees:       "5",
			wantTotal:      "28.39",
			wantCurrency:   "USD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TotalCost(tt.in)
			require.NoError(t, err)

			assert.True(t, got.Discount.Equal(dec(tt.wantDiscount)), "discount %s", got.Discount)
			assert.True(t, got.DiscountedPrice.Equal(dec(tt.wantDiscounted)), "discounted %s", got.DiscountedPrice)
			assert.True(t, got.Tax.Equal(dec(tt.wantTax)), "tax %s", got.Tax)
			assert.True(t, got.AdditionalFees.Equal(dec(tt.wantFees)), "fees %s", got.AdditionalFees)
			assert.True(t, got.Total.Equal(dec(tt.wantTotal)), "total %s", got.Total)
			assert.Equal(t, tt.wantCurrency, got.Currency)
			assert.Len(t, got.Fees, len(tt.in.Fees))
		})
	}
}

func TestTotalCost_InvalidInput(t *testing.T) {
	valid := func() CostInput {
		return CostInput{BasePrice: dec("100"), Currency: "ILS"}
	}

	tests := []struct {
		name   string
		mutate func(in *CostInput)
	}{
		{"negative base price", func(in *CostInput) { in.BasePrice = dec("-1") }},
		{"negative shipping", func(in *CostInput) { in.Shipping = dec("-0.01") }},
		{"tax given as a percentage", func(in *CostInput) { in.TaxRate = dec("17") }},
		{"negative tax", func(in *CostInput) { in.TaxRate = dec("-0.1") }},
		{"negative fee", func(in *CostInput) { in.Fees = map[string]decimal.Decimal{"refund": dec("-5")} }},
		{"unknown currency", func(in *CostInput) { in.Currency = "XYZ" }},
		{"missing currency", func(in *CostInput) { in.Currency = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			_, err := TotalCost(in)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}
