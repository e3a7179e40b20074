package usecase

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pricescout/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// CostInput describes one offer to price out
type CostInput struct {
	BasePrice decimal.Decimal
	Shipping  decimal.Decimal
	// TaxRate is a fraction, 0.17 for 17% VAT
	TaxRate decimal.Decimal
	// DiscountPercent is clamped to [0, 100]
	DiscountPercent decimal.Decimal
	Fees            map[string]decimal.Decimal
	Currency        string
}

// TotalCost computes the purchase cost of an offer. The discount applies to
// the base price, tax to the discounted price, and shipping and fees are
// added untaxed. Amounts are rounded to cents.
func TotalCost(in CostInput) (*domain.CostBreakdown, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if !domain.IsRecognizedCurrency(currency) {
		return nil, fmt.Errorf("%w: unrecognized currency %q", domain.ErrInvalidRequest, in.Currency)
	}
	if in.BasePrice.IsNegative() {
		return nil, fmt.Errorf("%w: base price must not be negative", domain.ErrInvalidRequest)
	}
	if in.Shipping.IsNegative() {
		return nil, fmt.Errorf("%w: shipping must not be negative", domain.ErrInvalidRequest)
	}
	if in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: tax rate must be a fraction between 0 and 1", domain.ErrInvalidRequest)
	}

	fees := make(map[string]decimal.Decimal, len(in.Fees))
	feeTotal := decimal.Zero
	for name, amount := range in.Fees {
		if amount.IsNegative() {
			return nil, fmt.Errorf("%w: fee %q must not be negative", domain.ErrInvalidRequest, name)
		}
		amount = amount.Round(2)
		fees[name] = amount
		feeTotal = feeTotal.Add(amount)
	}

	percent := decimal.Max(decimal.Zero, decimal.Min(hundred, in.DiscountPercent))
	base := in.BasePrice.Round(2)
	discount := base.Mul(percent).Div(hundred).Round(2)
	discounted := base.Sub(discount)
	tax := discounted.Mul(in.TaxRate).Round(2)
	shipping := in.Shipping.Round(2)

	breakdown := &domain.CostBreakdown{
		BasePrice:       base,
		Discount:        discount,
		DiscountedPrice: discounted,
		Shipping:        shipping,
		Tax:             tax,
		AdditionalFees:  feeTotal,
		Total:           discounted.Add(shipping).Add(tax).Add(feeTotal).Round(2),
		Currency:        currency,
	}
	if len(fees) > 0 {
		breakdown.Fees = fees
	}
	return breakdown, nil
}
