package usecase

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricescout/backend/internal/domain"
)

func newTestExtractor() *PriceExtractor {
	return NewPriceExtractor(NewPriceParser("ILS", DefaultMaxAmount))
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "amount = %s, want %s", got, want)
}

func TestExtract_Text(t *testing.T) {
	e := newTestExtractor()

	t.Run("shekel price with availability", func(t *testing.T) {
		obs := e.ExtractText("₪1,299.90 – In Stock")

		require.Len(t, obs, 1)
		requireAmount(t, "1299.90", obs[0].Amount)
		assert.Equal(t, "ILS", obs[0].Currency)
		assert.Equal(t, domain.AvailabilityInStock, obs[0].Availability)
		assert.Equal(t, domain.StrategyPattern, obs[0].Strategy)
		assert.Nil(t, obs[0].ShippingCost)
	})

	t.Run("no price yields nothing", func(t *testing.T) {
		obs := e.ExtractText("Free shipping, price unavailable")
		assert.Empty(t, obs)
	})

	t.Run("hebrew price and stock", func(t *testing.T) {
		obs := e.ExtractText("מחיר: 1,299 ש״ח במלאי")

		require.Len(t, obs, 1)
		requireAmount(t, "1299", obs[0].Amount)
		assert.Equal(t, "ILS", obs[0].Currency)
		assert.Equal(t, domain.AvailabilityInStock, obs[0].Availability)
	})

	t.Run("hebrew out of stock", func(t *testing.T) {
		obs := e.ExtractText("₪50 לא במלאי")

		require.Len(t, obs, 1)
		assert.Equal(t, domain.AvailabilityOutOfStock, obs[0].Availability)
	})

	t.Run("european euro format", func(t *testing.T) {
		obs := e.ExtractText("Preis 1.234,56 € inkl. MwSt")

		require.Len(t, obs, 1)
		requireAmount(t, "1234.56", obs[0].Amount)
		assert.Equal(t, "EUR", obs[0].Currency)
	})

	t.Run("several prices keep text order and drop duplicates", func(t *testing.T) {
		obs := e.ExtractText("Was $20, now $10. Members pay $10")

		require.Len(t, obs, 2)
		requireAmount(t, "20", obs[0].Amount)
		requireAmount(t, "10", obs[1].Amount)
	})

	t.Run("paid shipping is excluded and recorded", func(t *testing.T) {
		obs := e.ExtractText("₪199 + ₪30 shipping")

		require.Len(t, obs, 1)
		requireAmount(t, "199", obs[0].Amount)
		require.NotNil(t, obs[0].ShippingCost)
		requireAmount(t, "30", *obs[0].ShippingCost)
	})

	t.Run("free shipping is zero cost", func(t *testing.T) {
		obs := e.ExtractText("$49.99 with free shipping")

		require.Len(t, obs, 1)
		require.NotNil(t, obs[0].ShippingCost)
		assert.True(t, obs[0].ShippingCost.IsZero())
		requireAmount(t, "49.99", obs[0].TotalCost())
	})

	t.Run("proximity fallback uses default currency", func(t *testing.T) {
		obs := e.ExtractText("Price: 349")

		require.Len(t, obs, 1)
		requireAmount(t, "349", obs[0].Amount)
		assert.Equal(t, "ILS", obs[0].Currency)
		assert.Equal(t, domain.StrategyProximity, obs[0].Strategy)
	})

	t.Run("implausible amount is dropped", func(t *testing.T) {
		assert.Empty(t, e.ExtractText("$99,999,999"))
	})

	t.Run("bare numbers without context are ignored", func(t *testing.T) {
		assert.Empty(t, e.ExtractText("iPhone 15 Pro 256GB"))
	})
}

func TestExtract_Structured(t *testing.T) {
	e := newTestExtractor()

	t.Run("json-ld product offer wins over visible text", func(t *testing.T) {
		markup := `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"iPhone 15 Pro",
 "offers":{"@type":"Offer","price":"4299.00","priceCurrency":"ILS","availability":"https://schema.org/InStock"}}
</script></head><body><p>Now only ₪3,999</p></body></html>`

		obs := e.Extract(domain.Fragment{Markup: markup, SourceURL: "https://shop.example/p/1", StoreName: "shop.example"})

		require.Len(t, obs, 1)
		requireAmount(t, "4299", obs[0].Amount)
		assert.Equal(t, "ILS", obs[0].Currency)
		assert.Equal(t, domain.AvailabilityInStock, obs[0].Availability)
		assert.Equal(t, domain.StrategyStructured, obs[0].Strategy)
		assert.Equal(t, "https://shop.example/p/1", obs[0].SourceURL)
		assert.Equal(t, "shop.example", obs[0].StoreName)
	})

	t.Run("json-ld graph with aggregate offer", func(t *testing.T) {
		markup := `<script type="application/ld+json">
{"@graph":[{"@type":"WebPage"},{"@type":"Product","offers":{"@type":"AggregateOffer","lowPrice":129.5,"priceCurrency":"USD"}}]}
</script>`

		obs := e.Extract(domain.Fragment{Markup: markup})

		require.Len(t, obs, 1)
		requireAmount(t, "129.5", obs[0].Amount)
		assert.Equal(t, "USD", obs[0].Currency)
	})

	t.Run("json-ld offer array out of stock", func(t *testing.T) {
		markup := `<script type="application/ld+json">
[{"@type":"Product","offers":[
  {"@type":"Offer","price":"10","priceCurrency":"EUR","availability":"https://schema.org/OutOfStock"},
  {"@type":"Offer","price":"12","priceCurrency":"EUR"}]}]
</script>`

		obs := e.Extract(domain.Fragment{Markup: markup})

		require.Len(t, obs, 2)
		assert.Equal(t, domain.AvailabilityOutOfStock, obs[0].Availability)
		requireAmount(t, "12", obs[1].Amount)
	})

	t.Run("microdata", func(t *testing.T) {
		markup := `<div itemscope itemtype="https://schema.org/Offer">
<span itemprop="price" content="19.99">$19.99</span>
<meta itemprop="priceCurrency" content="USD">
<link itemprop="availability" href="https://schema.org/InStock">
</div>`

		obs := e.Extract(domain.Fragment{Markup: markup})

		require.Len(t, obs, 1)
		requireAmount(t, "19.99", obs[0].Amount)
		assert.Equal(t, "USD", obs[0].Currency)
		assert.Equal(t, domain.AvailabilityInStock, obs[0].Availability)
		assert.Equal(t, domain.StrategyStructured, obs[0].Strategy)
	})

	t.Run("product meta tags", func(t *testing.T) {
		markup := `<html><head>
<meta property="product:price:amount" content="249.90">
<meta property="product:price:currency" content="EUR">
</head><body></body></html>`

		obs := e.Extract(domain.Fragment{Markup: markup})

		require.Len(t, obs, 1)
		requireAmount(t, "249.90", obs[0].Amount)
		assert.Equal(t, "EUR", obs[0].Currency)
	})

	t.Run("unrecognized currency is rejected", func(t *testing.T) {
		markup := `<script type="application/ld+json">{"@type":"Offer","price":"10","priceCurrency":"XYZ"}</script>`
		assert.Empty(t, e.Extract(domain.Fragment{Markup: markup}))
	})

	t.Run("malformed json-ld falls through to visible text", func(t *testing.T) {
		markup := `<html><head><script type="application/ld+json">{not json</script></head><body>Sale ₪89.90</body></html>`

		obs := e.Extract(domain.Fragment{Markup: markup})

		require.Len(t, obs, 1)
		requireAmount(t, "89.90", obs[0].Amount)
		assert.Equal(t, domain.StrategyPattern, obs[0].Strategy)
	})

	t.Run("markup passed as text is parsed", func(t *testing.T) {
		obs := e.ExtractText(`<span class="price">₪120</span><script>var x = "₪999";</script>`)

		require.Len(t, obs, 1)
		requireAmount(t, "120", obs[0].Amount)
	})
}
