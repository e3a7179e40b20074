package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/pricescout/backend/internal/domain"
	"github.com/pricescout/backend/internal/usecase"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// SearchService is the acquisition pipeline as seen by the HTTP layer
type SearchService interface {
	Search(ctx context.Context, request *domain.SearchRequest) (*domain.SearchResponse, error)
	Invalidate(ctx context.Context, query string, queryType domain.QueryType) (string, error)
	ProviderStats(ctx context.Context) []usecase.ProviderStats
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	search     SearchService
	normalizer *usecase.NameNormalizer
	extractor  *usecase.PriceExtractor
}

// NewHandler creates a new HTTP handler. A nil search service makes the
// search endpoints answer 503.
func NewHandler(search SearchService, normalizer *usecase.NameNormalizer, extractor *usecase.PriceExtractor) *Handler {
	return &Handler{
		search:     search,
		normalizer: normalizer,
		extractor:  extractor,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pricescout-backend",
		"version": Version,
	})
}

// searchQuery is the query-string form of a search request
type searchQuery struct {
	Query     string `form:"q" binding:"required"`
	Type      string `form:"type"`
	Providers string `form:"providers"` // comma separated
	NoCache   bool   `form:"no_cache"`
}

// SearchGet handles GET /api/v1/search?q=...&type=...
func (h *Handler) SearchGet(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	request := &domain.SearchRequest{
		Query:   q.Query,
		Type:    domain.QueryType(q.Type),
		NoCache: q.NoCache,
	}
	for _, name := range strings.Split(q.Providers, ",") {
		if name = strings.TrimSpace(name); name != "" {
			request.Providers = append(request.Providers, name)
		}
	}
	h.runSearch(c, request)
}

// SearchPost handles POST /api/v1/search with a JSON SearchRequest
func (h *Handler) SearchPost(c *gin.Context) {
	var request domain.SearchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	h.runSearch(c, &request)
}

func (h *Handler) runSearch(c *gin.Context, request *domain.SearchRequest) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price search is not configured"})
		return
	}

	resp, err := h.search.Search(c.Request.Context(), request)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// InvalidateCache handles DELETE /api/v1/cache?q=...&type=...
func (h *Handler) InvalidateCache(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price search is not configured"})
		return
	}

	query := c.Query("q")
	queryType := domain.QueryType(c.Query("type"))
	fingerprint, err := h.search.Invalidate(c.Request.Context(), query, queryType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"invalidated": true,
		"fingerprint": fingerprint,
	})
}

// ListProviders handles GET /api/v1/providers
func (h *Handler) ListProviders(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price search is not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": h.search.ProviderStats(c.Request.Context())})
}

type normalizeRequest struct {
	Name string `json:"name" binding:"required"`
}

// Normalize handles POST /api/v1/normalize
func (h *Handler) Normalize(c *gin.Context) {
	var req normalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field name is required"})
		return
	}

	product := h.normalizer.Normalize(req.Name)
	if product.Key == "" {
		writeError(c, domain.ErrInvalidRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product":    product,
		"searchText": h.normalizer.SearchText(req.Name),
	})
}

type parsePriceRequest struct {
	Text     string `json:"text" binding:"required"`
	Currency string `json:"currency"`
}

// ParsePrice handles POST /api/v1/parse-price. It returns the single parsed
// price of text together with every observation the extractor finds in it.
func (h *Handler) ParsePrice(c *gin.Context) {
	var req parsePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field text is required"})
		return
	}

	observations := h.extractor.ExtractText(req.Text)
	parsed, err := h.extractor.Parser().Parse(req.Text, req.Currency)
	if err != nil && len(observations) == 0 {
		writeError(c, err)
		return
	}

	body := gin.H{"observations": observations}
	if parsed != nil {
		body["price"] = parsed
	}
	c.JSON(http.StatusOK, body)
}

type specsRequest struct {
	Text  string   `json:"text" binding:"required"`
	Kinds []string `json:"kinds"`
}

// DetectSpecs handles POST /api/v1/specs
func (h *Handler) DetectSpecs(c *gin.Context) {
	var req specsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field text is required"})
		return
	}

	specs, err := usecase.DetectSpecs(req.Text, req.Kinds...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, specs)
}

type totalCostRequest struct {
	BasePrice       *decimal.Decimal           `json:"basePrice" binding:"required"`
	Shipping        decimal.Decimal            `json:"shipping"`
	TaxRate         decimal.Decimal            `json:"taxRate"`
	DiscountPercent decimal.Decimal            `json:"discountPercent"`
	Fees            map[string]decimal.Decimal `json:"fees"`
	Currency        string                     `json:"currency"`
}

// TotalCost handles POST /api/v1/total-cost. A missing currency means the
// configured default.
func (h *Handler) TotalCost(c *gin.Context) {
	var req totalCostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.extractor.Parser().DefaultCurrency()
	}
	breakdown, err := usecase.TotalCost(usecase.CostInput{
		BasePrice:       *req.BasePrice,
		Shipping:        req.Shipping,
		TaxRate:         req.TaxRate,
		DiscountPercent: req.DiscountPercent,
		Fees:            req.Fees,
		Currency:        currency,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// writeError maps domain errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrUnsupportedQueryType),
		errors.Is(err, domain.ErrUnknownProvider):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrMalformedPrice):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCacheUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
