package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/pricescout/backend/internal/domain"
	"github.com/pricescout/backend/internal/usecase"
)

// Tool names exposed to MCP clients
const (
	ToolSearchPrices    = "search_prices"
	ToolNormalizeName   = "normalize_product_name"
	ToolParsePrice      = "parse_price"
	ToolInvalidateCache = "invalidate_cache"
	ToolDetectSpecs     = "detect_product_specs"
	ToolTotalCost       = "calculate_total_cost"
)

// Searcher is the part of the acquisition pipeline the tools call
type Searcher interface {
	Search(ctx context.Context, request *domain.SearchRequest) (*domain.SearchResponse, error)
	Invalidate(ctx context.Context, query string, queryType domain.QueryType) (string, error)
}

// Tools implements the MCP tool handlers
type Tools struct {
	search     Searcher
	normalizer *usecase.NameNormalizer
	extractor  *usecase.PriceExtractor
}

func NewTools(search Searcher, normalizer *usecase.NameNormalizer, extractor *usecase.PriceExtractor) *Tools {
	return &Tools{
		search:     search,
		normalizer: normalizer,
		extractor:  extractor,
	}
}

// NewServer creates an MCP server with every tool registered
func NewServer(tools *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"pricescout",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	tools.Register(s)
	return s
}

// Register adds the tools to s
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcpgo.NewTool(ToolSearchPrices,
		mcpgo.WithDescription("Search the web for current prices of a product. Returns ranked price observations with source URLs and a summary."),
		mcpgo.WithString("query", mcpgo.Required(), mcpgo.Description("Product name, e.g. \"iPhone 15 Pro 128GB\"")),
		mcpgo.WithString("type", mcpgo.Description("Query type"), mcpgo.Enum("shopping", "web", "image")),
		mcpgo.WithArray("providers",
			mcpgo.Description("Provider order for this call, e.g. [\"google\", \"bing\"]"),
			mcpgo.Items(map[string]any{"type": "string"}),
		),
		mcpgo.WithBoolean("no_cache", mcpgo.Description("Skip the cache lookup and fetch fresh results")),
	), t.SearchPrices)

	s.AddTool(mcpgo.NewTool(ToolNormalizeName,
		mcpgo.WithDescription("Normalize a product name into the canonical key used for caching and matching."),
		mcpgo.WithString("name", mcpgo.Required(), mcpgo.Description("Raw product name")),
	), t.NormalizeName)

	s.AddTool(mcpgo.NewTool(ToolParsePrice,
		mcpgo.WithDescription("Parse a price string such as \"₪1,299.90\" or \"1.234,56 €\" into an amount and currency."),
		mcpgo.WithString("text", mcpgo.Required(), mcpgo.Description("Text containing a price")),
		mcpgo.WithString("currency", mcpgo.Description("ISO currency code that overrides detection")),
	), t.ParsePrice)

	s.AddTool(mcpgo.NewTool(ToolInvalidateCache,
		mcpgo.WithDescription("Drop the cached result for a product query so the next search fetches fresh prices."),
		mcpgo.WithString("query", mcpgo.Required(), mcpgo.Description("Product name as searched")),
		mcpgo.WithString("type", mcpgo.Description("Query type"), mcpgo.Enum("shopping", "web", "image")),
	), t.InvalidateCache)

	s.AddTool(mcpgo.NewTool(ToolDetectSpecs,
		mcpgo.WithDescription("Extract technical attributes such as RAM, storage, screen size, processor, colour and size from a product title."),
		mcpgo.WithString("text", mcpgo.Required(), mcpgo.Description("Product title or description")),
		mcpgo.WithArray("kinds",
			mcpgo.Description("Attributes to extract; all when omitted"),
			mcpgo.Items(map[string]any{
				"type": "string",
				"enum": []string{usecase.SpecMemory, usecase.SpecStorage, usecase.SpecDisplay, usecase.SpecProcessor, usecase.SpecColor, usecase.SpecSize},
			}),
		),
	), t.DetectSpecs)

	s.AddTool(mcpgo.NewTool(ToolTotalCost,
		mcpgo.WithDescription("Compute the full purchase cost of an offer: discount, tax on the discounted price, shipping and extra fees."),
		mcpgo.WithNumber("base_price", mcpgo.Required(), mcpgo.Min(0), mcpgo.Description("Listed product price")),
		mcpgo.WithNumber("shipping_cost", mcpgo.Min(0), mcpgo.Description("Shipping or delivery cost")),
		mcpgo.WithNumber("tax_rate", mcpgo.Min(0), mcpgo.Max(1), mcpgo.Description("Tax as a fraction, e.g. 0.17 for 17% VAT")),
		mcpgo.WithNumber("discount_percent", mcpgo.Description("Discount percentage, clamped to 0-100")),
		mcpgo.WithObject("additional_fees",
			mcpgo.Description("Named extra fees, e.g. {\"customs\": 50}"),
			mcpgo.AdditionalProperties(map[string]any{"type": "number"}),
		),
		mcpgo.WithString("currency", mcpgo.Description("ISO currency code; the configured default when omitted")),
	), t.TotalCost)
}

func (t *Tools) SearchPrices(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if t.search == nil {
		return mcpgo.NewToolResultError("price search is not configured"), nil
	}

	resp, err := t.search.Search(ctx, &domain.SearchRequest{
		Query:     query,
		Type:      domain.QueryType(req.GetString("type", "")),
		Providers: req.GetStringSlice("providers", nil),
		NoCache:   req.GetBool("no_cache", false),
	})
	if err != nil {
		return toolError("search failed", err), nil
	}
	return jsonResult(resp)
}

func (t *Tools) NormalizeName(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	product := t.normalizer.Normalize(name)
	if product.Key == "" {
		return toolError("normalize failed", domain.ErrInvalidRequest), nil
	}
	return jsonResult(map[string]any{
		"product":    product,
		"searchText": t.normalizer.SearchText(name),
	})
}

func (t *Tools) ParsePrice(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	observations := t.extractor.ExtractText(text)
	parsed, err := t.extractor.Parser().Parse(text, req.GetString("currency", ""))
	if err != nil && len(observations) == 0 {
		return toolError("parse failed", err), nil
	}

	body := map[string]any{"observations": observations}
	if parsed != nil {
		body["price"] = parsed
	}
	return jsonResult(body)
}

func (t *Tools) InvalidateCache(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if t.search == nil {
		return mcpgo.NewToolResultError("price search is not configured"), nil
	}

	fingerprint, err := t.search.Invalidate(ctx, query, domain.QueryType(req.GetString("type", "")))
	if err != nil {
		return toolError("invalidate failed", err), nil
	}
	return jsonResult(map[string]any{
		"invalidated": true,
		"fingerprint": fingerprint,
	})
}

func (t *Tools) DetectSpecs(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	specs, err := usecase.DetectSpecs(text, req.GetStringSlice("kinds", nil)...)
	if err != nil {
		return toolError("detect specs failed", err), nil
	}
	return jsonResult(specs)
}

func (t *Tools) TotalCost(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	base, err := req.RequireFloat("base_price")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	fees, err := decimalMap(req.GetArguments()["additional_fees"])
	if err != nil {
		return toolError("total cost failed", err), nil
	}

	breakdown, err := usecase.TotalCost(usecase.CostInput{
		BasePrice:       decimal.NewFromFloat(base),
		Shipping:        decimal.NewFromFloat(req.GetFloat("shipping_cost", 0)),
		TaxRate:         decimal.NewFromFloat(req.GetFloat("tax_rate", 0)),
		DiscountPercent: decimal.NewFromFloat(req.GetFloat("discount_percent", 0)),
		Fees:            fees,
		Currency:        req.GetString("currency", t.extractor.Parser().DefaultCurrency()),
	})
	if err != nil {
		return toolError("total cost failed", err), nil
	}
	return jsonResult(breakdown)
}

// decimalMap converts a JSON object of numbers or numeric strings
func decimalMap(raw any) (map[string]decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: additional_fees must be an object", domain.ErrInvalidRequest)
	}

	out := make(map[string]decimal.Decimal, len(obj))
	for name, v := range obj {
		switch n := v.(type) {
		case float64:
			out[name] = decimal.NewFromFloat(n)
		case int:
			out[name] = decimal.NewFromInt(int64(n))
		case string:
			d, err := decimal.NewFromString(n)
			if err != nil {
				return nil, fmt.Errorf("%w: fee %q is not a number", domain.ErrInvalidRequest, name)
			}
			out[name] = d
		default:
			return nil, fmt.Errorf("%w: fee %q is not a number", domain.ErrInvalidRequest, name)
		}
	}
	return out, nil
}

// toolError reports err to the client as a tool-level error. Unexpected
// errors are logged; request validation errors are the caller's.
func toolError(msg string, err error) *mcpgo.CallToolResult {
	if !isValidationError(err) {
		log.Error().Err(err).Msg(msg)
	}
	return mcpgo.NewToolResultError(fmt.Sprintf("%s: %v", msg, err))
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidRequest) ||
		errors.Is(err, domain.ErrUnsupportedQueryType) ||
		errors.Is(err, domain.ErrUnknownProvider) ||
		errors.Is(err, domain.ErrMalformedPrice)
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcpgo.NewToolResultText(string(data)), nil
}
