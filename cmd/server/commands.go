package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pricescout/backend/internal/domain"
	"github.com/pricescout/backend/internal/usecase"
)

func newSearchCmd() *cobra.Command {
	var (
		queryType string
		providers []string
		noCache   bool
	)

	cmd := &cobra.Command{
		Use:   "search <product name>",
		Short: "Run a single price search and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.pipeline.Search(cmd.Context(), &domain.SearchRequest{
				Query:     strings.Join(args, " "),
				Type:      domain.QueryType(queryType),
				Providers: providers,
				NoCache:   noCache,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&queryType, "type", string(domain.QueryTypeShopping), "Query type: shopping, web or image")
	cmd.Flags().StringSliceVar(&providers, "providers", nil, "Comma-separated provider order for this search")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Skip the cache lookup")
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <product name>",
		Short: "Print the normalized key of a product name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalizer := usecase.NewNameNormalizer()
			name := strings.Join(args, " ")

			product := normalizer.Normalize(name)
			if product.Key == "" {
				return fmt.Errorf("%w: %q has no normalizable tokens", domain.ErrInvalidRequest, name)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"product":    product,
				"searchText": normalizer.SearchText(name),
			})
		},
	}
}

func newParsePriceCmd() *cobra.Command {
	var currency string

	cmd := &cobra.Command{
		Use:   "parse-price <text>",
		Short: "Parse a price string into amount and currency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			extractor := newExtractor(cfg)
			text := strings.Join(args, " ")

			observations := extractor.ExtractText(text)
			parsed, err := extractor.Parser().Parse(text, currency)
			if err != nil && len(observations) == 0 {
				return err
			}

			body := map[string]any{"observations": observations}
			if parsed != nil {
				body["price"] = parsed
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "", "ISO currency code that overrides detection")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
