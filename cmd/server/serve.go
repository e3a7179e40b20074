package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpDelivery "github.com/pricescout/backend/internal/delivery/http"
	mcpDelivery "github.com/pricescout/backend/internal/delivery/mcp"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP price API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.cache.StartSweeper(ctx, cfg.Cache.SweepInterval)

			if !cfg.IsDevelopment() {
				gin.SetMode(gin.ReleaseMode)
			}

			var exporter httpDelivery.MetricsExporter
			if a.metrics != nil {
				exporter = a.metrics
			}
			handler := httpDelivery.NewHandler(a.pipeline, a.normalizer, a.extractor)
			router := httpDelivery.SetupRouter(cfg, handler, exporter)

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			log.Info().
				Str("version", httpDelivery.Version).
				Str("environment", cfg.Server.Environment).
				Str("addr", srv.Addr).
				Msg("starting PriceScout API")

			return runHTTPServer(ctx, srv)
		},
	}
}

func newMCPCmd() *cobra.Command {
	var (
		transport string
		addr      string
		path      string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose price tools to MCP clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.cache.StartSweeper(ctx, cfg.Cache.SweepInterval)

			s := mcpDelivery.NewServer(mcpDelivery.NewTools(a.pipeline, a.normalizer, a.extractor), httpDelivery.Version)

			switch transport {
			case "stdio":
				log.Info().Msg("serving MCP over stdio")
				err := mcpDelivery.ServeStdio(ctx, s, os.Stdin, os.Stdout)
				if err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			case "http":
				srv := &http.Server{
					Addr:              addr,
					Handler:           mcpDelivery.NewHTTPServer(s, path),
					ReadHeaderTimeout: 10 * time.Second,
				}
				log.Info().Str("addr", addr).Str("path", path).Msg("serving MCP over streamable HTTP")
				return runHTTPServer(ctx, srv)
			default:
				return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", ":8081", "Listen address for the http transport")
	cmd.Flags().StringVar(&path, "path", "/mcp", "Endpoint path for the http transport")
	return cmd
}

// runHTTPServer serves until ctx is cancelled, then drains open requests
func runHTTPServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
