package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"carerules/internal/config"
	"carerules/internal/httpapi"
	"carerules/internal/log"
)

func serveCmd(opts *hostOptions) *cobra.Command {
	var addr string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve dispatch, validation and commits over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := openHost(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			if addr == "" {
				addr = h.cfg.HTTP.Addr
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			return serve(cmd.Context(), h, ln)
		},
	}

	c.Flags().StringVar(&addr, "addr", "", "listen address (overrides CARERULES_HTTP_ADDR)")
	return c
}

// serve runs the HTTP API on ln until ctx is cancelled, then drains
// in-flight requests.
func serve(ctx context.Context, h *host, ln net.Listener) error {
	logger := log.WithComponent("http")
	apiCfg := httpapi.Config{
		RateLimit:      h.cfg.HTTP.RateLimit,
		JWTSecret:      h.cfg.HTTP.JWTSecret,
		TracerProvider: h.tracing.provider,
	}
	if h.cfg.Metrics == config.MetricsPrometheus {
		apiCfg.Metrics = promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
	}
	srv := &http.Server{
		Handler:           httpapi.NewRouter(h.service, apiCfg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info().Str("addr", ln.Addr().String()).Msg("rule host listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("rule host stopped")
	return nil
}
