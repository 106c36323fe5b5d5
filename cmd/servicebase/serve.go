package main

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/usdfinancial/service-base/pkg/di"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /healthz and /metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := opts.openContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if addr == "" {
				addr = c.Config().HTTPAddr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           newRouter(c),
				ReadHeaderTimeout: 5 * time.Second,
			}
			return serve(ctx, srv, c.Logger())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to http_addr from the config)")
	return cmd
}

func newRouter(c *di.Container) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		reports := c.HealthCheck(req.Context())
		status := http.StatusOK
		for _, rep := range reports {
			if !rep.Healthy() {
				status = http.StatusServiceUnavailable
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = writeJSON(w, reports)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(c.Metrics().Registry(), promhttp.HandlerOpts{}))
	return r
}

func serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
