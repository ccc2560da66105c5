package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/lesion-api/internal/classifier"
	"github.com/Brownie44l1/lesion-api/internal/handlers"
	"github.com/Brownie44l1/lesion-api/internal/loader"
	"github.com/Brownie44l1/lesion-api/internal/metrics"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func NewServeCommand(rt *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve classifications over HTTP",
		Long: `Start the HTTP API immediately and load the model in the background.
Prediction endpoints answer 503 until the model is ready; /ready reports load progress.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				rt.cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rt)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, e.g. :8080")
	return cmd
}

func runServe(ctx context.Context, rt *app) error {
	cfg, logger := rt.cfg, rt.logger

	classifierOpts := []classifier.Option{
		classifier.WithAssetsDir(cfg.AssetsDir),
		classifier.WithIllustrationCategory(cfg.IllustrationCategory),
		classifier.WithLogger(logger),
	}
	var loaderOpts []loader.Option
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		m := metrics.New()
		classifierOpts = append(classifierOpts, classifier.WithMetrics(m))
		loaderOpts = append(loaderOpts, loader.WithObserver(m))
		metricsHandler = m.Handler()
	}

	c := classifier.New(classifierOpts...)
	defer c.Close()

	events, err := newLoader(rt, loaderOpts...).Start(ctx, cfg.ModelPath())
	if err != nil {
		return err
	}
	go func() {
		err := c.Pump(ctx, events, func(p int) {
			logger.Debug().Int("progress", p).Msg("loading model")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("model handoff failed")
		}
	}()

	handler := handlers.NewHandler(c, cfg.MaxUploadMB, logger)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Routes(metricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("model", cfg.ModelPath()).
			Bool("metrics", metricsHandler != nil).
			Msg("server starting")
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

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
