package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/embedpool/internal/http"
	"github.com/fyrsmithlabs/embedpool/internal/telemetry"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host string
		port int
		warm int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured model pool over HTTP",
		Long: `Serve builds a pool for the configured model and exposes it over HTTP.

The server stops on SIGINT or SIGTERM, waiting up to server.shutdown_timeout
for in-flight requests before closing the pool.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("warm") {
				a.cfg.Pool.Warm = warm
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.http_port)")
	cmd.Flags().IntVar(&warm, "warm", 0, "instances to create before accepting requests")
	return cmd
}

// serve runs until ctx is canceled or the listener fails.
func (a *app) serve(ctx context.Context) error {
	logger := a.zap()

	tel, err := telemetry.New(ctx, telemetry.FromConfig(a.cfg.Observability, version), telemetry.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	pc, err := a.cfg.EmbedPool()
	if err != nil {
		return err
	}
	pool, err := pc.CreatePool(embedpool.StdRuntime{},
		embedpool.WithLogger(logger),
		embedpool.WithMeterProvider(tel.MeterProvider()),
	)
	if err != nil {
		return err
	}
	defer pool.Close()

	if n := a.cfg.Pool.Warm; n > 0 {
		start := time.Now()
		if err := pool.Warm(ctx, n); err != nil {
			return fmt.Errorf("warming pool: %w", err)
		}
		logger.Info("pool warmed", zap.Int("instances", n), zap.Duration("duration", time.Since(start)))
	}

	srv, err := httpserver.NewServer(pool, pc.Model, logger, &httpserver.Config{
		Host:      a.cfg.Server.Host,
		Port:      a.cfg.Server.Port,
		BodyLimit: a.cfg.Server.BodyLimit,
		Version:   version,
	}, tel.MeterProvider(), httpserver.WithTracer(tel.Tracer("github.com/fyrsmithlabs/embedpool/internal/http")))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving model",
			zap.String("kind", pc.Model.Kind().String()),
			zap.String("model", pc.Model.Model()),
			zap.Int("max_size", pool.Config().MaxSize),
		)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
