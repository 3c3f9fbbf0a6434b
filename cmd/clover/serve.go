package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the sync scheduler and the sync workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, flush, err := setup()
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	tp, err := exporters.NewTracerProvider(ctx, cfg.AppName, cfg.OTLPEnabled, exporters.OTLPConfig{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	var verifier middleware.TokenVerifier
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	for _, dep := range a.dependencies(cfg) {
		boot.AddDependency(dep)
	}
	if cfg.AuthIssuerURL != "" {
		boot.AddDependency(startup.Func{
			Name: "oidc",
			OnStart: func(ctx context.Context) error {
				v, err := middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
				verifier = v
				return err
			},
		})
	}
	if err := boot.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	e := handlers.NewRouter(handlers.RouterConfig{ServiceName: cfg.AppName, Verifier: verifier}, a.handlers(cfg), logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", server.Addr)
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	a.health.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-serverErr:
		logger.WithError(err).Error("HTTP server stopped")
	}
	a.health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	shutdown(shutdownCtx, logger, "http server", e.Shutdown)
	shutdown(shutdownCtx, logger, "dependencies", boot.Stop)
	shutdown(shutdownCtx, logger, "tracer provider", tp.Shutdown)
	return err
}

func shutdown(ctx context.Context, logger ectologger.Logger, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		logger.WithError(err).Warnf("Failed to stop %s", name)
	}
}
