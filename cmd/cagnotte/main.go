package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"cagnotte/internal/amqp"
	"cagnotte/internal/backend"
	"cagnotte/internal/cache"
	"cagnotte/internal/cli"
	"cagnotte/internal/config"
	apphttp "cagnotte/internal/http"
	"cagnotte/internal/log"
	"cagnotte/internal/session"
)

const (
	cleanupInterval = 5 * time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		cli.Fatal(logger, "Server stopped with error", err)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger, nil).CreateBackend(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("create session backend: %w", err)
	}
	if res.Cleanup != nil {
		defer func() {
			if err := res.Cleanup(); err != nil {
				logger.Error("Session backend cleanup failed", log.FieldError, err)
			}
		}()
	}

	var publisher apphttp.ExportPublisher
	if cfg.RemoteExportEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return fmt.Errorf("connect to AMQP broker: %w", err)
		}
		defer client.Close()
		publisher = client
		logger.Info("Remote export enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Remote export disabled - no AMQP_URL provided")
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Sessions:           session.NewManager(res.Store, nil),
		Publisher:          publisher,
		Ready:              res.Ping,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CookieMaxAge:       cfg.SessionTTL,
	})
	if err != nil {
		return err
	}

	cleaner := cache.NewManager()
	cleaner.Register(res.Store)
	cleaner.Register(srv.Limiter())
	cleaner.StartCleanup(cleanupInterval)
	defer cleaner.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting cagnotte server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"session_ttl", cfg.SessionTTL.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down server", log.FieldOperation, log.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
