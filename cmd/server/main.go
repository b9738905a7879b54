// Package main runs the value history API, optionally with ledger ingestion
// in the same process.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/api"
	"goladium-analytics/internal/bootstrap"
	"goladium-analytics/internal/cache"
	"goladium-analytics/internal/config"
	"goladium-analytics/internal/history"
	"goladium-analytics/internal/ingestion"
	"goladium-analytics/internal/logging"
	"goladium-analytics/internal/observability"
	"goladium-analytics/internal/timeseries"
)

// Server holds the components of the service.
type Server struct {
	cfg    *config.Config
	stores *bootstrap.Stores
	cache  cache.ResultCache
	api    *api.Server
	runner *ingestion.Runner
	logger *logrus.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	// Flags override the environment.
	flag.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	flag.StringVar(&cfg.StorageBackend, "backend", cfg.StorageBackend, "Storage backend: memory, postgres, clickhouse, sqlite")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	noIngest := flag.Bool("no-ingest", false, "Serve the API only, even when ingestion sources are configured")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatalf("setup logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer stores.Close()

	resultCache, closeCache, err := bootstrap.OpenCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open cache: %v", err)
	}
	defer closeCache()

	server := newServer(cfg, stores, resultCache, logger, !*noIngest)

	// Channel to signal completion
	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Infof("received signal %v, initiating graceful shutdown", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warnf("received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("server error: %v", err)
	}
	logger.Info("shutdown complete")
}

func newServer(cfg *config.Config, stores *bootstrap.Stores, resultCache cache.ResultCache, logger *logrus.Logger, ingest bool) *Server {
	engine := timeseries.NewEngine(cfg.MaxPoints, cfg.GapPolicy)

	svc := history.NewService(history.Options{
		EventStore: stores.Events,
		Engine:     engine,
		Cache:      resultCache,
		Logger:     logger,
	})

	writer := ingestion.NewWriter(ingestion.WriterOptions{
		EventStore: stores.Events,
		Cache:      resultCache,
		Logger:     logger,
	})

	s := &Server{
		cfg:    cfg,
		stores: stores,
		cache:  resultCache,
		logger: logger,
	}

	if ingest {
		if sources := bootstrap.Sources(cfg, stores, logger); len(sources) > 0 {
			s.runner = bootstrap.Runner(cfg, stores, writer, sources, logger)
		}
	}

	s.api = api.NewServer(api.Options{
		History:        svc,
		Writer:         writer,
		Runner:         s.runner,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	return s
}

// Run serves HTTP and runs ingestion until ctx is cancelled or a component fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.logger.WithField("addr", s.cfg.HTTPAddr).Info("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.runner != nil {
		go func() {
			s.logger.Info("starting ingestion")
			errCh <- s.runner.Run(ctx)
		}()
	} else {
		s.logger.Info("no ingestion sources enabled, accepting events over HTTP only")
	}

	go trackUptime(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("HTTP shutdown")
	}

	if s.runner != nil && ctx.Err() != nil {
		// Let the runner finish its final flush.
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.WithError(err).Warn("ingestion stopped with error")
			}
		case <-shutdownCtx.Done():
		}
	}
	return runErr
}

func trackUptime(ctx context.Context) {
	const every = 15 * time.Second
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.AddUptime(every)
		}
	}
}
