package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/bootstrap"
	"goladium-analytics/internal/config"
	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/history"
	"goladium-analytics/internal/ingestion"
	"goladium-analytics/internal/logging"
	"goladium-analytics/internal/observability"
	"goladium-analytics/internal/timeseries"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	mode := flag.String("mode", "live", "Ingestion mode: live, load, or verify")
	file := flag.String("file", "", "JSON file of ledger events (load mode)")
	userID := flag.String("user", "", "User whose stream to verify (verify mode)")
	category := flag.String("category", string(domain.CategoryFinancial), "Ledger category (verify mode)")
	tolerance := flag.Float64("tolerance", timeseries.DefaultChainTolerance, "Chain tolerance (verify mode)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	flag.StringVar(&cfg.StorageBackend, "backend", cfg.StorageBackend, "Storage backend: memory, postgres, clickhouse, sqlite")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatalf("setup logging: %v", err)
	}
	log := logging.Component(logger, "ingest")

	if *metricsAddr != "" && *mode == "live" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			log.WithField("addr", *metricsAddr).Info("starting metrics server")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server error")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open stores: %v", err)
	}
	defer stores.Close()

	resultCache, closeCache, err := bootstrap.OpenCache(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open cache: %v", err)
	}
	defer closeCache()

	writer := ingestion.NewWriter(ingestion.WriterOptions{
		EventStore: stores.Events,
		Cache:      resultCache,
		Logger:     logger,
	})

	switch *mode {
	case "live":
		err = runLive(ctx, cfg, stores, writer, logger)
	case "load":
		err = runLoad(ctx, *file, writer, log)
	case "verify":
		err = runVerify(ctx, stores, *userID, domain.Category(*category), *tolerance, logger)
	default:
		err = fmt.Errorf("unknown mode %q (use live, load, or verify)", *mode)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%s: %v", *mode, err)
	}
	log.Info("done")
}

// runLive consumes every configured source until cancelled.
func runLive(ctx context.Context, cfg *config.Config, stores *bootstrap.Stores, writer *ingestion.Writer, logger *logrus.Logger) error {
	sources := bootstrap.Sources(cfg, stores, logger)
	if len(sources) == 0 {
		return errors.New("no ingestion sources configured (set KAFKA_BROKERS or LEDGER_WS_ENDPOINT)")
	}
	runner := bootstrap.Runner(cfg, stores, writer, sources, logger)
	err := runner.Run(ctx)

	st := runner.Stats()
	logger.WithFields(logrus.Fields{
		"batches":      st.Batches,
		"stored":       st.Writer.Stored,
		"duplicates":   st.Writer.Duplicates,
		"rejected":     st.Writer.Rejected,
		"chain_breaks": st.Writer.ChainBreaks,
	}).Info("ingestion stopped")
	return err
}

// runLoad stores the events of a JSON file (one object or an array).
func runLoad(ctx context.Context, path string, writer *ingestion.Writer, log logrus.FieldLogger) error {
	if path == "" {
		return errors.New("--file is required in load mode")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	events, rejected, err := ingestion.DecodeEvents(data)
	if err != nil {
		return err
	}
	for _, r := range rejected {
		log.WithError(r.Err).WithField("index", r.Index).Warn("rejecting invalid event")
	}

	res, err := writer.Write(ctx, events)
	if err != nil {
		return err
	}
	for _, r := range res.Rejected {
		log.WithError(r.Err).WithField("index", r.Index).Warn("rejecting invalid event")
	}
	log.WithFields(logrus.Fields{
		"file":         path,
		"stored":       res.Stored,
		"duplicates":   res.Duplicates,
		"rejected":     len(rejected) + len(res.Rejected),
		"chain_breaks": res.ChainBreaks,
	}).Info("load complete")
	return nil
}

// runVerify replays one stored stream and reports reconstruction problems.
func runVerify(ctx context.Context, stores *bootstrap.Stores, userID string, category domain.Category, tolerance float64, logger *logrus.Logger) error {
	svc := history.NewService(history.Options{EventStore: stores.Events, Logger: logger})
	report, err := svc.VerifyStream(ctx, userID, category, tolerance)
	if err != nil {
		return err
	}

	fmt.Printf("stream %s/%s: %d events\n", report.UserID, report.Category, report.TotalEvents)
	for _, b := range report.Breaks {
		fmt.Printf("  break at event %d: expected value_after %.6f, got %.6f\n", b.EventNumber, b.Expected, b.Got)
	}
	for _, g := range report.Gaps {
		fmt.Printf("  gap: event numbers %d..%d missing\n", g.After+1, g.Before-1)
	}
	for _, d := range report.Backdated {
		fmt.Printf("  backdated: event %d at %d precedes predecessor at %d\n", d.EventNumber, d.TimestampMs, d.PrevMs)
	}
	if !report.OK() {
		return fmt.Errorf("stream %s/%s failed verification", userID, category)
	}
	fmt.Println("  OK")
	return nil
}
